package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wippyai/tck-bridge/invoke"
)

type callOptions struct {
	*rootOptions
	returns string
	params  []string
	json    bool
}

func newCallCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &callOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "call <symbol> [args...]",
		Short: "Call any exported symbol with explicit type tags",
		Long: `Call any exported symbol with explicit type tags.

Each argument is read as JSON when it parses (numbers, null, quoted strings)
and as a plain string otherwise. Output parameters take null.

Examples:
  tckbridge call -l libc.so.6 abs -p int32 -r int32 -- -7
  tckbridge call -l libm.so.6 frexp -p double -p out_int32_ptr -r double 8 null`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return callSymbol(cmd, opts, args[0], args[1:])
		},
	}

	cmd.Flags().StringArrayVarP(&opts.params, "param", "p", nil, "parameter type tag, once per parameter in order")
	cmd.Flags().StringVarP(&opts.returns, "returns", "r", "void", "return type tag")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the outcome as JSON")
	return cmd
}

func callSymbol(cmd *cobra.Command, opts *callOptions, symbol string, raw []string) error {
	iv, err := opts.invoker()
	if err != nil {
		return err
	}

	args := make([]any, len(raw))
	for i, s := range raw {
		args[i] = parseArg(s)
	}

	out, err := iv.Call(cmd.Context(), symbol, opts.params, opts.returns, args)
	return printOutcome(cmd.OutOrStdout(), cmd.ErrOrStderr(), out, err, "value", opts.json)
}

func parseArg(s string) any {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return s
	}
	return v
}

// printOutcome prints an outcome and turns a failed one into the process exit
// code: 2 for a bad request, 3 when the call itself failed.
func printOutcome(w, errw io.Writer, out *invoke.Outcome, err error, field string, asJSON bool) error {
	if asJSON {
		view := map[string]any{
			"id":          out.ID.String(),
			"symbol":      out.Symbol,
			"status":      out.Status,
			"output":      string(out.Output),
			"duration_ms": out.Duration.Milliseconds(),
		}
		if err != nil {
			view["error"] = err.Error()
			view["retryable"] = out.Status.Retryable()
		} else {
			view[field] = out.Value.Interface()
			if len(out.Out) > 0 {
				view["out"] = out.Out
			}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if werr := enc.Encode(view); werr != nil {
			return werr
		}
	} else {
		var b bytes.Buffer
		if len(out.Output) > 0 {
			b.Write(out.Output)
			if !bytes.HasSuffix(out.Output, []byte("\n")) {
				b.WriteByte('\n')
			}
		}
		if err != nil {
			fmt.Fprintf(errw, "%s: %v\n", out.Status, err)
			if len(out.Stderr) > 0 {
				fmt.Fprintf(errw, "worker stderr:\n%s\n", out.Stderr)
			}
		} else {
			fmt.Fprintf(&b, "%s = %s\n", field, formatValue(out.Value.Interface()))
			for _, o := range out.Out {
				fmt.Fprintf(&b, "out[%d] = %d\n", o.Index, o.Value)
			}
		}
		if _, werr := w.Write(b.Bytes()); werr != nil {
			return werr
		}
	}

	if err == nil {
		return nil
	}
	switch out.Status {
	case invoke.StatusMalformedRequest, invoke.StatusTypeMismatch, invoke.StatusValueOverflow, invoke.StatusUnknownType:
		return &exitError{code: 2}
	}
	return &exitError{code: 3}
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", v)
	}
	return fmt.Sprint(v)
}
