package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

type runOptions struct {
	*rootOptions
	values string
	models []string
	sets   []string
	json   bool
}

func newRunCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &runOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <operation>",
		Short: "Run one catalog operation",
		Long: `Run one catalog operation.

Parameters come from a JSON object (--values), from name=value pairs (--set,
values parsed as JSON when possible) and from model files (--model name=path,
the file's text becomes the parameter).

Example:
  tckbridge run reach --model sysdecl=ad94.tck \
    --set algorithm=0 --set search_order=bfs --set certificate=0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.values, "values", "", "parameters as a JSON object")
	cmd.Flags().StringArrayVar(&opts.sets, "set", nil, "parameter as name=value")
	cmd.Flags().StringArrayVar(&opts.models, "model", nil, "model parameter as name=path")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the outcome as JSON")
	return cmd
}

func runOperation(cmd *cobra.Command, opts *runOptions, name string) error {
	values, err := opts.collect()
	if err != nil {
		return err
	}

	iv, err := opts.invoker()
	if err != nil {
		return err
	}
	svc, err := opts.service(iv)
	if err != nil {
		return err
	}

	field := "result"
	if op, ok := svc.Catalog().Lookup(name); ok {
		field = op.ResultField
	}
	out, err := svc.Run(cmd.Context(), name, values)
	return printOutcome(cmd.OutOrStdout(), cmd.ErrOrStderr(), out, err, field, opts.json)
}

func (o *runOptions) collect() (map[string]any, error) {
	values := make(map[string]any)
	if o.values != "" {
		dec := json.NewDecoder(bytes.NewReader([]byte(o.values)))
		dec.UseNumber()
		if err := dec.Decode(&values); err != nil {
			return nil, fmt.Errorf("--values: %w", err)
		}
	}
	for _, kv := range o.sets {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("--set %q: want name=value", kv)
		}
		values[k] = parseArg(v)
	}
	for _, kv := range o.models {
		k, path, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("--model %q: want name=path", kv)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("--model %s: %w", k, err)
		}
		values[k] = string(data)
	}
	return values, nil
}
