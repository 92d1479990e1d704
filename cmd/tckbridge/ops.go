package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wippyai/tck-bridge/analysis"
)

func newOpsCommand(rootOpts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ops",
		Short: "List catalog operations and their parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := rootOpts.catalog()
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cat.Operations)
			}
			return listOperations(cmd, cat)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the catalog as JSON")
	return cmd
}

func listOperations(cmd *cobra.Command, cat *analysis.Catalog) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OPERATION\tSIGNATURE\tSUMMARY")
	for _, op := range cat.Operations {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", op.Name, signature(op), op.Summary)
	}
	return tw.Flush()
}

// signature renders an operation the way its native symbol is declared,
// marking optional parameters.
func signature(op *analysis.Operation) string {
	params := make([]string, len(op.Params))
	for i, p := range op.Params {
		s := p.Type.String() + " " + p.Name
		if p.Encoding != analysis.Plain {
			s += " (" + string(p.Encoding) + ")"
		}
		if !p.Required {
			s = "[" + s + "]"
		}
		params[i] = s
	}
	return fmt.Sprintf("%s %s(%s)", op.Returns, op.Symbol, strings.Join(params, ", "))
}
