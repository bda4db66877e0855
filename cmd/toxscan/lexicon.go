package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/toxfilter/internal/domain/severity"
	"github.com/kailas-cloud/toxfilter/internal/lexicon"
)

func newLexiconCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lexicon",
		Short: "Inspect the compiled term lists",
	}
	cmd.AddCommand(newLexiconListCmd(opts))
	return cmd
}

func newLexiconListCmd(opts *options) *cobra.Command {
	var (
		lang, sev, query string
		asJSON           bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List terms by language and severity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := lexicon.Filter{Language: lang, Query: query}
			if sev != "" {
				lvl, err := severity.Parse(sev)
				if err != nil {
					return err
				}
				f.Severity = lvl
			}

			lex, err := opts.lexicon()
			if err != nil {
				return err
			}
			groups := lex.Inspect(f)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if groups == nil {
					groups = []lexicon.Group{}
				}
				return enc.Encode(groups)
			}
			if len(groups) == 0 {
				fmt.Fprintln(out, "no terms match")
				return nil
			}
			for _, g := range groups {
				fmt.Fprintf(out, "%s (%d terms)\n", g.Language, g.Len())
				printTerms(cmd, severity.High, g.High)
				printTerms(cmd, severity.Medium, g.Medium)
				printTerms(cmd, severity.Low, g.Low)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "language filter")
	cmd.Flags().StringVar(&sev, "severity", "", "severity filter: high, medium, low")
	cmd.Flags().StringVar(&query, "query", "", "case-insensitive substring filter")
	cmd.Flags().BoolVar(&asJSON, "json", false, "JSON output")
	return cmd
}

func printTerms(cmd *cobra.Command, lvl severity.Level, terms []string) {
	if len(terms) == 0 {
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "  %-6s %s\n", lvl+":", strings.Join(terms, ", "))
}
