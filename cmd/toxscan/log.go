package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/toxfilter/internal/repository/eventlog"
)

func newLogCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect the event journal in --log-dir",
	}
	cmd.AddCommand(newLogExportCmd(opts), newLogStatsCmd(opts), newLogClearCmd(opts))
	return cmd
}

func newLogExportCmd(opts *options) *cobra.Command {
	var format, outFile string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export journal events as JSON or CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != eventlog.FormatJSON && format != eventlog.FormatCSV {
				return fmt.Errorf("unknown format %q (json, csv)", format)
			}
			logger, err := opts.logger()
			if err != nil {
				return err
			}
			repo, closeStore, err := opts.openJournal(logger)
			if err != nil {
				return err
			}
			defer closeStore()

			events, err := repo.List(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outFile != "" {
				f, err := os.Create(filepath.Clean(outFile))
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				out = f
			}
			return eventlog.Export(out, format, events)
		},
	}
	cmd.Flags().StringVar(&format, "format", eventlog.FormatJSON, "json or csv")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (stdout when empty)")
	return cmd
}

func newLogStatsCmd(opts *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize journal events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := opts.logger()
			if err != nil {
				return err
			}
			repo, closeStore, err := opts.openJournal(logger)
			if err != nil {
				return err
			}
			defer closeStore()

			events, err := repo.List(cmd.Context())
			if err != nil {
				return err
			}
			stats := eventlog.Summarize(events, time.Now())

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}
			fmt.Fprintf(out, "total: %d\ntoday: %d\n", stats.Total, stats.Today)
			fmt.Fprintln(out, "by source:")
			for _, k := range sortedKeys(stats.BySource) {
				fmt.Fprintf(out, "  %-16s %d\n", k, stats.BySource[k])
			}
			fmt.Fprintln(out, "by severity:")
			for _, k := range sortedKeys(stats.BySeverity) {
				fmt.Fprintf(out, "  %-16s %d\n", k, stats.BySeverity[k])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "JSON output")
	return cmd
}

func newLogClearCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every journal event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := opts.logger()
			if err != nil {
				return err
			}
			repo, closeStore, err := opts.openJournal(logger)
			if err != nil {
				return err
			}
			defer closeStore()
			return repo.Clear(cmd.Context())
		},
	}
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
