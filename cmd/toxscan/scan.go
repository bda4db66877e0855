package main

import (
	"context"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/toxfilter/internal/dom"
	"github.com/kailas-cloud/toxfilter/internal/usecase/session"
)

const filteredSuffix = ".filtered.html"

func newScanCmd(opts *options) *cobra.Command {
	var toStdout bool
	cmd := &cobra.Command{
		Use:   "scan FILE...",
		Short: "Annotate HTML or text files",
		Long: "Annotate HTML or text files. The result is written next to each input as\n" +
			"NAME" + filteredSuffix + ", or to stdout with --stdout.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := opts.logger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			mgr, release, err := opts.pipeline(logger)
			if err != nil {
				return err
			}
			defer release()

			scanner := &fileScanner{
				mgr:    mgr,
				domain: opts.domain,
				report: cmd.OutOrStdout(),
				logger: logger,
			}
			if toStdout {
				scanner.report = cmd.ErrOrStderr()
				scanner.toWrite = cmd.OutOrStdout()
			}

			var failed int
			for _, p := range args {
				if _, err := scanner.scanFile(cmd.Context(), p); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", p, err)
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&toStdout, "stdout", false, "write annotated HTML to stdout")
	return cmd
}

// fileScanner runs one document session per file.
type fileScanner struct {
	mgr     *session.Manager
	domain  string
	report  io.Writer
	toWrite io.Writer // annotated HTML goes here instead of a file when set
	logger  *zap.Logger
}

type scanSummary struct {
	Path        string
	Output      string
	Annotations int
	Lexicon     int
	AI          int
}

func (s *fileScanner) scanFile(ctx context.Context, path string) (scanSummary, error) {
	sum := scanSummary{Path: path}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return sum, err
	}

	sess, _, err := s.mgr.Create(ctx, documentSource(path, data), s.domain)
	if err != nil {
		return sum, err
	}
	defer func() { _ = s.mgr.Close(sess.ID()) }()

	if err := sess.Flush(ctx); err != nil {
		return sum, err
	}
	view, err := sess.View(ctx)
	if err != nil {
		return sum, err
	}

	sum.Annotations = len(view.Annotations)
	for _, a := range view.Annotations {
		if a.Kind == dom.KindAI {
			sum.AI++
		} else {
			sum.Lexicon++
		}
	}

	if s.toWrite != nil {
		sum.Output = "-"
		if _, err := io.WriteString(s.toWrite, view.HTML); err != nil {
			return sum, err
		}
	} else {
		sum.Output = outputPath(path)
		if err := os.WriteFile(sum.Output, []byte(view.HTML), 0o600); err != nil {
			return sum, err
		}
	}

	s.logger.Debug("File scanned", zap.String("path", path), zap.Int("annotations", sum.Annotations))
	fmt.Fprintf(s.report, "%s: %d annotations (%d lexicon, %d ai) -> %s\n",
		path, sum.Annotations, sum.Lexicon, sum.AI, sum.Output)
	return sum, nil
}

// documentSource wraps plain text in a pre block; HTML passes through.
func documentSource(path string, data []byte) string {
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		return "<pre>" + html.EscapeString(string(data)) + "</pre>"
	}
	return string(data)
}

// outputPath maps page.html and page.txt to page.filtered.html.
func outputPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + filteredSuffix
}

// isScannable reports whether path is an input file and not one of our outputs.
func isScannable(path string) bool {
	if strings.HasSuffix(path, filteredSuffix) {
		return false
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm", ".txt":
		return true
	}
	return false
}
