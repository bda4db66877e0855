package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWatchCmd(opts *options) *cobra.Command {
	var (
		debounce time.Duration
		existing bool
	)
	cmd := &cobra.Command{
		Use:   "watch DIR",
		Short: "Annotate HTML and text files as they appear or change in a directory",
		Args:  cobra.ExactArgs(1),
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

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			scanner := &fileScanner{mgr: mgr, domain: opts.domain, report: cmd.OutOrStdout(), logger: logger}
			if existing {
				if err := scanExisting(ctx, args[0], scanner, cmd); err != nil {
					return err
				}
			}
			return watchDir(ctx, args[0], debounce, scanner, logger)
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 300*time.Millisecond, "quiet period before a changed file is scanned")
	cmd.Flags().BoolVar(&existing, "existing", false, "scan files already in the directory first")
	return cmd
}

func scanExisting(ctx context.Context, dir string, scanner *fileScanner, cmd *cobra.Command) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		p := filepath.Join(dir, e.Name())
		if e.IsDir() || !isScannable(p) {
			continue
		}
		if _, err := scanner.scanFile(ctx, p); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", p, err)
		}
	}
	return nil
}

// watchDir scans files in dir after they stop changing for the debounce
// period. Scans run one at a time on the calling goroutine.
func watchDir(ctx context.Context, dir string, debounce time.Duration, scanner *fileScanner, logger *zap.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	logger.Info("Watching directory", zap.String("dir", dir))

	pending := newFileDebounce(debounce, ctx.Done())
	defer pending.stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) || !isScannable(ev.Name) {
				continue
			}
			pending.touch(ev.Name)

		case p := <-pending.ready:
			if !pending.due(p) {
				continue
			}
			if _, err := scanner.scanFile(ctx, p.name); err != nil {
				logger.Warn("Scan failed", zap.String("path", p.name), zap.Error(err))
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error", zap.Error(err))
		}
	}
}

type dueFile struct {
	name string
	gen  uint64
}

// fileDebounce delivers a file name on ready once it stops changing for delay.
// Every touch starts a new generation; a timer that already fired for an older
// generation still sends, and due drops it. Owned by the watch loop goroutine.
type fileDebounce struct {
	delay  time.Duration
	done   <-chan struct{}
	ready  chan dueFile
	gen    uint64
	latest map[string]uint64
	timers map[string]*time.Timer
}

func newFileDebounce(delay time.Duration, done <-chan struct{}) *fileDebounce {
	return &fileDebounce{
		delay:  delay,
		done:   done,
		ready:  make(chan dueFile),
		latest: make(map[string]uint64),
		timers: make(map[string]*time.Timer),
	}
}

func (d *fileDebounce) touch(name string) {
	if t, ok := d.timers[name]; ok {
		t.Stop()
	}
	d.gen++
	f := dueFile{name: name, gen: d.gen}
	d.latest[name] = f.gen
	d.timers[name] = time.AfterFunc(d.delay, func() {
		select {
		case d.ready <- f:
		case <-d.done:
		}
	})
}

// due reports whether f is the newest generation for its file and clears it.
func (d *fileDebounce) due(f dueFile) bool {
	if d.latest[f.name] != f.gen {
		return false
	}
	delete(d.latest, f.name)
	delete(d.timers, f.name)
	return true
}

func (d *fileDebounce) stop() {
	for _, t := range d.timers {
		t.Stop()
	}
}
