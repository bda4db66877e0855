package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	dbBadger "github.com/kailas-cloud/toxfilter/internal/db/badger"
	"github.com/kailas-cloud/toxfilter/internal/lexicon"
	logpkg "github.com/kailas-cloud/toxfilter/internal/logger"
	"github.com/kailas-cloud/toxfilter/internal/repository/eventlog"
	"github.com/kailas-cloud/toxfilter/internal/repository/verdictcache"
	"github.com/kailas-cloud/toxfilter/internal/transport/classifier"
	"github.com/kailas-cloud/toxfilter/internal/usecase/session"
)

// options holds the persistent flags shared by every subcommand.
type options struct {
	lexiconFiles      []string
	noDefaultLexicon  bool
	classifierURL     string
	classifierTimeout time.Duration
	logDir            string
	cacheTTL          time.Duration
	domain            string
	logLevel          string
}

var errNoLogDir = errors.New("--log-dir is required")

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "toxscan",
		Short:        "Blur toxic language in HTML and text files",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringSliceVar(&opts.lexiconFiles, "lexicon", nil, "extra YAML term lists")
	pf.BoolVar(&opts.noDefaultLexicon, "no-default-lexicon", false, "skip the embedded term lists")
	pf.StringVar(&opts.classifierURL, "classifier-url", "", "remote classifier base URL (lexicon-only when empty)")
	pf.DurationVar(&opts.classifierTimeout, "classifier-timeout", 15*time.Second, "remote classifier request timeout")
	pf.StringVar(&opts.logDir, "log-dir", "", "event journal directory (badger)")
	pf.DurationVar(&opts.cacheTTL, "cache-ttl", 24*time.Hour, "keep classifier verdicts in the journal store this long (0 disables)")
	pf.StringVar(&opts.domain, "domain", "", "domain recorded with events")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "debug, info, warn, error")

	root.AddCommand(
		newScanCmd(opts),
		newWatchCmd(opts),
		newLexiconCmd(opts),
		newLogCmd(opts),
		newVersionCmd(),
	)
	return root
}

func (o *options) logger() (*zap.Logger, error) {
	return logpkg.NewLogger("local", o.logLevel)
}

func (o *options) lexicon() (*lexicon.Lexicon, error) {
	if !o.noDefaultLexicon {
		return lexicon.Default(o.lexiconFiles...)
	}
	sources, err := lexicon.LoadFiles(o.lexiconFiles...)
	if err != nil {
		return nil, err
	}
	return lexicon.Compile(sources...)
}

// openStore opens the badger database under --log-dir.
func (o *options) openStore(logger *zap.Logger) (*dbBadger.Store, error) {
	if o.logDir == "" {
		return nil, errNoLogDir
	}
	store, err := dbBadger.NewStore(dbBadger.Config{Path: o.logDir, Logger: logger.Named("badger")})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return store, nil
}

// openJournal opens the event journal under --log-dir.
func (o *options) openJournal(logger *zap.Logger) (*eventlog.Repo, func(), error) {
	store, err := o.openStore(logger)
	if err != nil {
		return nil, nil, err
	}
	return eventlog.New(store, eventlog.DefaultKey, eventlog.DefaultMaxEntries), store.Close, nil
}

// pipeline builds a session manager wired to the lexicon, the optional
// classifier and the optional journal. The returned func releases everything.
func (o *options) pipeline(logger *zap.Logger) (*session.Manager, func(), error) {
	lex, err := o.lexicon()
	if err != nil {
		return nil, nil, err
	}

	var cleanup []func()
	release := func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}

	mgr := session.NewManager(lex, session.DefaultConfig(), logger.Named("session"))
	var store *dbBadger.Store
	if o.logDir != "" {
		store, err = o.openStore(logger)
		if err != nil {
			return nil, nil, err
		}
		repo := eventlog.New(store, eventlog.DefaultKey, eventlog.DefaultMaxEntries)
		async := eventlog.NewAsync(repo, 256, 5*time.Second, logger.Named("eventlog"))
		cleanup = append(cleanup, store.Close, async.Close)
		mgr.WithRecorder(async)
	}
	if o.classifierURL != "" {
		var cls verdictcache.Classifier = classifier.New(&classifier.Config{
			BaseURL: o.classifierURL,
			Timeout: o.classifierTimeout,
			Logger:  logger.Named("classifier"),
		})
		if store != nil && o.cacheTTL > 0 {
			cls = verdictcache.New(cls, store, "detoxify", o.cacheTTL, nil, logger.Named("verdictcache"))
		}
		mgr.WithClassifier(cls, cls)
	}
	cleanup = append(cleanup, mgr.CloseAll)
	return mgr, release, nil
}
