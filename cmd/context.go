package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/masmgr/revtrack/config"
	"github.com/masmgr/revtrack/internal/cache"
	"github.com/masmgr/revtrack/internal/errs"
	"github.com/masmgr/revtrack/internal/known"
	"github.com/masmgr/revtrack/internal/logger"
	"github.com/masmgr/revtrack/internal/output"
	"github.com/masmgr/revtrack/internal/scm"
	"github.com/masmgr/revtrack/internal/store"
	"github.com/masmgr/revtrack/internal/tracker"
)

// CommandContext holds common state for command execution.
// It encapsulates the shared setup logic across all commands.
type CommandContext struct {
	Config  *config.Config
	Logger  *slog.Logger
	Ctx     context.Context
	Store   store.KV
	Cache   *cache.RevisionCache
	Tracker *tracker.Tracker
	// Reviews is nil unless the store is SQL backed.
	Reviews *known.ReviewLog

	cancel   context.CancelFunc
	closeLog func()
}

// NewCommandContext creates a context from CLI flags. It loads the
// configuration, sets up logging and opens the store and the repository.
func NewCommandContext(c *cli.Context) (*CommandContext, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	log, closeLog := logger.NewLogger(cfg.Log, nil)
	slog.SetDefault(log)

	cc := &CommandContext{Config: cfg, Logger: log, closeLog: closeLog}
	if timeout := cfg.Timeout(); timeout > 0 {
		cc.Ctx, cc.cancel = context.WithTimeout(c.Context, timeout)
	} else {
		cc.Ctx, cc.cancel = context.WithCancel(c.Context)
	}

	if err := cc.open(); err != nil {
		cc.Close()
		return nil, err
	}
	return cc, nil
}

func (cc *CommandContext) open() error {
	cfg := cc.Config

	kv, err := openStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	cc.Store = kv

	extractor, err := known.NewExtractor(cfg.Known.Patterns)
	if err != nil {
		return err
	}
	var knownSource known.Source = known.Static{}
	if sqlStore, ok := kv.(*store.SQLStore); ok {
		cc.Reviews = known.NewReviewLog(sqlStore.DB(), extractor, cc.Logger)
		knownSource = cc.Reviews
	} else {
		cc.Logger.Warn("review log needs a SQL store; no revisions count as known", "driver", cfg.Store.Driver)
	}

	source, err := newSource(cfg, cc.Logger)
	if err != nil {
		return fmt.Errorf("failed to open repository: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return errs.E(errs.Config, "timezone", err)
	}

	namespace := store.Namespace(toolName(cfg.SCM.Type), cfg.RepositoryPath())
	cc.Cache = cache.New(kv, namespace, cache.Options{
		FreshnessWindow: cfg.Window(),
		Clock:           cache.SystemClock(loc),
		Logger:          cc.Logger,
	})
	cc.Tracker = tracker.New(cc.Cache, source, knownSource, cc.Logger)

	cc.Logger.Debug("command context ready",
		"scm", cfg.SCM.Type,
		"repository", cfg.RepositoryPath(),
		"namespace", namespace,
		"store", cfg.Store.Driver)
	return nil
}

// Close releases the store, the timeout and log files.
func (cc *CommandContext) Close() {
	if cc.Store != nil {
		if err := cc.Store.Close(); err != nil {
			cc.Logger.Warn("failed to close store", "error", err)
		}
	}
	if cc.cancel != nil {
		cc.cancel()
	}
	if cc.closeLog != nil {
		cc.closeLog()
	}
}

// executeWithContext runs fn with a fully set up CommandContext.
func executeWithContext(c *cli.Context, fn func(cc *CommandContext, c *cli.Context) error) error {
	cc, err := NewCommandContext(c)
	if err != nil {
		return err
	}
	defer cc.Close()
	return fn(cc, c)
}

func openStore(cfg config.StoreConfig) (store.KV, error) {
	switch cfg.Driver {
	case config.StoreMemory:
		return store.NewMemory(), nil
	default:
		return store.OpenSQL(cfg.Driver, cfg.DSN)
	}
}

func newSource(cfg *config.Config, log *slog.Logger) (scm.Source, error) {
	switch cfg.SCM.Type {
	case config.SCMPerforce:
		var env []string
		if cfg.SCM.P4.Password != "" {
			env = append(env, config.EnvP4Password+"="+cfg.SCM.P4.Password)
		}
		return scm.NewP4Source(scm.P4Options{
			Port:   cfg.SCM.P4.Port,
			User:   cfg.SCM.P4.User,
			Client: cfg.SCM.P4.Client,
			Path:   cfg.SCM.P4.Path,
			Binary: cfg.SCM.P4.Binary,
			Runner: scm.ExecRunner(env...),
			Logger: log,
		}), nil
	case config.SCMSubversion:
		return scm.NewSVNSource(scm.SVNOptions{
			URL:      cfg.SCM.SVN.URL,
			Username: cfg.SCM.SVN.Username,
			Password: cfg.SCM.SVN.Password,
			Binary:   cfg.SCM.SVN.Binary,
			Logger:   log,
		}), nil
	case config.SCMGit:
		return scm.NewGitSource(scm.GitOptions{
			RepoPath:         cfg.SCM.Git.Path,
			ShelvedRefPrefix: cfg.SCM.Git.ShelvedRefPrefix,
			Include:          cfg.SCM.Git.Include,
			Exclude:          cfg.SCM.Git.Exclude,
		})
	default:
		return nil, errs.Errorf(errs.Config, "open repository", "unsupported scm %q", cfg.SCM.Type)
	}
}

// toolName names the cache namespace of a repository kind.
func toolName(scmType string) string {
	switch scmType {
	case config.SCMPerforce:
		return "perforce"
	case config.SCMSubversion:
		return "subversion"
	default:
		return scmType
	}
}

// OutputOptions creates OutputOptions from CLI flags.
func OutputOptions(c *cli.Context) output.OutputOptions {
	return output.OutputOptions{
		Format:     getOutputFormat(c.String("format")),
		Top:        c.Int("top"),
		OutputPath: c.String("output"),
	}
}
