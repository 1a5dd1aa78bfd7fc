package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/masmgr/revtrack/config"
	"github.com/masmgr/revtrack/internal/errs"
	"github.com/masmgr/revtrack/internal/metrics"
	"github.com/masmgr/revtrack/internal/output"
	"github.com/masmgr/revtrack/internal/scm"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "revtrack",
		Usage:   "Find submitted and shelved changes that have not been posted for review",
		Version: "1.0.0",
		Commands: []*cli.Command{
			MissingCmd(),
			IgnoreCmd(),
			UnignoreCmd(),
			IdentityCmd(),
			ReviewCmd(),
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file (.json or .yaml)",
			},
			&cli.StringFlag{
				Name:    "repo",
				Aliases: []string{"r"},
				Usage:   "Repository address: P4PORT, Subversion URL or Git path",
			},
			&cli.StringFlag{
				Name:  "scm",
				Usage: "Repository kind (p4, svn, git)",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from this file (default: .env)",
			},
			&cli.StringFlag{
				Name:  "metrics-out",
				Usage: "Write the run's metrics in Prometheus text format to this file",
			},
		},
		After: writeMetrics,
	}
}

// userFlag is the review-system user every command acts for.
func userFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "user",
		Aliases:  []string{"u"},
		Usage:    "Review system user",
		Required: true,
	}
}

// getOutputFormat parses the output format flag.
func getOutputFormat(s string) output.OutputFormat {
	switch s {
	case "json":
		return output.FormatJSON
	case "csv":
		return output.FormatCSV
	case "markdown", "md":
		return output.FormatMarkdown
	case "ci", "ndjson":
		return output.FormatCI
	default:
		return output.FormatConsole
	}
}

// loadConfig loads configuration from file or defaults and applies the
// global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var envFiles []string
	if f := c.String("env-file"); f != "" {
		envFiles = append(envFiles, f)
	}
	if err := config.LoadEnv(envFiles...); err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyOverrides(cfg, c.String("scm"), c.String("repo"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyOverrides applies --scm and --repo to cfg. The repository address
// goes to the field that locates the selected kind of repository.
func applyOverrides(cfg *config.Config, scmType, repo string) {
	if scmType != "" {
		cfg.SCM.Type = strings.ToLower(scmType)
	}
	if repo == "" {
		return
	}
	switch cfg.SCM.Type {
	case config.SCMPerforce:
		cfg.SCM.P4.Port = repo
	case config.SCMSubversion:
		cfg.SCM.SVN.URL = repo
	case config.SCMGit:
		cfg.SCM.Git.Path = repo
	}
}

// parseRevisions parses revision arguments. Commas also separate revisions.
func parseRevisions(args []string) ([]scm.Revision, error) {
	var revs []scm.Revision
	for _, arg := range args {
		for _, field := range strings.Split(arg, ",") {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			rev, err := scm.ParseRevision(field)
			if err != nil {
				return nil, errs.Errorf(errs.Validation, "parse revisions", "invalid revision %q", field)
			}
			revs = append(revs, rev)
		}
	}
	return revs, nil
}

// writeMetrics dumps the collected metrics when --metrics-out is set.
func writeMetrics(c *cli.Context) error {
	path := c.String("metrics-out")
	if path == "" {
		return nil
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create metrics file: %w", err)
	}
	defer file.Close()
	if err := metrics.WriteText(file); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// Run executes the CLI application.
func Run() {
	if err := App().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
