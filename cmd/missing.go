package cmd

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/masmgr/revtrack/internal/output"
)

// MissingCmd returns the missing command.
func MissingCmd() *cli.Command {
	return &cli.Command{
		Name:    "missing",
		Aliases: []string{"m"},
		Usage:   "List a user's revisions that have no review yet",
		Flags: []cli.Flag{
			userFlag(),
			&cli.StringFlag{
				Name:  "scm-user",
				Usage: "Repository identity (default: the stored identity, then --user)",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format (console, json, csv, markdown, ci)",
				Value:   "console",
			},
			&cli.IntFlag{
				Name:    "top",
				Aliases: []string{"n"},
				Usage:   "Show at most this many revisions (0: all)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file path (default: stdout)",
			},
		},
		Action: missingAction,
	}
}

func missingAction(c *cli.Context) error {
	return executeWithContext(c, func(cc *CommandContext, c *cli.Context) error {
		user := c.String("user")

		identity := c.String("scm-user")
		if identity == "" {
			stored, err := cc.Tracker.ScmIdentity(cc.Ctx, user)
			if err != nil {
				return err
			}
			identity = stored
		}

		items, err := cc.Tracker.MissingRevisions(cc.Ctx, user, identity)
		if err != nil {
			return err
		}

		today := cc.Cache.Today()
		report := &output.MissingReport{
			Repository:  cc.Config.RepositoryPath(),
			SCM:         cc.Config.SCM.Type,
			User:        user,
			Identity:    identity,
			Since:       today.AddDate(0, 0, -cc.Config.Cache.WindowDays),
			Until:       today,
			GeneratedAt: time.Now(),
			Items:       items,
		}
		return writeMissingReport(c, report)
	})
}
