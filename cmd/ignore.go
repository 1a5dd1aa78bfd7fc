package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/masmgr/revtrack/internal/errs"
	"github.com/masmgr/revtrack/internal/scm"
)

// IgnoreCmd returns the ignore command.
func IgnoreCmd() *cli.Command {
	return &cli.Command{
		Name:      "ignore",
		Usage:     "Hide revisions from a user's missing list, or show the hidden ones",
		ArgsUsage: "[REV...]",
		Flags:     []cli.Flag{userFlag()},
		Action:    ignoreAction,
	}
}

// UnignoreCmd returns the unignore command.
func UnignoreCmd() *cli.Command {
	return &cli.Command{
		Name:      "unignore",
		Usage:     "Show previously ignored revisions again",
		ArgsUsage: "REV...",
		Flags:     []cli.Flag{userFlag()},
		Action:    unignoreAction,
	}
}

func ignoreAction(c *cli.Context) error {
	revs, err := parseRevisions(c.Args().Slice())
	if err != nil {
		return err
	}
	return executeWithContext(c, func(cc *CommandContext, c *cli.Context) error {
		user := c.String("user")
		if len(revs) > 0 {
			if err := cc.Tracker.IgnoreRevisions(cc.Ctx, user, revs); err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(c.App.Writer, "Ignored %d revision(s) for %s\n", len(revs), user)
		}
		ignored, err := cc.Tracker.IgnoredRevisions(cc.Ctx, user)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Ignored revisions of %s: %s\n", user, joinRevisions(ignored))
		return nil
	})
}

func unignoreAction(c *cli.Context) error {
	revs, err := parseRevisions(c.Args().Slice())
	if err != nil {
		return err
	}
	if len(revs) == 0 {
		return errs.Errorf(errs.Validation, "unignore", "no revisions given")
	}
	return executeWithContext(c, func(cc *CommandContext, c *cli.Context) error {
		user := c.String("user")
		if err := cc.Tracker.UnignoreRevisions(cc.Ctx, user, revs); err != nil {
			return err
		}
		ignored, err := cc.Tracker.IgnoredRevisions(cc.Ctx, user)
		if err != nil {
			return err
		}
		color.New(color.FgGreen).Fprintf(c.App.Writer, "Restored %d revision(s) for %s\n", len(revs), user)
		fmt.Fprintf(c.App.Writer, "Ignored revisions of %s: %s\n", user, joinRevisions(ignored))
		return nil
	})
}

func joinRevisions(revs []scm.Revision) string {
	if len(revs) == 0 {
		return "none"
	}
	parts := make([]string, len(revs))
	for i, r := range revs {
		parts[i] = r.String()
	}
	return strings.Join(parts, ", ")
}
