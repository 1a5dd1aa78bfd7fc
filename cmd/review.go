package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/masmgr/revtrack/internal/errs"
	"github.com/masmgr/revtrack/internal/known"
)

// ReviewCmd returns the review command.
func ReviewCmd() *cli.Command {
	return &cli.Command{
		Name:  "review",
		Usage: "Manage the review requests revisions are matched against",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Record a review request",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "submitter",
						Aliases:  []string{"s"},
						Usage:    "User who posted the review",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "description",
						Aliases:  []string{"d"},
						Usage:    "Review description, e.g. \"Change 457471 by alice@ws on 2009/08/04 16:03:33\"",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "status",
						Usage: "Review status (pending, submitted, discarded)",
						Value: string(known.StatusPending),
					},
				},
				Action: reviewAddAction,
			},
		},
	}
}

func reviewAddAction(c *cli.Context) error {
	status, err := known.ParseStatus(c.String("status"))
	if err != nil {
		return err
	}
	return executeWithContext(c, func(cc *CommandContext, c *cli.Context) error {
		if cc.Reviews == nil {
			return errs.Errorf(errs.Config, "review add", "store driver %q cannot hold review requests", cc.Config.Store.Driver)
		}
		review, err := cc.Reviews.Add(cc.Ctx, known.Review{
			Submitter:   c.String("submitter"),
			Description: c.String("description"),
			Status:      status,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Recorded review %s (%s)\n", review.ID, review.Status)
		return nil
	})
}
