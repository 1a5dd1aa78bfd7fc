package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// IdentityCmd returns the identity command.
func IdentityCmd() *cli.Command {
	return &cli.Command{
		Name:  "identity",
		Usage: "Show or set the repository identity of a review user",
		Flags: []cli.Flag{
			userFlag(),
			&cli.StringFlag{
				Name:  "set",
				Usage: "Store this repository identity for the user",
			},
		},
		Action: identityAction,
	}
}

func identityAction(c *cli.Context) error {
	return executeWithContext(c, func(cc *CommandContext, c *cli.Context) error {
		user := c.String("user")
		if c.IsSet("set") {
			if err := cc.Tracker.SetScmIdentity(cc.Ctx, user, c.String("set")); err != nil {
				return err
			}
		}
		identity, err := cc.Tracker.ScmIdentity(cc.Ctx, user)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "%s -> %s\n", user, identity)
		return nil
	})
}
