package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/masmgr/revtrack/internal/output"
)

func writeMissingReport(c *cli.Context, report *output.MissingReport) error {
	opts := OutputOptions(c)
	writer := output.NewReportWriter(opts.Format)
	return writer.Write(report, opts)
}
