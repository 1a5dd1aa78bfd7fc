package output

import (
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/masmgr/revtrack/internal/scm"
)

// ConsoleWriter writes reports as a table for a terminal.
type ConsoleWriter struct{}

// Write outputs the missing-revision report to the console.
func (w *ConsoleWriter) Write(report *MissingReport, options OutputOptions) error {
	items := limitTop(report.Items, options.Top)

	out, file, err := openOutputWriter(options.OutputPath)
	if err != nil {
		return err
	}
	if file != nil {
		defer file.Close()
	}

	submitted, shelved := report.Counts()

	color.New(color.FgGreen).Fprintln(out, "Revisions Without Review")
	fmt.Fprintf(out, "Repository: %s (%s)\n", report.Repository, report.SCM)
	fmt.Fprintf(out, "User: %s as %s\n", report.User, report.Identity)
	fmt.Fprintf(out, "Period: %s\n", periodValue(report.Since, report.Until))
	fmt.Fprintf(out, "Missing: %d submitted, %d shelved\n\n", submitted, shelved)

	if len(items) == 0 {
		color.New(color.FgGreen).Fprintln(out, "Nothing to review.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "#\tRevision\tStatus\tDescription")
	for i, item := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n",
			i+1,
			item.Revision,
			getStatusColor(item.Pending)(statusOf(item)),
			truncateMessage(scm.Describe(item), 72),
		)
	}

	return tw.Flush()
}

// Helper functions

func truncateMessage(msg string, maxLen int) string {
	if len(msg) <= maxLen {
		return msg
	}
	return msg[:maxLen-3] + "..."
}

func getStatusColor(pending bool) func(string, ...interface{}) string {
	if pending {
		return color.YellowString
	}
	return color.CyanString
}
