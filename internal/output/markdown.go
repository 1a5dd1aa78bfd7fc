package output

import (
	"fmt"
	"strings"
)

// MarkdownWriter writes reports as Markdown.
type MarkdownWriter struct{}

// Write outputs the missing-revision report as Markdown.
func (w *MarkdownWriter) Write(report *MissingReport, options OutputOptions) error {
	items := limitTop(report.Items, options.Top)

	out, file, err := openOutputWriter(options.OutputPath)
	if err != nil {
		return err
	}
	if file != nil {
		defer file.Close()
	}

	submitted, shelved := report.Counts()

	// Header
	fmt.Fprintln(out, "# Revisions Without Review")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "**Repository:** %s (%s)\n\n", escapeMarkdown(report.Repository), report.SCM)
	fmt.Fprintf(out, "**User:** %s as %s\n\n", escapeMarkdown(report.User), escapeMarkdown(report.Identity))
	fmt.Fprintf(out, "**Period:** %s\n\n", periodValue(report.Since, report.Until))
	fmt.Fprintf(out, "**Missing:** %d submitted, %d shelved\n\n", submitted, shelved)

	if len(items) == 0 {
		fmt.Fprintln(out, "Nothing to review.")
		return nil
	}

	// Table
	fmt.Fprintln(out, "| # | Revision | Status | Date | Summary |")
	fmt.Fprintln(out, "|---|----------|--------|------|---------|")
	for i, item := range items {
		fmt.Fprintf(out, "| %d | %s | %s %s | %s | %s |\n",
			i+1, item.Revision, getStatusEmoji(item.Pending), statusOf(item),
			whenOf(item, reportDateLayout), escapeMarkdown(item.Summary))
	}

	return nil
}

func getStatusEmoji(pending bool) string {
	if pending {
		return "🟡"
	}
	return "🔵"
}

func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"|", "\\|",
		"*", "\\*",
		"_", "\\_",
		"`", "\\`",
	)
	return replacer.Replace(s)
}
