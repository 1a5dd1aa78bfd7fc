package output

import (
	"time"

	"github.com/masmgr/revtrack/internal/scm"
)

// Compile-time interface conformance checks.
var (
	_ ReportWriter = (*ConsoleWriter)(nil)
	_ ReportWriter = (*JSONWriter)(nil)
	_ ReportWriter = (*CSVWriter)(nil)
	_ ReportWriter = (*MarkdownWriter)(nil)
	_ ReportWriter = (*CIWriter)(nil)
)

// OutputFormat represents the output format type.
type OutputFormat string

const (
	FormatConsole  OutputFormat = "console"
	FormatJSON     OutputFormat = "json"
	FormatCSV      OutputFormat = "csv"
	FormatMarkdown OutputFormat = "markdown"
	FormatCI       OutputFormat = "ci"
)

// Formats lists the supported output formats.
var Formats = []OutputFormat{FormatConsole, FormatJSON, FormatCSV, FormatMarkdown, FormatCI}

// OutputOptions controls output behavior.
type OutputOptions struct {
	Format     OutputFormat
	Top        int
	OutputPath string
}

// MissingReport holds the revisions of a user that still lack a review.
type MissingReport struct {
	Repository  string
	SCM         string
	User        string
	Identity    string
	Since       time.Time
	Until       time.Time
	GeneratedAt time.Time
	// Items are submitted commits followed by shelved changes.
	Items []scm.CommitRecord
}

// Counts returns the number of submitted and shelved items.
func (r *MissingReport) Counts() (submitted, shelved int) {
	for _, item := range r.Items {
		if item.Pending {
			shelved++
		} else {
			submitted++
		}
	}
	return submitted, shelved
}

// ReportWriter writes missing-revision reports.
type ReportWriter interface {
	Write(report *MissingReport, options OutputOptions) error
}

// NewReportWriter creates a report writer for the specified format.
func NewReportWriter(format OutputFormat) ReportWriter {
	switch format {
	case FormatJSON:
		return &JSONWriter{}
	case FormatCSV:
		return &CSVWriter{}
	case FormatMarkdown:
		return &MarkdownWriter{}
	case FormatCI:
		return &CIWriter{}
	default:
		return &ConsoleWriter{}
	}
}
