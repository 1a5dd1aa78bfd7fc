package output

import (
	"io"
	"os"
	"time"

	"github.com/masmgr/revtrack/internal/scm"
)

const (
	reportDateLayout     = "2006-01-02"
	reportDateTimeLayout = "2006-01-02T15:04:05"
)

func limitTop[T any](items []T, top int) []T {
	if top <= 0 || top >= len(items) {
		return items
	}
	return items[:top]
}

func periodValue(since, until time.Time) string {
	return since.Format(reportDateLayout) + " to " + until.Format(reportDateLayout)
}

func statusOf(c scm.CommitRecord) string {
	if c.Pending {
		return "shelved"
	}
	return "submitted"
}

// whenOf formats the submit time, or "" for shelved changes.
func whenOf(c scm.CommitRecord, layout string) string {
	if c.When.IsZero() {
		return ""
	}
	return c.When.Format(layout)
}

func openOutputWriter(outputPath string) (io.Writer, *os.File, error) {
	if outputPath == "" {
		return os.Stdout, nil, nil
	}
	file, err := os.Create(outputPath)
	if err != nil {
		return nil, nil, err
	}
	return file, file, nil
}
