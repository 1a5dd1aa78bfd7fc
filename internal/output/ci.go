package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// CIWriter writes reports as NDJSON (one JSON object per line) for CI pipelines.
type CIWriter struct{}

// CISummary is the first line of CI output, containing aggregate statistics.
type CISummary struct {
	Type           string `json:"type"`
	User           string `json:"user"`
	Identity       string `json:"identity"`
	TotalSubmitted int    `json:"totalSubmitted"`
	TotalShelved   int    `json:"totalShelved"`
	OldestMissing  int64  `json:"oldestMissing,omitempty"`
}

// CIRevisionEntry represents a single revision in CI output.
type CIRevisionEntry struct {
	Type     string `json:"type"`
	Revision int64  `json:"revision"`
	Status   string `json:"status"`
	Summary  string `json:"summary"`
	When     string `json:"when,omitempty"`
}

// Write outputs the missing-revision report as NDJSON.
func (w *CIWriter) Write(report *MissingReport, options OutputOptions) error {
	items := limitTop(report.Items, options.Top)

	out, file, err := openOutputWriter(options.OutputPath)
	if err != nil {
		return err
	}
	if file != nil {
		defer file.Close()
	}

	submitted, shelved := report.Counts()
	summary := CISummary{
		Type:           "summary",
		User:           report.User,
		Identity:       report.Identity,
		TotalSubmitted: submitted,
		TotalShelved:   shelved,
	}
	// Submitted items come first and ascend, so the first one is the oldest.
	if len(report.Items) > 0 && !report.Items[0].Pending {
		summary.OldestMissing = int64(report.Items[0].Revision)
	}
	if err := writeNDJSONLine(out, summary); err != nil {
		return err
	}

	for _, item := range items {
		entry := CIRevisionEntry{
			Type:     "revision",
			Revision: int64(item.Revision),
			Status:   statusOf(item),
			Summary:  item.Summary,
			When:     whenOf(item, time.RFC3339),
		}
		if err := writeNDJSONLine(out, entry); err != nil {
			return err
		}
	}

	return nil
}

func writeNDJSONLine(w io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal NDJSON: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
