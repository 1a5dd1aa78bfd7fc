package output

import (
	"encoding/json"
	"fmt"
	"time"
)

// JSONWriter writes reports as JSON.
type JSONWriter struct{}

// JSONReport is the JSON output structure for a missing-revision report.
type JSONReport struct {
	Repository     string     `json:"repo"`
	SCM            string     `json:"scm"`
	User           string     `json:"user"`
	Identity       string     `json:"identity"`
	Since          string     `json:"since"`
	Until          string     `json:"until"`
	GeneratedAt    string     `json:"generatedAt"`
	TotalSubmitted int        `json:"totalSubmitted"`
	TotalShelved   int        `json:"totalShelved"`
	Items          []JSONItem `json:"items"`
}

// JSONItem is the JSON output structure for a single revision.
type JSONItem struct {
	Revision int64  `json:"revision"`
	Author   string `json:"author"`
	Summary  string `json:"summary"`
	Pending  bool   `json:"pending"`
	When     string `json:"when,omitempty"`
}

// Write outputs the missing-revision report as JSON.
func (w *JSONWriter) Write(report *MissingReport, options OutputOptions) error {
	items := limitTop(report.Items, options.Top)

	jsonItems := make([]JSONItem, len(items))
	for i, item := range items {
		jsonItems[i] = JSONItem{
			Revision: int64(item.Revision),
			Author:   item.Author,
			Summary:  item.Summary,
			Pending:  item.Pending,
			When:     whenOf(item, time.RFC3339),
		}
	}

	submitted, shelved := report.Counts()
	jsonReport := JSONReport{
		Repository:     report.Repository,
		SCM:            report.SCM,
		User:           report.User,
		Identity:       report.Identity,
		Since:          report.Since.Format(reportDateLayout),
		Until:          report.Until.Format(reportDateLayout),
		GeneratedAt:    report.GeneratedAt.Format(time.RFC3339),
		TotalSubmitted: submitted,
		TotalShelved:   shelved,
		Items:          jsonItems,
	}

	return writeJSON(jsonReport, options.OutputPath)
}

func writeJSON(data interface{}, outputPath string) error {
	out, file, err := openOutputWriter(outputPath)
	if err != nil {
		return err
	}
	if file != nil {
		defer file.Close()
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
