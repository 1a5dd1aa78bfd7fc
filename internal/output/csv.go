package output

import (
	"encoding/csv"
	"os"
)

// CSVWriter writes reports as CSV.
type CSVWriter struct{}

// Write outputs the missing-revision report as CSV.
func (w *CSVWriter) Write(report *MissingReport, options OutputOptions) error {
	items := limitTop(report.Items, options.Top)

	writer, file, err := createCSVWriter(options.OutputPath)
	if err != nil {
		return err
	}
	if file != nil {
		defer file.Close()
	}

	if err := writer.Write([]string{"Revision", "Status", "Author", "When", "Summary"}); err != nil {
		return err
	}

	for _, item := range items {
		row := []string{
			item.Revision.String(),
			statusOf(item),
			item.Author,
			whenOf(item, reportDateTimeLayout),
			item.Summary,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func createCSVWriter(outputPath string) (*csv.Writer, *os.File, error) {
	out, file, err := openOutputWriter(outputPath)
	if err != nil {
		return nil, nil, err
	}
	return csv.NewWriter(out), file, nil
}
