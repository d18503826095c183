// Package export renders aggregate statistics as tables for files and
// spreadsheets.
package export

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"operadoras/internal/core"
	"operadoras/internal/stats"
)

// Header is the first row of every export.
var Header = []string{"company_name", "state", "total_amount", "avg_amount", "stddev_amount"}

// Rows returns the header followed by one row per record. Decimals keep two
// places; an absent stddev is an empty cell.
func Rows(records []core.AggregatedRecord) [][]string {
	out := make([][]string, 0, len(records)+1)
	out = append(out, append([]string(nil), Header...))
	for _, r := range records {
		stddev := ""
		if r.StddevAmount != nil {
			stddev = r.StddevAmount.StringFixed(stats.DisplayPlaces)
		}
		out = append(out, []string{
			r.CompanyName,
			r.State,
			r.TotalAmount.String(),
			r.AvgAmount.StringFixed(stats.DisplayPlaces),
			stddev,
		})
	}
	return out
}

// WriteCSV writes records as CSV.
func WriteCSV(w io.Writer, records []core.AggregatedRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(Rows(records)); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// WriteZip writes a zip archive holding records as a single CSV named name.
func WriteZip(w io.Writer, name string, records []core.AggregatedRecord) error {
	zw := zip.NewWriter(w)
	f, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("create zip entry: %w", err)
	}
	if err := WriteCSV(f, records); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	return nil
}
