// Package export writes report rows as CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/logaware/backend/internal/models"
)

// Header is the column order of every exported file.
var Header = func() []string {
	h := []string{"raw_log"}
	h = append(h, models.FeatureNames[:]...)
	return append(h,
		"ip", "method", "path", "timestamp",
		"anomaly_lof", "score_lof",
		"anomaly_iforest", "score_iforest",
		"is_anomaly", "detected_by",
	)
}()

// WriteCSV writes a header and one line per row.
func WriteCSV(w io.Writer, rows []models.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(Record(row)); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", row.Index, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}

// Record formats one row in Header order.
func Record(row models.Row) []string {
	vec := row.Vector()
	out := make([]string, 0, len(Header))
	out = append(out, row.Raw)
	for _, v := range vec {
		out = append(out, formatFloat(v))
	}
	ts := ""
	if row.Timestamp != nil {
		ts = row.Timestamp.Format(time.RFC3339)
	}
	return append(out,
		row.Address, row.Method, row.Path, ts,
		strconv.FormatBool(row.DensityOutlier), formatFloat(row.DensityScore),
		strconv.FormatBool(row.IsolationOutlier), formatFloat(row.IsolationScore),
		strconv.FormatBool(row.Anomaly), string(row.DetectedBy),
	)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Filename names an export taken at t. Anomaly-only exports and full
// exports get different prefixes.
func Filename(anomaliesOnly bool, t time.Time) string {
	prefix := "batch"
	if anomaliesOnly {
		prefix = "anomalies"
	}
	return fmt.Sprintf("%s_%s.csv", prefix, t.Format("20060102_150405"))
}
