package models

import (
	"strconv"
	"strings"
	"time"
)

// Batch is one upload's records, feature vectors and both engines' scores,
// all aligned by record index. A scored Batch is immutable.
type Batch struct {
	ID          string          `json:"id"`
	Filename    string          `json:"filename"`
	SizeBytes   int64           `json:"sizeBytes"`
	Records     []LogRecord     `json:"-"`
	Features    []FeatureVector `json:"-"`
	Density     ScoreVector     `json:"-"`
	Isolation   ScoreVector     `json:"-"`
	ProcessedAt time.Time       `json:"processedAt"`
}

// Len returns the number of records in the batch.
func (b *Batch) Len() int {
	return len(b.Records)
}

// Report is the consolidated view of a Batch under one policy.
type Report struct {
	Batch    *Batch
	Policy   Policy
	Verdicts []Verdict
}

// Summary holds the headline numbers of a report.
type Summary struct {
	BatchID           string  `json:"batchId"`
	Filename          string  `json:"filename"`
	SizeBytes         int64   `json:"sizeBytes"`
	Policy            Policy  `json:"policy"`
	TotalRequests     int     `json:"totalRequests"`
	TotalAnomalies    int     `json:"totalAnomalies"`
	AnomalyRate       float64 `json:"anomalyRate"`
	DensityOutliers   int     `json:"densityOutliers"`
	IsolationOutliers int     `json:"isolationOutliers"`
	Unparsed          int     `json:"unparsedLines"`
}

// Summary computes totals and the anomaly rate in percent.
func (r *Report) Summary() Summary {
	s := Summary{
		BatchID:           r.Batch.ID,
		Filename:          r.Batch.Filename,
		SizeBytes:         r.Batch.SizeBytes,
		Policy:            r.Policy,
		TotalRequests:     r.Batch.Len(),
		DensityOutliers:   r.Batch.Density.Count(),
		IsolationOutliers: r.Batch.Isolation.Count(),
	}
	for _, v := range r.Verdicts {
		if v.Anomaly {
			s.TotalAnomalies++
		}
	}
	for _, rec := range r.Batch.Records {
		if !rec.Matched {
			s.Unparsed++
		}
	}
	if s.TotalRequests > 0 {
		s.AnomalyRate = float64(s.TotalAnomalies) / float64(s.TotalRequests) * 100
	}
	return s
}

// Row is one line of the output table.
type Row struct {
	LogRecord
	Features         map[string]float64 `json:"features"`
	DensityOutlier   bool               `json:"anomalyLof"`
	DensityScore     float64            `json:"scoreLof"`
	IsolationOutlier bool               `json:"anomalyIforest"`
	IsolationScore   float64            `json:"scoreIforest"`
	Verdict
	vector FeatureVector
}

// Vector returns the row's feature vector.
func (r Row) Vector() FeatureVector {
	return r.vector
}

// Row builds the output row for record i.
func (r *Report) Row(i int) Row {
	b := r.Batch
	row := Row{
		LogRecord: b.Records[i],
		Features:  b.Features[i].Map(),
		vector:    b.Features[i],
	}
	if i < len(b.Density.Scores) {
		row.DensityOutlier = b.Density.Scores[i].Outlier
		row.DensityScore = b.Density.Scores[i].Value
	}
	if i < len(b.Isolation.Scores) {
		row.IsolationOutlier = b.Isolation.Scores[i].Outlier
		row.IsolationScore = b.Isolation.Scores[i].Value
	}
	if i < len(r.Verdicts) {
		row.Verdict = r.Verdicts[i]
	}
	return row
}

// Rows returns every record as an output row, in input order.
func (r *Report) Rows() []Row {
	rows := make([]Row, r.Batch.Len())
	for i := range rows {
		rows[i] = r.Row(i)
	}
	return rows
}

// AnomalyRows returns only the rows whose consolidated verdict is an anomaly.
func (r *Report) AnomalyRows() []Row {
	return r.Filter(RowFilter{AnomaliesOnly: true})
}

// RowFilter narrows a report's rows. Zero values match everything.
type RowFilter struct {
	AnomaliesOnly bool
	Query         string
	Methods       []string
	Statuses      []int
}

// Filter returns the rows matching f, in input order.
func (r *Report) Filter(f RowFilter) []Row {
	query := strings.ToLower(strings.TrimSpace(f.Query))
	rows := []Row{}
	for i := range r.Batch.Records {
		if f.AnomaliesOnly && (i >= len(r.Verdicts) || !r.Verdicts[i].Anomaly) {
			continue
		}
		rec := &r.Batch.Records[i]
		if len(f.Methods) > 0 && !containsString(f.Methods, rec.Method) {
			continue
		}
		if len(f.Statuses) > 0 && !containsInt(f.Statuses, rec.Status) {
			continue
		}
		if query != "" && !matchesQuery(rec, query) {
			continue
		}
		rows = append(rows, r.Row(i))
	}
	return rows
}

func matchesQuery(rec *LogRecord, query string) bool {
	for _, field := range []string{rec.Raw, rec.Address, rec.Method, rec.Path, strconv.Itoa(rec.Status)} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func containsInt(list []int, n int) bool {
	for _, v := range list {
		if v == n {
			return true
		}
	}
	return false
}
