// Package trend aggregates a scored batch over time and by client for the
// dashboard views. It only reads records and verdicts.
package trend

import (
	"sort"
	"time"

	"github.com/logaware/backend/internal/models"
)

// Bucket is the width of one point of a time series.
type Bucket string

const (
	Hour Bucket = "hour"
	Day  Bucket = "day"
	Week Bucket = "week"
)

// Span limits for choosing a bucket width.
const (
	HourlyMaxSpan = 3 * 24 * time.Hour
	DailyMaxSpan  = 180 * 24 * time.Hour
)

// RollingWindow is the number of points averaged by Point.RollingMean.
const RollingWindow = 3

// BucketFor picks the bucket width for a series covering span.
func BucketFor(span time.Duration) Bucket {
	switch {
	case span <= HourlyMaxSpan:
		return Hour
	case span <= DailyMaxSpan:
		return Day
	}
	return Week
}

// Start truncates t to the beginning of its bucket in UTC. Weeks start on Monday.
func (b Bucket) Start(t time.Time) time.Time {
	t = t.UTC()
	switch b {
	case Hour:
		return t.Truncate(time.Hour)
	case Week:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Next returns the start of the bucket after the one starting at t.
func (b Bucket) Next(t time.Time) time.Time {
	switch b {
	case Hour:
		return t.Add(time.Hour)
	case Week:
		return t.AddDate(0, 0, 7)
	}
	return t.AddDate(0, 0, 1)
}

// Point is one bucket of a series.
type Point struct {
	Start       time.Time `json:"start"`
	Requests    int       `json:"requests"`
	Anomalies   int       `json:"anomalies"`
	RollingMean float64   `json:"rollingMean"`
}

// Series is a gap-filled request count over time.
type Series struct {
	Bucket     Bucket  `json:"bucket"`
	Points     []Point `json:"points"`
	Undated    int     `json:"undated"`
	OutOfRange int     `json:"outOfRange"`
}

// Options restricts the records a series covers. From is inclusive, To is
// exclusive and zero values leave that side open.
type Options struct {
	From time.Time
	To   time.Time
}

func (o Options) contains(t time.Time) bool {
	if !o.From.IsZero() && t.Before(o.From) {
		return false
	}
	if !o.To.IsZero() && !t.Before(o.To) {
		return false
	}
	return true
}

// Build counts requests and anomalies per bucket. Records without a
// timestamp are counted in Undated and left out of the points. Buckets with
// no requests between the first and last one are filled with zero counts.
func Build(records []models.LogRecord, verdicts []models.Verdict, opts Options) Series {
	var s Series
	var times []time.Time
	var flagged []bool
	for i, rec := range records {
		if rec.Timestamp == nil {
			s.Undated++
			continue
		}
		if !opts.contains(*rec.Timestamp) {
			s.OutOfRange++
			continue
		}
		times = append(times, rec.Timestamp.UTC())
		flagged = append(flagged, i < len(verdicts) && verdicts[i].Anomaly)
	}
	if len(times) == 0 {
		s.Bucket = Hour
		return s
	}

	first, last := times[0], times[0]
	for _, t := range times[1:] {
		if t.Before(first) {
			first = t
		}
		if t.After(last) {
			last = t
		}
	}
	s.Bucket = BucketFor(last.Sub(first))

	index := make(map[int64]int)
	end := s.Bucket.Start(last)
	for start := s.Bucket.Start(first); !start.After(end); start = s.Bucket.Next(start) {
		index[start.Unix()] = len(s.Points)
		s.Points = append(s.Points, Point{Start: start})
	}
	for i, t := range times {
		p := &s.Points[index[s.Bucket.Start(t).Unix()]]
		p.Requests++
		if flagged[i] {
			p.Anomalies++
		}
	}

	counts := make([]int, len(s.Points))
	for i, p := range s.Points {
		counts[i] = p.Requests
	}
	for i, mean := range RollingMean(counts, RollingWindow) {
		s.Points[i].RollingMean = mean
	}
	return s
}

// RollingMean averages each value with up to window-1 preceding values.
// The first points average over however many values exist.
func RollingMean(values []int, window int) []float64 {
	means := make([]float64, len(values))
	sum := 0
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		means[i] = float64(sum) / float64(min(i+1, window))
	}
	return means
}

// Count is a label with its number of requests.
type Count struct {
	Label    string `json:"label"`
	Requests int    `json:"requests"`
}

// TopAddresses returns the n client addresses with the most requests, most
// frequent first and ties ordered by address. Unparsed lines are skipped.
func TopAddresses(records []models.LogRecord, n int) []Count {
	counts := make(map[string]int)
	for _, rec := range records {
		if !rec.Matched {
			continue
		}
		counts[rec.Address]++
	}
	top := sorted(counts)
	if n >= 0 && len(top) > n {
		top = top[:n]
	}
	return top
}

// MethodCounts returns the number of requests per HTTP method, most frequent
// first. Unparsed lines are counted under models.UnknownMethod.
func MethodCounts(records []models.LogRecord) []Count {
	counts := make(map[string]int)
	for _, rec := range records {
		counts[rec.Method]++
	}
	return sorted(counts)
}

func sorted(counts map[string]int) []Count {
	out := make([]Count, 0, len(counts))
	for label, n := range counts {
		out = append(out, Count{Label: label, Requests: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Requests != out[j].Requests {
			return out[i].Requests > out[j].Requests
		}
		return out[i].Label < out[j].Label
	})
	return out
}
