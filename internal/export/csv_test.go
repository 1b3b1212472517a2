package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logaware/backend/internal/consolidate"
	"github.com/logaware/backend/internal/features"
	"github.com/logaware/backend/internal/models"
)

func report(t *testing.T) *models.Report {
	t.Helper()
	records, vectors := features.Extract(
		`10.0.0.1 - - [01/Sep/2025:00:00:00 +0000] "GET /index.html HTTP/1.1" 200 512` + "\n" +
			`a line, with "quotes"`,
	)
	batch := &models.Batch{
		ID:       "f00",
		Records:  records,
		Features: vectors,
		Density: models.ScoreVector{Scores: []models.Score{
			{Value: 1}, {Outlier: true, Value: 2.25},
		}},
		Isolation: models.ScoreVector{Scores: []models.Score{
			{Value: 0.4}, {Value: 0.45},
		}},
	}
	return consolidate.NewReport(batch, models.PolicyUnion)
}

func TestHeader(t *testing.T) {
	require.Len(t, Header, 22)
	assert.Equal(t, "raw_log", Header[0])
	assert.Equal(t, "len", Header[1])
	assert.Equal(t, "method_POST", Header[11])
	assert.Equal(t, "ip", Header[12])
	assert.Equal(t, "detected_by", Header[21])
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, report(t).Rows()))

	lines, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, Header, lines[0])

	first := lines[1]
	assert.Equal(t, "10.0.0.1", first[12])
	assert.Equal(t, "GET", first[13])
	assert.Equal(t, "/index.html", first[14])
	assert.Equal(t, "2025-09-01T00:00:00Z", first[15])
	assert.Equal(t, "200", first[8])
	assert.Equal(t, "512", first[9])
	assert.Equal(t, "false", first[20])
	assert.Equal(t, "none", first[21])

	second := lines[2]
	assert.Equal(t, `a line, with "quotes"`, second[0])
	assert.Equal(t, models.UnknownAddress, second[12])
	assert.Equal(t, "", second[15])
	assert.Equal(t, "true", second[16])
	assert.Equal(t, "2.25", second[17])
	assert.Equal(t, "true", second[20])
	assert.Equal(t, "density", second[21])
}

func TestWriteCSV_AnomaliesOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, report(t).AnomalyRows()))

	lines, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, lines, 2)
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))

	lines, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{Header}, lines)
}

func TestFilename(t *testing.T) {
	ts := time.Date(2025, 9, 1, 14, 3, 9, 0, time.UTC)
	assert.Equal(t, "anomalies_20250901_140309.csv", Filename(true, ts))
	assert.Equal(t, "batch_20250901_140309.csv", Filename(false, ts))
}
