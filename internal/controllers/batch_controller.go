package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/logaware/backend/internal/detector"
	"github.com/logaware/backend/internal/export"
	"github.com/logaware/backend/internal/features"
	"github.com/logaware/backend/internal/logger"
	"github.com/logaware/backend/internal/models"
	"github.com/logaware/backend/internal/services"
	"github.com/logaware/backend/internal/trend"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 1000
	topAddresses     = 5
)

type BatchController struct {
	batches *services.BatchService
	now     func() time.Time
}

func NewBatchController(batches *services.BatchService) *BatchController {
	return &BatchController{
		batches: batches,
		now:     time.Now,
	}
}

// UploadBatch scores an uploaded access log
func (bc *BatchController) UploadBatch(c *gin.Context) {
	file, err := c.FormFile("logfile")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}

	// Validate file extension
	name := strings.ToLower(file.Filename)
	ext := filepath.Ext(name)
	if ext != ".log" && ext != ".txt" && ext != ".gz" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only LOG, TXT and GZ files are supported"})
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read uploaded file"})
		return
	}
	defer f.Close()

	batch, cached, err := bc.batches.ProcessReader(c.Request.Context(), f, file.Filename)
	if err != nil {
		respondError(c, err)
		return
	}

	report, err := bc.batches.Report(batch.ID, "")
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if cached {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"message": "Log file scored successfully",
		"cached":  cached,
		"batch":   batch,
		"summary": report.Summary(),
	})
}

// GetBatches lists the batches held in memory
func (bc *BatchController) GetBatches(c *gin.Context) {
	batches := bc.batches.List()
	c.JSON(http.StatusOK, gin.H{
		"batches": batches,
		"total":   len(batches),
	})
}

// GetBatch returns the consolidated rows of a batch, filtered and paginated
func (bc *BatchController) GetBatch(c *gin.Context) {
	report, ok := bc.report(c)
	if !ok {
		return
	}

	filter, err := rowFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Add pagination
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageLimit)))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > maxPageLimit {
		limit = defaultPageLimit
	}

	rows := report.Filter(filter)
	total := len(rows)
	offset := total
	if page-1 <= total/limit {
		offset = min((page-1)*limit, total)
	}
	end := min(offset+limit, total)

	c.JSON(http.StatusOK, gin.H{
		"summary": report.Summary(),
		"rows":    rows[offset:end],
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// ExportBatch streams the consolidated rows as a CSV attachment
func (bc *BatchController) ExportBatch(c *gin.Context) {
	report, ok := bc.report(c)
	if !ok {
		return
	}

	anomaliesOnly, err := boolQuery(c, "anomalies", true)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rows := report.Rows()
	if anomaliesOnly {
		rows = report.AnomalyRows()
	}

	filename := export.Filename(anomaliesOnly, bc.now())
	logger.Debug("Exporting batch", map[string]interface{}{
		"batch_id": report.Batch.ID,
		"policy":   report.Policy,
		"rows":     len(rows),
		"filename": filename,
	})
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)
	if err := export.WriteCSV(c.Writer, rows); err != nil {
		logger.WithError(err, "batch_controller").Error("Failed to write CSV export")
	}
}

// GetTrend returns request and anomaly counts over time
func (bc *BatchController) GetTrend(c *gin.Context) {
	report, ok := bc.report(c)
	if !ok {
		return
	}

	var opts trend.Options
	var err error
	if opts.From, err = dateQuery(c, "from", false); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if opts.To, err = dateQuery(c, "to", true); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !opts.From.IsZero() && !opts.To.IsZero() && !opts.From.Before(opts.To) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be before to"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"policy": report.Policy,
		"trend":  trend.Build(report.Batch.Records, report.Verdicts, opts),
	})
}

// GetStats returns dashboard statistics of a batch
func (bc *BatchController) GetStats(c *gin.Context) {
	report, ok := bc.report(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"summary":      report.Summary(),
		"topAddresses": trend.TopAddresses(report.Batch.Records, topAddresses),
		"methods":      trend.MethodCounts(report.Batch.Records),
	})
}

// DeleteBatch drops a batch from memory
func (bc *BatchController) DeleteBatch(c *gin.Context) {
	if err := bc.batches.Delete(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Batch deleted successfully"})
}

// report resolves the batch and policy of a request, answering errors itself.
func (bc *BatchController) report(c *gin.Context) (*models.Report, bool) {
	var policy models.Policy
	if q := c.Query("policy"); q != "" {
		p, err := models.ParsePolicy(q)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return nil, false
		}
		policy = p
	}

	report, err := bc.batches.Report(c.Param("id"), policy)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return report, true
}

func rowFilter(c *gin.Context) (models.RowFilter, error) {
	var f models.RowFilter
	var err error
	if f.AnomaliesOnly, err = boolQuery(c, "anomalies", false); err != nil {
		return f, err
	}
	f.Query = c.Query("q")
	for _, m := range splitList(c.Query("method")) {
		f.Methods = append(f.Methods, strings.ToUpper(m))
	}
	for _, s := range splitList(c.Query("status")) {
		code, err := strconv.Atoi(s)
		if err != nil {
			return f, fmt.Errorf("invalid status %q", s)
		}
		f.Statuses = append(f.Statuses, code)
	}
	return f, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func boolQuery(c *gin.Context, key string, def bool) (bool, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q", key, v)
	}
	return b, nil
}

// dateQuery accepts RFC 3339 or a plain date. A plain upper bound covers the
// whole day.
func dateQuery(c *gin.Context, key string, upper bool) (time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s date %q", key, v)
	}
	if upper {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}

// respondError maps pipeline errors to HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrBatchNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrBatchTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, features.ErrInputDecoding), errors.Is(err, detector.ErrInvalidConfig):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		logger.WithError(err, "batch_controller").Error("Request failed")
		c.JSON(status, gin.H{"error": "Failed to process log batch"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
