package controllers

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logaware/backend/internal/config"
	"github.com/logaware/backend/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const sampleLog = `10.0.0.1 - - [01/Sep/2025:00:00:00 +0000] "GET /index.html HTTP/1.1" 200 512
10.0.0.1 - - [01/Sep/2025:01:00:00 +0000] "GET /about HTTP/1.1" 200 640
10.0.0.2 - - [01/Sep/2025:02:00:00 +0000] "POST /login HTTP/1.1" 302 0
10.0.0.3 - - [01/Sep/2025:02:30:00 +0000] "GET /../../etc/passwd HTTP/1.1" 404 0
not an access log line
`

func setup(t *testing.T, mutate ...func(*config.Config)) *gin.Engine {
	t.Helper()
	cfg := config.Default()
	for _, m := range mutate {
		m(&cfg)
	}
	bc := NewBatchController(services.NewBatchService(cfg))
	bc.now = func() time.Time { return time.Date(2025, 9, 1, 14, 3, 9, 0, time.UTC) }

	r := gin.New()
	b := r.Group("/api/v1/batches")
	b.POST("", bc.UploadBatch)
	b.GET("", bc.GetBatches)
	b.GET("/:id", bc.GetBatch)
	b.GET("/:id/export", bc.ExportBatch)
	b.GET("/:id/trend", bc.GetTrend)
	b.GET("/:id/stats", bc.GetStats)
	b.DELETE("/:id", bc.DeleteBatch)
	return r
}

func upload(t *testing.T, r http.Handler, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("logfile", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/batches", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func do(r http.Handler, method, url string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func uploadSample(t *testing.T, r http.Handler) string {
	t.Helper()
	w := upload(t, r, "access.log", []byte(sampleLog))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	return body["batch"].(map[string]interface{})["id"].(string)
}

func TestUploadBatch(t *testing.T) {
	r := setup(t)

	w := upload(t, r, "access.log", []byte(sampleLog))
	require.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["cached"])
	summary := body["summary"].(map[string]interface{})
	assert.Equal(t, float64(5), summary["totalRequests"])
	assert.Equal(t, float64(1), summary["unparsedLines"])
	assert.Equal(t, "union", summary["policy"])

	w = upload(t, r, "again.log", []byte(sampleLog))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["cached"])
}

func TestUploadBatch_Rejections(t *testing.T) {
	r := setup(t, func(c *config.Config) { c.MaxUploadBytes = 64 })

	assert.Equal(t, http.StatusBadRequest, upload(t, r, "data.json", []byte("{}")).Code)
	assert.Equal(t, http.StatusBadRequest, upload(t, r, "bad.log", []byte("x\xffy")).Code)
	assert.Equal(t, http.StatusRequestEntityTooLarge, upload(t, r, "big.log", []byte(sampleLog)).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/batches", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetBatch_FilterAndPaginate(t *testing.T) {
	r := setup(t)
	id := uploadSample(t, r)

	w := do(r, http.MethodGet, "/api/v1/batches/"+id+"?limit=2&page=2")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Len(t, body["rows"], 2)
	pagination := body["pagination"].(map[string]interface{})
	assert.Equal(t, float64(5), pagination["total"])

	w = do(r, http.MethodGet, "/api/v1/batches/"+id+"?method=post")
	rows := decode(t, w)["rows"].([]interface{})
	require.Len(t, rows, 1)
	assert.Equal(t, "/login", rows[0].(map[string]interface{})["path"])

	w = do(r, http.MethodGet, "/api/v1/batches/"+id+"?status=404,302")
	assert.Len(t, decode(t, w)["rows"], 2)

	w = do(r, http.MethodGet, "/api/v1/batches/"+id+"?q=PASSWD")
	assert.Len(t, decode(t, w)["rows"], 1)

	w = do(r, http.MethodGet, "/api/v1/batches/"+id+"?page=9")
	assert.Empty(t, decode(t, w)["rows"])

	// (page-1)*limit would overflow int
	w = do(r, http.MethodGet, "/api/v1/batches/"+id+"?page=4611686018427387904&limit=4")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["rows"])

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/v1/batches/"+id+"?policy=majority").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/v1/batches/"+id+"?status=ok").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/v1/batches/nope").Code)
}

func TestExportBatch(t *testing.T) {
	r := setup(t)
	id := uploadSample(t, r)

	w := do(r, http.MethodGet, "/api/v1/batches/"+id+"/export?anomalies=false")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="batch_20250901_140309.csv"`, w.Header().Get("Content-Disposition"))

	lines, err := csv.NewReader(strings.NewReader(w.Body.String())).ReadAll()
	require.NoError(t, err)
	assert.Len(t, lines, 6)
	assert.Equal(t, "raw_log", lines[0][0])

	w = do(r, http.MethodGet, "/api/v1/batches/"+id+"/export")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "anomalies_20250901_140309.csv")
}

func TestGetTrend(t *testing.T) {
	r := setup(t)
	id := uploadSample(t, r)

	w := do(r, http.MethodGet, "/api/v1/batches/"+id+"/trend")
	require.Equal(t, http.StatusOK, w.Code)
	series := decode(t, w)["trend"].(map[string]interface{})
	assert.Equal(t, "hour", series["bucket"])
	assert.Len(t, series["points"], 3)
	assert.Equal(t, float64(1), series["undated"])

	w = do(r, http.MethodGet, "/api/v1/batches/"+id+"/trend?from=2025-09-01T01:00:00Z&to=2025-09-01")
	require.Equal(t, http.StatusOK, w.Code)
	series = decode(t, w)["trend"].(map[string]interface{})
	assert.Equal(t, float64(1), series["outOfRange"])

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/v1/batches/"+id+"/trend?from=yesterday").Code)
	assert.Equal(t, http.StatusBadRequest,
		do(r, http.MethodGet, "/api/v1/batches/"+id+"/trend?from=2025-09-02&to=2025-09-01").Code)
}

func TestGetStats(t *testing.T) {
	r := setup(t)
	id := uploadSample(t, r)

	w := do(r, http.MethodGet, "/api/v1/batches/"+id+"/stats")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)

	top := body["topAddresses"].([]interface{})
	require.Len(t, top, 3)
	assert.Equal(t, map[string]interface{}{"label": "10.0.0.1", "requests": float64(2)}, top[0])

	methods := body["methods"].([]interface{})
	assert.Equal(t, map[string]interface{}{"label": "GET", "requests": float64(3)}, methods[0])
}

func TestListAndDelete(t *testing.T) {
	r := setup(t)
	id := uploadSample(t, r)

	w := do(r, http.MethodGet, "/api/v1/batches")
	assert.Equal(t, float64(1), decode(t, w)["total"])

	assert.Equal(t, http.StatusOK, do(r, http.MethodDelete, "/api/v1/batches/"+id).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodDelete, "/api/v1/batches/"+id).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, fmt.Sprintf("/api/v1/batches/%s/stats", id)).Code)
}
