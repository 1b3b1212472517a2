package services

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"github.com/logaware/backend/internal/cache"
	"github.com/logaware/backend/internal/config"
	"github.com/logaware/backend/internal/consolidate"
	"github.com/logaware/backend/internal/detector"
	"github.com/logaware/backend/internal/detector/iforest"
	"github.com/logaware/backend/internal/detector/lof"
	"github.com/logaware/backend/internal/features"
	"github.com/logaware/backend/internal/logger"
	"github.com/logaware/backend/internal/metrics"
	"github.com/logaware/backend/internal/models"
)

var (
	// ErrBatchTooLarge is returned for uploads over the configured byte
	// limit, measured after decompression, or over the record limit.
	ErrBatchTooLarge = errors.New("log batch exceeds the upload limit")

	// ErrBatchNotFound is returned for IDs that are not (or no longer) cached.
	ErrBatchNotFound = errors.New("log batch not found")
)

var gzipMagic = []byte{0x1f, 0x8b}

// BatchService turns uploaded log files into scored batches and serves
// consolidated reports over them.
type BatchService struct {
	detector       detector.Config
	policy         models.Policy
	maxUploadBytes int64
	maxRecords     int
	cache          *cache.BatchCache
	density        detector.Engine
	isolation      detector.Engine
	now            func() time.Time
}

func NewBatchService(cfg config.Config) *BatchService {
	return &BatchService{
		detector:       cfg.DetectorConfig(),
		policy:         cfg.Policy,
		maxUploadBytes: cfg.MaxUploadBytes,
		maxRecords:     cfg.MaxRecords,
		cache:          cache.New(cfg.CacheSize),
		density:        lof.New(),
		isolation:      iforest.New(),
		now:            time.Now,
	}
}

// DefaultPolicy is the policy used when a request does not name one.
func (s *BatchService) DefaultPolicy() models.Policy {
	return s.policy
}

// Fingerprint identifies an upload by content.
func Fingerprint(raw []byte) string {
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// ProcessReader reads an upload from r, refusing to buffer more than the
// configured limit, then processes it.
func (s *BatchService) ProcessReader(ctx context.Context, r io.Reader, filename string) (*models.Batch, bool, error) {
	raw, err := io.ReadAll(io.LimitReader(r, s.maxUploadBytes+1))
	if err != nil {
		return nil, false, fmt.Errorf("failed to read upload: %w", err)
	}
	return s.Process(ctx, raw, filename)
}

// Process scores one upload. Repeated uploads of the same content are served
// from the cache, in which case the second return value is true.
func (s *BatchService) Process(ctx context.Context, raw []byte, filename string) (*models.Batch, bool, error) {
	if int64(len(raw)) > s.maxUploadBytes {
		metrics.BatchesTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, false, fmt.Errorf("%w: more than %d bytes", ErrBatchTooLarge, s.maxUploadBytes)
	}

	id := Fingerprint(raw)
	log := logger.WithBatch(id, filename)
	if batch, ok := s.cache.Get(id); ok {
		metrics.CacheHitsTotal.Inc()
		metrics.BatchesTotal.WithLabelValues(metrics.OutcomeCached).Inc()
		log.Debug("Serving batch from cache")
		return batch, true, nil
	}
	metrics.CacheMissesTotal.Inc()

	batch, err := s.score(ctx, id, raw, filename)
	if err != nil {
		outcome := metrics.OutcomeFailed
		if errors.Is(err, ErrBatchTooLarge) || errors.Is(err, features.ErrInputDecoding) {
			outcome = metrics.OutcomeRejected
		}
		metrics.BatchesTotal.WithLabelValues(outcome).Inc()
		log.WithError(err).Warn("Batch processing failed")
		return nil, false, err
	}

	if evicted := s.cache.Put(batch); evicted != "" {
		log.WithField("evicted", evicted).Debug("Evicted batch from cache")
	}
	metrics.CachedBatches.Set(float64(s.cache.Len()))
	metrics.BatchesTotal.WithLabelValues(metrics.OutcomeScored).Inc()
	metrics.RecordsTotal.Add(float64(batch.Len()))

	log.WithFields(map[string]interface{}{
		"records":            batch.Len(),
		"density_outliers":   batch.Density.Count(),
		"isolation_outliers": batch.Isolation.Count(),
	}).Info("Batch scored")
	return batch, false, nil
}

func (s *BatchService) score(ctx context.Context, id string, raw []byte, filename string) (*models.Batch, error) {
	content, err := s.decompress(raw, filename)
	if err != nil {
		return nil, err
	}
	text, err := features.Decode(content)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records, vectors := features.Extract(text)
	if s.maxRecords > 0 && len(records) > s.maxRecords {
		return nil, fmt.Errorf("%w: %d lines, limit is %d", ErrBatchTooLarge, len(records), s.maxRecords)
	}
	if err := detector.ValidateVectors(vectors); err != nil {
		return nil, err
	}

	batch := &models.Batch{
		ID:        id,
		Filename:  filename,
		SizeBytes: int64(len(content)),
		Records:   records,
		Features:  vectors,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sv, err := s.run(gctx, id, s.density, vectors)
		batch.Density = sv
		return err
	})
	g.Go(func() error {
		sv, err := s.run(gctx, id, s.isolation, vectors)
		batch.Isolation = sv
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	batch.ProcessedAt = s.now().UTC()
	return batch, nil
}

func (s *BatchService) run(ctx context.Context, id string, engine detector.Engine, vectors []models.FeatureVector) (models.ScoreVector, error) {
	name := string(engine.Name())
	start := time.Now()
	sv, err := engine.Score(ctx, vectors, s.detector)
	elapsed := time.Since(start)
	metrics.EngineDurationSeconds.WithLabelValues(name).Observe(elapsed.Seconds())
	if err != nil {
		return models.ScoreVector{}, fmt.Errorf("%s engine: %w", name, err)
	}
	metrics.AnomaliesTotal.WithLabelValues(name).Add(float64(sv.Count()))

	logger.WithEngine(id, name).WithFields(map[string]interface{}{
		"threshold": sv.Threshold,
		"outliers":  sv.Count(),
		"duration":  elapsed.String(),
	}).Debug("Engine finished")
	return sv, nil
}

// decompress inflates gzip uploads, detected by extension or magic bytes.
func (s *BatchService) decompress(raw []byte, filename string) ([]byte, error) {
	gz := strings.EqualFold(filepath.Ext(filename), ".gz")
	if !gz && !bytes.HasPrefix(raw, gzipMagic) {
		return raw, nil
	}

	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid gzip stream: %w", features.ErrInputDecoding, err)
	}
	defer zr.Close()

	content, err := io.ReadAll(io.LimitReader(zr, s.maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid gzip stream: %w", features.ErrInputDecoding, err)
	}
	if int64(len(content)) > s.maxUploadBytes {
		return nil, fmt.Errorf("%w: more than %d bytes after decompression", ErrBatchTooLarge, s.maxUploadBytes)
	}
	return content, nil
}

// Get returns a cached batch.
func (s *BatchService) Get(id string) (*models.Batch, error) {
	batch, ok := s.cache.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}
	return batch, nil
}

// List returns the cached batches, most recently used first.
func (s *BatchService) List() []*models.Batch {
	return s.cache.List()
}

// Delete drops a batch from the cache.
func (s *BatchService) Delete(id string) error {
	if !s.cache.Remove(id) {
		return fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}
	metrics.CachedBatches.Set(float64(s.cache.Len()))
	return nil
}

// Report consolidates a cached batch under policy without re-running the
// engines. An empty policy selects the service default.
func (s *BatchService) Report(id string, policy models.Policy) (*models.Report, error) {
	batch, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if policy == "" {
		policy = s.policy
	}
	return consolidate.NewReport(batch, policy), nil
}
