package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/meterly/datagate/internal/metrics"
	"github.com/meterly/datagate/internal/models"
	"github.com/meterly/datagate/internal/worker"
)

// Inserter is the write capability of the store manager.
type Inserter interface {
	Insert(ctx context.Context, table string, rows []models.Record) error
}

// IngestService loads record batches into the analytics store, fanning
// batches across the worker pool. Each batch is all-or-nothing as reported
// by the store; failed batches are not retried here.
type IngestService struct {
	store     Inserter
	wp        *worker.Pool
	batchSize int
	log       *slog.Logger
}

func NewIngestService(st Inserter, wp *worker.Pool, batchSize int, log *slog.Logger) *IngestService {
	if batchSize < 1 {
		batchSize = 1000
	}
	return &IngestService{store: st, wp: wp, batchSize: batchSize, log: log}
}

// Load splits rows into batches and inserts them concurrently. Returns the
// joined errors of any failed batches after all have completed.
func (s *IngestService) Load(ctx context.Context, rows []models.Record) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)

	for start := 0; start < len(rows); start += s.batchSize {
		end := start + s.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		wg.Add(1)
		s.wp.Submit(func() {
			defer wg.Done()
			if err := s.store.Insert(ctx, "records", batch); err != nil {
				s.log.Error("insert batch", "rows", len(batch), "err", err)
				mu.Lock()
				errs = errors.Join(errs, err)
				mu.Unlock()
				return
			}
			metrics.IngestedRows.Add(float64(len(batch)))
		})
	}

	wg.Wait()
	return errs
}
