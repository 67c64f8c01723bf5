package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meterly/datagate/internal/models"
	"github.com/meterly/datagate/internal/services"
	"github.com/meterly/datagate/internal/worker"
)

type fakeInserter struct {
	mu      sync.Mutex
	batches [][]models.Record
	err     error
}

func (f *fakeInserter) Insert(_ context.Context, _ string, rows []models.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, rows)
	return f.err
}

func sampleRecords(n int) []models.Record {
	out := make([]models.Record, n)
	for i := range out {
		out[i] = models.Record{Name: "John Doe", Email: "john@gmail.com", Country: "USA"}
	}
	return out
}

func TestIngestLoadBatches(t *testing.T) {
	wp := worker.NewPool(2)
	defer wp.Stop()

	ins := &fakeInserter{}
	svc := services.NewIngestService(ins, wp, 2, testLogger())

	require.NoError(t, svc.Load(context.Background(), sampleRecords(5)))

	var total int
	for _, b := range ins.batches {
		require.LessOrEqual(t, len(b), 2)
		total += len(b)
	}
	require.Equal(t, 5, total)
	require.Len(t, ins.batches, 3)
}

func TestIngestLoadReportsErrors(t *testing.T) {
	wp := worker.NewPool(2)
	defer wp.Stop()

	ins := &fakeInserter{err: errors.New("write failed")}
	svc := services.NewIngestService(ins, wp, 10, testLogger())

	err := svc.Load(context.Background(), sampleRecords(3))
	require.Error(t, err)
}

func TestIngestLoadEmpty(t *testing.T) {
	wp := worker.NewPool(1)
	defer wp.Stop()

	ins := &fakeInserter{}
	svc := services.NewIngestService(ins, wp, 10, testLogger())
	require.NoError(t, svc.Load(context.Background(), nil))
	require.Empty(t, ins.batches)
}
