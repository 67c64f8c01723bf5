package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/meterly/datagate/internal/ledger"
	"github.com/meterly/datagate/internal/metrics"
	"github.com/meterly/datagate/internal/models"
	"github.com/meterly/datagate/internal/store"
)

// Cost of one billed read, in credits.
const ReadCost = 1

var (
	// ErrUnauthenticated covers missing and unknown API keys; the caller
	// cannot tell the two apart.
	ErrUnauthenticated = errors.New("invalid api key")

	// ErrServiceUnavailable means the ledger or the analytics store could
	// not be reached. Retryable by the caller.
	ErrServiceUnavailable = errors.New("service unavailable")
)

// QuotaExceededError carries the caller's current balance so the response
// can report it. No charge was applied.
type QuotaExceededError struct {
	Balance int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded (balance %d)", e.Balance)
}

// Analytics is the read capability of the store manager.
type Analytics interface {
	Query(ctx context.Context, query string, args ...any) ([]models.Record, error)
}

// ReadResult is a successful billed read.
type ReadResult struct {
	Rows      []models.Record
	Remaining int64
}

// GatewayService is the quota-enforced request path: authenticate by opaque
// key, atomically reserve one credit, and only then query the store.
type GatewayService struct {
	ledger ledger.Store
	store  Analytics
	log    *slog.Logger
}

func NewGatewayService(l ledger.Store, a Analytics, log *slog.Logger) *GatewayService {
	return &GatewayService{ledger: l, store: a, log: log}
}

// FetchData charges one credit against apiKey and returns the records for
// country. The reservation is the unit of charge: once granted, a failing
// downstream query does not refund the credit.
func (s *GatewayService) FetchData(ctx context.Context, apiKey, country string) (ReadResult, error) {
	if apiKey == "" {
		metrics.ReservationsTotal.WithLabelValues("unauthenticated").Inc()
		return ReadResult{}, ErrUnauthenticated
	}

	res, err := s.ledger.Reserve(ctx, apiKey, ReadCost)
	if err != nil {
		var insufficient *ledger.InsufficientError
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			metrics.ReservationsTotal.WithLabelValues("unauthenticated").Inc()
			return ReadResult{}, ErrUnauthenticated
		case errors.As(err, &insufficient):
			metrics.ReservationsTotal.WithLabelValues("insufficient").Inc()
			return ReadResult{}, &QuotaExceededError{Balance: insufficient.Balance}
		default:
			metrics.ReservationsTotal.WithLabelValues("ledger_error").Inc()
			s.log.Error("ledger reserve", "err", err)
			return ReadResult{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		}
	}
	metrics.ReservationsTotal.WithLabelValues("granted").Inc()

	rows, err := s.store.Query(ctx,
		"SELECT name, email, country FROM records WHERE country = ?", country)
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			return ReadResult{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		}
		return ReadResult{}, fmt.Errorf("fetch records: %w", err)
	}

	return ReadResult{Rows: rows, Remaining: res.Remaining}, nil
}
