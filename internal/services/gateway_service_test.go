package services_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meterly/datagate/internal/ledger"
	"github.com/meterly/datagate/internal/models"
	"github.com/meterly/datagate/internal/services"
	"github.com/meterly/datagate/internal/store"
)

type fakeAnalytics struct {
	rows    []models.Record
	err     error
	queries int
	lastArg any
}

func (f *fakeAnalytics) Query(_ context.Context, _ string, args ...any) ([]models.Record, error) {
	f.queries++
	if len(args) > 0 {
		f.lastArg = args[0]
	}
	return f.rows, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newGateway(t *testing.T, credits int64, analytics *fakeAnalytics) (*services.GatewayService, ledger.Store, string) {
	t.Helper()
	led := ledger.NewMemory()
	key, err := led.Create(context.Background(), credits)
	require.NoError(t, err)
	return services.NewGatewayService(led, analytics, testLogger()), led, key
}

func TestFetchDataChargesOnce(t *testing.T) {
	analytics := &fakeAnalytics{rows: []models.Record{{Name: "John Doe", Country: "USA"}}}
	gw, led, key := newGateway(t, 5, analytics)

	res, err := gw.FetchData(context.Background(), key, "USA")
	require.NoError(t, err)
	require.EqualValues(t, 4, res.Remaining)
	require.Len(t, res.Rows, 1)
	require.Equal(t, 1, analytics.queries)
	require.Equal(t, "USA", analytics.lastArg)

	bal, err := led.Balance(context.Background(), key)
	require.NoError(t, err)
	require.EqualValues(t, 4, bal)
}

func TestFetchDataMissingKey(t *testing.T) {
	analytics := &fakeAnalytics{}
	gw, _, _ := newGateway(t, 5, analytics)

	_, err := gw.FetchData(context.Background(), "", "USA")
	require.ErrorIs(t, err, services.ErrUnauthenticated)
	require.Zero(t, analytics.queries)
}

func TestFetchDataUnknownKeyLeavesLedgerUntouched(t *testing.T) {
	analytics := &fakeAnalytics{}
	gw, led, key := newGateway(t, 5, analytics)

	_, err := gw.FetchData(context.Background(), "bogus", "USA")
	require.ErrorIs(t, err, services.ErrUnauthenticated)
	require.Zero(t, analytics.queries)

	bal, err := led.Balance(context.Background(), key)
	require.NoError(t, err)
	require.EqualValues(t, 5, bal)
}

func TestFetchDataQuotaExceeded(t *testing.T) {
	analytics := &fakeAnalytics{}
	gw, led, key := newGateway(t, 0, analytics)

	_, err := gw.FetchData(context.Background(), key, "USA")
	var quota *services.QuotaExceededError
	require.ErrorAs(t, err, &quota)
	require.EqualValues(t, 0, quota.Balance)
	require.Zero(t, analytics.queries)

	bal, err := led.Balance(context.Background(), key)
	require.NoError(t, err)
	require.EqualValues(t, 0, bal)
}

func TestFetchDataStoreUnavailableKeepsCharge(t *testing.T) {
	analytics := &fakeAnalytics{err: store.ErrUnavailable}
	gw, led, key := newGateway(t, 2, analytics)

	_, err := gw.FetchData(context.Background(), key, "USA")
	require.ErrorIs(t, err, services.ErrServiceUnavailable)

	// the reservation is the unit of charge; no refund
	bal, err := led.Balance(context.Background(), key)
	require.NoError(t, err)
	require.EqualValues(t, 1, bal)
}

func TestFetchDataQueryFailureKeepsCharge(t *testing.T) {
	analytics := &fakeAnalytics{err: errors.New("malformed query")}
	gw, led, key := newGateway(t, 2, analytics)

	_, err := gw.FetchData(context.Background(), key, "USA")
	require.Error(t, err)
	require.NotErrorIs(t, err, services.ErrServiceUnavailable)
	require.NotErrorIs(t, err, services.ErrUnauthenticated)

	bal, err := led.Balance(context.Background(), key)
	require.NoError(t, err)
	require.EqualValues(t, 1, bal)
}

func TestAccountServiceCreate(t *testing.T) {
	led := ledger.NewMemory()
	svc := services.NewAccountService(led)

	key, err := svc.Create(context.Background(), 10)
	require.NoError(t, err)

	bal, err := led.Balance(context.Background(), key)
	require.NoError(t, err)
	require.EqualValues(t, 10, bal)

	_, err = svc.Create(context.Background(), -1)
	require.ErrorIs(t, err, services.ErrInvalidCredits)
}
