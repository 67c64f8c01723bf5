package api_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meterly/datagate/internal/api"
	"github.com/meterly/datagate/internal/config"
	"github.com/meterly/datagate/internal/ledger"
	"github.com/meterly/datagate/internal/models"
	"github.com/meterly/datagate/internal/services"
)

type fakeAnalytics struct {
	rows []models.Record
	err  error
}

func (f *fakeAnalytics) Query(context.Context, string, ...any) ([]models.Record, error) {
	return f.rows, f.err
}

func newTestRouter(t *testing.T, cfg config.Config, analytics *fakeAnalytics) (http.Handler, ledger.Store) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	led := ledger.NewMemory()
	return api.NewRouter(cfg,
		services.NewAccountService(led),
		services.NewGatewayService(led, analytics, log),
	), led
}

func createAccount(t *testing.T, h http.Handler, credits string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/accounts", strings.NewReader(`{"initial_credits": `+credits+`}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		Key string `json:"key"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.NotEmpty(t, body.Key)
	return body.Key
}

func getData(h http.Handler, apiKey, country string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/data?country="+country, nil)
	if apiKey != "" {
		req.Header.Set("X-Api-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTwoCreditScenario(t *testing.T) {
	h, _ := newTestRouter(t, config.Config{RateRPS: 100}, &fakeAnalytics{
		rows: []models.Record{{Name: "John Doe", Email: "john@gmail.com", Country: "USA"}},
	})
	key := createAccount(t, h, "2")

	rec := getData(h, key, "USA")
	require.Equal(t, http.StatusOK, rec.Code)
	var ok struct {
		Rows             []models.Record `json:"rows"`
		RemainingCredits int64           `json:"remaining_credits"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ok))
	require.EqualValues(t, 1, ok.RemainingCredits)
	require.Len(t, ok.Rows, 1)

	rec = getData(h, key, "USA")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ok))
	require.EqualValues(t, 0, ok.RemainingCredits)

	rec = getData(h, key, "USA")
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	var fail struct {
		Code    string `json:"code"`
		Details struct {
			Balance int64 `json:"balance"`
		} `json:"details"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&fail))
	require.Equal(t, "quota_exceeded", fail.Code)
	require.EqualValues(t, 0, fail.Details.Balance)
}

func TestDataUnknownKey(t *testing.T) {
	h, led := newTestRouter(t, config.Config{RateRPS: 100}, &fakeAnalytics{})
	key := createAccount(t, h, "5")

	rec := getData(h, "bogus", "USA")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	bal, err := led.Balance(context.Background(), key)
	require.NoError(t, err)
	require.EqualValues(t, 5, bal)
}

func TestDataMissingKey(t *testing.T) {
	h, _ := newTestRouter(t, config.Config{RateRPS: 100}, &fakeAnalytics{})
	rec := getData(h, "", "USA")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDataMissingCountry(t *testing.T) {
	h, _ := newTestRouter(t, config.Config{RateRPS: 100}, &fakeAnalytics{})
	rec := getData(h, "whatever", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAccountRejectsNegativeCredits(t *testing.T) {
	h, _ := newTestRouter(t, config.Config{RateRPS: 100}, &fakeAnalytics{})
	req := httptest.NewRequest(http.MethodPost, "/accounts", strings.NewReader(`{"initial_credits": -1}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAccountAdminToken(t *testing.T) {
	h, _ := newTestRouter(t, config.Config{RateRPS: 100, AdminToken: "s3cret"}, &fakeAnalytics{})

	req := httptest.NewRequest(http.MethodPost, "/accounts", strings.NewReader(`{"initial_credits": 1}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/accounts", strings.NewReader(`{"initial_credits": 1}`))
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestHealth(t *testing.T) {
	h, _ := newTestRouter(t, config.Config{RateRPS: 100}, &fakeAnalytics{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}
