package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/bytefinance/backend/internal/services"
	"github.com/bytefinance/backend/internal/store"
)

type testServer struct {
	router   chi.Router
	accounts *store.MemoryAccountStore
	ledger   *services.LedgerService
}

func newTestServer(t *testing.T, client *redis.Client) *testServer {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	accounts := store.NewMemoryAccountStore()
	entries := store.NewMemoryLedger()
	ledger := services.NewLedgerService(accounts, entries, log)
	queries := services.NewQueryService(accounts, entries, nil, log)
	transfers := services.NewTransferService(accounts, ledger, log)
	loans := services.NewLoanService(store.NewMemoryLoanStore(), log)

	api := &API{
		Ledger: NewLedgerHandler(ledger, queries, transfers, log),
		Loans:  NewLoanHandler(loans, "ZAR", log),
	}
	if client != nil {
		api.Payments = NewPaymentRequestHandler(services.NewPaymentRequestService(client, transfers, 0, log), log)
	}

	r := chi.NewRouter()
	r.Route("/api/v1", api.Mount)
	return &testServer{router: r, accounts: accounts, ledger: ledger}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

// openFunded opens an account over HTTP and funds it with a deposit command.
func (s *testServer) openFunded(t *testing.T, userID, amount string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/users/"+userID+"/account", `{"currency":"ZAR"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	if amount == "" {
		return
	}
	rec = s.do(t, http.MethodPost, "/api/v1/users/"+userID+"/commands", map[string]any{
		"kind":            "deposit",
		"amount":          map[string]string{"amount": amount, "currency": "ZAR"},
		"idempotency_key": "fund-" + userID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
