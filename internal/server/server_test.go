package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"approvalScope/internal/model"
	"approvalScope/internal/storage"
)

const (
	addrA = "0x1111111111111111111111111111111111111111"
	addrB = "0x2222222222222222222222222222222222222222"
)

type fakeScanner struct {
	mu     sync.Mutex
	owners []common.Address
	limit  int
}

func (s *fakeScanner) Scan(_ context.Context, owners []common.Address, limit int) model.ScanResult {
	s.mu.Lock()
	s.owners = owners
	s.limit = limit
	s.mu.Unlock()

	out := make(model.ScanResult, len(owners))
	for _, owner := range owners {
		out[owner.Hex()] = model.OwnerResult{
			Owner: owner.Hex(),
			Exposures: []model.ExposureRecord{{
				TokenSymbol: "DAI",
				Exposure:    decimal.RequireFromString("12.5"),
			}},
			Failures: []model.ItemFailure{},
		}
	}
	return out
}

type memorySink struct {
	mu      sync.Mutex
	reports []storage.Report
}

func (m *memorySink) PutReport(_ context.Context, report storage.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, report)
	return nil
}

func newTestHandler(cfg Config, scanner Scanner, sink storage.Storage) http.Handler {
	gin.SetMode(gin.TestMode)
	return NewHandler(cfg, scanner, sink, http.NotFoundHandler(), zap.NewNop()).Router()
}

func TestGetApprovals(t *testing.T) {
	scanner := &fakeScanner{}
	sink := &memorySink{}
	router := newTestHandler(Config{Concurrency: 4}, scanner, sink)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/approvals?addresses="+addrA+","+addrB, nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Scan-ID"))

	var body map[string]model.OwnerResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 2)
	require.Contains(t, body, common.HexToAddress(addrA).Hex())
	require.Equal(t, "12.5", body[common.HexToAddress(addrB).Hex()].Exposures[0].Exposure.String())

	require.Equal(t, 4, scanner.limit)
	require.Len(t, sink.reports, 1)
	require.Equal(t, rec.Header().Get("X-Scan-ID"), sink.reports[0].ScanID)
}

func TestGetApprovalsRootRepeatedParams(t *testing.T) {
	scanner := &fakeScanner{}
	router := newTestHandler(Config{}, scanner, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/?addresses="+addrA+"&addresses="+addrB+"&addresses="+addrA, nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, scanner.owners, 2)
}

func TestPostApprovals(t *testing.T) {
	scanner := &fakeScanner{}
	router := newTestHandler(Config{}, scanner, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/approvals", strings.NewReader(`{"addresses":["`+addrA+`"]}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []common.Address{common.HexToAddress(addrA)}, scanner.owners)
}

func TestApprovalsRejectsBadInput(t *testing.T) {
	router := newTestHandler(Config{MaxAddresses: 1}, &fakeScanner{}, nil)

	cases := map[string]*http.Request{
		"invalid address": httptest.NewRequest(http.MethodGet, "/api/approvals?addresses=0x1234", nil),
		"no addresses":    httptest.NewRequest(http.MethodGet, "/api/approvals", nil),
		"too many":        httptest.NewRequest(http.MethodGet, "/api/approvals?addresses="+addrA+","+addrB, nil),
		"bad json":        httptest.NewRequest(http.MethodPost, "/api/approvals", strings.NewReader(`{"addresses":`)),
	}

	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.NotEmpty(t, body.Error)
		})
	}
}

func TestHealth(t *testing.T) {
	router := newTestHandler(Config{}, &fakeScanner{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
