package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cachewarming/receipt-match-backend/internal/api"
	"github.com/cachewarming/receipt-match-backend/internal/api/dto"
	"github.com/cachewarming/receipt-match-backend/internal/application/matching"
	"github.com/cachewarming/receipt-match-backend/internal/infrastructure/config"
	"github.com/cachewarming/receipt-match-backend/internal/infrastructure/storage"
)

func newTestServer(t *testing.T) (*api.Server, *storage.MockRepository) {
	t.Helper()
	repo := storage.NewMockRepository()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := matching.NewService(repo, config.MatchingConfig{
		ScoreThreshold:  70,
		AmbiguityWindow: 5,
		DateWindowDays:  7,
		CandidateLimit:  10,
	}, logger)
	server := api.NewServer(api.DefaultConfig(), svc, logger)
	return server, repo
}

func doJSON(t *testing.T, server *api.Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func seedPair(t *testing.T, repo *storage.MockRepository) {
	t.Helper()
	require.NoError(t, repo.CreateAlias(&storage.VendorAlias{
		UserID:        "user1",
		Pattern:       "DELTA AIR",
		CanonicalName: "Delta Airlines",
		MatchCount:    2,
		LastMatchedAt: time.Now(),
		Confidence:    1.0,
	}))
	require.NoError(t, repo.SaveReceipt(&storage.Receipt{
		ID:        "r1",
		UserID:    "user1",
		Amount:    425.00,
		Date:      time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		Vendor:    "DELTA AIR",
		Extracted: true,
	}))
	require.NoError(t, repo.SaveTransaction(&storage.Transaction{
		ID:          "tx1",
		UserID:      "user1",
		Amount:      425.00,
		Date:        time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		Description: "DELTA AIR 0061234567890",
	}))
}

func TestServer_HealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)

	var response dto.HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, "ok", response.Status)
}

func TestServer_AutoMatchEndpoint(t *testing.T) {
	t.Run("proposes matches and reports a summary", func(t *testing.T) {
		server, repo := newTestServer(t)
		seedPair(t, repo)

		rec := doJSON(t, server, http.MethodPost, "/api/match/auto",
			dto.AutoMatchRequest{UserID: "user1"})

		assert.Equal(t, http.StatusOK, rec.Code)

		var response dto.AutoMatchResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, 1, response.Processed)
		assert.Equal(t, 1, response.Proposed)
	})

	t.Run("rejects missing user_id", func(t *testing.T) {
		server, _ := newTestServer(t)

		rec := doJSON(t, server, http.MethodPost, "/api/match/auto", dto.AutoMatchRequest{})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_CandidatesEndpoint(t *testing.T) {
	t.Run("returns ranked candidates", func(t *testing.T) {
		server, repo := newTestServer(t)
		seedPair(t, repo)

		rec := doJSON(t, server, http.MethodGet, "/api/receipts/r1/candidates?limit=5", nil)

		assert.Equal(t, http.StatusOK, rec.Code)

		var response dto.CandidateListResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, "r1", response.ReceiptID)
		require.Equal(t, 1, response.Count)
		assert.Equal(t, "tx1", response.Candidates[0].CandidateID)
		assert.Equal(t, 100, response.Candidates[0].Score)
	})

	t.Run("unknown receipt yields 404", func(t *testing.T) {
		server, _ := newTestServer(t)

		rec := doJSON(t, server, http.MethodGet, "/api/receipts/missing/candidates", nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)

		var apiErr dto.APIError
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&apiErr))
		assert.Equal(t, dto.ErrCodeNotFound, apiErr.Code)
	})
}

func proposeViaAPI(t *testing.T, server *api.Server, repo *storage.MockRepository) dto.MatchResponse {
	t.Helper()
	seedPair(t, repo)
	rec := doJSON(t, server, http.MethodPost, "/api/match/auto", dto.AutoMatchRequest{UserID: "user1"})
	require.Equal(t, http.StatusOK, rec.Code)

	matches, err := repo.ListMatchesByReceipt("r1")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	return dto.ToMatchResponse(matches[0])
}

func TestServer_ConfirmEndpoint(t *testing.T) {
	t.Run("confirms a proposed match", func(t *testing.T) {
		server, repo := newTestServer(t)
		proposed := proposeViaAPI(t, server, repo)

		rec := doJSON(t, server, http.MethodPost, "/api/match/"+proposed.ID+"/confirm",
			dto.ConfirmMatchRequest{UserID: "user1", Version: proposed.Version})

		assert.Equal(t, http.StatusOK, rec.Code)

		var response dto.MatchResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, "confirmed", response.Status)
		assert.Equal(t, proposed.Version+1, response.Version)
		assert.Equal(t, "user1", response.ConfirmedBy)
	})

	t.Run("stale version yields 409", func(t *testing.T) {
		server, repo := newTestServer(t)
		proposed := proposeViaAPI(t, server, repo)

		first := doJSON(t, server, http.MethodPost, "/api/match/"+proposed.ID+"/confirm",
			dto.ConfirmMatchRequest{UserID: "user1", Version: proposed.Version})
		require.Equal(t, http.StatusOK, first.Code)

		second := doJSON(t, server, http.MethodPost, "/api/match/"+proposed.ID+"/confirm",
			dto.ConfirmMatchRequest{UserID: "user1", Version: proposed.Version})
		assert.Equal(t, http.StatusConflict, second.Code)

		var apiErr dto.APIError
		require.NoError(t, json.NewDecoder(second.Body).Decode(&apiErr))
		assert.Equal(t, dto.ErrCodeInvalidState, apiErr.Code)
	})

	t.Run("unknown match yields 404", func(t *testing.T) {
		server, _ := newTestServer(t)

		rec := doJSON(t, server, http.MethodPost, "/api/match/missing/confirm",
			dto.ConfirmMatchRequest{UserID: "user1", Version: 1})

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServer_RejectEndpoint(t *testing.T) {
	server, repo := newTestServer(t)
	proposed := proposeViaAPI(t, server, repo)

	rec := doJSON(t, server, http.MethodPost, "/api/match/"+proposed.ID+"/reject",
		dto.RejectMatchRequest{UserID: "user1", Version: proposed.Version})

	assert.Equal(t, http.StatusOK, rec.Code)

	var response dto.MatchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, "rejected", response.Status)

	receipt, err := repo.GetReceipt("r1")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusUnmatched, receipt.Status)
}

func TestServer_ManualMatchEndpoint(t *testing.T) {
	t.Run("creates a confirmed manual match", func(t *testing.T) {
		server, repo := newTestServer(t)
		seedPair(t, repo)

		txID := "tx1"
		rec := doJSON(t, server, http.MethodPost, "/api/match/manual",
			dto.ManualMatchRequest{UserID: "user1", ReceiptID: "r1", TransactionID: &txID})

		assert.Equal(t, http.StatusCreated, rec.Code)

		var response dto.MatchResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, "confirmed", response.Status)
		assert.True(t, response.Manual)
	})

	t.Run("neither side set yields 400", func(t *testing.T) {
		server, repo := newTestServer(t)
		seedPair(t, repo)

		rec := doJSON(t, server, http.MethodPost, "/api/match/manual",
			dto.ManualMatchRequest{UserID: "user1", ReceiptID: "r1"})

		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var apiErr dto.APIError
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&apiErr))
		assert.Equal(t, dto.ErrCodeValidation, apiErr.Code)
	})
}

func TestServer_UnmatchEndpoint(t *testing.T) {
	server, repo := newTestServer(t)
	proposed := proposeViaAPI(t, server, repo)

	confirm := doJSON(t, server, http.MethodPost, "/api/match/"+proposed.ID+"/confirm",
		dto.ConfirmMatchRequest{UserID: "user1", Version: proposed.Version})
	require.Equal(t, http.StatusOK, confirm.Code)

	var confirmed dto.MatchResponse
	require.NoError(t, json.NewDecoder(confirm.Body).Decode(&confirmed))

	rec := doJSON(t, server, http.MethodPost, "/api/match/"+proposed.ID+"/unmatch",
		dto.UnmatchRequest{Version: confirmed.Version})

	assert.Equal(t, http.StatusOK, rec.Code)

	var response dto.UnmatchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, "unmatched", response.Match.Status)
	assert.Empty(t, response.Warning)

	receipt, err := repo.GetReceipt("r1")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusUnmatched, receipt.Status)
}

func TestServer_GetMatchEndpoint(t *testing.T) {
	server, repo := newTestServer(t)
	proposed := proposeViaAPI(t, server, repo)

	rec := doJSON(t, server, http.MethodGet, "/api/match/"+proposed.ID, nil)

	assert.Equal(t, http.StatusOK, rec.Code)

	var response dto.MatchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, proposed.ID, response.ID)
	assert.Equal(t, "proposed", response.Status)
}

func TestServer_StatsEndpoint(t *testing.T) {
	server, repo := newTestServer(t)
	proposed := proposeViaAPI(t, server, repo)

	confirm := doJSON(t, server, http.MethodPost, "/api/match/"+proposed.ID+"/confirm",
		dto.ConfirmMatchRequest{UserID: "user1", Version: proposed.Version})
	require.Equal(t, http.StatusOK, confirm.Code)

	rec := doJSON(t, server, http.MethodGet, "/api/stats?user_id=user1", nil)

	assert.Equal(t, http.StatusOK, rec.Code)

	var response dto.StatsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, 1, response.MatchedCount)
	assert.Equal(t, 1.0, response.AutoMatchRate)
}

func TestServer_AliasesEndpoint(t *testing.T) {
	server, repo := newTestServer(t)
	seedPair(t, repo)

	rec := doJSON(t, server, http.MethodGet, "/api/aliases?user_id=user1", nil)

	assert.Equal(t, http.StatusOK, rec.Code)

	var response dto.AliasListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	require.Equal(t, 1, response.Count)
	assert.Equal(t, "DELTA AIR", response.Aliases[0].Pattern)
	assert.Equal(t, "Delta Airlines", response.Aliases[0].CanonicalName)
}

func TestServer_StatsRequiresUserID(t *testing.T) {
	server, _ := newTestServer(t)
	for _, path := range []string{"/api/stats", "/api/aliases"} {
		rec := doJSON(t, server, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, fmt.Sprintf("path %s", path))
	}
}
