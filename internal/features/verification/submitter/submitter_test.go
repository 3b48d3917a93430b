package submitter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "proof-contrib-backend/internal/common/errors"
	"proof-contrib-backend/internal/features/verification/models"
)

func contribution() models.ContributionRequest {
	return models.ContributionRequest{
		ProviderID: "zomato",
		NormalizedRecord: models.NormalizedRecord{
			"orders": []map[string]interface{}{{"items": []string{"x"}, "price": 100.0, "timestamp": 1.0, "restaurant": "r"}},
		},
		ProofIdentifier: "0xproof",
	}
}

func TestSubmitAccepted(t *testing.T) {
	var calls int32
	var got models.ContributionRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/contribute", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "pointsAwarded": 42.5})
	}))
	defer srv.Close()

	refreshed := make(chan int64, 1)
	s := New(srv.URL, "token", func(userID int64) { refreshed <- userID })

	res, err := s.Submit(context.Background(), 7, contribution())
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, 42.5, res.PointsAwarded)
	assert.Equal(t, "0xproof", got.ProofIdentifier)
	assert.False(t, got.SubmittedAt.IsZero())

	select {
	case id := <-refreshed:
		assert.Equal(t, int64(7), id)
	case <-time.After(time.Second):
		t.Fatal("refresh hook not invoked")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSubmitLedgerRejectionVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "duplicate proof already credited"})
	}))
	defer srv.Close()

	s := New(srv.URL, "", nil)
	_, err := s.Submit(context.Background(), 7, contribution())
	require.Error(t, err)

	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeLedgerRejected, appErr.Code)
	// The server-provided message is surfaced as-is.
	assert.Equal(t, "duplicate proof already credited", appErr.Message)
	assert.False(t, appErr.IsRetryable())
}

func TestSubmitUnreachableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	s := New(srv.URL, "", nil)
	_, err := s.Submit(context.Background(), 7, contribution())
	require.Error(t, err)

	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeTransientNetwork, appErr.Code)
	assert.True(t, appErr.IsRetryable())
}

func TestSubmitInvalidWallet(t *testing.T) {
	s := New("http://ledger.invalid", "", nil)
	req := contribution()
	req.Wallet = "definitely-not-a-ton-address"

	_, err := s.Submit(context.Background(), 7, req)
	require.Error(t, err)
	appErr, _ := apperrors.AsAppError(err)
	assert.Equal(t, apperrors.ErrCodeValidation, appErr.Code)
}

func TestSubmitValidWalletForwarded(t *testing.T) {
	var got models.ContributionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "pointsAwarded": 1})
	}))
	defer srv.Close()

	s := New(srv.URL, "", nil)
	req := contribution()
	req.Wallet = "0:83dfd552e63729b472fcbcc8c45ebcc6691702558b68ec7527e1ba403a0f31a8"

	_, err := s.Submit(context.Background(), 7, req)
	require.NoError(t, err)
	assert.Equal(t, req.Wallet, got.Wallet)
}
