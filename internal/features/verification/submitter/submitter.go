package submitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xssnick/tonutils-go/address"

	apperrors "proof-contrib-backend/internal/common/errors"
	"proof-contrib-backend/internal/common/logger"
	"proof-contrib-backend/internal/features/verification/models"
)

// RefreshFunc is invoked after an accepted contribution so locally
// cached user state (points, history) gets re-fetched.
type RefreshFunc func(userID int64)

// Submitter turns a normalized record into one Ledger API call. It never
// retries on its own: a silent retry would race the ledger's
// proof-identifier dedup and leave the user guessing what was counted.
type Submitter struct {
	baseURL    string
	token      string
	httpClient *http.Client
	onAccepted RefreshFunc
}

func New(baseURL, token string, onAccepted RefreshFunc) *Submitter {
	return &Submitter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		onAccepted: onAccepted,
	}
}

// ledgerResponse is the Ledger API's answer to POST /contribute.
type ledgerResponse struct {
	Success       bool    `json:"success"`
	PointsAwarded float64 `json:"pointsAwarded"`
	Message       string  `json:"message"`
}

// Submit posts one contribution. Rejections come back as named errors
// with the server message verbatim; unreachability is a transient
// network error the user retries by re-initiating verification.
func (s *Submitter) Submit(ctx context.Context, userID int64, req models.ContributionRequest) (*models.ContributionResult, error) {
	if req.Wallet != "" {
		if err := validateWallet(req.Wallet); err != nil {
			return nil, apperrors.NewValidationError("wallet", err.Error())
		}
	}
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = time.Now().UTC()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "marshal contribution")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/contribute", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "build ledger request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperrors.NewTransientNetworkError("contribution submit", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.NewTransientNetworkError("contribution response read", err)
	}

	var out ledgerResponse
	if decodeErr := json.Unmarshal(raw, &out); decodeErr != nil && resp.StatusCode == http.StatusOK {
		return nil, apperrors.Wrap(decodeErr, apperrors.ErrCodeExternalAPI, "undecodable ledger response")
	}

	if resp.StatusCode != http.StatusOK || !out.Success {
		logger.Warn().
			Int64("user_id", userID).
			Str("provider_id", req.ProviderID).
			Int("status", resp.StatusCode).
			Str("message", out.Message).
			Msg("Ledger rejected contribution")
		return nil, apperrors.NewLedgerRejectedError(out.Message).
			WithDetail("provider_id", req.ProviderID).
			WithDetail("proof_identifier", req.ProofIdentifier)
	}

	logger.Info().
		Int64("user_id", userID).
		Str("provider_id", req.ProviderID).
		Float64("points", out.PointsAwarded).
		Msg("Contribution accepted")

	if s.onAccepted != nil {
		go s.onAccepted(userID)
	}

	return &models.ContributionResult{Accepted: true, PointsAwarded: out.PointsAwarded}, nil
}

// validateWallet accepts user-friendly and raw TON address forms.
func validateWallet(wallet string) error {
	if _, err := address.ParseAddr(wallet); err == nil {
		return nil
	}
	if _, err := address.ParseRawAddr(wallet); err == nil {
		return nil
	}
	return fmt.Errorf("not a valid TON address")
}
