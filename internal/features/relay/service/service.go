package service

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	apperrors "proof-contrib-backend/internal/common/errors"
	"proof-contrib-backend/internal/common/logger"
	"proof-contrib-backend/internal/features/relay/repository"
)

// maxProofSize caps stored callback bodies. Real proofs are a few KB;
// anything near the cap is junk.
const maxProofSize = 4 << 20

type Service struct {
	repo repository.Repository
	ttl  time.Duration
}

func NewService(repo repository.Repository, ttl time.Duration) *Service {
	return &Service{repo: repo, ttl: ttl}
}

// AcceptCallback stores the attestation service's out-of-band callback
// body for its session. The body arrives either as raw JSON or
// URL-encoded JSON depending on the companion app version.
func (s *Service) AcceptCallback(ctx context.Context, sessionID string, body []byte) error {
	if sessionID == "" {
		return apperrors.NewValidationError("session", "missing session id")
	}
	if len(body) == 0 || len(body) > maxProofSize {
		return apperrors.NewValidationError("proof", "empty or oversized body")
	}

	proof := normalizeBody(body)
	if !json.Valid(proof) {
		return apperrors.NewValidationError("proof", "body is not JSON")
	}

	if err := s.repo.StoreProof(ctx, sessionID, proof, s.ttl); err != nil {
		return apperrors.NewCacheError("store relay proof", err)
	}

	logger.Info().
		Str("session_id", sessionID).
		Int("proof_bytes", len(proof)).
		Msg("Relay proof stored")
	return nil
}

// Proof returns the stored proof for a session, or nil when none has
// landed yet. Absence is not an error.
func (s *Service) Proof(ctx context.Context, sessionID string) (json.RawMessage, error) {
	data, err := s.repo.FetchProof(ctx, sessionID)
	if err != nil {
		return nil, apperrors.NewCacheError("fetch relay proof", err)
	}
	return data, nil
}

// Consume removes a proof once the verification session has used it.
func (s *Service) Consume(ctx context.Context, sessionID string) {
	if err := s.repo.DeleteProof(ctx, sessionID); err != nil {
		logger.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to delete consumed relay proof")
	}
}

// normalizeBody unwraps URL-encoded callback bodies down to raw JSON.
func normalizeBody(body []byte) []byte {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, `"`) {
		return []byte(trimmed)
	}
	if decoded, err := url.QueryUnescape(trimmed); err == nil {
		return []byte(strings.TrimSpace(decoded))
	}
	return []byte(trimmed)
}
