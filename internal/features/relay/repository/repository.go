package repository

import (
	"context"
	"time"
)

// Repository stores proofs delivered by the attestation service's
// out-of-band callback, keyed per session, until the client polls them.
type Repository interface {
	// StoreProof parks a proof for a session. Overwrites any earlier one.
	StoreProof(ctx context.Context, sessionID string, proof []byte, ttl time.Duration) error
	// FetchProof returns the stored proof, or nil when none has landed.
	FetchProof(ctx context.Context, sessionID string) ([]byte, error)
	// DeleteProof removes a consumed proof.
	DeleteProof(ctx context.Context, sessionID string) error
}
