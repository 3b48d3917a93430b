package session

import (
	"context"
	"encoding/json"

	providermodels "proof-contrib-backend/internal/features/provider/models"
	"proof-contrib-backend/internal/features/verification/attestation"
	"proof-contrib-backend/internal/features/verification/models"
)

// Attestor is the attestation service surface the state machine drives.
type Attestor interface {
	InitSession(ctx context.Context, req attestation.InitRequest) (*attestation.InitResult, error)
	AwaitResult(ctx context.Context, attestationID string) (json.RawMessage, error)
}

// ProofFetcher reads proofs parked on the relay by session id.
type ProofFetcher interface {
	Proof(ctx context.Context, sessionID string) (json.RawMessage, error)
	Consume(ctx context.Context, sessionID string)
}

// Normalizer extracts provider fields out of a raw envelope.
type Normalizer interface {
	Normalize(envelope models.ProofEnvelope, schema *providermodels.ProviderSchema) (models.NormalizedRecord, error)
	ProofIdentifier(envelope models.ProofEnvelope) string
}

// ContributionSubmitter posts a normalized record to the ledger.
type ContributionSubmitter interface {
	Submit(ctx context.Context, userID int64, req models.ContributionRequest) (*models.ContributionResult, error)
}

// SchemaRegistry resolves provider schemas.
type SchemaRegistry interface {
	SchemaFor(providerID string) (*providermodels.ProviderSchema, error)
	SchemaForTemplate(templateID string) (*providermodels.ProviderSchema, bool)
	All() []*providermodels.ProviderSchema
}
