package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"proof-contrib-backend/internal/features/relay/repository"
)

const keyPrefixProof = "relay_proof:"

type Repository struct {
	client redis.Cmdable
}

func NewRepository(client redis.Cmdable) repository.Repository {
	return &Repository{client: client}
}

func (r *Repository) StoreProof(ctx context.Context, sessionID string, proof []byte, ttl time.Duration) error {
	key := keyPrefixProof + sessionID
	if err := r.client.Set(ctx, key, proof, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store relay proof: %w", err)
	}
	return nil
}

func (r *Repository) FetchProof(ctx context.Context, sessionID string) ([]byte, error) {
	data, err := r.client.Get(ctx, keyPrefixProof+sessionID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch relay proof: %w", err)
	}
	return data, nil
}

func (r *Repository) DeleteProof(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, keyPrefixProof+sessionID).Err(); err != nil {
		return fmt.Errorf("failed to delete relay proof: %w", err)
	}
	return nil
}
