// Package redis keeps the flow draft in Redis, one key per builder instance.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/patientflow/pkg/draft"
	"github.com/dukex/patientflow/pkg/models"
	backend "github.com/redis/go-redis/v9"
)

type Store struct {
	client *backend.Client
	key    string
}

// NewStore scopes the draft key to instanceID so builders on different
// clients do not overwrite each other.
func NewStore(client *backend.Client, instanceID string) *Store {
	key := draft.Key
	if instanceID != "" {
		key += ":" + instanceID
	}

	return &Store{client: client, key: key}
}

// NewStoreFromURL connects to the Redis server at url, for example
// redis://localhost:6379/0.
func NewStoreFromURL(url, instanceID string) (*Store, error) {
	options, err := backend.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	return NewStore(backend.NewClient(options), instanceID), nil
}

// Key returns the Redis key holding the draft.
func (s *Store) Key() string {
	return s.key
}

func (s *Store) Load(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, draft.ErrNoDraft
		}

		return nil, fmt.Errorf("failed to load draft from redis: %w", err)
	}

	return data, nil
}

// Save writes the draft with an expiry one day past models.DraftTTL.
func (s *Store) Save(ctx context.Context, data []byte) error {
	err := s.client.Set(ctx, s.key, data, models.DraftTTL+24*time.Hour).Err()
	if err != nil {
		return fmt.Errorf("failed to save draft to redis: %w", err)
	}

	return nil
}

func (s *Store) Delete(ctx context.Context) error {
	err := s.client.Del(ctx, s.key).Err()
	if err != nil {
		return fmt.Errorf("failed to delete draft from redis: %w", err)
	}

	return nil
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}
