package timerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mcdev12/battletimer/go/internal/clock"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// NATSStore keeps timer state in a JetStream key-value bucket. The bucket's
// per-key revision backs the conditional Put, so concurrent writers on different
// server instances cannot overwrite each other's transitions.
type NATSStore struct {
	kv jetstream.KeyValue
}

// NewNATSStore creates the bucket if needed and returns a store backed by it.
func NewNATSStore(ctx context.Context, js jetstream.JetStream, bucket string) (*NATSStore, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "control timer state and ownership",
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("create key-value bucket %s: %w", bucket, err)
	}

	log.Info().Str("bucket", bucket).Msg("using JetStream key-value timer store")
	return &NATSStore{kv: kv}, nil
}

// kvKey maps a logical key onto the bucket's key alphabet, which has no colon.
func kvKey(key string) string {
	return strings.ReplaceAll(key, ":", ".")
}

func (s *NATSStore) Get(ctx context.Context, token string) (clock.State, error) {
	entry, err := s.kv.Get(ctx, kvKey(StateKey(token)))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return clock.State{}, ErrNotFound
		}
		return clock.State{}, fmt.Errorf("get timer state: %w", err)
	}

	var state clock.State
	if err := json.Unmarshal(entry.Value(), &state); err != nil {
		return clock.State{}, fmt.Errorf("decode timer state: %w", err)
	}
	state.Revision = entry.Revision()
	return state, nil
}

func (s *NATSStore) Put(ctx context.Context, token string, state clock.State) (uint64, error) {
	if !ValidToken(token) {
		return 0, ErrInvalidToken
	}
	expected := state.Revision
	state.Revision = 0
	value, err := json.Marshal(state)
	if err != nil {
		return 0, fmt.Errorf("encode timer state: %w", err)
	}

	key := kvKey(StateKey(token))
	var rev uint64
	if expected == 0 {
		rev, err = s.kv.Create(ctx, key, value)
	} else {
		rev, err = s.kv.Update(ctx, key, value, expected)
	}
	if err != nil {
		if isRevisionMismatch(err) {
			return 0, ErrConflict
		}
		return 0, fmt.Errorf("put timer state: %w", err)
	}
	return rev, nil
}

func (s *NATSStore) Delete(ctx context.Context, token string) error {
	for _, key := range []string{StateKey(token), OwnerKey(token)} {
		if err := s.kv.Delete(ctx, kvKey(key)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return nil
}

func (s *NATSStore) GetOwnership(ctx context.Context, token string) (Ownership, error) {
	entry, err := s.kv.Get(ctx, kvKey(OwnerKey(token)))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return Ownership{}, ErrNotFound
		}
		return Ownership{}, fmt.Errorf("get ownership: %w", err)
	}

	var owner Ownership
	if err := json.Unmarshal(entry.Value(), &owner); err != nil {
		return Ownership{}, fmt.Errorf("decode ownership: %w", err)
	}
	return owner, nil
}

func (s *NATSStore) PutOwnership(ctx context.Context, token string, owner Ownership) error {
	if !ValidToken(token) {
		return ErrInvalidToken
	}
	value, err := json.Marshal(owner)
	if err != nil {
		return fmt.Errorf("encode ownership: %w", err)
	}
	if _, err := s.kv.Put(ctx, kvKey(OwnerKey(token)), value); err != nil {
		return fmt.Errorf("put ownership: %w", err)
	}
	return nil
}

func isRevisionMismatch(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}
