// Package statestore gives each embedded bot an isolated, size-bounded,
// string-keyed key/value namespace backed by external persistent storage.
//
// Size accounting is delta-based: a write is charged the difference between
// the new entry size and the one it replaces, so Put never scans the full
// namespace. That makes the read-check-write sequence the correctness
// hotspot - the Manager serializes writes per bot so concurrent Puts cannot
// race the running total past the quota.
package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// DefaultSizeLimit is the per-bot state budget in bytes.
const DefaultSizeLimit = 10_000_000

// Codec converts between the string values bots store and the payload bytes
// the backend persists. Both functions must be non-nil. The default codec
// uses JSON, so stored payloads remain readable by other platform tooling.
type Codec struct {
	Marshal   func(value string) ([]byte, error)
	Unmarshal func(payload []byte) (string, error)
}

// JSONCodec returns the default JSON string codec.
func JSONCodec() Codec {
	return Codec{
		Marshal: func(value string) ([]byte, error) {
			return json.Marshal(value)
		},
		Unmarshal: func(payload []byte) (string, error) {
			var value string
			if err := json.Unmarshal(payload, &value); err != nil {
				return "", err
			}
			return value, nil
		},
	}
}

// Manager creates per-bot Stores over a shared Backend and owns the per-bot
// write locks that keep quota accounting consistent. One Manager serves the
// whole process; Stores for different bots proceed independently.
type Manager struct {
	backend Backend
	limit   int64
	codec   Codec

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithSizeLimit overrides the per-bot state budget in bytes.
func WithSizeLimit(limit int64) Option {
	return func(m *Manager) {
		if limit > 0 {
			m.limit = limit
		}
	}
}

// WithCodec overrides the value codec.
func WithCodec(codec Codec) Option {
	return func(m *Manager) {
		if codec.Marshal != nil && codec.Unmarshal != nil {
			m.codec = codec
		}
	}
}

// NewManager creates a store manager over the given backend.
func NewManager(backend Backend, opts ...Option) *Manager {
	m := &Manager{
		backend: backend,
		limit:   DefaultSizeLimit,
		codec:   JSONCodec(),
		locks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// For returns the Store bound to the given bot. Stores are cheap handles;
// calling For twice for the same bot yields stores that share one lock.
func (m *Manager) For(botID string) *Store {
	return &Store{manager: m, botID: botID}
}

// SizeLimit returns the configured per-bot budget in bytes.
func (m *Manager) SizeLimit() int64 {
	return m.limit
}

// lockFor returns the write lock for one bot, creating it on first use.
func (m *Manager) lockFor(botID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[botID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[botID] = lock
	}
	return lock
}

// Store is a bot-scoped view of the state backend. It is safe for
// concurrent use.
type Store struct {
	manager *Manager
	botID   string
}

// BotID returns the bot this store is bound to.
func (s *Store) BotID() string {
	return s.botID
}

// Get returns the value stored under key. Returns ErrNotFound if the key
// has no value and a *DecodeError if the stored payload cannot be decoded.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	payload, err := s.manager.backend.GetState(ctx, s.botID, key)
	if err != nil {
		return "", err
	}

	value, err := s.manager.codec.Unmarshal(payload)
	if err != nil {
		return "", &DecodeError{Key: key, Err: err}
	}
	return value, nil
}

// Put stores value under key, replacing any previous value. The write is
// rejected with a *QuotaError when the bot's total state size would exceed
// its budget; a rejected write leaves prior state untouched.
//
// The quota check and the write happen under the bot's write lock, so
// concurrent Puts to the same bot observe a consistent running total.
func (s *Store) Put(ctx context.Context, key, value string) error {
	payload, err := s.manager.codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode state value for key %q: %w", key, err)
	}

	lock := s.manager.lockFor(s.botID)
	lock.Lock()
	defer lock.Unlock()

	oldSize, err := s.manager.backend.StateSize(ctx, s.botID, key)
	if err != nil {
		return err
	}
	total, err := s.manager.backend.TotalSize(ctx, s.botID)
	if err != nil {
		return err
	}

	newSize := entrySize(key, payload)
	newTotal := total - oldSize + newSize
	if newTotal > s.manager.limit {
		return &QuotaError{BotID: s.botID, Requested: newTotal, Limit: s.manager.limit}
	}

	return s.manager.backend.SetState(ctx, s.botID, key, payload)
}

// Contains reports whether a value exists for key. A missing key is not an
// error; the error return covers backend failures only.
func (s *Store) Contains(ctx context.Context, key string) (bool, error) {
	return s.manager.backend.HasState(ctx, s.botID, key)
}

// TotalSize returns the bot's current total state size in bytes.
func (s *Store) TotalSize(ctx context.Context) (int64, error) {
	return s.manager.backend.TotalSize(ctx, s.botID)
}
