// Package session remembers sessions opened against a remote end so the CLI
// can address them by id. Only the redis store keeps them across
// invocations; the memory store lives as long as the process.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pitabwire/wiredriver/internal/config"
	"github.com/pitabwire/wiredriver/internal/observability"
	"github.com/pitabwire/wiredriver/model"
)

const defaultRedisAddr = "127.0.0.1:6379"

// Record describes one open session.
type Record struct {
	ID           string         `json:"id"`
	RemoteURL    string         `json:"remote_url"`
	Level        string         `json:"level"`
	Capabilities map[string]any `json:"capabilities,omitempty"`
	WebSocketURL string         `json:"websocket_url,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// FromResult builds a Record from a newSession response. W3C remote ends
// nest the capabilities under value; legacy ones return them as value.
func FromResult(result model.ExecutionResult, remoteURL string, level model.Level) (Record, error) {
	if result.SessionID == "" {
		return Record{}, fmt.Errorf("session: response carries no session id")
	}
	value := result.ValueMap()
	caps, ok := value["capabilities"].(map[string]any)
	if !ok {
		caps = value
	}
	ws, _ := caps["webSocketUrl"].(string)
	return Record{
		ID:           result.SessionID,
		RemoteURL:    remoteURL,
		Level:        level.String(),
		Capabilities: caps,
		WebSocketURL: ws,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// Store persists session records.
type Store interface {
	// Get returns the record for id. found is false when there is none.
	Get(ctx context.Context, id string) (rec Record, found bool, err error)
	Save(ctx context.Context, rec Record) error
	Delete(ctx context.Context, id string) error
	// List returns every live record, oldest first.
	List(ctx context.Context) ([]Record, error)
	HealthCheck(ctx context.Context) error
}

// New builds the store selected by cfg. The redis address is read through
// getenv from cfg.AddrEnv. Driver "auto" uses redis when that address is set
// and memory otherwise.
func New(cfg config.SessionConfig, getenv func(string) string, metrics *observability.Metrics) (Store, error) {
	addr := ""
	if cfg.AddrEnv != "" && getenv != nil {
		addr = getenv(cfg.AddrEnv)
	}

	driver := cfg.Driver
	if driver == "auto" {
		driver = "memory"
		if addr != "" {
			driver = "redis"
		}
	}

	var s Store
	switch driver {
	case "", "memory":
		s = NewMemoryStore(cfg.TTL)
	case "redis":
		if addr == "" {
			addr = defaultRedisAddr
		}
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
		s = NewRedisStore(client, cfg.KeyPrefix, cfg.TTL)
	default:
		return nil, fmt.Errorf("session: unknown driver %q", cfg.Driver)
	}
	if metrics != nil {
		s = Instrument(s, metrics)
	}
	return s, nil
}

func sortRecords(recs []Record) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
}

// --- MemoryStore ---

// MemoryStore keeps records in process memory. A zero ttl never expires.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memEntry
	ttl     time.Duration
	now     func() time.Time
}

type memEntry struct {
	rec       Record
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) expired(e *memEntry) bool {
	return !e.expiresAt.IsZero() && s.now().After(e.expiresAt)
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (Record, bool, error) {
	s.mu.RLock()
	entry, exists := s.entries[id]
	s.mu.RUnlock()

	if !exists {
		return Record{}, false, nil
	}
	if s.expired(entry) {
		s.mu.Lock()
		delete(s.entries, id)
		s.mu.Unlock()
		return Record{}, false, nil
	}
	return entry.rec, true, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("session: record id is required")
	}
	entry := &memEntry{rec: rec}
	if s.ttl > 0 {
		entry.expiresAt = s.now().Add(s.ttl)
	}

	s.mu.Lock()
	s.entries[rec.ID] = entry
	s.mu.Unlock()
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	return nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, len(s.entries))
	for id, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, id)
			continue
		}
		out = append(out, e.rec)
	}
	sortRecords(out)
	return out, nil
}

// HealthCheck implements Store.
func (s *MemoryStore) HealthCheck(context.Context) error { return nil }

// --- RedisStore ---

// RedisStore keeps records in Redis under prefix+id with a TTL.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client redis.Cmdable, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, id string) (Record, bool, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("session: redis get %q: %w", id, err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, false, fmt.Errorf("session: unmarshal record %q: %w", id, err)
	}
	return rec, true, nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("session: record id is required")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("session: marshal record: %w", err)
	}
	if err := s.client.Set(ctx, s.key(rec.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("session: redis set %q: %w", rec.ID, err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("session: redis del %q: %w", id, err)
	}
	return nil
}

// List implements Store.
func (s *RedisStore) List(ctx context.Context) ([]Record, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("session: redis scan: %w", err)
	}
	if len(keys) == 0 {
		return []Record{}, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("session: redis mget: %w", err)
	}
	out := make([]Record, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// expired between SCAN and MGET
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("session: unmarshal record %q: %w", keys[i], err)
		}
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}

// HealthCheck implements Store.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("session: redis ping: %w", err)
	}
	return nil
}

// --- instrumentation ---

type instrumented struct {
	next    Store
	metrics *observability.Metrics
}

// Instrument records the outcome of every store operation.
func Instrument(s Store, m *observability.Metrics) Store {
	return &instrumented{next: s, metrics: m}
}

func (s *instrumented) observe(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordSessionStoreOp(op, status)
}

func (s *instrumented) Get(ctx context.Context, id string) (Record, bool, error) {
	rec, found, err := s.next.Get(ctx, id)
	s.observe("get", err)
	return rec, found, err
}

func (s *instrumented) Save(ctx context.Context, rec Record) error {
	err := s.next.Save(ctx, rec)
	s.observe("save", err)
	return err
}

func (s *instrumented) Delete(ctx context.Context, id string) error {
	err := s.next.Delete(ctx, id)
	s.observe("delete", err)
	return err
}

func (s *instrumented) List(ctx context.Context) ([]Record, error) {
	recs, err := s.next.List(ctx)
	s.observe("list", err)
	return recs, err
}

func (s *instrumented) HealthCheck(ctx context.Context) error {
	return s.next.HealthCheck(ctx)
}
