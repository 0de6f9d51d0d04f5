// Package store provides storage backends for GutCheck.
//
// It persists conversation state blobs, the append-only committed message
// history, and user profiles. Backends: in-memory (tests/dev), SQLite
// (on-device/dev), PostgreSQL (server deployments), and Redis (session-style
// storage with TTL).
package store

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gutcheck/gutcheck/internal/models"
)

// Store defines the persistence operations used by the conversation core.
// A missing record is (nil, nil) / (empty, nil), never an error.
type Store interface {
	// GetConversationState retrieves the live state for a conversation.
	GetConversationState(conversationID string) (*models.ConversationState, error)

	// SaveConversationState stores or updates the live state for a conversation.
	SaveConversationState(state models.ConversationState) error

	// DeleteConversationState removes the live state for a conversation.
	DeleteConversationState(conversationID string) error

	// ListMessages returns the committed history in commit order.
	ListMessages(conversationID string) ([]models.Message, error)

	// AppendMessage commits one message to the history.
	AppendMessage(conversationID string, msg models.Message) error

	// DeleteMessages removes the committed history for a conversation.
	DeleteMessages(conversationID string) error

	// GetProfile retrieves a user profile, nil when none exists.
	GetProfile(userID string) (*models.Profile, error)

	// SaveProfile stores or updates a user profile.
	SaveProfile(profile models.Profile) error

	// Close releases backend resources.
	Close() error
}

// Opts holds configuration for store backends.
type Opts struct {
	SQLiteDSN   string
	PostgresDSN string
	RedisAddr   string
	RedisDB     int
	RedisTTL    time.Duration
}

// Option configures store construction.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.SQLiteDSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.PostgresDSN = dsn }
}

// WithRedisAddr sets the Redis server address.
func WithRedisAddr(addr string) Option {
	return func(o *Opts) { o.RedisAddr = addr }
}

// WithRedisDB sets the Redis logical database.
func WithRedisDB(db int) Option {
	return func(o *Opts) { o.RedisDB = db }
}

// WithRedisTTL sets the expiry applied to conversation keys in Redis.
func WithRedisTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.RedisTTL = ttl }
}

// DetectDSNType classifies a database DSN as "postgres" or "sqlite".
// PostgreSQL DSNs use URL or key=value form; anything else is treated as a
// SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// NewStore constructs the backend implied by the supplied options, in
// precedence order: Redis, PostgreSQL, SQLite, then in-memory when no
// backend is configured.
func NewStore(options ...Option) (Store, error) {
	var opts Opts
	for _, opt := range options {
		opt(&opts)
	}
	switch {
	case opts.RedisAddr != "":
		slog.Debug("Store.NewStore: selecting Redis backend", "addr", opts.RedisAddr)
		return NewRedisStore(options...)
	case opts.PostgresDSN != "":
		slog.Debug("Store.NewStore: selecting PostgreSQL backend")
		return NewPostgresStore(options...)
	case opts.SQLiteDSN != "":
		slog.Debug("Store.NewStore: selecting SQLite backend", "path", opts.SQLiteDSN)
		return NewSQLiteStore(options...)
	default:
		slog.Debug("Store.NewStore: no backend configured, using in-memory store")
		return NewInMemoryStore(), nil
	}
}

// InMemoryStore is a simple in-memory store, used in tests and as a
// zero-configuration default.
type InMemoryStore struct {
	mu       sync.RWMutex
	states   map[string]models.ConversationState
	messages map[string][]models.Message
	profiles map[string]models.Profile
}

// Ensure InMemoryStore satisfies Store.
var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		states:   make(map[string]models.ConversationState),
		messages: make(map[string][]models.Message),
		profiles: make(map[string]models.Profile),
	}
}

func (s *InMemoryStore) GetConversationState(conversationID string) (*models.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[conversationID]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (s *InMemoryStore) SaveConversationState(state models.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state.UpdatedAt = time.Now()
	s.states[state.ConversationID] = state
	return nil
}

func (s *InMemoryStore) DeleteConversationState(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, conversationID)
	return nil
}

func (s *InMemoryStore) ListMessages(conversationID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[conversationID]
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *InMemoryStore) AppendMessage(conversationID string, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	return nil
}

func (s *InMemoryStore) DeleteMessages(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, conversationID)
	return nil
}

func (s *InMemoryStore) GetProfile(userID string) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *InMemoryStore) SaveProfile(profile models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.UserID] = profile
	return nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
