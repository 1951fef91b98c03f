package usecase

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/trustlens/internal/inference"
	"github.com/example/trustlens/internal/logging"
)

// ErrSessionNotFound is returned for unknown ids and for sessions owned by someone else.
var ErrSessionNotFound = errors.New("session not found")

// SessionRegistry keeps the live sessions of the process.
type SessionRegistry struct {
	analyzer    inference.Analyzer
	credentials CredentialSource
	metrics     *Metrics
	logger      *zap.Logger
	newID       func() string

	mu       sync.RWMutex
	sessions map[string]*SessionController
}

// NewSessionRegistry constructs an empty registry. Its sessions share one
// analyzer, credential source and metrics accumulator.
func NewSessionRegistry(analyzer inference.Analyzer, credentials CredentialSource, metrics *Metrics, logger *zap.Logger) *SessionRegistry {
	return &SessionRegistry{
		analyzer:    analyzer,
		credentials: credentials,
		metrics:     metrics,
		logger:      logger.Named("session_registry"),
		newID:       uuid.NewString,
		sessions:    make(map[string]*SessionController),
	}
}

// Create starts a new empty session for owner.
func (r *SessionRegistry) Create(owner string) *SessionController {
	id := r.newID()
	session := NewSessionController(id, owner, r.analyzer, r.credentials, r.metrics, r.logger)

	r.mu.Lock()
	r.sessions[id] = session
	r.mu.Unlock()

	logging.WithOperation(r.logger, "registry.create", id).Info("session created", zap.String("owner", owner))
	return session
}

// Get returns the session with id if owner holds it.
func (r *SessionRegistry) Get(owner, id string) (*SessionController, error) {
	r.mu.RLock()
	session, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok || session.Owner() != owner {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Delete drops a session. Any in-flight analysis for it is discarded.
func (r *SessionRegistry) Delete(owner, id string) error {
	r.mu.Lock()
	session, ok := r.sessions[id]
	if !ok || session.Owner() != owner {
		r.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	r.mu.Unlock()

	session.Reset()
	logging.WithOperation(r.logger, "registry.delete", id).Info("session deleted")
	return nil
}

// Metrics returns the aggregated analysis outcomes of all sessions.
func (r *SessionRegistry) Metrics() *MetricsSummary {
	return r.metrics.Summary()
}

// Len reports the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
