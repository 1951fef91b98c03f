package usecase

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/example/trustlens/internal/logging"
)

// CredentialStore persists the single inference credential.
type CredentialStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, value string) error
}

// CredentialSource is what a session needs from the credential service.
type CredentialSource interface {
	Current() string
	Save(ctx context.Context, value string) (bool, error)
}

// CredentialService holds the process-wide credential. It is loaded once at
// startup and only changes through Save.
type CredentialService struct {
	mu          sync.RWMutex
	store       CredentialStore
	current     string
	fromDefault bool
	logger      *zap.Logger
}

// NewCredentialService resolves the startup credential: a non-blank injected
// default wins, then whatever the store holds, then empty.
func NewCredentialService(ctx context.Context, store CredentialStore, injected string, logger *zap.Logger) (*CredentialService, error) {
	svc := &CredentialService{store: store, logger: logger.Named("credential_service")}

	if injected = strings.TrimSpace(injected); injected != "" {
		svc.current = injected
		svc.fromDefault = true
		return svc, nil
	}

	persisted, err := store.Load(ctx)
	if err != nil {
		return nil, logging.NewOperationError("credential.load", "", err)
	}
	svc.current = strings.TrimSpace(persisted)
	if svc.current == "" {
		svc.logger.Info("no credential configured; sessions will prompt for one")
	}
	return svc, nil
}

// Current returns the credential in effect.
func (s *CredentialService) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// FromDefault reports whether the current value came from injection rather than the store.
func (s *CredentialService) FromDefault() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fromDefault
}

// Save persists the trimmed value and makes it current. Blank input is ignored
// and reported as not saved.
func (s *CredentialService) Save(ctx context.Context, value string) (bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return false, nil
	}

	if err := s.store.Save(ctx, value); err != nil {
		return false, logging.NewOperationError("credential.save", "", err)
	}

	s.mu.Lock()
	s.current = value
	s.fromDefault = false
	s.mu.Unlock()

	s.logger.Info("credential saved", logging.KeyPrefix(value))
	return true, nil
}
