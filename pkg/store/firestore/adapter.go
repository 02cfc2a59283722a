// Package firestore manages the Cloud Firestore client backing the firestore
// document store.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/nimburion/crudkit/pkg/observability/logger"
)

// ErrClosed is returned by operations on a closed Adapter.
var ErrClosed = errors.New("firestore adapter is closed")

// Config holds Firestore client configuration.
type Config struct {
	ProjectID string
	// DatabaseID selects a named database. Empty means the default database.
	DatabaseID       string
	CredentialsFile  string
	OperationTimeout time.Duration
}

// Adapter owns a Firestore client.
type Adapter struct {
	client  *firestore.Client
	logger  logger.Logger
	timeout time.Duration
	mu      sync.RWMutex
	closed  bool
}

// NewAdapter creates a Firestore client. Credentials come from
// CredentialsFile when set, otherwise from Application Default Credentials or
// FIRESTORE_EMULATOR_HOST.
func NewAdapter(ctx context.Context, cfg Config, log logger.Logger) (*Adapter, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firestore project id is required")
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 10 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	var (
		client *firestore.Client
		err    error
	)
	if cfg.DatabaseID != "" {
		client, err = firestore.NewClientWithDatabase(ctx, cfg.ProjectID, cfg.DatabaseID, opts...)
	} else {
		client, err = firestore.NewClient(ctx, cfg.ProjectID, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	log.Info("Firestore client created", "project_id", cfg.ProjectID, "database_id", cfg.DatabaseID)
	return NewAdapterFromClient(client, cfg.OperationTimeout, log), nil
}

// NewAdapterFromClient wraps an existing client.
func NewAdapterFromClient(client *firestore.Client, timeout time.Duration, log logger.Logger) *Adapter {
	if log == nil {
		log = logger.Nop()
	}
	return &Adapter{client: client, logger: log, timeout: timeout}
}

// Client returns the underlying Firestore client.
func (a *Adapter) Client() *firestore.Client {
	return a.client
}

// HealthCheck lists at most one root collection to confirm the backend
// answers with the configured credentials.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	a.mu.RLock()
	closed := a.closed
	a.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	hcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := a.client.Collections(hcCtx).Next()
	if err != nil && !errors.Is(err, iterator.Done) {
		a.logger.Error("Firestore health check failed", "error", err)
		return fmt.Errorf("firestore health check failed: %w", err)
	}
	return nil
}

// Close releases the client. It is idempotent.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	if err := a.client.Close(); err != nil {
		return fmt.Errorf("failed to close firestore client: %w", err)
	}
	a.logger.Info("Firestore client closed")
	return nil
}

// WithOperationTimeout bounds ctx by the configured operation timeout unless
// the caller already set a deadline.
func (a *Adapter) WithOperationTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.timeout)
}
