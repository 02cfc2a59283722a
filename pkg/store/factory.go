package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/nimburion/crudkit/pkg/config"
	"github.com/nimburion/crudkit/pkg/docstore"
	fsdocstore "github.com/nimburion/crudkit/pkg/docstore/firestore"
	"github.com/nimburion/crudkit/pkg/docstore/memory"
	mongodocstore "github.com/nimburion/crudkit/pkg/docstore/mongodb"
	pgdocstore "github.com/nimburion/crudkit/pkg/docstore/postgres"
	"github.com/nimburion/crudkit/pkg/observability/logger"
	"github.com/nimburion/crudkit/pkg/store/firestore"
	"github.com/nimburion/crudkit/pkg/store/mongodb"
	"github.com/nimburion/crudkit/pkg/store/postgres"
)

// Backend couples a document store with the connection behind it.
type Backend struct {
	Store docstore.Store
	// Adapter is nil for the in-memory store.
	Adapter Adapter
}

var _ Adapter = (*Backend)(nil)

// HealthCheck delegates to the connection adapter.
func (b *Backend) HealthCheck(ctx context.Context) error {
	if b.Adapter == nil {
		return nil
	}
	return b.Adapter.HealthCheck(ctx)
}

// Close releases the connection adapter.
func (b *Backend) Close() error {
	if b.Adapter == nil {
		return nil
	}
	return b.Adapter.Close()
}

// NewBackend connects the document store selected by cfg.Type. The postgres
// backend creates its table when missing. No fallback between backends is
// attempted.
func NewBackend(ctx context.Context, cfg config.DatabaseConfig, log logger.Logger) (*Backend, error) {
	if log == nil {
		log = logger.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case config.DatabaseTypeMemory:
		log.Warn("using the in-memory document store; data is lost on restart")
		return &Backend{Store: memory.New()}, nil

	case config.DatabaseTypeFirestore:
		adapter, err := firestore.NewAdapter(ctx, firestore.Config{
			ProjectID:        cfg.ProjectID,
			DatabaseID:       cfg.DatabaseName,
			CredentialsFile:  cfg.CredentialsFile,
			OperationTimeout: cfg.QueryTimeout,
		}, log)
		if err != nil {
			return nil, err
		}
		return &Backend{Store: fsdocstore.New(adapter), Adapter: adapter}, nil

	case config.DatabaseTypeMongoDB:
		adapter, err := mongodb.NewAdapter(mongodb.Config{
			URL:              cfg.URL,
			Database:         cfg.DatabaseName,
			ConnectTimeout:   cfg.ConnectTimeout,
			OperationTimeout: cfg.QueryTimeout,
			MaxPoolSize:      uint64(max(cfg.MaxOpenConns, 0)),
		}, log)
		if err != nil {
			return nil, err
		}
		return &Backend{Store: mongodocstore.New(adapter), Adapter: adapter}, nil

	case config.DatabaseTypePostgres:
		adapter, err := postgres.NewPostgreSQLAdapter(postgres.Config{
			URL:          cfg.URL,
			MaxOpenConns: cfg.MaxOpenConns,
			MaxIdleConns: cfg.MaxIdleConns,
			QueryTimeout: cfg.QueryTimeout,
		}, log)
		if err != nil {
			return nil, err
		}
		s := pgdocstore.New(adapter, cfg.Table)
		if err := s.EnsureSchema(ctx); err != nil {
			_ = adapter.Close()
			return nil, fmt.Errorf("prepare document table: %w", err)
		}
		return &Backend{Store: s, Adapter: adapter}, nil

	default:
		return nil, fmt.Errorf("unsupported database.type %q (supported: %s, %s, %s, %s)", cfg.Type,
			config.DatabaseTypeMemory, config.DatabaseTypeFirestore, config.DatabaseTypeMongoDB, config.DatabaseTypePostgres)
	}
}
