// Package postgres implements docstore.Store on PostgreSQL. Every collection
// shares one table of (collection, id, data JSONB) rows and filters are
// evaluated on the JSONB document.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/nimburion/crudkit/pkg/docstore"
	storepg "github.com/nimburion/crudkit/pkg/store/postgres"
)

// DefaultTable is the table used when none is configured.
const DefaultTable = "documents"

// timeLayout has a fixed width so that encoded times order lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store is a docstore.Store over a PostgreSQL table. Times are stored as
// fixed-width UTC strings.
type Store struct {
	db    *storepg.PostgreSQLAdapter
	table string
	name  string
	newID func() string
}

var _ docstore.Store = (*Store)(nil)

// New returns a Store persisting into table.
func New(db *storepg.PostgreSQLAdapter, table string) *Store {
	if table == "" {
		table = DefaultTable
	}
	return &Store{
		db:    db,
		table: pq.QuoteIdentifier(table),
		name:  table,
		newID: uuid.NewString,
	}
}

// EnsureSchema creates the document table and its GIN index when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	data JSONB NOT NULL DEFAULT '{}'::jsonb,
	PRIMARY KEY (collection, id)
)`, s.table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (data)",
			pq.QuoteIdentifier(s.name+"_data_gin"), s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return mapError(err, s.name)
		}
	}
	return nil
}

// Capabilities implements docstore.Store.
func (s *Store) Capabilities() docstore.Capabilities {
	return docstore.Capabilities{System: "postgresql", Disjunction: true}
}

// EncodeTime implements docstore.Store.
func (s *Store) EncodeTime(t time.Time) any {
	return t.UTC().Format(timeLayout)
}

// DecodeTime parses values written by EncodeTime.
func (s *Store) DecodeTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val.UTC(), true
	case string:
		if len(val) != len(timeLayout) {
			return time.Time{}, false
		}
		t, err := time.Parse(timeLayout, val)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

// Insert implements docstore.Store.
func (s *Store) Insert(ctx context.Context, collection string, fields map[string]any) (docstore.Document, error) {
	return s.InsertWithID(ctx, collection, s.newID(), fields)
}

// InsertWithID implements docstore.Store.
func (s *Store) InsertWithID(ctx context.Context, collection, id string, fields map[string]any) (docstore.Document, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	raw, err := marshal(fields)
	if err != nil {
		return docstore.Document{}, err
	}
	query := fmt.Sprintf("INSERT INTO %s (collection, id, data) VALUES ($1, $2, $3::jsonb)", s.table)
	if _, err := s.db.ExecContext(ctx, query, collection, id, raw); err != nil {
		return docstore.Document{}, mapError(err, collection+"/"+id)
	}
	return docstore.Document{ID: id, Fields: docstore.CloneFields(fields)}, nil
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, bool, error) {
	query := fmt.Sprintf("SELECT data FROM %s WHERE collection = $1 AND id = $2", s.table)
	return s.getRow(ctx, query, collection, id)
}

func (s *Store) getRow(ctx context.Context, query, collection, id string) (docstore.Document, bool, error) {
	var raw []byte
	err := s.db.QueryRowScan(ctx, query, []any{collection, id}, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Document{}, false, nil
	}
	if err != nil {
		return docstore.Document{}, false, mapError(err, collection+"/"+id)
	}
	fields, err := unmarshal(raw)
	if err != nil {
		return docstore.Document{}, false, err
	}
	return docstore.Document{ID: id, Fields: fields}, true, nil
}

// Update implements docstore.Store. The row is locked, merged in memory and
// written back inside one transaction.
func (s *Store) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	return s.db.WithTransaction(ctx, func(ctx context.Context) error {
		query := fmt.Sprintf("SELECT data FROM %s WHERE collection = $1 AND id = $2 FOR UPDATE", s.table)
		doc, found, err := s.getRow(ctx, query, collection, id)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s/%s", docstore.ErrNotFound, collection, id)
		}
		if len(partial) == 0 {
			return nil
		}
		for key, value := range partial {
			docstore.SetPath(doc.Fields, key, value)
		}
		raw, err := marshal(doc.Fields)
		if err != nil {
			return err
		}
		update := fmt.Sprintf("UPDATE %s SET data = $3::jsonb WHERE collection = $1 AND id = $2", s.table)
		if _, err := s.db.ExecContext(ctx, update, collection, id, raw); err != nil {
			return mapError(err, collection+"/"+id)
		}
		return nil
	})
}

// Remove implements docstore.Store.
func (s *Store) Remove(ctx context.Context, collection, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE collection = $1 AND id = $2", s.table)
	res, err := s.db.ExecContext(ctx, query, collection, id)
	if err != nil {
		return mapError(err, collection+"/"+id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(err, collection+"/"+id)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", docstore.ErrNotFound, collection, id)
	}
	return nil
}

// Query implements docstore.Store.
func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	var anchor *docstore.Document
	if q.StartAfter != "" {
		id, err := q.StartAfter.DocumentID()
		if err != nil {
			return nil, err
		}
		doc, found, err := s.Get(ctx, q.Collection, id)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("%w: cursor document %s no longer exists", docstore.ErrInvalidCursor, id)
		}
		anchor = &doc
	}

	query, args, err := s.selectSQL(q, anchor)
	if err != nil {
		return nil, err
	}
	rows, cancel, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, q.Collection)
	}
	defer cancel()
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, mapError(err, q.Collection)
		}
		fields, err := unmarshal(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, docstore.Document{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, q.Collection)
	}
	return docs, nil
}

// Count implements docstore.Store.
func (s *Store) Count(ctx context.Context, q docstore.Query) (int64, error) {
	query, args, err := s.countSQL(q)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowScan(ctx, query, args, &n); err != nil {
		return 0, mapError(err, q.Collection)
	}
	return n, nil
}

func marshal(fields map[string]any) (string, error) {
	raw, err := json.Marshal(encodeValue(fields))
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(raw), nil
}

func unmarshal(raw []byte) (map[string]any, error) {
	fields := map[string]any{}
	if len(raw) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return fields, nil
}

// encodeValue renders times in the sortable layout before JSON encoding.
func encodeValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(timeLayout)
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.UTC().Format(timeLayout)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = encodeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = encodeValue(item)
		}
		return out
	}
	return v
}

// mapError wraps driver failures with the matching docstore error kind.
func mapError(err error, target string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var kind error
	var pqErr *pq.Error
	switch {
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		kind = docstore.ErrUnavailable
	case errors.As(err, &pqErr):
		switch {
		case pqErr.Code == "23505":
			kind = docstore.ErrAlreadyExists
		case pqErr.Code == "42P01":
			kind = docstore.ErrFailedPrecondition
		case pqErr.Code == "42501", pqErr.Code.Class() == "28":
			kind = docstore.ErrPermissionDenied
		case pqErr.Code.Class() == "53":
			kind = docstore.ErrResourceExhausted
		case pqErr.Code.Class() == "08", pqErr.Code == "57P01", pqErr.Code == "57P03":
			kind = docstore.ErrUnavailable
		case pqErr.Code == "42883", pqErr.Code == "22P02":
			kind = docstore.ErrUnsupported
		}
	}
	if kind == nil {
		return fmt.Errorf("postgresql %s: %w", target, err)
	}
	return fmt.Errorf("%w: %s: %w", kind, target, err)
}
