// Package scylla implements store.Store on ScyllaDB or Cassandra.
//
// The base table and every secondary index are materialized as their own
// wide-row table (pk, sk, id, doc), clustered by sk so a partition reads back
// in sort key order. Items are kept as JSON documents.
package scylla

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gocql/gocql"

	"github.com/DeafMist/diet-digest/backend/internal/keys"
	"github.com/DeafMist/diet-digest/backend/internal/store"
)

// Executor runs CQL statements. SessionExecutor is the gocql implementation.
type Executor interface {
	// One returns the single doc column of the first row, or false when there is none.
	One(ctx context.Context, stmt string, args ...any) (string, bool, error)
	// Docs returns the doc column of every row.
	Docs(ctx context.Context, stmt string, args ...any) ([]string, error)
	Exec(ctx context.Context, stmt string, args ...any) error
}

// SessionExecutor runs statements on a gocql session.
type SessionExecutor struct {
	Session *gocql.Session
}

// Connect opens a session on hosts with the given keyspace.
func Connect(hosts []string, keyspace string) (*SessionExecutor, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.LocalQuorum
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("create scylla session: %w", err)
	}
	return &SessionExecutor{Session: session}, nil
}

// One implements Executor.
func (e *SessionExecutor) One(ctx context.Context, stmt string, args ...any) (string, bool, error) {
	var doc string
	if err := e.Session.Query(stmt, args...).WithContext(ctx).Scan(&doc); err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return doc, true, nil
}

// Docs implements Executor.
func (e *SessionExecutor) Docs(ctx context.Context, stmt string, args ...any) ([]string, error) {
	iter := e.Session.Query(stmt, args...).WithContext(ctx).Iter()
	var (
		docs []string
		doc  string
	)
	for iter.Scan(&doc) {
		docs = append(docs, doc)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return docs, nil
}

// Exec implements Executor.
func (e *SessionExecutor) Exec(ctx context.Context, stmt string, args ...any) error {
	return e.Session.Query(stmt, args...).WithContext(ctx).Exec()
}

// Close releases the session.
func (e *SessionExecutor) Close() {
	e.Session.Close()
}

// Store reads the article tables.
type Store struct {
	db     Executor
	table  string
	schema keys.Schema
	log    *slog.Logger
}

// New builds a Store whose base table is named table.
func New(db Executor, table string, schema keys.Schema, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{db: db, table: table, schema: schema, log: logger}
}

// TableFor returns the table backing an index. The empty name is the base table.
func (s *Store) TableFor(index string) string {
	if index == "" {
		return s.table
	}
	return s.table + "_" + strings.ToLower(index)
}

// EnsureSchema creates the base and index tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	tables := []string{s.TableFor("")}
	for name := range s.schema.Indexes {
		tables = append(tables, s.TableFor(name))
	}
	for _, t := range tables {
		stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	pk text,
	sk text,
	id text,
	doc text,
	PRIMARY KEY (pk, sk, id)
) WITH CLUSTERING ORDER BY (sk ASC, id ASC)`, t)
		if err := s.db.Exec(ctx, stmt); err != nil {
			return store.Unavailable("create table "+t, err)
		}
	}
	return nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, key keys.Key) (store.Item, bool, error) {
	stmt := fmt.Sprintf(`SELECT doc FROM %s WHERE pk = ? AND sk = ? LIMIT 1`, s.TableFor(""))
	doc, ok, err := s.db.One(ctx, stmt, key.PK, key.SK)
	if err != nil {
		return nil, false, store.Unavailable("select item", err)
	}
	if !ok {
		return nil, false, nil
	}
	item, err := decode(doc)
	if err != nil {
		return nil, false, fmt.Errorf("decode item %s: %w", key.PK, err)
	}
	return item, true, nil
}

// Query implements store.Store. One extra row is read to learn whether the
// partition holds more; the cursor is then the number of items returned.
func (s *Store) Query(ctx context.Context, in store.QueryInput) (*store.Page, error) {
	if _, err := s.schema.Lookup(in.Index); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	order := "DESC"
	if in.Forward {
		order = "ASC"
	}
	stmt := fmt.Sprintf(`SELECT doc FROM %s WHERE pk = ? ORDER BY sk %s, id %s`, s.TableFor(in.Index), order, order)
	args := []any{in.Partition}
	if in.Limit > 0 {
		stmt += ` LIMIT ?`
		args = append(args, in.Limit+1)
	}

	docs, err := s.db.Docs(ctx, stmt, args...)
	if err != nil {
		return nil, store.Unavailable("select partition", err)
	}

	page := &store.Page{}
	if in.Limit > 0 && len(docs) > in.Limit {
		docs = docs[:in.Limit]
		page.Cursor = strconv.Itoa(in.Limit)
	}
	page.Items = make([]store.Item, 0, len(docs))
	for _, doc := range docs {
		item, err := decode(doc)
		if err != nil {
			s.log.Warn("skip undecodable row", slog.String("partition", in.Partition), slog.Any("err", err))
			continue
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

// PutItems writes every item to the base table and to each index it belongs to.
func (s *Store) PutItems(ctx context.Context, items []store.Item) error {
	table := s.schema.Table
	for _, item := range items {
		pk, sk := item.String(table.PartitionAttr), item.String(table.SortAttr)
		if pk == "" || sk == "" {
			return fmt.Errorf("item has no primary key")
		}
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshal item %s: %w", pk, err)
		}
		id := pk + "|" + sk

		if err := s.insert(ctx, s.TableFor(""), pk, sk, id, string(data)); err != nil {
			return err
		}
		for name, spec := range s.schema.Indexes {
			ipk, okP := item[spec.PartitionAttr].(string)
			isk, okS := item[spec.SortAttr].(string)
			if !okP || !okS {
				continue
			}
			if err := s.insert(ctx, s.TableFor(name), ipk, isk, id, string(data)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) insert(ctx context.Context, table, pk, sk, id, doc string) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (pk, sk, id, doc) VALUES (?, ?, ?, ?)`, table)
	if err := s.db.Exec(ctx, stmt, pk, sk, id, doc); err != nil {
		return store.Unavailable("insert "+table, err)
	}
	return nil
}

func decode(doc string) (store.Item, error) {
	var item store.Item
	if err := json.Unmarshal([]byte(doc), &item); err != nil {
		return nil, err
	}
	if item == nil {
		return nil, errors.New("row is not an object")
	}
	return item, nil
}
