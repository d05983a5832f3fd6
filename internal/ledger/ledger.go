// Copyright 2026 The Lectern Authors
// SPDX-License-Identifier: MIT

// Package ledger persists content digests of build products across runs.
//
// The ledger is the build tool's only state outside the build directory
// itself: it remembers the hash of what each content-addressed node last
// wrote, so that regenerating byte-identical content does not count as a
// modification and does not cascade rebuilds.
package ledger

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/log"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitemigration"
	"zombiezen.com/go/sqlite/sqlitex"
	"lectern.build/pkg/internal/buildgraph"
)

// Ledger is a SQLite-backed digest store.
// It implements the buildgraph hash ledger interface.
// Callers are responsible for calling [Ledger.Close].
type Ledger struct {
	pool *sqlitemigration.Pool

	// buildID, if set, is stamped on every digest written.
	buildID string
}

var _ buildgraph.HashLedger = (*Ledger)(nil)

// algorithm names the digest function every ledger row uses.
const algorithm = "blake3-256"

// Open returns a ledger backed by the SQLite database at dbPath,
// creating and migrating it as needed.
// Migration happens lazily on first use.
func Open(dbPath string) *Ledger {
	return &Ledger{
		pool: sqlitemigration.NewPool(dbPath, loadSchema(), sqlitemigration.Options{
			Flags:       sqlite.OpenCreate | sqlite.OpenReadWrite,
			PrepareConn: prepareConn,
			OnError: func(err error) {
				log.Errorf(context.Background(), "Ledger migration: %v", err)
			},
		}),
	}
}

// SetBuild records the identifier stamped on subsequent digest writes.
func (l *Ledger) SetBuild(id uuid.UUID) {
	l.buildID = id.String()
}

// Close releases the underlying database connections.
func (l *Ledger) Close() error {
	return l.pool.Close()
}

// Digest returns the recorded digest for key, or nil if none exists.
func (l *Ledger) Digest(ctx context.Context, key string) ([]byte, error) {
	conn, err := l.pool.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: digest for %s: %v", key, err)
	}
	defer l.pool.Put(conn)

	var digest []byte
	err = sqlitex.ExecuteFS(conn, sqlFiles(), "digest.sql", &sqlitex.ExecOptions{
		Named: map[string]any{":key": key, ":algorithm": algorithm},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			digest = make([]byte, stmt.ColumnLen(0))
			stmt.ColumnBytes(0, digest)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: digest for %s: %v", key, err)
	}
	return digest, nil
}

// SetDigest records the digest for key,
// stamping it with the current build identifier and time.
func (l *Ledger) SetDigest(ctx context.Context, key string, digest []byte) error {
	conn, err := l.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("ledger: set digest for %s: %v", key, err)
	}
	defer l.pool.Put(conn)

	err = sqlitex.ExecuteFS(conn, sqlFiles(), "upsert_digest.sql", &sqlitex.ExecOptions{
		Named: map[string]any{
			":key":        key,
			":algorithm":  algorithm,
			":digest":     digest,
			":build_id":   l.buildID,
			":updated_at": time.Now().Unix(),
		},
	})
	if err != nil {
		return fmt.Errorf("ledger: set digest for %s: %v", key, err)
	}
	return nil
}

// Forget removes every digest whose key starts with prefix.
// Forgetting makes the next regeneration of the affected nodes count as
// a modification, which is what a clean build wants.
func (l *Ledger) Forget(ctx context.Context, prefix string) error {
	conn, err := l.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("ledger: forget %s*: %v", prefix, err)
	}
	defer l.pool.Put(conn)

	err = sqlitex.ExecuteFS(conn, sqlFiles(), "forget_digests.sql", &sqlitex.ExecOptions{
		Named: map[string]any{":prefix": prefix},
	})
	if err != nil {
		return fmt.Errorf("ledger: forget %s*: %v", prefix, err)
	}
	return nil
}

func prepareConn(conn *sqlite.Conn) error {
	if err := sqlitex.ExecuteTransient(conn, "PRAGMA journal_mode = wal;", nil); err != nil {
		return err
	}
	return sqlitex.ExecuteTransient(conn, "PRAGMA foreign_keys = on;", nil)
}

//go:embed sql/*.sql
//go:embed sql/schema/*.sql
var rawSQLFiles embed.FS

func sqlFiles() fs.FS {
	sub, err := fs.Sub(rawSQLFiles, "sql")
	if err != nil {
		panic(err)
	}
	return sub
}

var schemaState struct {
	init   sync.Once
	schema sqlitemigration.Schema
	err    error
}

func loadSchema() sqlitemigration.Schema {
	schemaState.init.Do(func() {
		for i := 1; ; i++ {
			migration, err := fs.ReadFile(sqlFiles(), fmt.Sprintf("schema/%02d.sql", i))
			if errors.Is(err, fs.ErrNotExist) {
				break
			}
			if err != nil {
				schemaState.err = err
				return
			}
			schemaState.schema.Migrations = append(schemaState.schema.Migrations, string(migration))
		}
	})

	if schemaState.err != nil {
		panic(schemaState.err)
	}
	return schemaState.schema
}
