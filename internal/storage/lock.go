package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"FiscalScanner/internal/ports"
)

// AdvisoryLock exposes Postgres session advisory locks. Each acquired lock
// pins a dedicated connection, since pg_advisory_lock is scoped to the
// session that took it and the pool would otherwise hand release to a
// different connection.
type AdvisoryLock struct {
	db *sql.DB

	mu    sync.Mutex
	conns map[int64]*sql.Conn
}

var _ ports.AdvisoryLocker = (*AdvisoryLock)(nil)

// NewAdvisoryLock wires a sql.DB implementation.
func NewAdvisoryLock(db *sql.DB) *AdvisoryLock {
	return &AdvisoryLock{db: db, conns: map[int64]*sql.Conn{}}
}

// TryAcquire attempts the lock without blocking. Exactly one session holds
// a given id at a time; false means another worker already has it.
func (l *AdvisoryLock) TryAcquire(ctx context.Context, lockID int64) (bool, error) {
	if l.db == nil {
		return false, fmt.Errorf("advisory lock has no database")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, held := l.conns[lockID]; held {
		return false, nil
	}

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("checkout connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&acquired); err != nil {
		_ = conn.Close()
		return false, fmt.Errorf("try advisory lock %d: %w", lockID, err)
	}

	if !acquired {
		_ = conn.Close()
		return false, nil
	}

	l.conns[lockID] = conn
	return true, nil
}

// Release unlocks the id and returns its connection to the pool.
func (l *AdvisoryLock) Release(ctx context.Context, lockID int64) error {
	l.mu.Lock()
	conn, held := l.conns[lockID]
	delete(l.conns, lockID)
	l.mu.Unlock()

	if !held {
		return fmt.Errorf("advisory lock %d is not held", lockID)
	}

	var released bool
	err := conn.QueryRowContext(ctx, `SELECT pg_advisory_unlock($1)`, lockID).Scan(&released)
	closeErr := conn.Close()
	if err != nil {
		return fmt.Errorf("advisory unlock %d: %w", lockID, err)
	}
	if closeErr != nil {
		return fmt.Errorf("return connection: %w", closeErr)
	}
	if !released {
		return fmt.Errorf("advisory lock %d was not held by this session", lockID)
	}

	return nil
}
