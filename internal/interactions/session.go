package interactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Session is one scoped unit of work against the store. It must be closed;
// Close rolls back anything that was not committed.
type Session struct {
	tx     *sql.Tx
	rebind func(string) string
	done   bool
}

// Active reports whether the session can still be used.
func (s *Session) Active() bool {
	return s != nil && s.tx != nil && !s.done
}

// Commit makes the session's changes durable and ends it.
func (s *Session) Commit() error {
	if !s.Active() {
		return ErrSessionInactive
	}
	s.done = true
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("committing interaction session: %w", err)
	}
	return nil
}

// Rollback discards the session's changes and ends it.
func (s *Session) Rollback() error {
	if !s.Active() {
		return ErrSessionInactive
	}
	s.done = true
	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rolling back interaction session: %w", err)
	}
	return nil
}

// Close ends the session, rolling back if it is still active. It is safe to
// call more than once.
func (s *Session) Close() error {
	if !s.Active() {
		return nil
	}
	return s.Rollback()
}

func (s *Session) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if !s.Active() {
		return nil, ErrSessionInactive
	}
	return s.tx.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Session) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if !s.Active() {
		return nil, ErrSessionInactive
	}
	return s.tx.QueryContext(ctx, s.rebind(query), args...)
}
