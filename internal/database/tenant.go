package database

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// TenantScope pins a single pooled connection and sets the session variables
// the storage layer's row-level-security policies key on. Every data access
// for a job must go through DB() so the policies apply; Release must run on
// every exit path because the connection returns to the pool.
type TenantScope struct {
	conn     bun.Conn
	released bool
}

// EnterTenantScope acquires a connection and establishes the
// (organization, project) session context on it.
func EnterTenantScope(ctx context.Context, db *bun.DB, organizationID, projectID string) (*TenantScope, error) {
	if organizationID == "" || projectID == "" {
		return nil, fmt.Errorf("tenant scope requires organization and project ids")
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "SET app.current_organization_id = ?", organizationID); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set organization context: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "SET app.current_project_id = ?", projectID); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set project context: %w", err)
	}

	return &TenantScope{conn: conn}, nil
}

// DB returns the scoped connection. Valid until Release.
func (s *TenantScope) DB() bun.IDB {
	return s.conn
}

// Release resets the session variables and returns the connection to the
// pool. Safe to call more than once.
func (s *TenantScope) Release(ctx context.Context) error {
	if s.released {
		return nil
	}
	s.released = true

	// Reset before the connection is reused by another tenant.
	_, resetErr := s.conn.ExecContext(ctx, "RESET app.current_organization_id; RESET app.current_project_id")
	closeErr := s.conn.Close()
	if resetErr != nil {
		return fmt.Errorf("reset tenant context: %w", resetErr)
	}
	return closeErr
}
