// Package gormstore implements registry/store.HistoryStore over GORM. The
// postgres and sqlite plugins open the database and supply a Dialect for the
// few statements that differ between them.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	registrystore "github.com/chirino/clinical-history/internal/registry/store"
	"gorm.io/gorm"
)

// Dialect covers the database-specific parts of the store.
type Dialect interface {
	Name() string
	// TagsOverlap returns a condition that is true when the JSON array in
	// column shares at least one element with a single bound []string.
	TagsOverlap(column string) string
	// IsUniqueViolation reports whether err is a unique index violation.
	IsUniqueViolation(err error) bool
}

// Store implements registrystore.HistoryStore.
type Store struct {
	db      *gorm.DB
	dialect Dialect
}

var _ registrystore.HistoryStore = (*Store)(nil)

// New returns a Store over an open connection.
func New(db *gorm.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// NowUTC is used as the GORM clock and for every timestamp the store writes.
// Keeping all stored times in UTC lets sqlite compare them as text.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// DB exposes the underlying connection, mainly for tests.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func requireTenant(scope registrystore.Scope) error {
	if scope.TenantID == "" {
		return &registrystore.ValidationError{Field: "tenantId", Message: "tenant is required"}
	}
	return nil
}

// live restricts a query to non-deleted rows of the caller's tenant and, when
// the scope names a user, to rows that user created.
func live(tx *gorm.DB, scope registrystore.Scope) *gorm.DB {
	tx = tx.Where("tenant_id = ? AND deleted_at IS NULL", scope.TenantID)
	if scope.UserID != "" {
		tx = tx.Where("created_by = ?", scope.UserID)
	}
	return tx
}

// tenantOnly drops the owner filter, for child rows reached through a
// conversation the caller was already checked against.
func tenantOnly(scope registrystore.Scope) registrystore.Scope {
	return registrystore.Scope{TenantID: scope.TenantID}
}

func touched(scope registrystore.Scope, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"updated_at": now,
		"updated_by": scope.UserID,
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func (s *Store) writeErr(err error, what string, conflict string) error {
	if s.dialect.IsUniqueViolation(err) {
		return &registrystore.ConflictError{Message: conflict}
	}
	return fmt.Errorf("failed to %s: %w", what, err)
}
