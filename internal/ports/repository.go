package ports

import (
	"context"

	"signalTrader/internal/domain"
)

// AuditRepository defines the interface for the append-only signal audit log.
type AuditRepository interface {
	// Append durably stores one audit record. Records are never updated or
	// deleted afterwards.
	Append(ctx context.Context, rec *domain.AuditRecord) error

	// FindRecent retrieves the most recent records, newest first, up to limit.
	FindRecent(ctx context.Context, limit int) ([]*domain.AuditRecord, error)
}
