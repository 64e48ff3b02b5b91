package audit

import (
	"context"

	"github.com/aussiebroadwan/authgate/internal/authgate/domain"
	"github.com/aussiebroadwan/authgate/internal/authgate/store"
)

// StoreSink appends events to the audit_events table.
type StoreSink struct {
	Store store.Store
	Retry store.RetryPolicy
}

func (s *StoreSink) Name() string { return "store" }

func (s *StoreSink) Write(ctx context.Context, e domain.AuditEvent) error {
	return store.Retry(ctx, s.Retry, func(ctx context.Context) error {
		return s.Store.Audit().Append(ctx, e)
	})
}
