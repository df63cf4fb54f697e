package cache

import (
	"context"
	"time"

	"amanteigados/backend/internal/domain"
)

// ReportCache holds the computed ledger summary between reads. Every
// ledger mutation invalidates it.
type ReportCache interface {
	GetSummary(ctx context.Context) (*domain.LedgerSummary, bool, error)
	SetSummary(ctx context.Context, summary *domain.LedgerSummary, ttl time.Duration) error
	InvalidateSummary(ctx context.Context) error
}

type NoopReportCache struct{}

func (NoopReportCache) GetSummary(_ context.Context) (*domain.LedgerSummary, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) SetSummary(_ context.Context, _ *domain.LedgerSummary, _ time.Duration) error {
	return nil
}

func (NoopReportCache) InvalidateSummary(_ context.Context) error {
	return nil
}
