package ports

import (
	"context"

	"github.com/ghalamif/CaptureFlow/internal/domain"
)

// Catalog keeps a durable index of runs and their per-sensor outcomes.
type Catalog interface {
	BeginSession(ctx context.Context, s *domain.RunSession) error
	FinishSession(ctx context.Context, s *domain.RunSession) error
	Close() error
}
