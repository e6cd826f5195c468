package ports

import (
	"context"

	"corrcov/domain/core"
	"corrcov/domain/finemap"
)

// RunRepository persists the journal of correction runs
type RunRepository interface {
	Insert(ctx context.Context, run *finemap.CorrectionRun) error
	GetByID(ctx context.Context, id core.RunID) (*finemap.CorrectionRun, error)
	List(ctx context.Context, limit, offset int) ([]*finemap.CorrectionRun, error)
}
