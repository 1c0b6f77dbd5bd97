package sheets

import (
	"context"

	"kharcha/internal/core"
)

// Mirror is the outbound port the worker writes the expense mirror through.
// Rows are keyed by expense ID so replayed events stay idempotent.
type Mirror interface {
	UpsertExpense(ctx context.Context, e core.Expense, ownerName string) error
	DeleteExpense(ctx context.Context, id int64) error
}
