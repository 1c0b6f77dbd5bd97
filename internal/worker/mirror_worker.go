package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"kharcha/internal/amqp"
	"kharcha/internal/core"
	"kharcha/internal/sheets"
	"kharcha/internal/storage"
)

// MirrorWorker keeps the Google Sheets mirror in step with the expense
// database by applying the change events the web process publishes.
type MirrorWorker struct {
	storage *storage.SQLiteRepository
	mirror  sheets.Mirror
}

func NewMirrorWorker(storage *storage.SQLiteRepository, mirror sheets.Mirror) *MirrorWorker {
	return &MirrorWorker{
		storage: storage,
		mirror:  mirror,
	}
}

// HandleEvent applies one expense event to the mirror.
func (w *MirrorWorker) HandleEvent(ctx context.Context, msg *amqp.ExpenseEventMessage) error {
	slog.InfoContext(ctx, "Processing expense event",
		"id", msg.ID,
		"action", msg.Action)

	switch msg.Action {
	case amqp.ActionDelete:
		return w.handleDelete(ctx, msg.ID)
	case amqp.ActionUpsert:
		return w.handleUpsert(ctx, msg.ID)
	default:
		return fmt.Errorf("unknown action: %s", msg.Action)
	}
}

func (w *MirrorWorker) handleUpsert(ctx context.Context, id int64) error {
	expense, err := w.storage.GetExpense(ctx, id)
	if err != nil {
		// The expense can be gone by the time the event arrives. Treat it
		// as a delete so the mirror converges anyway.
		if errors.Is(err, core.ErrNotFound) {
			slog.WarnContext(ctx, "Expense vanished before mirroring, removing row", "id", id)
			return w.handleDelete(ctx, id)
		}
		return fmt.Errorf("get expense from storage: %w", err)
	}

	ownerName := w.ownerName(ctx, expense.UserID)

	if err := w.mirror.UpsertExpense(ctx, *expense, ownerName); err != nil {
		return fmt.Errorf("upsert mirror row: %w", err)
	}
	return nil
}

func (w *MirrorWorker) handleDelete(ctx context.Context, id int64) error {
	if err := w.mirror.DeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("delete mirror row: %w", err)
	}
	return nil
}

func (w *MirrorWorker) ownerName(ctx context.Context, userID int64) string {
	user, err := w.storage.GetUserByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			slog.WarnContext(ctx, "Failed to resolve expense owner",
				"user_id", userID, "error", err)
		}
		return "Deleted user"
	}
	return user.FullName
}

// Resync replays every stored expense into the mirror. Useful at startup to
// recover from missed events or a fresh spreadsheet.
func (w *MirrorWorker) Resync(ctx context.Context) error {
	expenses, err := w.storage.ListExpensesForUsers(ctx, nil, nil)
	if err != nil {
		return fmt.Errorf("list expenses: %w", err)
	}

	if len(expenses) == 0 {
		slog.InfoContext(ctx, "No expenses to resync")
		return nil
	}

	synced := 0
	failed := 0
	for _, e := range expenses {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.mirror.UpsertExpense(ctx, e, w.ownerName(ctx, e.UserID)); err != nil {
			slog.ErrorContext(ctx, "Failed to resync expense", "id", e.ID, "error", err)
			failed++
			continue
		}
		synced++
	}

	slog.InfoContext(ctx, "Resync completed",
		"total", len(expenses),
		"synced", synced,
		"errors", failed)
	return nil
}
