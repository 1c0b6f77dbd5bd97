package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"kharcha/internal/amqp"
	"kharcha/internal/core"
	"kharcha/internal/storage"
)

// ExpenseService orchestrates expense operations across SQLite and AMQP.
// Writes go to SQLite first; change events are published best effort so the
// mirror worker can pick them up.
type ExpenseService struct {
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
}

func NewExpenseService(storage *storage.SQLiteRepository, amqpClient *amqp.Client) *ExpenseService {
	return &ExpenseService{
		storage:    storage,
		amqpClient: amqpClient,
	}
}

// Create records a new expense owned by the acting user.
func (s *ExpenseService) Create(ctx context.Context, actor *core.User, e core.Expense) (int64, error) {
	if actor == nil {
		return 0, core.ErrUnauthorized
	}

	e.UserID = actor.ID
	if err := e.Validate(); err != nil {
		return 0, err
	}

	id, err := s.storage.CreateExpense(ctx, e)
	if err != nil {
		return 0, fmt.Errorf("save expense: %w", err)
	}

	s.publishUpsert(ctx, id)
	return id, nil
}

// Get returns a single expense. Any signed-in user may read any expense,
// the household sees everything in the combined view anyway.
func (s *ExpenseService) Get(ctx context.Context, actor *core.User, id int64) (*core.Expense, error) {
	if actor == nil {
		return nil, core.ErrUnauthorized
	}
	return s.storage.GetExpense(ctx, id)
}

// Update rewrites an expense. Only the owner may edit; the owner cannot be
// reassigned.
func (s *ExpenseService) Update(ctx context.Context, actor *core.User, e core.Expense) error {
	existing, err := s.requireOwner(ctx, actor, e.ID)
	if err != nil {
		return err
	}

	e.UserID = existing.UserID
	if err := e.Validate(); err != nil {
		return err
	}

	if err := s.storage.UpdateExpense(ctx, e); err != nil {
		return fmt.Errorf("update expense: %w", err)
	}

	s.publishUpsert(ctx, e.ID)
	return nil
}

// Delete removes an expense. Only the owner may delete.
func (s *ExpenseService) Delete(ctx context.Context, actor *core.User, id int64) error {
	if _, err := s.requireOwner(ctx, actor, id); err != nil {
		return err
	}

	if err := s.storage.DeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}

	s.publishDelete(ctx, id)
	return nil
}

func (s *ExpenseService) requireOwner(ctx context.Context, actor *core.User, id int64) (*core.Expense, error) {
	if actor == nil {
		return nil, core.ErrUnauthorized
	}

	existing, err := s.storage.GetExpense(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.UserID != actor.ID {
		return nil, core.ErrForbidden
	}
	return existing, nil
}

// List returns the acting user's expenses, newest first.
func (s *ExpenseService) List(ctx context.Context, actor *core.User, filter storage.ExpenseFilter) ([]core.Expense, error) {
	if actor == nil {
		return nil, core.ErrUnauthorized
	}
	return s.storage.ListExpenses(ctx, actor.ID, filter)
}

// ListAll returns every user's expenses in the range, newest first. Records
// of deleted users are included.
func (s *ExpenseService) ListAll(ctx context.Context, rng *core.DateRange) ([]core.Expense, error) {
	return s.storage.ListExpensesForUsers(ctx, nil, rng)
}

// Summary aggregates one user's spending over an optional range.
func (s *ExpenseService) Summary(ctx context.Context, userID int64, rng *core.DateRange) (core.Summary, error) {
	expenses, err := s.storage.ListExpenses(ctx, userID, storage.ExpenseFilter{Range: rng})
	if err != nil {
		return core.Summary{}, fmt.Errorf("list expenses: %w", err)
	}
	return core.Summarize(expenses, rng), nil
}

// Breakdown returns one user's per-category totals over an optional range,
// largest first.
func (s *ExpenseService) Breakdown(ctx context.Context, userID int64, rng *core.DateRange) ([]core.CategoryAmount, error) {
	expenses, err := s.storage.ListExpenses(ctx, userID, storage.ExpenseFilter{Range: rng})
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return core.BreakdownByCategory(expenses), nil
}

// DailySeries returns continuous per-day totals for one user over a range.
func (s *ExpenseService) DailySeries(ctx context.Context, userID int64, rng core.DateRange) ([]core.SeriesPoint, error) {
	expenses, err := s.storage.ListExpenses(ctx, userID, storage.ExpenseFilter{Range: &rng})
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return core.DailySeries(expenses, rng), nil
}

// MonthlySeries returns up to limit recent months of one user's totals,
// newest first.
func (s *ExpenseService) MonthlySeries(ctx context.Context, userID int64, limit int) ([]core.SeriesPoint, error) {
	expenses, err := s.storage.ListExpenses(ctx, userID, storage.ExpenseFilter{})
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return core.MonthlySeries(expenses, limit), nil
}

// Comparison aggregates all users' spending side by side over an optional
// range. Deleted users' records still count, under a placeholder name.
func (s *ExpenseService) Comparison(ctx context.Context, rng *core.DateRange) (core.Comparison, error) {
	expenses, err := s.storage.ListExpensesForUsers(ctx, nil, rng)
	if err != nil {
		return core.Comparison{}, fmt.Errorf("list expenses: %w", err)
	}

	users, err := s.storage.ListUsers(ctx)
	if err != nil {
		return core.Comparison{}, fmt.Errorf("list users: %w", err)
	}

	names := make(map[int64]string, len(users))
	for _, u := range users {
		names[u.ID] = u.FullName
	}

	return core.CompareUsers(expenses, names), nil
}

func (s *ExpenseService) publishUpsert(ctx context.Context, id int64) {
	if s.amqpClient == nil {
		return
	}
	// Don't fail the request, the expense is saved locally.
	if err := s.amqpClient.PublishExpenseUpsert(ctx, id); err != nil {
		slog.ErrorContext(ctx, "Failed to publish expense event",
			"id", id, "error", err)
	}
}

func (s *ExpenseService) publishDelete(ctx context.Context, id int64) {
	if s.amqpClient == nil {
		return
	}
	if err := s.amqpClient.PublishExpenseDelete(ctx, id); err != nil {
		slog.ErrorContext(ctx, "Failed to publish delete event",
			"id", id, "error", err)
	}
}

// Close closes both storage and AMQP connections.
func (s *ExpenseService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	return errors.Join(errs...)
}
