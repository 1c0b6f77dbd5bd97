package insight

import (
	"context"
	"fmt"
	"time"

	"kharcha/internal/core"
	"kharcha/internal/storage"
)

// Service loads the acting user's recent expenses and hands them to the
// generator. A nil generator means insights are switched off.
type Service struct {
	storage      *storage.SQLiteRepository
	generator    Generator
	lookbackDays int
}

func NewService(storage *storage.SQLiteRepository, generator Generator, lookbackDays int) *Service {
	if lookbackDays <= 0 {
		lookbackDays = 30
	}
	return &Service{
		storage:      storage,
		generator:    generator,
		lookbackDays: lookbackDays,
	}
}

// Enabled reports whether a generator is configured.
func (s *Service) Enabled() bool {
	return s.generator != nil
}

// Analyze runs one analysis over the actor's recent spending.
func (s *Service) Analyze(ctx context.Context, actor *core.User, req Request) (*Result, error) {
	if actor == nil {
		return nil, core.ErrUnauthorized
	}
	if s.generator == nil {
		return nil, ErrUnavailable
	}

	if req.Range.Start.IsZero() {
		req.Range = core.LastNDays(time.Now(), s.lookbackDays)
	}

	expenses, err := s.storage.ListExpenses(ctx, actor.ID, storage.ExpenseFilter{Range: &req.Range})
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}

	text, err := s.generator.Generate(ctx, req, expenses)
	if err != nil {
		return nil, err
	}

	return &Result{
		Type:        req.Type,
		Text:        text,
		GeneratedAt: time.Now(),
	}, nil
}
