package services

import (
	"context"
	"path/filepath"
	"testing"

	"kharcha/internal/core"
	"kharcha/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ExpenseServiceTestSuite struct {
	suite.Suite
	repo  *storage.SQLiteRepository
	svc   *ExpenseService
	ctx   context.Context
	alice *core.User
	bob   *core.User
}

func (s *ExpenseServiceTestSuite) SetupTest() {
	repo, err := storage.NewSQLiteRepository(filepath.Join(s.T().TempDir(), "test.db"))
	require.NoError(s.T(), err)
	s.repo = repo
	// nil AMQP client: publishing is skipped, the write path must still work
	s.svc = NewExpenseService(repo, nil)
	s.ctx = context.Background()

	s.alice, err = repo.CreateUser(s.ctx, "alice", "hash", "Alice", core.RoleAdmin)
	require.NoError(s.T(), err)
	s.bob, err = repo.CreateUser(s.ctx, "bob", "hash", "Bob", core.RoleRegular)
	require.NoError(s.T(), err)
}

func (s *ExpenseServiceTestSuite) TearDownTest() {
	if s.repo != nil {
		s.repo.Close()
	}
}

func (s *ExpenseServiceTestSuite) newExpense(cents int64, category string, d core.Date) core.Expense {
	return core.Expense{
		Amount:   core.Money{Cents: cents},
		Purpose:  "test purchase",
		Category: category,
		Date:     d,
	}
}

func (s *ExpenseServiceTestSuite) TestCreateAssignsOwner() {
	e := s.newExpense(5000, "Food & Dining", core.NewDate(2025, 5, 1))
	e.UserID = 999 // callers cannot pick the owner

	id, err := s.svc.Create(s.ctx, s.alice, e)
	require.NoError(s.T(), err)

	got, err := s.svc.Get(s.ctx, s.alice, id)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), s.alice.ID, got.UserID)
}

func (s *ExpenseServiceTestSuite) TestCreateValidates() {
	_, err := s.svc.Create(s.ctx, s.alice, s.newExpense(0, "Food & Dining", core.NewDate(2025, 5, 1)))
	assert.ErrorIs(s.T(), err, core.ErrInvalidAmount)

	_, err = s.svc.Create(s.ctx, s.alice, s.newExpense(100, "Yachts", core.NewDate(2025, 5, 1)))
	assert.ErrorIs(s.T(), err, core.ErrInvalidCategory)

	_, err = s.svc.Create(s.ctx, nil, s.newExpense(100, "Food & Dining", core.NewDate(2025, 5, 1)))
	assert.ErrorIs(s.T(), err, core.ErrUnauthorized)
}

func (s *ExpenseServiceTestSuite) TestUpdateOwnershipCheck() {
	id, err := s.svc.Create(s.ctx, s.alice, s.newExpense(5000, "Food & Dining", core.NewDate(2025, 5, 1)))
	require.NoError(s.T(), err)

	update := s.newExpense(7500, "Groceries", core.NewDate(2025, 5, 2))
	update.ID = id

	// Not even an admin may edit someone else's expense, only the owner.
	assert.ErrorIs(s.T(), s.svc.Update(s.ctx, s.bob, update), core.ErrForbidden)

	require.NoError(s.T(), s.svc.Update(s.ctx, s.alice, update))
	got, err := s.svc.Get(s.ctx, s.alice, id)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(7500), got.Amount.Cents)
	assert.Equal(s.T(), s.alice.ID, got.UserID)
}

func (s *ExpenseServiceTestSuite) TestUpdateMissing() {
	update := s.newExpense(100, "Gifts", core.NewDate(2025, 5, 1))
	update.ID = 4242
	assert.ErrorIs(s.T(), s.svc.Update(s.ctx, s.alice, update), core.ErrNotFound)
}

func (s *ExpenseServiceTestSuite) TestDeleteOwnershipCheck() {
	id, err := s.svc.Create(s.ctx, s.alice, s.newExpense(5000, "Travel", core.NewDate(2025, 5, 1)))
	require.NoError(s.T(), err)

	assert.ErrorIs(s.T(), s.svc.Delete(s.ctx, s.bob, id), core.ErrForbidden)
	require.NoError(s.T(), s.svc.Delete(s.ctx, s.alice, id))
	assert.ErrorIs(s.T(), s.svc.Delete(s.ctx, s.alice, id), core.ErrNotFound)
}

func (s *ExpenseServiceTestSuite) TestSummaryAndBreakdown() {
	_, err := s.svc.Create(s.ctx, s.alice, s.newExpense(8000, "Food & Dining", core.NewDate(2025, 5, 1)))
	require.NoError(s.T(), err)
	_, err = s.svc.Create(s.ctx, s.alice, s.newExpense(2000, "Transportation", core.NewDate(2025, 5, 3)))
	require.NoError(s.T(), err)

	summary, err := s.svc.Summary(s.ctx, s.alice.ID, nil)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(10000), summary.Total.Cents)
	assert.Equal(s.T(), 2, summary.Transactions)
	assert.Equal(s.T(), "Food & Dining", summary.TopCategory)

	breakdown, err := s.svc.Breakdown(s.ctx, s.alice.ID, nil)
	require.NoError(s.T(), err)
	require.Len(s.T(), breakdown, 2)
	assert.Equal(s.T(), "Food & Dining", breakdown[0].Name)
	assert.Equal(s.T(), 80.0, breakdown[0].Percent)
}

func (s *ExpenseServiceTestSuite) TestComparisonIncludesDeletedUsers() {
	_, err := s.svc.Create(s.ctx, s.alice, s.newExpense(100, "Gifts", core.NewDate(2025, 5, 1)))
	require.NoError(s.T(), err)
	_, err = s.svc.Create(s.ctx, s.bob, s.newExpense(200, "Gifts", core.NewDate(2025, 5, 2)))
	require.NoError(s.T(), err)

	require.NoError(s.T(), s.repo.DeleteUser(s.ctx, s.bob.ID))

	cmp, err := s.svc.Comparison(s.ctx, nil)
	require.NoError(s.T(), err)
	require.Len(s.T(), cmp.PerUser, 2)

	var names []string
	for _, u := range cmp.PerUser {
		names = append(names, u.Name)
	}
	assert.Contains(s.T(), names, "Alice")
	assert.Contains(s.T(), names, "Deleted user")
}

func (s *ExpenseServiceTestSuite) TestListScopedToActor() {
	_, err := s.svc.Create(s.ctx, s.alice, s.newExpense(100, "Gifts", core.NewDate(2025, 5, 1)))
	require.NoError(s.T(), err)
	_, err = s.svc.Create(s.ctx, s.bob, s.newExpense(200, "Gifts", core.NewDate(2025, 5, 2)))
	require.NoError(s.T(), err)

	mine, err := s.svc.List(s.ctx, s.alice, storage.ExpenseFilter{})
	require.NoError(s.T(), err)
	require.Len(s.T(), mine, 1)
	assert.Equal(s.T(), s.alice.ID, mine[0].UserID)

	all, err := s.svc.ListAll(s.ctx, nil)
	require.NoError(s.T(), err)
	assert.Len(s.T(), all, 2)
}

func TestExpenseServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ExpenseServiceTestSuite))
}
