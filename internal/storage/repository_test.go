package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"kharcha/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// RepositoryTestSuite exercises the SQLite repository against a throwaway
// database file (migrations need a real path, not :memory:).
type RepositoryTestSuite struct {
	suite.Suite
	repo *SQLiteRepository
	ctx  context.Context
}

func (s *RepositoryTestSuite) SetupTest() {
	repo, err := NewSQLiteRepository(filepath.Join(s.T().TempDir(), "test.db"))
	require.NoError(s.T(), err, "failed to open test database")
	s.repo = repo
	s.ctx = context.Background()
}

func (s *RepositoryTestSuite) TearDownTest() {
	if s.repo != nil {
		s.repo.Close()
	}
}

func (s *RepositoryTestSuite) mustCreateUser(username string) *core.User {
	u, err := s.repo.CreateUser(s.ctx, username, "hash", "Some Name", core.RoleRegular)
	require.NoError(s.T(), err)
	return u
}

func (s *RepositoryTestSuite) mustCreateExpense(userID int64, cents int64, category string, d core.Date) int64 {
	id, err := s.repo.CreateExpense(s.ctx, core.Expense{
		UserID:   userID,
		Amount:   core.Money{Cents: cents},
		Purpose:  "test purchase",
		Category: category,
		Date:     d,
	})
	require.NoError(s.T(), err)
	return id
}

func (s *RepositoryTestSuite) TestCreateAndGetUser() {
	u := s.mustCreateUser("alice")
	assert.Equal(s.T(), "alice", u.Username)
	assert.Equal(s.T(), core.RoleRegular, u.Role)

	got, err := s.repo.GetUserByID(s.ctx, u.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), u.Username, got.Username)

	byName, hash, err := s.repo.GetUserByUsername(s.ctx, "alice")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), u.ID, byName.ID)
	assert.Equal(s.T(), "hash", hash)
}

func (s *RepositoryTestSuite) TestDuplicateUsername() {
	s.mustCreateUser("alice")
	_, err := s.repo.CreateUser(s.ctx, "alice", "h2", "Other", core.RoleRegular)
	assert.ErrorIs(s.T(), err, core.ErrUsernameTaken)
}

func (s *RepositoryTestSuite) TestUpdateUsernameConflict() {
	s.mustCreateUser("alice")
	bob := s.mustCreateUser("bob")
	err := s.repo.UpdateUsername(s.ctx, bob.ID, "alice")
	assert.ErrorIs(s.T(), err, core.ErrUsernameTaken)

	require.NoError(s.T(), s.repo.UpdateUsername(s.ctx, bob.ID, "robert"))
	got, err := s.repo.GetUserByID(s.ctx, bob.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "robert", got.Username)
}

func (s *RepositoryTestSuite) TestGetMissingUser() {
	_, err := s.repo.GetUserByID(s.ctx, 999)
	assert.ErrorIs(s.T(), err, core.ErrNotFound)

	_, _, err = s.repo.GetUserByUsername(s.ctx, "ghost")
	assert.ErrorIs(s.T(), err, core.ErrNotFound)
}

func (s *RepositoryTestSuite) TestExpenseCRUD() {
	u := s.mustCreateUser("alice")
	id := s.mustCreateExpense(u.ID, 5000, "Food & Dining", core.NewDate(2025, 5, 1))

	e, err := s.repo.GetExpense(s.ctx, id)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(5000), e.Amount.Cents)
	assert.Equal(s.T(), "2025-05-01", e.Date.String())

	e.Amount.Cents = 7500
	e.Category = "Groceries"
	require.NoError(s.T(), s.repo.UpdateExpense(s.ctx, *e))

	got, err := s.repo.GetExpense(s.ctx, id)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(7500), got.Amount.Cents)
	assert.Equal(s.T(), "Groceries", got.Category)

	require.NoError(s.T(), s.repo.DeleteExpense(s.ctx, id))
	_, err = s.repo.GetExpense(s.ctx, id)
	assert.ErrorIs(s.T(), err, core.ErrNotFound)
}

func (s *RepositoryTestSuite) TestUpdateMissingExpense() {
	err := s.repo.UpdateExpense(s.ctx, core.Expense{
		ID: 12345, Amount: core.Money{Cents: 1}, Purpose: "x",
		Category: "Gifts", Date: core.NewDate(2025, 1, 1),
	})
	assert.ErrorIs(s.T(), err, core.ErrNotFound)

	assert.ErrorIs(s.T(), s.repo.DeleteExpense(s.ctx, 12345), core.ErrNotFound)
}

func (s *RepositoryTestSuite) TestListExpensesFilters() {
	u := s.mustCreateUser("alice")
	s.mustCreateExpense(u.ID, 100, "Food & Dining", core.NewDate(2025, 5, 1))
	s.mustCreateExpense(u.ID, 200, "Transportation", core.NewDate(2025, 5, 2))
	s.mustCreateExpense(u.ID, 300, "Food & Dining", core.NewDate(2025, 6, 1))

	all, err := s.repo.ListExpenses(s.ctx, u.ID, ExpenseFilter{})
	require.NoError(s.T(), err)
	assert.Len(s.T(), all, 3)
	// newest first
	assert.Equal(s.T(), "2025-06-01", all[0].Date.String())

	rng := &core.DateRange{Start: core.NewDate(2025, 5, 1), End: core.NewDate(2025, 5, 31)}
	may, err := s.repo.ListExpenses(s.ctx, u.ID, ExpenseFilter{Range: rng})
	require.NoError(s.T(), err)
	assert.Len(s.T(), may, 2)

	food, err := s.repo.ListExpenses(s.ctx, u.ID, ExpenseFilter{Range: rng, Category: "Food & Dining"})
	require.NoError(s.T(), err)
	assert.Len(s.T(), food, 1)
	assert.Equal(s.T(), int64(100), food[0].Amount.Cents)
}

func (s *RepositoryTestSuite) TestDeleteUserPreservesExpenses() {
	alice := s.mustCreateUser("alice")
	bob := s.mustCreateUser("bob")
	s.mustCreateExpense(alice.ID, 100, "Travel", core.NewDate(2025, 3, 1))
	s.mustCreateExpense(bob.ID, 200, "Travel", core.NewDate(2025, 3, 2))

	require.NoError(s.T(), s.repo.DeleteUser(s.ctx, alice.ID))

	_, err := s.repo.GetUserByID(s.ctx, alice.ID)
	assert.ErrorIs(s.T(), err, core.ErrNotFound)

	// Orphaned records still come back, by owner id and in the combined view.
	orphans, err := s.repo.ListExpenses(s.ctx, alice.ID, ExpenseFilter{})
	require.NoError(s.T(), err)
	assert.Len(s.T(), orphans, 1)
	assert.Equal(s.T(), alice.ID, orphans[0].UserID)

	combined, err := s.repo.ListExpensesForUsers(s.ctx, []int64{alice.ID, bob.ID}, nil)
	require.NoError(s.T(), err)
	assert.Len(s.T(), combined, 2)
}

func (s *RepositoryTestSuite) TestListExpensesForAllUsers() {
	alice := s.mustCreateUser("alice")
	bob := s.mustCreateUser("bob")
	s.mustCreateExpense(alice.ID, 100, "Gifts", core.NewDate(2025, 3, 1))
	s.mustCreateExpense(bob.ID, 200, "Gifts", core.NewDate(2025, 3, 2))

	all, err := s.repo.ListExpensesForUsers(s.ctx, nil, nil)
	require.NoError(s.T(), err)
	assert.Len(s.T(), all, 2)
}

func (s *RepositoryTestSuite) TestSessions() {
	u := s.mustCreateUser("alice")
	require.NoError(s.T(), s.repo.CreateSession(s.ctx, "tok1", u.ID, time.Now().Add(time.Hour)))

	sess, err := s.repo.GetSession(s.ctx, "tok1")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), u.ID, sess.User.ID)

	_, err = s.repo.GetSession(s.ctx, "missing")
	assert.ErrorIs(s.T(), err, core.ErrNotFound)

	// An expired session never resolves.
	require.NoError(s.T(), s.repo.CreateSession(s.ctx, "tok2", u.ID, time.Now().Add(-time.Hour)))
	_, err = s.repo.GetSession(s.ctx, "tok2")
	assert.ErrorIs(s.T(), err, core.ErrNotFound)

	require.NoError(s.T(), s.repo.DeleteExpiredSessions(s.ctx))
	require.NoError(s.T(), s.repo.DeleteSession(s.ctx, "tok1"))
	_, err = s.repo.GetSession(s.ctx, "tok1")
	assert.ErrorIs(s.T(), err, core.ErrNotFound)
}

func (s *RepositoryTestSuite) TestDeleteUserClearsSessions() {
	u := s.mustCreateUser("alice")
	require.NoError(s.T(), s.repo.CreateSession(s.ctx, "tok", u.ID, time.Now().Add(time.Hour)))
	require.NoError(s.T(), s.repo.DeleteUser(s.ctx, u.ID))
	_, err := s.repo.GetSession(s.ctx, "tok")
	assert.ErrorIs(s.T(), err, core.ErrNotFound)
}

func TestRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(RepositoryTestSuite))
}
