package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"kharcha/internal/auth"
	"kharcha/internal/core"
	"kharcha/internal/insight"
	"kharcha/internal/services"
	"kharcha/internal/storage"
)

const (
	adminPassword   = "Adm1n!pass"
	partnerPassword = "Partn3r!pass"
)

// HandlersTestSuite drives the full HTTP surface against a throwaway SQLite
// database, templates included.
type HandlersTestSuite struct {
	suite.Suite
	repo   *storage.SQLiteRepository
	server *Server
	ts     *httptest.Server

	admin   *core.User
	partner *core.User
}

func (s *HandlersTestSuite) SetupTest() {
	repo, err := storage.NewSQLiteRepository(filepath.Join(s.T().TempDir(), "test.db"))
	require.NoError(s.T(), err)
	s.repo = repo

	authSvc := auth.NewService(repo, time.Hour)
	expSvc := services.NewExpenseService(repo, nil)
	insightSvc := insight.NewService(repo, nil, 30)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv, err := NewServer(":0", authSvc, expSvc, insightSvc, false, logger)
	require.NoError(s.T(), err)
	s.server = srv
	s.ts = httptest.NewServer(srv.Handler)

	ctx := context.Background()
	s.admin, err = authSvc.CreateFirstAdmin(ctx, "admin", adminPassword, "Asha")
	require.NoError(s.T(), err)
	s.partner, err = authSvc.CreateUser(ctx, s.admin, "partner", partnerPassword, "Rohan", core.RoleRegular)
	require.NoError(s.T(), err)
}

func (s *HandlersTestSuite) TearDownTest() {
	s.ts.Close()
	s.server.rateLimiter.stop()
	s.repo.Close()
}

// client returns an HTTP client with a cookie jar that does not follow
// redirects, so status codes stay observable.
func (s *HandlersTestSuite) client() *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(s.T(), err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (s *HandlersTestSuite) login(c *http.Client, username, password string) {
	resp, err := c.PostForm(s.ts.URL+"/login", url.Values{
		"username": {username},
		"password": {password},
	})
	require.NoError(s.T(), err)
	defer resp.Body.Close()
	require.Equal(s.T(), http.StatusSeeOther, resp.StatusCode, "login should redirect on success")
}

func (s *HandlersTestSuite) postForm(c *http.Client, path string, form url.Values) (*http.Response, string) {
	resp, err := c.PostForm(s.ts.URL+path, form)
	require.NoError(s.T(), err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)
	return resp, string(body)
}

func (s *HandlersTestSuite) get(c *http.Client, path string) (*http.Response, string) {
	resp, err := c.Get(s.ts.URL + path)
	require.NoError(s.T(), err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)
	return resp, string(body)
}

func (s *HandlersTestSuite) TestHealthEndpoints() {
	c := s.client()

	resp, body := s.get(c, "/healthz")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("ok", body)

	resp, body = s.get(c, "/readyz")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("ready", body)
}

func (s *HandlersTestSuite) TestDashboardRequiresLogin() {
	resp, _ := s.get(s.client(), "/")
	s.Equal(http.StatusSeeOther, resp.StatusCode)
	s.Equal("/login", resp.Header.Get("Location"))
}

func (s *HandlersTestSuite) TestPartialRejectsAnonymousPost() {
	resp, _ := s.postForm(s.client(), "/expenses", url.Values{"amount": {"1.00"}})
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *HandlersTestSuite) TestLoginWrongPassword() {
	resp, body := s.postForm(s.client(), "/login", url.Values{
		"username": {"admin"},
		"password": {"wrong"},
	})
	s.Equal(http.StatusOK, resp.StatusCode, "login page re-renders")
	s.Contains(body, "Invalid username or password")
}

func (s *HandlersTestSuite) TestLoginAndDashboard() {
	c := s.client()
	s.login(c, "admin", adminPassword)

	resp, body := s.get(c, "/")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Contains(body, "Asha")
	s.Contains(body, "Dashboard")
}

func (s *HandlersTestSuite) TestSecurityHeaders() {
	c := s.client()
	s.login(c, "admin", adminPassword)

	resp, _ := s.get(c, "/")
	s.Equal("nosniff", resp.Header.Get("X-Content-Type-Options"))
	s.Equal("DENY", resp.Header.Get("X-Frame-Options"))
	s.NotEmpty(resp.Header.Get("Content-Security-Policy"))
}

func (s *HandlersTestSuite) TestExpenseLifecycle() {
	c := s.client()
	s.login(c, "admin", adminPassword)

	resp, body := s.postForm(c, "/expenses", url.Values{
		"amount":   {"250.00"},
		"purpose":  {"Weekly groceries"},
		"category": {"Groceries"},
		"date":     {"2026-08-20"},
	})
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Contains(body, "Recorded")
	s.Equal("expense:changed", resp.Header.Get("HX-Trigger"))

	_, body = s.get(c, "/expenses")
	s.Contains(body, "Weekly groceries")
	s.Contains(body, "₹250.00")

	expenses, err := s.repo.ListExpenses(context.Background(), s.admin.ID, storage.ExpenseFilter{})
	s.Require().NoError(err)
	s.Require().Len(expenses, 1)
	id := expenses[0].ID

	resp, _ = s.postForm(c, "/expenses/update", url.Values{
		"id":       {"9999"},
		"amount":   {"1.00"},
		"purpose":  {"x"},
		"category": {"Groceries"},
		"date":     {"2026-08-20"},
	})
	s.Equal(http.StatusNotFound, resp.StatusCode)

	resp, body = s.postForm(c, "/expenses/update", url.Values{
		"id":       {formatID(id)},
		"amount":   {"300.00"},
		"purpose":  {"Weekly groceries and more"},
		"category": {"Groceries"},
		"date":     {"2026-08-21"},
	})
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Contains(body, "Expense updated")

	resp, body = s.postForm(c, "/expenses/delete", url.Values{"id": {formatID(id)}})
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Contains(body, "Expense deleted")
}

func (s *HandlersTestSuite) TestExpenseValidationErrors() {
	c := s.client()
	s.login(c, "admin", adminPassword)

	resp, _ := s.postForm(c, "/expenses", url.Values{
		"amount":   {"abc"},
		"purpose":  {"Bad"},
		"category": {"Groceries"},
		"date":     {"2026-08-20"},
	})
	s.Equal(http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = s.postForm(c, "/expenses", url.Values{
		"amount":   {"10.00"},
		"purpose":  {"Bad category"},
		"category": {"Gambling"},
		"date":     {"2026-08-20"},
	})
	s.Equal(http.StatusUnprocessableEntity, resp.StatusCode)
}

func (s *HandlersTestSuite) TestOwnerOnlyEditing() {
	admin := s.client()
	s.login(admin, "admin", adminPassword)
	partner := s.client()
	s.login(partner, "partner", partnerPassword)

	_, _ = s.postForm(partner, "/expenses", url.Values{
		"amount":   {"99.00"},
		"purpose":  {"Partner lunch"},
		"category": {"Food & Dining"},
		"date":     {"2026-08-20"},
	})

	expenses, err := s.repo.ListExpenses(context.Background(), s.partner.ID, storage.ExpenseFilter{})
	s.Require().NoError(err)
	s.Require().Len(expenses, 1)

	// Admins may see household data, not rewrite someone else's records.
	resp, _ := s.postForm(admin, "/expenses/delete", url.Values{"id": {formatID(expenses[0].ID)}})
	s.Equal(http.StatusForbidden, resp.StatusCode)
}

func (s *HandlersTestSuite) TestSummaryPartial() {
	c := s.client()
	s.login(c, "admin", adminPassword)

	today := core.DateOf(time.Now()).String()
	_, _ = s.postForm(c, "/expenses", url.Values{
		"amount":   {"500.00"},
		"purpose":  {"Rent share"},
		"category": {"Housing & Utilities"},
		"date":     {today},
	})

	resp, body := s.get(c, "/ui/summary")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Contains(body, "₹500.00")
	s.Contains(body, "Housing &amp; Utilities")

	// Second hit is served from cache and must be identical.
	_, cached := s.get(c, "/ui/summary")
	s.Equal(body, cached)
}

func (s *HandlersTestSuite) TestBreakdownAndComparisonPartials() {
	c := s.client()
	s.login(c, "partner", partnerPassword)

	today := core.DateOf(time.Now()).String()
	_, _ = s.postForm(c, "/expenses", url.Values{
		"amount":   {"80.00"},
		"purpose":  {"Cinema"},
		"category": {"Entertainment"},
		"date":     {today},
	})

	resp, body := s.get(c, "/ui/breakdown")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Contains(body, "Entertainment")

	resp, body = s.get(c, "/ui/comparison")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Contains(body, "Rohan")
}

func (s *HandlersTestSuite) TestWritePurgesPartialCache() {
	c := s.client()
	s.login(c, "admin", adminPassword)

	today := core.DateOf(time.Now()).String()
	_, before := s.get(c, "/ui/summary")
	s.Contains(before, "₹0.00")

	_, _ = s.postForm(c, "/expenses", url.Values{
		"amount":   {"42.00"},
		"purpose":  {"Cache buster"},
		"category": {"Technology"},
		"date":     {today},
	})

	_, after := s.get(c, "/ui/summary")
	s.Contains(after, "₹42.00")
}

func (s *HandlersTestSuite) TestUserManagementRequiresAdmin() {
	c := s.client()
	s.login(c, "partner", partnerPassword)

	resp, _ := s.get(c, "/users")
	s.Equal(http.StatusForbidden, resp.StatusCode)

	resp, _ = s.postForm(c, "/users", url.Values{
		"username":  {"intruder"},
		"full_name": {"Nope"},
		"password":  {"Sneak1!pass"},
	})
	s.Equal(http.StatusForbidden, resp.StatusCode)
}

func (s *HandlersTestSuite) TestUserManagement() {
	c := s.client()
	s.login(c, "admin", adminPassword)

	resp, body := s.get(c, "/users")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Contains(body, "partner")

	resp, body = s.postForm(c, "/users", url.Values{
		"username":  {"guest"},
		"full_name": {"Guest User"},
		"password":  {"Gu3st!pass1"},
		"role":      {"regular"},
	})
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Contains(body, "Created user guest")

	// Duplicate username conflicts.
	resp, _ = s.postForm(c, "/users", url.Values{
		"username":  {"guest"},
		"full_name": {"Guest Again"},
		"password":  {"Gu3st!pass1"},
	})
	s.Equal(http.StatusConflict, resp.StatusCode)

	resp, _ = s.postForm(c, "/users/update", url.Values{
		"id":        {formatID(s.partner.ID)},
		"action":    {"fullname"},
		"full_name": {"Rohan K"},
	})
	s.Equal(http.StatusOK, resp.StatusCode)

	// Self-deletion is blocked.
	resp, _ = s.postForm(c, "/users/delete", url.Values{"id": {formatID(s.admin.ID)}})
	s.Equal(http.StatusForbidden, resp.StatusCode)

	resp, body = s.postForm(c, "/users/delete", url.Values{"id": {formatID(s.partner.ID)}})
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Contains(body, "expenses remain")
}

func (s *HandlersTestSuite) TestCSVExportAndImport() {
	c := s.client()
	s.login(c, "admin", adminPassword)

	_, _ = s.postForm(c, "/expenses", url.Values{
		"amount":   {"123.45"},
		"purpose":  {"Train tickets"},
		"category": {"Transportation"},
		"date":     {"2026-08-15"},
	})

	resp, body := s.get(c, "/export/csv")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Contains(resp.Header.Get("Content-Type"), "text/csv")
	s.Contains(resp.Header.Get("Content-Disposition"), "attachment")
	s.Contains(body, "amount,purpose,category,date")
	s.Contains(body, "123.45,Train tickets,Transportation,2026-08-15")
}

func (s *HandlersTestSuite) TestXLSXExport() {
	c := s.client()
	s.login(c, "admin", adminPassword)

	_, _ = s.postForm(c, "/expenses", url.Values{
		"amount":   {"10.00"},
		"purpose":  {"Coffee"},
		"category": {"Food & Dining"},
		"date":     {"2026-08-15"},
	})

	resp, body := s.get(c, "/export/xlsx?scope=all")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Contains(resp.Header.Get("Content-Type"), "spreadsheetml")
	s.NotEmpty(body)
}

func (s *HandlersTestSuite) TestInsightsUnavailableWithoutBackend() {
	c := s.client()
	s.login(c, "admin", adminPassword)

	resp, body := s.get(c, "/insights")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Contains(body, "not configured")

	resp, body = s.postForm(c, "/insights", url.Values{"type": {"patterns"}})
	s.Equal(http.StatusServiceUnavailable, resp.StatusCode)
	s.Contains(body, "Analysis unavailable")
}

func (s *HandlersTestSuite) TestInsightsBudgetRequiresAmount() {
	c := s.client()
	s.login(c, "admin", adminPassword)

	resp, _ := s.postForm(c, "/insights", url.Values{"type": {"budget"}})
	s.Equal(http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = s.postForm(c, "/insights", url.Values{"type": {"horoscope"}})
	s.Equal(http.StatusUnprocessableEntity, resp.StatusCode)
}

func (s *HandlersTestSuite) TestChangePassword() {
	c := s.client()
	s.login(c, "partner", partnerPassword)

	resp, _ := s.postForm(c, "/password", url.Values{
		"current_password": {"wrong"},
		"new_password":     {"N3w!password"},
	})
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	resp, body := s.postForm(c, "/password", url.Values{
		"current_password": {partnerPassword},
		"new_password":     {"N3w!password"},
	})
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Contains(body, "Password updated")

	// Old session still works; a fresh login needs the new password.
	fresh := s.client()
	resp, _ = s.postForm(fresh, "/login", url.Values{
		"username": {"partner"},
		"password": {partnerPassword},
	})
	s.Equal(http.StatusOK, resp.StatusCode) // re-rendered login page
	s.login(fresh, "partner", "N3w!password")
}

func (s *HandlersTestSuite) TestLogout() {
	c := s.client()
	s.login(c, "admin", adminPassword)

	resp, _ := s.postForm(c, "/logout", url.Values{})
	s.Equal(http.StatusSeeOther, resp.StatusCode)

	resp, _ = s.get(c, "/")
	s.Equal(http.StatusSeeOther, resp.StatusCode)
	s.Equal("/login", resp.Header.Get("Location"))
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestHandlersTestSuite(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}
