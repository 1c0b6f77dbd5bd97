package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"kharcha/internal/core"
	"kharcha/internal/log"
	"kharcha/internal/storage"
)

type expenseRow struct {
	ID       int64
	Date     string
	Purpose  string
	Category string
	Amount   string
	Decimal  string
}

func toExpenseRows(expenses []core.Expense) []expenseRow {
	rows := make([]expenseRow, 0, len(expenses))
	for _, e := range expenses {
		rows = append(rows, expenseRow{
			ID:       e.ID,
			Date:     e.Date.String(),
			Purpose:  e.Purpose,
			Category: e.Category,
			Amount:   e.Amount.Display(),
			Decimal:  e.Amount.Decimal(),
		})
	}
	return rows
}

func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListExpenses(w, r)
	case http.MethodPost:
		s.handleCreateExpense(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())

	filter := storage.ExpenseFilter{}
	if cat := sanitizeInput(r.URL.Query().Get("category")); cat != "" {
		if !core.ValidCategory(cat) {
			writeErrorFragment(w, http.StatusUnprocessableEntity, "Unknown category")
			return
		}
		filter.Category = cat
	}
	if r.URL.Query().Get("from") != "" || r.URL.Query().Get("to") != "" {
		rng, err := parseRange(r)
		if err != nil {
			writeErrorFragment(w, http.StatusUnprocessableEntity, "Invalid date range")
			return
		}
		filter.Range = &rng
	}

	expenses, err := s.expenses.List(r.Context(), user, filter)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to list expenses",
			log.FieldError, err,
			log.FieldUserID, user.ID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	data := struct {
		User       *core.User
		Today      string
		Categories []string
		Filter     struct{ Category, From, To string }
		Expenses   []expenseRow
	}{
		User:       user,
		Today:      core.DateOf(time.Now()).String(),
		Categories: core.Categories,
		Expenses:   toExpenseRows(expenses),
	}
	data.Filter.Category = filter.Category
	data.Filter.From = r.URL.Query().Get("from")
	data.Filter.To = r.URL.Query().Get("to")

	s.render(w, r, "expenses.html", data)
}

// parseExpenseForm reads the shared create/update form fields.
func parseExpenseForm(r *http.Request) (core.Expense, error) {
	cents, err := core.ParseDecimalToCents(strings.TrimSpace(r.Form.Get("amount")))
	if err != nil {
		return core.Expense{}, err
	}

	date, err := core.ParseDate(strings.TrimSpace(r.Form.Get("date")))
	if err != nil {
		return core.Expense{}, err
	}

	e := core.Expense{
		Amount:   core.Money{Cents: cents},
		Purpose:  sanitizeInput(r.Form.Get("purpose")),
		Category: sanitizeInput(r.Form.Get("category")),
		Date:     date,
	}
	return e, e.Validate()
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeErrorFragment(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	user := currentUser(r.Context())
	e, err := parseExpenseForm(r)
	if err != nil {
		writeErrorFragment(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	id, err := s.expenses.Create(r.Context(), user, e)
	if err != nil {
		status := errorStatus(err)
		if status >= http.StatusInternalServerError {
			s.logger.ErrorContext(r.Context(), "Failed to save expense",
				log.FieldError, err,
				log.FieldUserID, user.ID,
				log.FieldAmountCents, e.Amount.Cents,
				log.FieldCategory, e.Category)
		}
		writeErrorFragment(w, status, userFacingError(err, status))
		return
	}

	s.partialCache.Purge()
	s.logger.InfoContext(r.Context(), "Expense created",
		log.FieldExpenseID, id,
		log.FieldUserID, user.ID,
		log.FieldAmountCents, e.Amount.Cents,
		log.FieldCategory, e.Category,
		log.FieldComponent, log.ComponentExpense)

	w.Header().Set("HX-Trigger", "expense:changed")
	writeSuccessFragment(w, "Recorded "+e.Amount.Display()+" for "+e.Purpose)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeErrorFragment(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	id, err := strconv.ParseInt(r.Form.Get("id"), 10, 64)
	if err != nil {
		writeErrorFragment(w, http.StatusUnprocessableEntity, "Invalid expense id")
		return
	}

	user := currentUser(r.Context())
	e, err := parseExpenseForm(r)
	if err != nil {
		writeErrorFragment(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	e.ID = id

	if err := s.expenses.Update(r.Context(), user, e); err != nil {
		status := errorStatus(err)
		if status >= http.StatusInternalServerError {
			s.logger.ErrorContext(r.Context(), "Failed to update expense",
				log.FieldError, err,
				log.FieldExpenseID, id,
				log.FieldUserID, user.ID)
		}
		writeErrorFragment(w, status, userFacingError(err, status))
		return
	}

	s.partialCache.Purge()
	s.logger.InfoContext(r.Context(), "Expense updated",
		log.FieldExpenseID, id,
		log.FieldUserID, user.ID,
		log.FieldComponent, log.ComponentExpense)

	w.Header().Set("HX-Trigger", "expense:changed")
	writeSuccessFragment(w, "Expense updated")
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeErrorFragment(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	id, err := strconv.ParseInt(r.Form.Get("id"), 10, 64)
	if err != nil {
		writeErrorFragment(w, http.StatusUnprocessableEntity, "Invalid expense id")
		return
	}

	user := currentUser(r.Context())
	if err := s.expenses.Delete(r.Context(), user, id); err != nil {
		status := errorStatus(err)
		if status >= http.StatusInternalServerError {
			s.logger.ErrorContext(r.Context(), "Failed to delete expense",
				log.FieldError, err,
				log.FieldExpenseID, id,
				log.FieldUserID, user.ID)
		}
		writeErrorFragment(w, status, userFacingError(err, status))
		return
	}

	s.partialCache.Purge()
	s.logger.InfoContext(r.Context(), "Expense deleted",
		log.FieldExpenseID, id,
		log.FieldUserID, user.ID,
		log.FieldComponent, log.ComponentExpense)

	w.Header().Set("HX-Trigger", "expense:changed")
	writeSuccessFragment(w, "Expense deleted")
}
