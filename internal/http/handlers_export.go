package http

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"kharcha/internal/core"
	"kharcha/internal/export"
	"kharcha/internal/log"
	"kharcha/internal/storage"
)

// exportScope gathers the rows for a download. scope=all covers the whole
// household; the default is the signed-in user's own records.
func (s *Server) exportScope(r *http.Request) ([]core.Expense, error) {
	var rng *core.DateRange
	if r.URL.Query().Get("from") != "" || r.URL.Query().Get("to") != "" {
		parsed, err := parseRange(r)
		if err != nil {
			return nil, err
		}
		rng = &parsed
	}

	if r.URL.Query().Get("scope") == "all" {
		return s.expenses.ListAll(r.Context(), rng)
	}
	return s.expenses.List(r.Context(), currentUser(r.Context()), storage.ExpenseFilter{Range: rng})
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	expenses, err := s.exportScope(r)
	if err != nil {
		status := errorStatus(err)
		if status >= http.StatusInternalServerError {
			s.logger.ErrorContext(r.Context(), "CSV export failed", log.FieldError, err)
		}
		http.Error(w, userFacingError(err, status), status)
		return
	}

	// Buffer the document so a write error cannot corrupt a partial download.
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, expenses); err != nil {
		s.logger.ErrorContext(r.Context(), "CSV export failed", log.FieldError, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("expenses-%s.csv", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	expenses, err := s.exportScope(r)
	if err != nil {
		status := errorStatus(err)
		if status >= http.StatusInternalServerError {
			s.logger.ErrorContext(r.Context(), "XLSX export failed", log.FieldError, err)
		}
		http.Error(w, userFacingError(err, status), status)
		return
	}

	actor := currentUser(r.Context())
	users, err := s.auth.ListUsers(r.Context(), actor)
	if err != nil {
		// Regular users cannot list accounts; fall back to their own name so
		// their own export still carries it.
		users = []core.User{*actor}
	}
	names := make(map[int64]string, len(users))
	for _, u := range users {
		names[u.ID] = u.FullName
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, expenses, names); err != nil {
		s.logger.ErrorContext(r.Context(), "XLSX export failed", log.FieldError, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("expenses-%s.xlsx", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	_, _ = buf.WriteTo(w)
}

// handleImportCSV accepts a CSV in the export format and records every row as
// the signed-in user's expenses. The file is validated in full before any row
// is written.
func (s *Server) handleImportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeErrorFragment(w, http.StatusBadRequest, "A CSV file is required")
		return
	}
	defer file.Close()

	expenses, err := export.ReadCSV(file)
	if err != nil {
		writeErrorFragment(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if len(expenses) == 0 {
		writeErrorFragment(w, http.StatusUnprocessableEntity, "The file contains no expenses")
		return
	}

	user := currentUser(r.Context())
	imported := 0
	for _, e := range expenses {
		if _, err := s.expenses.Create(r.Context(), user, e); err != nil {
			s.logger.ErrorContext(r.Context(), "CSV import aborted",
				log.FieldError, err,
				log.FieldUserID, user.ID,
				"imported", imported)
			writeErrorFragment(w, http.StatusInternalServerError,
				fmt.Sprintf("Import stopped after %d rows", imported))
			return
		}
		imported++
	}

	s.partialCache.Purge()
	s.logger.InfoContext(r.Context(), "CSV import completed",
		log.FieldUserID, user.ID,
		"imported", imported,
		log.FieldComponent, log.ComponentExpense)

	w.Header().Set("HX-Trigger", "expense:changed")
	writeSuccessFragment(w, fmt.Sprintf("Imported %d expenses", imported))
}
