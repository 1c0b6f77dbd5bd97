package http

import (
	"errors"
	"net/http"
	"strings"

	"kharcha/internal/core"
	"kharcha/internal/insight"
	"kharcha/internal/log"
)

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		user := currentUser(r.Context())
		data := struct {
			User    *core.User
			Enabled bool
		}{User: user, Enabled: s.insights.Enabled()}
		s.render(w, r, "insights.html", data)
	case http.MethodPost:
		s.handleGenerateInsight(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleGenerateInsight(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeErrorFragment(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	user := currentUser(r.Context())

	analysisType, err := insight.ParseAnalysisType(r.Form.Get("type"))
	if err != nil {
		writeErrorFragment(w, http.StatusUnprocessableEntity, "Unknown analysis type")
		return
	}

	req := insight.Request{Type: analysisType}
	if analysisType == insight.AnalysisBudget {
		cents, err := core.ParseDecimalToCents(strings.TrimSpace(r.Form.Get("monthly_budget")))
		if err != nil || cents <= 0 {
			writeErrorFragment(w, http.StatusUnprocessableEntity, "A positive monthly budget is required for budget advice")
			return
		}
		req.MonthlyBudget = core.Money{Cents: cents}
	}

	result, err := s.insights.Analyze(r.Context(), user, req)
	if err != nil {
		if errors.Is(err, insight.ErrUnavailable) {
			s.logger.WarnContext(r.Context(), "Analysis unavailable",
				log.FieldError, err,
				log.FieldAnalysisType, string(analysisType),
				log.FieldComponent, log.ComponentInsight)
			writeErrorFragment(w, http.StatusServiceUnavailable, "Analysis unavailable right now. Your expense data is unaffected.")
			return
		}
		status := errorStatus(err)
		if status >= http.StatusInternalServerError {
			s.logger.ErrorContext(r.Context(), "Analysis failed",
				log.FieldError, err,
				log.FieldAnalysisType, string(analysisType))
		}
		writeErrorFragment(w, status, userFacingError(err, status))
		return
	}

	s.logger.InfoContext(r.Context(), "Analysis generated",
		log.FieldUserID, user.ID,
		log.FieldAnalysisType, string(analysisType),
		log.FieldComponent, log.ComponentInsight)

	data := struct {
		Type        string
		Text        string
		GeneratedAt string
	}{
		Type:        string(result.Type),
		Text:        result.Text,
		GeneratedAt: result.GeneratedAt.Format("2006-01-02 15:04"),
	}
	s.render(w, r, "partial_insight.html", data)
}
