package http

import (
	"fmt"
	"net/http"
	"strconv"

	"kharcha/internal/core"
	"kharcha/internal/log"
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	user := currentUser(r.Context())
	rng, err := parseRange(r)
	if err != nil {
		writeErrorFragment(w, http.StatusUnprocessableEntity, "Invalid date range")
		return
	}

	data := struct {
		User           *core.User
		From, To       string
		InsightEnabled bool
	}{
		User:           user,
		From:           rng.Start.String(),
		To:             rng.End.String(),
		InsightEnabled: s.insights.Enabled(),
	}
	s.render(w, r, "dashboard.html", data)
}

// scopeUserID resolves the optional "user" query parameter. An empty value
// means the combined household view (userID 0); "me" means the signed-in user.
func scopeUserID(r *http.Request) (int64, error) {
	v := r.URL.Query().Get("user")
	switch v {
	case "":
		return 0, nil
	case "me":
		return currentUser(r.Context()).ID, nil
	default:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return 0, fmt.Errorf("invalid user parameter %q", v)
		}
		return id, nil
	}
}

// cachedPartial renders a partial through the LRU cache. Keys include the
// signed-in user so per-user scoping never leaks between sessions.
func (s *Server) cachedPartial(w http.ResponseWriter, r *http.Request, name string, build func() (any, error)) {
	key := fmt.Sprintf("%d|%s|%s", currentUser(r.Context()).ID, r.URL.Path, r.URL.RawQuery)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if body, ok := s.partialCache.Get(key); ok {
		_, _ = w.Write(body)
		return
	}

	data, err := build()
	if err != nil {
		status := errorStatus(err)
		if status >= http.StatusInternalServerError {
			s.logger.ErrorContext(r.Context(), "Dashboard partial failed",
				log.FieldError, err,
				log.FieldPath, r.URL.Path)
		}
		writeErrorFragment(w, status, userFacingError(err, status))
		return
	}

	body, err := s.renderToBytes(name, data)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Template execution failed",
			log.FieldError, err,
			"template", name)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.partialCache.Set(key, body)
	_, _ = w.Write(body)
}

type summaryView struct {
	Total        string
	Transactions int
	DailyAverage string
	TopCategory  string
	From, To     string
}

func (s *Server) handleSummaryPartial(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		writeErrorFragment(w, http.StatusUnprocessableEntity, "Invalid date range")
		return
	}
	userID, err := scopeUserID(r)
	if err != nil {
		writeErrorFragment(w, http.StatusUnprocessableEntity, "Invalid user filter")
		return
	}

	s.cachedPartial(w, r, "partial_summary.html", func() (any, error) {
		var sum core.Summary
		if userID == 0 {
			expenses, err := s.expenses.ListAll(r.Context(), &rng)
			if err != nil {
				return nil, err
			}
			sum = core.Summarize(expenses, &rng)
		} else {
			sum, err = s.expenses.Summary(r.Context(), userID, &rng)
			if err != nil {
				return nil, err
			}
		}
		top := sum.TopCategory
		if top == "" {
			top = "n/a"
		}
		return summaryView{
			Total:        sum.Total.Display(),
			Transactions: sum.Transactions,
			DailyAverage: sum.DailyAverage.Display(),
			TopCategory:  top,
			From:         rng.Start.String(),
			To:           rng.End.String(),
		}, nil
	})
}

type breakdownRow struct {
	Name    string
	Amount  string
	Count   int
	Percent int // rounded share for the progress bar width
}

func (s *Server) handleBreakdownPartial(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		writeErrorFragment(w, http.StatusUnprocessableEntity, "Invalid date range")
		return
	}
	userID, err := scopeUserID(r)
	if err != nil {
		writeErrorFragment(w, http.StatusUnprocessableEntity, "Invalid user filter")
		return
	}

	s.cachedPartial(w, r, "partial_breakdown.html", func() (any, error) {
		var breakdown []core.CategoryAmount
		if userID == 0 {
			expenses, err := s.expenses.ListAll(r.Context(), &rng)
			if err != nil {
				return nil, err
			}
			breakdown = core.BreakdownByCategory(expenses)
		} else {
			breakdown, err = s.expenses.Breakdown(r.Context(), userID, &rng)
			if err != nil {
				return nil, err
			}
		}

		rows := make([]breakdownRow, 0, len(breakdown))
		for _, c := range breakdown {
			width := int(c.Percent + 0.5)
			if width < 2 && c.Amount.Cents > 0 {
				width = 2 // keep tiny slices visible
			}
			rows = append(rows, breakdownRow{
				Name:    c.Name,
				Amount:  c.Amount.Display(),
				Count:   c.Count,
				Percent: width,
			})
		}
		return struct{ Rows []breakdownRow }{rows}, nil
	})
}

type seriesView struct {
	Title  string
	Points []seriesPointView
}

type seriesPointView struct {
	Bucket string
	Amount string
	Width  int
}

func seriesToView(title string, points []core.SeriesPoint) seriesView {
	var maxCents int64
	for _, p := range points {
		if p.Amount.Cents > maxCents {
			maxCents = p.Amount.Cents
		}
	}

	view := seriesView{Title: title}
	for _, p := range points {
		width := 0
		if maxCents > 0 && p.Amount.Cents > 0 {
			width = int((p.Amount.Cents*100 + maxCents/2) / maxCents)
			if width < 2 {
				width = 2
			}
			if width > 100 {
				width = 100
			}
		}
		view.Points = append(view.Points, seriesPointView{
			Bucket: p.Bucket,
			Amount: p.Amount.Display(),
			Width:  width,
		})
	}
	return view
}

func (s *Server) handleDailyPartial(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		writeErrorFragment(w, http.StatusUnprocessableEntity, "Invalid date range")
		return
	}
	userID, err := scopeUserID(r)
	if err != nil {
		writeErrorFragment(w, http.StatusUnprocessableEntity, "Invalid user filter")
		return
	}

	s.cachedPartial(w, r, "partial_series.html", func() (any, error) {
		var points []core.SeriesPoint
		if userID == 0 {
			expenses, err := s.expenses.ListAll(r.Context(), &rng)
			if err != nil {
				return nil, err
			}
			points = core.DailySeries(expenses, rng)
		} else {
			points, err = s.expenses.DailySeries(r.Context(), userID, rng)
			if err != nil {
				return nil, err
			}
		}
		return seriesToView("Daily spending", points), nil
	})
}

func (s *Server) handleMonthlyPartial(w http.ResponseWriter, r *http.Request) {
	months := 6
	if v := r.URL.Query().Get("months"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 && n <= 12 {
			months = n
		}
	}
	userID, err := scopeUserID(r)
	if err != nil {
		writeErrorFragment(w, http.StatusUnprocessableEntity, "Invalid user filter")
		return
	}

	s.cachedPartial(w, r, "partial_series.html", func() (any, error) {
		var points []core.SeriesPoint
		if userID == 0 {
			expenses, err := s.expenses.ListAll(r.Context(), nil)
			if err != nil {
				return nil, err
			}
			points = core.MonthlySeries(expenses, months)
		} else {
			points, err = s.expenses.MonthlySeries(r.Context(), userID, months)
			if err != nil {
				return nil, err
			}
		}
		return seriesToView("Monthly trend", points), nil
	})
}

type comparisonView struct {
	PerUser []struct {
		Name         string
		Total        string
		Transactions int
		Average      string
	}
	ByCategory []breakdownRow
}

func (s *Server) handleComparisonPartial(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		writeErrorFragment(w, http.StatusUnprocessableEntity, "Invalid date range")
		return
	}

	s.cachedPartial(w, r, "partial_comparison.html", func() (any, error) {
		cmp, err := s.expenses.Comparison(r.Context(), &rng)
		if err != nil {
			return nil, err
		}

		var view comparisonView
		for _, u := range cmp.PerUser {
			view.PerUser = append(view.PerUser, struct {
				Name         string
				Total        string
				Transactions int
				Average      string
			}{u.Name, u.Total.Display(), u.Transactions, u.Average.Display()})
		}
		for _, c := range cmp.ByCategory {
			view.ByCategory = append(view.ByCategory, breakdownRow{
				Name:    c.Name,
				Amount:  c.Amount.Display(),
				Count:   c.Count,
				Percent: int(c.Percent + 0.5),
			})
		}
		return view, nil
	})
}
