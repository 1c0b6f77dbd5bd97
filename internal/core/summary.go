package core

import "sort"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name    string
	Amount  Money
	Count   int
	Percent float64 // share of the total, 0-100
}

// Summary holds the headline figures for a set of expenses.
type Summary struct {
	Total        Money
	Transactions int
	Days         int
	DailyAverage Money
	TopCategory  string
}

// SeriesPoint is one (bucket, sum) pair of a time series.
type SeriesPoint struct {
	Bucket string
	Amount Money
}

// UserTotal aggregates one user's share of a combined view.
type UserTotal struct {
	UserID       int64
	Name         string
	Total        Money
	Transactions int
	Average      Money // mean transaction size
}

// UserCategoryAmount is one cell of the user x category grouping.
type UserCategoryAmount struct {
	UserID   int64
	Name     string
	Category string
	Amount   Money
}

// Comparison is the combined multi-user view.
type Comparison struct {
	PerUser    []UserTotal
	ByCategory []CategoryAmount
	Matrix     []UserCategoryAmount
}

// Summarize computes total spend, transaction count, daily average and top
// category. When rng is non-nil the daily average divides by the days the
// range spans; otherwise by the inclusive days between the earliest and
// latest expense dates. An empty input yields a zero summary, never an error.
func Summarize(expenses []Expense, rng *DateRange) Summary {
	var s Summary
	if len(expenses) == 0 {
		return s
	}
	min, max := expenses[0].Date, expenses[0].Date
	for _, e := range expenses {
		s.Total.Cents += e.Amount.Cents
		if e.Date.Before(min.Time) {
			min = e.Date
		}
		if e.Date.After(max.Time) {
			max = e.Date
		}
	}
	s.Transactions = len(expenses)
	if rng != nil {
		s.Days = rng.Days()
	} else {
		s.Days = DateRange{Start: min, End: max}.Days()
	}
	if s.Days > 0 {
		s.DailyAverage = Money{Cents: divRound(s.Total.Cents, int64(s.Days))}
	}
	if bd := BreakdownByCategory(expenses); len(bd) > 0 {
		s.TopCategory = bd[0].Name
	}
	return s
}

// BreakdownByCategory maps each category to its summed amount, count and
// percentage of the total, largest first. The amounts always reconcile with
// the total of the input set.
func BreakdownByCategory(expenses []Expense) []CategoryAmount {
	if len(expenses) == 0 {
		return nil
	}
	sums := make(map[string]*CategoryAmount)
	var total int64
	for _, e := range expenses {
		ca, ok := sums[e.Category]
		if !ok {
			ca = &CategoryAmount{Name: e.Category}
			sums[e.Category] = ca
		}
		ca.Amount.Cents += e.Amount.Cents
		ca.Count++
		total += e.Amount.Cents
	}
	out := make([]CategoryAmount, 0, len(sums))
	for _, ca := range sums {
		if total > 0 {
			ca.Percent = float64(ca.Amount.Cents) / float64(total) * 100
		}
		out = append(out, *ca)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// DailySeries buckets expenses by calendar day across the whole range,
// including zero buckets, so charts render a continuous line.
func DailySeries(expenses []Expense, rng DateRange) []SeriesPoint {
	sums := make(map[string]int64)
	for _, e := range expenses {
		if rng.Contains(e.Date) {
			sums[e.Date.String()] += e.Amount.Cents
		}
	}
	var out []SeriesPoint
	for d := rng.Start; !d.After(rng.End.Time); d = d.Next() {
		key := d.String()
		out = append(out, SeriesPoint{Bucket: key, Amount: Money{Cents: sums[key]}})
	}
	return out
}

// MonthlySeries buckets expenses by YYYY-MM, newest first, keeping at most
// limit months. Only months with data appear. limit <= 0 means no cap.
func MonthlySeries(expenses []Expense, limit int) []SeriesPoint {
	sums := make(map[string]int64)
	for _, e := range expenses {
		sums[e.Date.MonthKey()] += e.Amount.Cents
	}
	out := make([]SeriesPoint, 0, len(sums))
	for k, v := range sums {
		out = append(out, SeriesPoint{Bucket: k, Amount: Money{Cents: v}})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bucket > out[j].Bucket })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// CompareUsers produces per-user totals and the two-level user x category
// grouping for the combined partner view. names maps user ids to display
// names; ids missing from the map belong to deleted users.
func CompareUsers(expenses []Expense, names map[int64]string) Comparison {
	var c Comparison
	if len(expenses) == 0 {
		return c
	}

	displayName := func(id int64) string {
		if n, ok := names[id]; ok {
			return n
		}
		return "Deleted user"
	}

	totals := make(map[int64]*UserTotal)
	cells := make(map[int64]map[string]int64)
	for _, e := range expenses {
		ut, ok := totals[e.UserID]
		if !ok {
			ut = &UserTotal{UserID: e.UserID, Name: displayName(e.UserID)}
			totals[e.UserID] = ut
			cells[e.UserID] = make(map[string]int64)
		}
		ut.Total.Cents += e.Amount.Cents
		ut.Transactions++
		cells[e.UserID][e.Category] += e.Amount.Cents
	}
	for _, ut := range totals {
		ut.Average = Money{Cents: divRound(ut.Total.Cents, int64(ut.Transactions))}
		c.PerUser = append(c.PerUser, *ut)
	}
	sort.Slice(c.PerUser, func(i, j int) bool {
		if c.PerUser[i].Total.Cents != c.PerUser[j].Total.Cents {
			return c.PerUser[i].Total.Cents > c.PerUser[j].Total.Cents
		}
		return c.PerUser[i].UserID < c.PerUser[j].UserID
	})

	c.ByCategory = BreakdownByCategory(expenses)

	for uid, byCat := range cells {
		for cat, cents := range byCat {
			c.Matrix = append(c.Matrix, UserCategoryAmount{
				UserID:   uid,
				Name:     displayName(uid),
				Category: cat,
				Amount:   Money{Cents: cents},
			})
		}
	}
	sort.Slice(c.Matrix, func(i, j int) bool {
		if c.Matrix[i].UserID != c.Matrix[j].UserID {
			return c.Matrix[i].UserID < c.Matrix[j].UserID
		}
		return c.Matrix[i].Category < c.Matrix[j].Category
	})
	return c
}

// divRound divides with half-up rounding.
func divRound(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	return (a + b/2) / b
}
