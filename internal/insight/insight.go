// Package insight produces AI-written commentary on spending data. The
// analysis is advisory text layered on top of the aggregation engine;
// nothing else in the system depends on it, and callers are expected to
// handle ErrUnavailable by showing a fallback message.
package insight

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kharcha/internal/core"
)

// ErrUnavailable means the analysis backend could not produce a result.
// The rest of the application keeps working without it.
var ErrUnavailable = errors.New("analysis unavailable")

type AnalysisType string

const (
	AnalysisPatterns AnalysisType = "patterns"
	AnalysisBudget   AnalysisType = "budget"
	AnalysisSavings  AnalysisType = "savings"
)

func ParseAnalysisType(s string) (AnalysisType, error) {
	switch AnalysisType(s) {
	case AnalysisPatterns, AnalysisBudget, AnalysisSavings:
		return AnalysisType(s), nil
	}
	return "", fmt.Errorf("unknown analysis type %q", s)
}

// Request describes one analysis run. MonthlyBudget is only consulted for
// AnalysisBudget.
type Request struct {
	Type          AnalysisType
	Range         core.DateRange
	MonthlyBudget core.Money
}

// Result is the finished commentary.
type Result struct {
	Type        AnalysisType
	Text        string
	GeneratedAt time.Time
}

// Generator turns a request plus the matching expenses into commentary.
type Generator interface {
	Generate(ctx context.Context, req Request, expenses []core.Expense) (string, error)
}
