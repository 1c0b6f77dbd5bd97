package insight

import (
	"fmt"
	"strings"

	"kharcha/internal/core"
)

const systemPrompt = "You are a personal finance assistant for a small household. " +
	"Answer in plain prose with short bullet points where it helps. " +
	"Base every statement on the expense data provided, do not invent numbers."

// buildPrompt renders the expense data as a text summary followed by
// instructions for the requested analysis.
func buildPrompt(req Request, expenses []core.Expense) string {
	var sb strings.Builder

	summary := core.Summarize(expenses, &req.Range)
	sb.WriteString(fmt.Sprintf("Expense summary for %s to %s:\n",
		req.Range.Start, req.Range.End))
	sb.WriteString(fmt.Sprintf("- Total spent: %s\n", summary.Total.Display()))
	sb.WriteString(fmt.Sprintf("- Average daily spending: %s\n", summary.DailyAverage.Display()))
	sb.WriteString(fmt.Sprintf("- Total transactions: %d\n", summary.Transactions))
	if summary.TopCategory != "" {
		sb.WriteString(fmt.Sprintf("- Top spending category: %s\n", summary.TopCategory))
	}

	if breakdown := core.BreakdownByCategory(expenses); len(breakdown) > 0 {
		sb.WriteString("\nCategory breakdown:\n")
		for _, ca := range breakdown {
			sb.WriteString(fmt.Sprintf("- %s: %s (%d transactions, %.1f%% of total)\n",
				ca.Name, ca.Amount.Display(), ca.Count, ca.Percent))
		}
	}

	if months := core.MonthlySeries(expenses, 6); len(months) > 1 {
		sb.WriteString("\nRecent monthly totals, newest first:\n")
		for _, m := range months {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", m.Bucket, m.Amount.Display()))
		}
	}

	sb.WriteString("\n")
	sb.WriteString(taskInstructions(req))
	return sb.String()
}

func taskInstructions(req Request) string {
	switch req.Type {
	case AnalysisBudget:
		return fmt.Sprintf(`The monthly budget is %s. Analyze current spending against it and provide:
1. Budget performance assessment
2. Areas where spending can be optimized
3. Specific recommendations to stay within budget
4. Warning signs to watch for`, req.MonthlyBudget.Display())

	case AnalysisSavings:
		return `Identify money-saving opportunities. Analyze the spending data and suggest:
1. Categories where spending can be reduced
2. Specific cost-cutting strategies
3. Alternative approaches to expensive habits
4. Long-term savings strategies`

	default:
		return `Analyze the spending patterns in this data and provide insights about:
1. Overall spending behavior
2. Top spending categories
3. Any concerning patterns
4. Recommendations for improvement`
	}
}
