// Package analytics computes spending summaries over the aggregated
// balances and transactions of a user.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Shawndas06/bank-aggregator/internal/domain/aggregation"
	"github.com/Shawndas06/bank-aggregator/internal/domain/banking"
	"github.com/Shawndas06/bank-aggregator/internal/domain/provider"
)

var analyticsTracer = otel.Tracer("bank-aggregator/analytics")

const (
	topCategoriesLimit   = 5
	topTransactionsLimit = 5
)

var hundred = decimal.NewFromInt(100)

// Clock returns the current time.
type Clock func() time.Time

// Source supplies the aggregated data. *aggregation.Service satisfies it.
type Source interface {
	GetAllBalances(ctx context.Context, userID int64, providerIDs []provider.ID) (aggregation.BalancesResult, error)
	CollectTransactions(ctx context.Context, userID int64, providerIDs []provider.ID, start, end *time.Time) ([]aggregation.AccountTransaction, int, error)
}

// TransactionRef is a short view of a transaction inside a category.
type TransactionRef struct {
	ID          string          `json:"id"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// CategoryTotal is the spending of one category.
type CategoryTotal struct {
	Category        Category         `json:"category"`
	Name            string           `json:"categoryName"`
	Amount          decimal.Decimal  `json:"amount"`
	Count           int              `json:"count"`
	Percentage      decimal.Decimal  `json:"percentage"`
	TopTransactions []TransactionRef `json:"topTransactions,omitempty"`
}

// MonthSummary compares the current month with the previous full month.
type MonthSummary struct {
	Expenses         decimal.Decimal `json:"expenses"`
	Income           decimal.Decimal `json:"income"`
	ExpenseChangePct decimal.Decimal `json:"expenseChange"`
	IncomeChangePct  decimal.Decimal `json:"incomeChange"`
}

// Overview is the dashboard summary of a user.
type Overview struct {
	TotalBalance      decimal.Decimal            `json:"totalBalance"`
	BalanceByCurrency map[string]decimal.Decimal `json:"balanceByCurrency"`
	CurrentMonth      MonthSummary               `json:"currentMonth"`
	TopCategories     []CategoryTotal            `json:"topCategories"`
	AccountsCount     int                        `json:"accountsCount"`
	Omitted           int                        `json:"omitted"`
}

// Engine computes overviews and category breakdowns.
type Engine struct {
	source Source
	clock  Clock
	logger *zap.Logger
}

// NewEngine creates an analytics engine. A nil clock means time.Now.
func NewEngine(source Source, clock Clock, logger *zap.Logger) *Engine {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{source: source, clock: clock, logger: logger}
}

// monthWindows returns the start of the current and of the previous month.
func monthWindows(now time.Time) (current, previous time.Time) {
	y, m, _ := now.Date()
	current = time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
	return current, current.AddDate(0, -1, 0)
}

// GetOverview sums balances, compares this month's expenses and income with
// the previous month and lists the top spending categories of this month.
func (e *Engine) GetOverview(ctx context.Context, userID int64, providerIDs []provider.ID) (Overview, error) {
	ctx, span := analyticsTracer.Start(ctx, "analytics.GetOverview",
		trace.WithAttributes(attribute.Int64("user_id", userID)))
	defer span.End()

	balances, err := e.source.GetAllBalances(ctx, userID, providerIDs)
	if err != nil {
		return Overview{}, fmt.Errorf("failed to load balances: %w", err)
	}

	ov := Overview{
		TotalBalance:      decimal.Zero,
		BalanceByCurrency: make(map[string]decimal.Decimal),
		AccountsCount:     len(balances.Balances) + balances.Omitted,
		Omitted:           balances.Omitted,
	}
	for _, b := range balances.Balances {
		ov.TotalBalance = ov.TotalBalance.Add(b.Balance.Amount)
		ov.BalanceByCurrency[b.Balance.Currency] = ov.BalanceByCurrency[b.Balance.Currency].Add(b.Balance.Amount)
	}

	now := e.clock()
	monthStart, prevStart := monthWindows(now)
	txs, omitted, err := e.source.CollectTransactions(ctx, userID, providerIDs, &prevStart, nil)
	if err != nil {
		return Overview{}, fmt.Errorf("failed to load transactions: %w", err)
	}
	ov.Omitted = max(ov.Omitted, omitted)

	var (
		curExpenses, curIncome   = decimal.Zero, decimal.Zero
		prevExpenses, prevIncome = decimal.Zero, decimal.Zero
		categories               = newCategoryAccumulator(false)
	)
	for _, tx := range txs {
		ts := tx.Timestamp.In(now.Location())
		switch {
		case !ts.Before(monthStart) && ts.Before(now):
			if tx.IsDebit() {
				curExpenses = curExpenses.Add(tx.Amount)
				categories.add(tx)
			} else {
				curIncome = curIncome.Add(tx.Amount)
			}
		case !ts.Before(prevStart) && ts.Before(monthStart):
			if tx.IsDebit() {
				prevExpenses = prevExpenses.Add(tx.Amount)
			} else {
				prevIncome = prevIncome.Add(tx.Amount)
			}
		}
	}

	ov.CurrentMonth = MonthSummary{
		Expenses:         curExpenses,
		Income:           curIncome,
		ExpenseChangePct: changePct(curExpenses, prevExpenses),
		IncomeChangePct:  changePct(curIncome, prevIncome),
	}
	ov.TopCategories = categories.totals(curExpenses)
	if len(ov.TopCategories) > topCategoriesLimit {
		ov.TopCategories = ov.TopCategories[:topCategoriesLimit]
	}

	if ov.Omitted > 0 {
		e.logger.Warn("Overview computed without some accounts",
			zap.Int64("user_id", userID),
			zap.Int("omitted", ov.Omitted))
	}
	return ov, nil
}

// GetCategoryBreakdown groups debits in the optional date range by category.
// Percentages are relative to the total of the range.
func (e *Engine) GetCategoryBreakdown(ctx context.Context, userID int64, providerIDs []provider.ID, start, end *time.Time) ([]CategoryTotal, error) {
	if start != nil && end != nil && start.After(*end) {
		return nil, fmt.Errorf("%w: start date is after end date", banking.ErrInvalidFilter)
	}

	ctx, span := analyticsTracer.Start(ctx, "analytics.GetCategoryBreakdown",
		trace.WithAttributes(attribute.Int64("user_id", userID)))
	defer span.End()

	txs, _, err := e.source.CollectTransactions(ctx, userID, providerIDs, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	total := decimal.Zero
	categories := newCategoryAccumulator(true)
	for _, tx := range txs {
		if !tx.IsDebit() {
			continue
		}
		total = total.Add(tx.Amount)
		categories.add(tx)
	}
	return categories.totals(total), nil
}

// changePct is (cur-prev)/prev*100 rounded to one decimal, 0 when prev is 0.
func changePct(cur, prev decimal.Decimal) decimal.Decimal {
	if prev.IsZero() {
		return decimal.Zero
	}
	return cur.Sub(prev).Div(prev).Mul(hundred).Round(1)
}

func percentage(part, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return part.Div(total).Mul(hundred).Round(1)
}

type categoryAccumulator struct {
	withTransactions bool
	byCategory       map[Category]*CategoryTotal
}

func newCategoryAccumulator(withTransactions bool) *categoryAccumulator {
	return &categoryAccumulator{
		withTransactions: withTransactions,
		byCategory:       make(map[Category]*CategoryTotal),
	}
}

func (a *categoryAccumulator) add(tx aggregation.AccountTransaction) {
	c := Categorize(tx.MerchantCategoryCode, tx.Description)
	ct, ok := a.byCategory[c]
	if !ok {
		ct = &CategoryTotal{Category: c, Name: c.Name(), Amount: decimal.Zero}
		a.byCategory[c] = ct
	}
	ct.Amount = ct.Amount.Add(tx.Amount)
	ct.Count++
	if a.withTransactions {
		ct.TopTransactions = append(ct.TopTransactions, TransactionRef{
			ID:          tx.ID,
			Date:        tx.Timestamp,
			Description: tx.Description,
			Amount:      tx.Amount,
		})
	}
}

// totals returns every category sorted by amount, largest first.
func (a *categoryAccumulator) totals(total decimal.Decimal) []CategoryTotal {
	out := make([]CategoryTotal, 0, len(a.byCategory))
	for _, ct := range a.byCategory {
		ct.Percentage = percentage(ct.Amount, total)
		if len(ct.TopTransactions) > 0 {
			sort.SliceStable(ct.TopTransactions, func(i, j int) bool {
				return ct.TopTransactions[i].Amount.GreaterThan(ct.TopTransactions[j].Amount)
			})
			if len(ct.TopTransactions) > topTransactionsLimit {
				ct.TopTransactions = ct.TopTransactions[:topTransactionsLimit]
			}
		}
		out = append(out, *ct)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Amount.Equal(out[j].Amount) {
			return out[i].Amount.GreaterThan(out[j].Amount)
		}
		return out[i].Category < out[j].Category
	})
	return out
}
