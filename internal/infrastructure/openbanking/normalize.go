package openbanking

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Shawndas06/bank-aggregator/internal/domain/banking"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// rawTransaction is the dialect-independent intermediate every variant fills in.
type rawTransaction struct {
	id        string
	timestamp string
	info      string
	amount    decimal.Decimal
	currency  string
	indicator string
	mcc       string
}

// normalizeTransactions turns raw rows into banking transactions. Amounts are
// made non-negative; a signed amount without an indicator is read by its sign.
func (c *client) normalizeTransactions(op, accountID string, rows []rawTransaction) ([]banking.Transaction, error) {
	out := make([]banking.Transaction, 0, len(rows))
	for i, r := range rows {
		ts, err := parseTimestamp(r.timestamp)
		if err != nil {
			return nil, c.fail(op, 0, err)
		}
		dir := banking.ParseDirection(r.indicator)
		if r.indicator == "" && r.amount.IsPositive() {
			dir = banking.Credit
		}
		id := r.id
		if id == "" {
			id = accountID + "-" + strconv.Itoa(i)
		}
		out = append(out, banking.Transaction{
			ID:                   id,
			Timestamp:            ts,
			Description:          r.info,
			Amount:               r.amount.Abs(),
			Currency:             orDefault(r.currency, c.baseCurrency),
			Direction:            dir,
			MerchantCategoryCode: r.mcc,
		})
	}
	return out, nil
}

func limitQuery(limit int) string {
	if limit <= 0 {
		return ""
	}
	return strconv.Itoa(limit)
}
