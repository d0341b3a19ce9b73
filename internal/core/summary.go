package core

import (
	"math"
	"sort"
	"time"
)

// BudgetAlertPercent is the budget usage from which views raise an alert.
const BudgetAlertPercent = 60

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name    string
	Amount  Amount
	Percent int // share of the breakdown total, rounded
}

// MonthTotals holds income and expense totals for one calendar month.
type MonthTotals struct {
	Year    int
	Month   time.Month
	Income  Amount
	Expense Amount
}

// MonthOverview is a compact summary for a specific year+month.
type MonthOverview struct {
	Year        int
	Month       time.Month
	Income      Amount
	Expense     Amount
	BudgetUsed  int
	BudgetAlert bool
	ByCategory  []CategoryAmount // expenses of the month
}

// FilterByType returns the transactions of type t, preserving order.
func FilterByType(txs []Transaction, t TransactionType) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Type == t {
			out = append(out, tx)
		}
	}
	return out
}

// Total sums all transactions of type t regardless of date.
func Total(txs []Transaction, t TransactionType) Amount {
	var sum Amount
	for _, tx := range txs {
		if tx.Type == t {
			sum += tx.Amount
		}
	}
	return sum
}

// MonthlyTotal sums the transactions of type t dated in year/month.
func MonthlyTotal(txs []Transaction, t TransactionType, year int, month time.Month) Amount {
	var sum Amount
	for _, tx := range txs {
		if tx.Type == t && tx.InMonth(year, month) {
			sum += tx.Amount
		}
	}
	return sum
}

// CategoryBreakdown groups transactions of type t by category. Categories keep
// the order in which they first appear.
func CategoryBreakdown(txs []Transaction, t TransactionType) []CategoryAmount {
	index := map[string]int{}
	var out []CategoryAmount
	var total Amount
	for _, tx := range txs {
		if tx.Type != t {
			continue
		}
		i, ok := index[tx.Category]
		if !ok {
			i = len(out)
			index[tx.Category] = i
			out = append(out, CategoryAmount{Name: tx.Category})
		}
		out[i].Amount += tx.Amount
		total += tx.Amount
	}
	for i := range out {
		out[i].Percent = Percent(out[i].Amount, total)
	}
	return out
}

// TopCategories returns the n largest categories, largest first. Ties keep
// their breakdown order.
func TopCategories(breakdown []CategoryAmount, n int) []CategoryAmount {
	sorted := append([]CategoryAmount(nil), breakdown...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Amount > sorted[j].Amount
	})
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// Percent returns part/total*100 rounded half up, or 0 when total is not positive.
func Percent(part, total Amount) int {
	if total <= 0 {
		return 0
	}
	return int(math.Floor(float64(part)/float64(total)*100 + 0.5))
}

// BudgetUsedPercent is the share of the monthly income already spent, capped
// at 100. monthlyIncome is in currency units, as the profile declares it.
func BudgetUsedPercent(spent Amount, monthlyIncome float64) int {
	if monthlyIncome <= 0 {
		return 0
	}
	p := Percent(spent, AmountFromFloat(monthlyIncome))
	if p > 100 {
		return 100
	}
	return p
}

// MonthlySeries returns income and expense totals for the last n months
// ending with the month of now, oldest first.
func MonthlySeries(txs []Transaction, now time.Time, n int) []MonthTotals {
	if n <= 0 {
		return nil
	}
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	series := make([]MonthTotals, n)
	for i := 0; i < n; i++ {
		m := first.AddDate(0, -(n - 1 - i), 0)
		series[i] = MonthTotals{Year: m.Year(), Month: m.Month()}
	}
	for _, tx := range txs {
		if tx.Type != Income && tx.Type != Expense {
			continue
		}
		d, err := tx.ParsedDate()
		if err != nil {
			continue
		}
		for i := range series {
			if series[i].Year != d.Year() || series[i].Month != d.Month() {
				continue
			}
			if tx.Type == Income {
				series[i].Income += tx.Amount
			} else {
				series[i].Expense += tx.Amount
			}
			break
		}
	}
	return series
}

// AverageMonthlyIncome divides all recorded income by months, truncating
// to the cent.
func AverageMonthlyIncome(txs []Transaction, months int) Amount {
	if months <= 0 {
		return 0
	}
	return Total(txs, Income) / Amount(months)
}

// WalletsTotal sums balances of the wallets held in currency.
func WalletsTotal(wallets []Wallet, currency string) Amount {
	var sum Amount
	for _, w := range wallets {
		if w.Currency == currency {
			sum += w.Balance
		}
	}
	return sum
}

// Overview builds the month summary a dashboard shows for year/month.
// monthlyIncome is the user's declared income used for the budget gauge.
func Overview(txs []Transaction, year int, month time.Month, monthlyIncome float64) MonthOverview {
	var inMonth []Transaction
	for _, tx := range txs {
		if tx.InMonth(year, month) {
			inMonth = append(inMonth, tx)
		}
	}
	expense := Total(inMonth, Expense)
	used := BudgetUsedPercent(expense, monthlyIncome)
	return MonthOverview{
		Year:        year,
		Month:       month,
		Income:      Total(inMonth, Income),
		Expense:     expense,
		BudgetUsed:  used,
		BudgetAlert: used >= BudgetAlertPercent,
		ByCategory:  CategoryBreakdown(inMonth, Expense),
	}
}
