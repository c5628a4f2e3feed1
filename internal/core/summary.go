package core

import "sort"

// CategoryAmount is an expense total aggregated by category.
type CategoryAmount struct {
	Category string `json:"category"`
	Amount   Money  `json:"amount"`
}

// MonthSummary is the overview for one year+month: totals and the expense
// breakdown by category.
type MonthSummary struct {
	Year       int              `json:"year"`
	Month      int              `json:"month"`
	Income     Money            `json:"income"`
	Expense    Money            `json:"expense"`
	Balance    Money            `json:"balance"`
	ByCategory []CategoryAmount `json:"byCategory"`
}

// Summarize aggregates the transactions that fall in year+month. Balance is
// income minus expense; the breakdown covers expenses only, largest first.
func Summarize(txs []Transaction, year, month int) MonthSummary {
	s := MonthSummary{Year: year, Month: month, ByCategory: []CategoryAmount{}}
	perCategory := make(map[string]int64)
	for _, tx := range txs {
		if !tx.Date.InMonth(year, month) {
			continue
		}
		switch tx.Type {
		case Income:
			s.Income.Cents += tx.Amount.Cents
		case Expense:
			s.Expense.Cents += tx.Amount.Cents
			perCategory[tx.Category] += tx.Amount.Cents
		}
	}
	s.Balance.Cents = s.Income.Cents - s.Expense.Cents
	for category, cents := range perCategory {
		s.ByCategory = append(s.ByCategory, CategoryAmount{Category: category, Amount: Money{Cents: cents}})
	}
	sort.Slice(s.ByCategory, func(i, j int) bool {
		if s.ByCategory[i].Amount.Cents != s.ByCategory[j].Amount.Cents {
			return s.ByCategory[i].Amount.Cents > s.ByCategory[j].Amount.Cents
		}
		return s.ByCategory[i].Category < s.ByCategory[j].Category
	})
	return s
}
