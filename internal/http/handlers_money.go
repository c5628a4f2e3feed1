package http

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tally/internal/core"
)

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		slog.ErrorContext(r.Context(), "parse form error", "error", err, "method", r.Method, "url", r.URL.Path)
		writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	dateStr := strings.TrimSpace(r.Form.Get("date"))
	if dateStr == "" {
		dateStr = time.Now().Format(core.DateLayout)
	}
	date, err := core.ParseDate(dateStr)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid date")
		return
	}

	txType := core.TxType(sanitizeInput(r.Form.Get("type")))
	if txType == "" {
		txType = core.Expense
	}
	if !txType.IsValid() {
		writeError(w, http.StatusUnprocessableEntity, "Invalid entry type")
		return
	}
	category := sanitizeInput(r.Form.Get("category"))
	if category == "" {
		writeError(w, http.StatusUnprocessableEntity, "Missing category")
		return
	}
	note := sanitizeInput(r.Form.Get("note"))
	amountStr := strings.TrimSpace(r.Form.Get("amount"))

	cents, err := core.ParseDecimalToCents(amountStr)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid amount")
		return
	}

	// Foreign-currency entries convert to the base currency at entry time.
	// On any conversion failure the original amount is stored unchanged.
	amount := core.Money{Cents: cents}
	if from := strings.ToUpper(sanitizeInput(r.Form.Get("currency"))); from != "" && from != s.baseCurrency && s.converter != nil {
		amount = s.converter.Convert(r.Context(), amount, from, s.baseCurrency)
	}

	tx := core.Transaction{
		Date:     date,
		Type:     txType,
		Category: category,
		Amount:   amount,
		Note:     note,
	}

	stored, err := s.store.AddTransaction(r.Context(), tx)
	if err != nil {
		slog.ErrorContext(r.Context(), "transaction append error", "error", err, "category", tx.Category, "amount", tx.Amount.Cents)
		writeError(w, http.StatusInternalServerError, "Could not save the entry")
		return
	}

	s.invalidateData()
	s.triggerChanged(w, stored.Date.Year(), stored.Date.Month())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<div class="success">Recorded ` + template.HTMLEscapeString(string(stored.Type)) +
		` of ` + template.HTMLEscapeString(formatAmount(stored.Amount.Cents, s.baseCurrency)) +
		` (` + template.HTMLEscapeString(stored.Category) + `)</div>`))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	id := sanitizeInput(r.Form.Get("id"))
	if id == "" {
		writeError(w, http.StatusUnprocessableEntity, "Missing entry id")
		return
	}

	if err := s.store.DeleteTransaction(r.Context(), id); err != nil {
		status, msg := deleteFailure(err)
		slog.ErrorContext(r.Context(), "transaction delete error", "error", err, "id", id)
		writeError(w, status, msg)
		return
	}

	now := time.Now()
	s.invalidateData()
	s.triggerChanged(w, now.Year(), int(now.Month()))
	w.WriteHeader(http.StatusOK)
}

// triggerChanged tells the HTMX client which month changed so the open
// partials refresh themselves.
func (s *Server) triggerChanged(w http.ResponseWriter, year, month int) {
	w.Header().Set("HX-Trigger", `{"tally:changed": {"year": `+strconv.Itoa(year)+`, "month": `+strconv.Itoa(month)+`}}`)
}

func deleteFailure(err error) (int, string) {
	if errors.Is(err, core.ErrNotFound) {
		return http.StatusNotFound, "Entry not found"
	}
	return http.StatusInternalServerError, "Could not delete the entry"
}

// handleMonthOverview renders the monthly overview partial: totals, the
// category breakdown and the month's entries.
func (s *Server) handleMonthOverview(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	year, month := parseYearMonth(r)

	ds, err := s.getDataset(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "month overview error", "error", err, "year", year, "month", month)
		_, _ = w.Write([]byte(`<section id="month-overview" class="month-overview"><div class="placeholder">Could not load the overview</div></section>`))
		return
	}

	summary := core.Summarize(ds.Transactions, year, month)

	if s.templates == nil {
		_, _ = w.Write([]byte(`<section id="month-overview" class="month-overview"><div class="placeholder">Balance: ` + formatAmount(summary.Balance.Cents, s.baseCurrency) + `</div></section>`))
		return
	}

	// Scale the category bars against the biggest category.
	var maxCents int64
	for _, row := range summary.ByCategory {
		if row.Amount.Cents > maxCents {
			maxCents = row.Amount.Cents
		}
	}

	type categoryRow struct {
		Name, Amount string
		Width        int
	}
	type txRow struct {
		ID       string
		Day      int
		Category string
		Note     string
		Amount   string
		Expense  bool
	}

	prevYear, prevMonth := year, month-1
	if prevMonth < 1 {
		prevYear, prevMonth = year-1, 12
	}
	nextYear, nextMonth := year, month+1
	if nextMonth > 12 {
		nextYear, nextMonth = year+1, 1
	}

	data := struct {
		Year      int
		Month     int
		MonthName string
		PrevYear  int
		PrevMonth int
		NextYear  int
		NextMonth int
		Income    string
		Expense   string
		Balance   string
		Negative  bool
		Rows      []categoryRow
		Items     []txRow

		AltCurrency string
		AltBalance  string
	}{
		Year:      year,
		Month:     month,
		MonthName: time.Month(month).String(),
		PrevYear:  prevYear,
		PrevMonth: prevMonth,
		NextYear:  nextYear,
		NextMonth: nextMonth,
		Income:    formatAmount(summary.Income.Cents, s.baseCurrency),
		Expense:   formatAmount(summary.Expense.Cents, s.baseCurrency),
		Balance:   formatAmount(summary.Balance.Cents, s.baseCurrency),
		Negative:  summary.Balance.Cents < 0,
	}

	for _, row := range summary.ByCategory {
		width := 0
		if maxCents > 0 && row.Amount.Cents > 0 {
			width = int((row.Amount.Cents*100 + maxCents/2) / maxCents) // rounded percent
			if width > 0 && width < 2 {                                 // ensure visibility for very small values
				width = 2
			}
			if width > 100 {
				width = 100
			}
		}
		data.Rows = append(data.Rows, categoryRow{
			Name:   row.Category,
			Amount: formatAmount(row.Amount.Cents, s.baseCurrency),
			Width:  width,
		})
	}

	for _, tx := range ds.Transactions {
		if !tx.Date.InMonth(year, month) {
			continue
		}
		data.Items = append(data.Items, txRow{
			ID:       tx.ID,
			Day:      tx.Date.Day(),
			Category: tx.Category,
			Note:     tx.Note,
			Amount:   formatAmount(tx.Amount.Cents, s.baseCurrency),
			Expense:  tx.Type == core.Expense,
		})
	}

	// An optional ?currency=USD shows the balance converted. Conversion is
	// best effort: on failure the hint carries the original amount.
	if alt := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("currency"))); alt != "" && alt != s.baseCurrency && s.converter != nil {
		converted := s.converter.Convert(r.Context(), summary.Balance, s.baseCurrency, alt)
		data.AltCurrency = alt
		data.AltBalance = formatAmount(converted.Cents, alt)
	}

	if err := s.templates.ExecuteTemplate(w, "month_overview.html", data); err != nil {
		slog.ErrorContext(r.Context(), "template execution error", "error", err, "template", "month_overview.html", "year", year, "month", month)
		_, _ = w.Write([]byte(`<section id="month-overview" class="month-overview"><div class="placeholder">Could not render the overview</div></section>`))
		return
	}
}
