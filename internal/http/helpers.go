package http

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// parseYearMonth extracts year and month from query parameters.
// Returns current year/month as defaults if not provided or invalid.
func parseYearMonth(r *http.Request) (year, month int) {
	now := time.Now()
	year = now.Year()
	month = int(now.Month())

	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil {
			year = y
		}
	}
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		if m, err := strconv.Atoi(v); err == nil {
			month = m
		}
	}
	if month < 1 || month > 12 {
		month = int(now.Month())
	}

	return year, month
}

// formatAmount renders cents in the currency's own display format,
// e.g. "€12.34" or "$1,234.56".
func formatAmount(cents int64, code string) string {
	return money.New(cents, code).Display()
}

// currencyChoices lists the codes offered by the entry form: the base
// currency first, then a handful of common ones.
func currencyChoices(base string) []string {
	out := []string{base}
	for _, code := range []string{"EUR", "USD", "GBP", "CHF", "JPY"} {
		if code != base {
			out = append(out, code)
		}
	}
	return out
}

// writeError renders the standard error div that HTMX swaps into the result
// slot. The message is HTML-escaped.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.WriteHeader(statusCode)
	_, _ = w.Write([]byte(`<div class="error">` + template.HTMLEscapeString(message) + `</div>`))
}

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}
