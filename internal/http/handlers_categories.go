package http

import (
	"log/slog"
	"net/http"
	"strings"
	"unicode"

	"tally/internal/core"
)

// handleSaveCategories overwrites the category set with the rows posted by
// the editor. Clearing a row's name removes that category; a new row gets
// its id derived from the name.
func (s *Server) handleSaveCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	categories, msg := categoriesFromForm(r.Form["id"], r.Form["label"], r.Form["icon"], r.Form["color"])
	if msg != "" {
		writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}

	if err := s.store.SaveCategories(r.Context(), categories); err != nil {
		slog.ErrorContext(r.Context(), "category save error", "error", err, "count", len(categories))
		writeError(w, http.StatusInternalServerError, "Could not save categories")
		return
	}

	s.invalidateData()
	// The entry form's category select is rendered with the page, so a save
	// reloads the page wholesale.
	w.Header().Set("HX-Refresh", "true")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<div class="success">Categories saved</div>`))
}

// categoriesFromForm builds the replacement set from the editor's parallel
// row values. Rows with a blank name are dropped. Returns a user-facing
// message when the rows cannot form a valid set.
func categoriesFromForm(ids, labels, icons, colors []string) ([]core.Category, string) {
	out := make([]core.Category, 0, len(labels))
	seen := make(map[string]bool, len(labels))
	for i, rawLabel := range labels {
		label := sanitizeInput(rawLabel)
		if label == "" {
			continue
		}
		id := sanitizeInput(rowValue(ids, i))
		if id == "" {
			id = categorySlug(label)
		}
		if id == "" {
			return nil, "Invalid category name: " + label
		}
		if seen[id] {
			return nil, "Duplicate category: " + label
		}
		seen[id] = true
		out = append(out, core.Category{
			ID:    id,
			Label: label,
			Icon:  sanitizeInput(rowValue(icons, i)),
			Color: sanitizeInput(rowValue(colors, i)),
		})
	}
	if len(out) == 0 {
		return nil, "At least one category is required"
	}
	return out, ""
}

func rowValue(values []string, i int) string {
	if i < len(values) {
		return values[i]
	}
	return ""
}

// categorySlug turns a display name into a stable lowercase id
// ("Eating Out" becomes "eating-out").
func categorySlug(label string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(label) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteRune('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
