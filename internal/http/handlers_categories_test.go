package http

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestSaveCategoriesValidationAndSuccess(t *testing.T) {
	fs := newFakeStore()
	srv := newTestServer(t, fs)

	// Wrong method
	rr := get(srv, "/categories")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}

	// No usable rows
	rr = postForm(srv, "/categories", "id=&icon=&label=&color=%239aa3af")
	if rr.Code != 422 || !strings.Contains(rr.Body.String(), "At least one category") {
		t.Fatalf("empty set: expected 422, got %d: %s", rr.Code, rr.Body.String())
	}

	// Two new rows collapsing to the same id
	rr = postForm(srv, "/categories",
		"id=&icon=&label=Rent&color=%23111111"+
			"&id=&icon=&label=rent&color=%23222222")
	if rr.Code != 422 || !strings.Contains(rr.Body.String(), "Duplicate category") {
		t.Fatalf("duplicate: expected 422, got %d: %s", rr.Code, rr.Body.String())
	}

	// A name with no usable characters cannot form an id
	rr = postForm(srv, "/categories", "id=&icon=&label=%21%21%21&color=%23111111")
	if rr.Code != 422 || !strings.Contains(rr.Body.String(), "Invalid category name") {
		t.Fatalf("bad name: expected 422, got %d: %s", rr.Code, rr.Body.String())
	}

	// Success: one kept row, one new row, one blank row (ignored)
	rr = postForm(srv, "/categories",
		"id=groceries&icon=g&label=Groceries&color=%234caf50"+
			"&id=&icon=e&label=Eating+Out&color=%23ff8800"+
			"&id=&icon=&label=&color=%239aa3af")
	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "Categories saved") {
		t.Fatalf("expected confirmation, got: %s", rr.Body.String())
	}
	if rr.Header().Get("HX-Refresh") != "true" {
		t.Fatalf("expected HX-Refresh header, got %q", rr.Header().Get("HX-Refresh"))
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.ds.Categories) != 2 {
		t.Fatalf("expected 2 categories, got %+v", fs.ds.Categories)
	}
	if fs.ds.Categories[0].ID != "groceries" || fs.ds.Categories[0].Label != "Groceries" {
		t.Fatalf("unexpected first category: %+v", fs.ds.Categories[0])
	}
	if fs.ds.Categories[1].ID != "eating-out" || fs.ds.Categories[1].Label != "Eating Out" {
		t.Fatalf("new row did not get a derived id: %+v", fs.ds.Categories[1])
	}
}

func TestSaveCategoriesStoreFailure(t *testing.T) {
	fs := newFakeStore()
	fs.saveErr = errors.New("disk full")
	srv := newTestServer(t, fs)

	rr := postForm(srv, "/categories", "id=rent&icon=&label=Rent&color=%232196f3")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `class="error"`) {
		t.Fatalf("expected error fragment, got: %s", rr.Body.String())
	}
}

func TestCategorySlug(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Groceries", "groceries"},
		{"Eating Out", "eating-out"},
		{"A  B", "a-b"},
		{"2nd Car", "2nd-car"},
		{"Café", "café"},
		{"trailing ", "trailing"},
		{"!!!", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := categorySlug(tc.in); got != tc.want {
			t.Fatalf("%q: expected %q, got %q", tc.in, tc.want, got)
		}
	}
}
