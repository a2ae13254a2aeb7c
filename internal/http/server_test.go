package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tally/internal/auth"
	"tally/internal/services"
	"tally/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	repo, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}

	hash, err := auth.HashPassword("hunter2-long-enough")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if _, err := repo.CreateUser(context.Background(), "alice", hash); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	svc := services.NewLedgerService(repo, nil)
	srv := NewServer(":0", svc, Options{SessionTTL: time.Hour})
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		_ = svc.Close()
	})
	return srv
}

// login performs a form login and returns the session cookie.
func login(t *testing.T, srv *Server) *http.Cookie {
	t.Helper()

	form := url.Values{"username": {"alice"}, "password": {"hunter2-long-enough"}}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusSeeOther {
		t.Fatalf("login status = %d, want 303", rr.Code)
	}
	for _, c := range rr.Result().Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	t.Fatal("login did not set a session cookie")
	return nil
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		srv.Handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rr.Code)
		}
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		form url.Values
	}{
		{"wrong password", url.Values{"username": {"alice"}, "password": {"nope"}}},
		{"unknown user", url.Values{"username": {"mallory"}, "password": {"whatever"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			srv.Handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rr.Code)
			}
			if len(rr.Result().Cookies()) != 0 {
				t.Error("failed login must not set cookies")
			}
		})
	}
}

func TestUnauthenticatedRequests(t *testing.T) {
	srv := newTestServer(t)

	// Plain browser request: redirect to the login page.
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusSeeOther {
		t.Errorf("status = %d, want 303", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "/login" {
		t.Errorf("Location = %q, want /login", loc)
	}

	// HTMX request: 401 plus a client-side redirect header.
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/ui/month-overview", nil)
	req.Header.Set("HX-Request", "true")
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("HTMX status = %d, want 401", rr.Code)
	}
	if redir := rr.Header().Get("HX-Redirect"); redir != "/login" {
		t.Errorf("HX-Redirect = %q, want /login", redir)
	}
}

func TestDashboardAfterLogin(t *testing.T) {
	srv := newTestServer(t)
	cookie := login(t, srv)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "alice") {
		t.Error("dashboard body missing username")
	}
}

func TestCreateExpenseFlow(t *testing.T) {
	srv := newTestServer(t)
	cookie := login(t, srv)

	// Invalid amount is rejected before it reaches storage.
	form := url.Values{"description": {"Coffee"}, "amount": {"abc"}}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/expenses", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid amount status = %d, want 422", rr.Code)
	}

	// Valid expense succeeds and announces the changed month.
	form = url.Values{
		"description": {"Coffee"},
		"amount":      {"4.75"},
		"date":        {"2026-03-15"},
	}
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/expenses", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("create status = %d, body = %s", rr.Code, rr.Body.String())
	}
	trigger := rr.Header().Get("HX-Trigger")
	if !strings.Contains(trigger, `"expense:changed"`) || !strings.Contains(trigger, `"2026-03"`) {
		t.Errorf("HX-Trigger = %q, want expense:changed for 2026-03", trigger)
	}
	if !strings.Contains(rr.Body.String(), "Coffee") {
		t.Errorf("body = %q, want confirmation with description", rr.Body.String())
	}

	// The listing shows it.
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/expenses", nil)
	req.AddCookie(cookie)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Coffee") {
		t.Error("expense list missing the created expense")
	}
}

func TestBudgetUpsertFlow(t *testing.T) {
	srv := newTestServer(t)
	cookie := login(t, srv)

	post := func(amount string) *httptest.ResponseRecorder {
		form := url.Values{"month": {"2026-03"}, "amount": {amount}}
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/budget", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.AddCookie(cookie)
		srv.Handler.ServeHTTP(rr, req)
		return rr
	}

	first := post("100.00")
	if first.Code != http.StatusOK {
		t.Fatalf("first set status = %d, body = %s", first.Code, first.Body.String())
	}
	if !strings.Contains(first.Header().Get("HX-Trigger"), `"budget:changed"`) {
		t.Error("first set missing budget:changed trigger")
	}

	// Setting again replaces the amount rather than erroring.
	second := post("250.00")
	if second.Code != http.StatusOK {
		t.Fatalf("second set status = %d, body = %s", second.Code, second.Body.String())
	}

	// The overview partial reflects the latest budget.
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ui/month-overview?month=2026-03", nil)
	req.AddCookie(cookie)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("overview status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "250.00") {
		t.Errorf("overview body missing updated budget: %s", rr.Body.String())
	}
}

func TestLogoutClearsSession(t *testing.T) {
	srv := newTestServer(t)
	cookie := login(t, srv)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(cookie)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("logout status = %d, want 303", rr.Code)
	}

	// The old cookie no longer grants access.
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusSeeOther {
		t.Errorf("post-logout status = %d, want 303 redirect to login", rr.Code)
	}
}
