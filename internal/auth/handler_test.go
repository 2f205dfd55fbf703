package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/Keda87/simple-banking-api/internal/auth"
	"github.com/Keda87/simple-banking-api/internal/shared"
	_ "github.com/Keda87/simple-banking-api/testing"
)

type stubRepo struct {
	user *auth.User
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || !strings.EqualFold(email, s.user.Email) {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

type harness struct {
	mr       *miniredis.Miniredis
	sessions *shared.SessionManager
	router   chi.Router
}

func newHarness(t *testing.T, repo auth.Repository) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(redisClient, "test_session", time.Hour, false)
	handler := auth.NewHandler(nil, auth.NewService(repo), sessions, shared.NewCSRFManager("csrfsecret"))
	r := chi.NewRouter()
	r.Route("/auth", handler.MountRoutes)
	return &harness{mr: mr, sessions: sessions, router: r}
}

// serve runs req against the router with the session loaded beforehand and
// committed afterwards, returning the session as the handler left it.
func (h *harness) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	sess, err := h.sessions.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	res := httptest.NewRecorder()
	h.router.ServeHTTP(res, req)
	if err := h.sessions.Commit(context.Background(), res, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}
	return res, sess
}

func loginRequest(body string, sessionID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: "test_session", Value: sessionID})
	}
	return req
}

func hashed(t *testing.T, password string) string {
	t.Helper()
	out, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return string(out)
}

func TestSessionIssuesCSRFToken(t *testing.T) {
	h := newHarness(t, &stubRepo{})

	res, sess := h.serve(t, httptest.NewRequest(http.MethodGet, "/auth/session", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	var body struct {
		Authenticated bool   `json:"authenticated"`
		CSRFToken     string `json:"csrf_token"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Authenticated {
		t.Fatalf("anonymous session reported as authenticated")
	}
	if body.CSRFToken == "" || body.CSRFToken != sess.Get(shared.CSRFSessionKey) {
		t.Fatalf("csrf token not bound to session")
	}
	if !h.mr.Exists("session:" + sess.ID) {
		t.Fatalf("session with token should be persisted")
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	h := newHarness(t, &stubRepo{user: &auth.User{ID: 1, Email: "user@test.local", PasswordHash: hashed(t, "correctpass"), IsActive: true}})

	res, sess := h.serve(t, loginRequest(`{"email":"user@test.local","password":"wrongpass"}`, ""))
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
	if sess.User() != "" {
		t.Fatalf("failed login must not bind a user")
	}
}

func TestLoginRejectsInactiveCustomer(t *testing.T) {
	h := newHarness(t, &stubRepo{user: &auth.User{ID: 1, Email: "user@test.local", PasswordHash: hashed(t, "correctpass")}})

	res, _ := h.serve(t, loginRequest(`{"email":"user@test.local","password":"correctpass"}`, ""))
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}

func TestLoginValidation(t *testing.T) {
	h := newHarness(t, &stubRepo{})

	res, _ := h.serve(t, loginRequest(`{"email":"not-an-email"}`, ""))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	var fields map[string][]string
	if err := json.Unmarshal(res.Body.Bytes(), &fields); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(fields["email"]) == 0 || len(fields["password"]) == 0 {
		t.Fatalf("expected email and password errors, got %v", fields)
	}
}

func TestLoginRenewsSession(t *testing.T) {
	h := newHarness(t, &stubRepo{user: &auth.User{ID: 42, Email: "user@test.local", PasswordHash: hashed(t, "correctpass"), IsActive: true}})

	_, anon := h.serve(t, httptest.NewRequest(http.MethodGet, "/auth/session", nil))
	anonID := anon.ID
	anonToken := anon.Get(shared.CSRFSessionKey)

	res, sess := h.serve(t, loginRequest(`{"email":"user@test.local","password":"correctpass"}`, anonID))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if sess.ID == anonID {
		t.Fatalf("session id must change on login")
	}
	if sess.User() != "42" {
		t.Fatalf("expected user 42, got %q", sess.User())
	}
	if h.mr.Exists("session:" + anonID) {
		t.Fatalf("pre-login session must be removed")
	}
	if !h.mr.Exists("session:" + sess.ID) {
		t.Fatalf("renewed session must be stored")
	}
	if token := sess.Get(shared.CSRFSessionKey); token == "" || token == anonToken {
		t.Fatalf("csrf token must be reissued on login")
	}
}

func TestLogoutDestroysSession(t *testing.T) {
	h := newHarness(t, &stubRepo{user: &auth.User{ID: 7, Email: "user@test.local", PasswordHash: hashed(t, "correctpass"), IsActive: true}})
	_, sess := h.serve(t, loginRequest(`{"email":"user@test.local","password":"correctpass"}`, ""))

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "test_session", Value: sess.ID})
	res, _ := h.serve(t, req)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	if h.mr.Exists("session:" + sess.ID) {
		t.Fatalf("session must be deleted on logout")
	}
}
