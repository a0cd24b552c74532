package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"StreamAccounts/internal/auth"
	"StreamAccounts/internal/domain"
	"StreamAccounts/internal/service"
	"StreamAccounts/internal/store/activeprofile"
	"StreamAccounts/internal/store/sqlite"
)

const testPassword = "Str0ng!Passw0rd"

type captureNotifier struct {
	mu  sync.Mutex
	got []domain.Notification
}

func (c *captureNotifier) Notify(_ context.Context, n domain.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, n)
}

func (c *captureNotifier) last(event domain.NotificationEvent) (domain.Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.got) - 1; i >= 0; i-- {
		if c.got[i].Event == event {
			return c.got[i], true
		}
	}
	return domain.Notification{}, false
}

type testServer struct {
	t        *testing.T
	handler  http.Handler
	store    *sqlite.Store
	notifier *captureNotifier
	signer   auth.ProofSigner
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("sqlite.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notifier := &captureNotifier{}
	signer := auth.NewProofSigner("0123456789abcdef0123456789abcdef")
	links := service.Links{FrontendURL: "https://app.example.com"}

	verification := &service.VerificationService{
		Users:    store,
		Proofs:   signer,
		Notifier: notifier,
		Links:    links,
		Logger:   logger,
	}
	roles := &service.AuthzService{Store: store}

	h := NewRouter(RouterOpts{
		Logger: logger,
		DBPing: store.Ping,
		Auth: &service.AuthService{
			Users:        store,
			Tokens:       store,
			Verification: verification,
			Logger:       logger,
		},
		Verification: verification,
		Reset: &service.PasswordResetService{
			Store:    store,
			Users:    store,
			Notifier: notifier,
			Links:    links,
		},
		Authz:    roles,
		Admin:    &service.AdminService{Users: store, Roles: store},
		Profiles: &service.ProfileService{Store: store, Active: activeprofile.NewMemoryStore(), Logger: logger},
	})

	return &testServer{t: t, handler: h, store: store, notifier: notifier, signer: signer}
}

type apiResponse struct {
	Status int
	Header http.Header
	Body   struct {
		Message string              `json:"message"`
		Error   string              `json:"error"`
		Errors  map[string][]string `json:"errors"`
		Data    json.RawMessage     `json:"data"`
		Detail  string              `json:"detail"`
	}
}

func (r apiResponse) data(t *testing.T, dst any) {
	t.Helper()
	if err := json.Unmarshal(r.Body.Data, dst); err != nil {
		t.Fatalf("decode data: %v (%s)", err, r.Body.Data)
	}
}

func (s *testServer) do(method, path, token string, body any) apiResponse {
	s.t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.1:1234"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	out := apiResponse{Status: rec.Code, Header: rec.Header()}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out.Body); err != nil {
			s.t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
		}
	}
	return out
}

func (s *testServer) expect(res apiResponse, status int) {
	s.t.Helper()
	if res.Status != status {
		s.t.Fatalf("expected status %d, got %d: %+v", status, res.Status, res.Body)
	}
}

func registerBody(email string) map[string]any {
	return map[string]any{
		"first_name":            "Ada",
		"last_name":             "Lovelace",
		"email":                 email,
		"password":              testPassword,
		"password_confirmation": testPassword,
	}
}

type authData struct {
	User struct {
		ID              string     `json:"id"`
		Email           string     `json:"email"`
		EmailVerifiedAt *time.Time `json:"email_verified_at"`
	} `json:"user"`
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
}

// register signs up a new user through the API and returns the user id and
// its first bearer token.
func (s *testServer) register(email string) (string, string) {
	s.t.Helper()
	res := s.do(http.MethodPost, "/auth/register", "", registerBody(email))
	s.expect(res, http.StatusCreated)
	var d authData
	res.data(s.t, &d)
	return d.User.ID, d.Token
}

// seedUser inserts an already verified user with the given roles and logs
// in, returning a bearer token.
func (s *testServer) seedUser(email string, roles ...string) (string, string) {
	s.t.Helper()
	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		s.t.Fatalf("HashPassword: %v", err)
	}
	now := time.Now().UTC()
	u, err := s.store.CreateUser(context.Background(), domain.NewUser{
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Seed",
		LastName:     "User",
		VerifiedAt:   &now,
	}, roles)
	if err != nil {
		s.t.Fatalf("CreateUser: %v", err)
	}
	res := s.do(http.MethodPost, "/auth/login", "", map[string]any{"email": email, "password": testPassword})
	s.expect(res, http.StatusOK)
	var d authData
	res.data(s.t, &d)
	return u.ID, d.Token
}

func (s *testServer) createProfile(token, name string) string {
	s.t.Helper()
	res := s.do(http.MethodPost, "/profiles", token, map[string]any{"name": name})
	s.expect(res, http.StatusCreated)
	var p profileResponse
	res.data(s.t, &p)
	return p.ID
}

func TestRegisterVerifyLoginFlow(t *testing.T) {
	s := newTestServer(t)

	res := s.do(http.MethodPost, "/auth/register", "", registerBody("Ada@Example.com"))
	s.expect(res, http.StatusCreated)
	if res.Body.Message != "User registered successfully. Please check your email to verify your account." {
		t.Fatalf("unexpected message: %q", res.Body.Message)
	}
	var reg authData
	res.data(t, &reg)
	if reg.Token == "" || reg.TokenType != "Bearer" || reg.User.Email != "ada@example.com" || reg.User.EmailVerifiedAt != nil {
		t.Fatalf("unexpected register data: %+v", reg)
	}

	n, ok := s.notifier.last(domain.EventEmailVerification)
	if !ok || n.UserID != reg.User.ID || !strings.Contains(n.Data["url"], "/verify-email/"+reg.User.ID+"/") {
		t.Fatalf("expected verification notification, got %+v", n)
	}

	login := map[string]any{"email": "ada@example.com", "password": testPassword}
	res = s.do(http.MethodPost, "/auth/login", "", login)
	s.expect(res, http.StatusForbidden)
	var unverified struct {
		RequiresVerification bool   `json:"requires_verification"`
		UserID               string `json:"user_id"`
	}
	res.data(t, &unverified)
	if !unverified.RequiresVerification || unverified.UserID != reg.User.ID {
		t.Fatalf("unexpected unverified data: %s", res.Body.Data)
	}

	res = s.do(http.MethodPost, "/auth/email/verify/"+reg.User.ID+"/deadbeef", "", nil)
	s.expect(res, http.StatusUnprocessableEntity)
	if res.Body.Error != "invalid_verification_link" {
		t.Fatalf("unexpected error code: %q", res.Body.Error)
	}

	proof := s.signer.Proof(reg.User.ID)
	res = s.do(http.MethodPost, "/auth/email/verify/"+reg.User.ID+"/"+proof, "", nil)
	s.expect(res, http.StatusOK)
	if res.Body.Message != "Email verified successfully!" {
		t.Fatalf("unexpected message: %q", res.Body.Message)
	}
	res = s.do(http.MethodPost, "/auth/email/verify/"+reg.User.ID+"/"+proof, "", nil)
	s.expect(res, http.StatusOK)
	if res.Body.Message != "Email already verified." {
		t.Fatalf("expected idempotent verify, got %q", res.Body.Message)
	}

	res = s.do(http.MethodPost, "/auth/login", "", login)
	s.expect(res, http.StatusOK)
	var in authData
	res.data(t, &in)
	if in.User.EmailVerifiedAt == nil {
		t.Fatalf("expected verified user after login")
	}

	res = s.do(http.MethodGet, "/auth/me", in.Token, nil)
	s.expect(res, http.StatusOK)
	var me struct {
		User        userResponse `json:"user"`
		Roles       []string     `json:"roles"`
		Permissions []string     `json:"permissions"`
	}
	res.data(t, &me)
	if me.User.ID != reg.User.ID || len(me.Roles) != 1 || me.Roles[0] != domain.RoleSubscriber {
		t.Fatalf("unexpected me: %+v", me)
	}
	if len(me.Permissions) != 1 || me.Permissions[0] != domain.PermStreamContent {
		t.Fatalf("unexpected permissions: %v", me.Permissions)
	}

	res = s.do(http.MethodPost, "/auth/email/resend-verification", in.Token, nil)
	s.expect(res, http.StatusOK)
	if res.Body.Message != "Email already verified." {
		t.Fatalf("unexpected resend message: %q", res.Body.Message)
	}
}

func TestRegisterValidation(t *testing.T) {
	s := newTestServer(t)

	body := registerBody("not-an-email")
	body["first_name"] = "R2D2"
	body["password_confirmation"] = "something else"
	body["phone"] = "call me"
	body["date_of_birth"] = "1899-12-31"

	res := s.do(http.MethodPost, "/auth/register", "", body)
	s.expect(res, http.StatusUnprocessableEntity)
	for _, field := range []string{"first_name", "email", "password", "phone", "date_of_birth"} {
		if len(res.Body.Errors[field]) == 0 {
			t.Fatalf("expected error for %s, got %v", field, res.Body.Errors)
		}
	}

	body = registerBody("weak@example.com")
	body["password"], body["password_confirmation"] = "weak", "weak"
	res = s.do(http.MethodPost, "/auth/register", "", body)
	s.expect(res, http.StatusUnprocessableEntity)
	if len(res.Body.Errors["password"]) < 2 {
		t.Fatalf("expected itemized password problems, got %v", res.Body.Errors)
	}

	s.register("taken@example.com")
	res = s.do(http.MethodPost, "/auth/register", "", registerBody("TAKEN@example.com"))
	s.expect(res, http.StatusUnprocessableEntity)
	if res.Body.Error != "email_taken" || len(res.Body.Errors["email"]) == 0 {
		t.Fatalf("expected email field error, got %+v", res.Body)
	}

	res = s.do(http.MethodPost, "/auth/register", "", nil)
	s.expect(res, http.StatusUnprocessableEntity)
	if res.Body.Error != "invalid_json" {
		t.Fatalf("expected invalid_json, got %q", res.Body.Error)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	s := newTestServer(t)
	s.seedUser("user@example.com", domain.RoleSubscriber)

	for _, email := range []string{"user@example.com", "nobody@example.com"} {
		res := s.do(http.MethodPost, "/auth/login", "", map[string]any{"email": email, "password": "Wr0ng!Password"})
		s.expect(res, http.StatusUnauthorized)
		if res.Body.Message != "Invalid credentials." {
			t.Fatalf("unexpected message: %q", res.Body.Message)
		}
	}
}

func TestLoginRateLimited(t *testing.T) {
	s := newTestServer(t)

	body := map[string]any{"email": "nobody@example.com", "password": "Wr0ng!Password"}
	for i := 0; i < 10; i++ {
		s.expect(s.do(http.MethodPost, "/auth/login", "", body), http.StatusUnauthorized)
	}
	res := s.do(http.MethodPost, "/auth/login", "", body)
	s.expect(res, http.StatusTooManyRequests)
	if res.Body.Error != "rate_limited" || res.Header.Get("Retry-After") == "" {
		t.Fatalf("expected rate limit response, got %+v %v", res.Body, res.Header)
	}
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/auth/me", "/profiles", "/auth/tokens"} {
		res := s.do(http.MethodGet, path, "", nil)
		s.expect(res, http.StatusUnauthorized)
		if res.Body.Error != "unauthenticated" {
			t.Fatalf("%s: unexpected error %q", path, res.Body.Error)
		}
		s.expect(s.do(http.MethodGet, path, "nope|nope", nil), http.StatusUnauthorized)
	}
}

func TestLogoutAndLogoutAll(t *testing.T) {
	s := newTestServer(t)
	_, first := s.seedUser("multi@example.com", domain.RoleSubscriber)

	login := map[string]any{"email": "multi@example.com", "password": testPassword, "device_name": "tv"}
	res := s.do(http.MethodPost, "/auth/login", "", login)
	s.expect(res, http.StatusOK)
	var second authData
	res.data(t, &second)
	res = s.do(http.MethodPost, "/auth/login", "", login)
	s.expect(res, http.StatusOK)
	var third authData
	res.data(t, &third)

	res = s.do(http.MethodPost, "/auth/logout", third.Token, nil)
	s.expect(res, http.StatusOK)
	if res.Body.Message != "Logged out successfully." {
		t.Fatalf("unexpected message: %q", res.Body.Message)
	}
	s.expect(s.do(http.MethodGet, "/auth/me", third.Token, nil), http.StatusUnauthorized)
	s.expect(s.do(http.MethodGet, "/auth/me", first, nil), http.StatusOK)

	res = s.do(http.MethodPost, "/auth/logout-all", first, nil)
	s.expect(res, http.StatusOK)
	if res.Body.Message != "Logged out from all devices successfully." {
		t.Fatalf("unexpected message: %q", res.Body.Message)
	}
	for _, tok := range []string{first, second.Token} {
		s.expect(s.do(http.MethodGet, "/auth/me", tok, nil), http.StatusUnauthorized)
	}
}

func TestTokensListAndRevoke(t *testing.T) {
	s := newTestServer(t)
	_, mine := s.seedUser("tokens@example.com", domain.RoleSubscriber)
	_, theirs := s.seedUser("other@example.com", domain.RoleSubscriber)

	res := s.do(http.MethodPost, "/auth/login", "", map[string]any{
		"email": "tokens@example.com", "password": testPassword, "device_name": "phone",
	})
	s.expect(res, http.StatusOK)

	res = s.do(http.MethodGet, "/auth/tokens", mine, nil)
	s.expect(res, http.StatusOK)
	var list struct {
		Tokens []tokenResponse `json:"tokens"`
	}
	res.data(t, &list)
	if len(list.Tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %+v", list.Tokens)
	}
	var current, phone tokenResponse
	for _, tok := range list.Tokens {
		if tok.Current {
			current = tok
		}
		if tok.Name == "phone" {
			phone = tok
		}
	}
	if current.ID == "" || current.ID == phone.ID || phone.ID == "" {
		t.Fatalf("unexpected token flags: %+v", list.Tokens)
	}

	s.expect(s.do(http.MethodDelete, "/auth/tokens/"+phone.ID, theirs, nil), http.StatusForbidden)
	s.expect(s.do(http.MethodDelete, "/auth/tokens/"+phone.ID, mine, nil), http.StatusOK)
	s.expect(s.do(http.MethodDelete, "/auth/tokens/"+phone.ID, mine, nil), http.StatusOK)
	s.expect(s.do(http.MethodDelete, "/auth/tokens/unknown", mine, nil), http.StatusOK)

	res = s.do(http.MethodGet, "/auth/tokens", mine, nil)
	s.expect(res, http.StatusOK)
	res.data(t, &list)
	if len(list.Tokens) != 1 || !list.Tokens[0].Current {
		t.Fatalf("expected only the current token, got %+v", list.Tokens)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	s := newTestServer(t)
	_, oldToken := s.seedUser("reset@example.com", domain.RoleSubscriber)

	res := s.do(http.MethodPost, "/auth/forgot-password", "", map[string]any{"email": "nobody@example.com"})
	s.expect(res, http.StatusOK)
	if res.Body.Message != forgotPasswordMessage {
		t.Fatalf("unexpected message: %q", res.Body.Message)
	}
	if _, ok := s.notifier.last(domain.EventPasswordReset); ok {
		t.Fatalf("expected no reset email for unknown address")
	}

	res = s.do(http.MethodPost, "/auth/forgot-password", "", map[string]any{"email": "Reset@example.com"})
	s.expect(res, http.StatusOK)
	if res.Body.Message != forgotPasswordMessage {
		t.Fatalf("expected uniform message, got %q", res.Body.Message)
	}
	n, ok := s.notifier.last(domain.EventPasswordReset)
	if !ok || n.Data["token"] == "" {
		t.Fatalf("expected reset notification, got %+v", n)
	}

	reset := map[string]any{
		"email":                 "reset@example.com",
		"token":                 n.Data["token"],
		"password":              "N3w!Passw0rd",
		"password_confirmation": "N3w!Passw0rd",
	}
	bad := map[string]any{}
	for k, v := range reset {
		bad[k] = v
	}
	bad["token"] = "wrong"
	res = s.do(http.MethodPost, "/auth/reset-password", "", bad)
	s.expect(res, http.StatusUnprocessableEntity)
	if res.Body.Message != "Invalid or expired reset token." {
		t.Fatalf("unexpected message: %q", res.Body.Message)
	}

	res = s.do(http.MethodPost, "/auth/reset-password", "", reset)
	s.expect(res, http.StatusOK)
	s.expect(s.do(http.MethodPost, "/auth/reset-password", "", reset), http.StatusUnprocessableEntity)

	s.expect(s.do(http.MethodGet, "/auth/me", oldToken, nil), http.StatusUnauthorized)
	s.expect(s.do(http.MethodPost, "/auth/login", "", map[string]any{
		"email": "reset@example.com", "password": testPassword,
	}), http.StatusUnauthorized)
	s.expect(s.do(http.MethodPost, "/auth/login", "", map[string]any{
		"email": "reset@example.com", "password": "N3w!Passw0rd",
	}), http.StatusOK)
}

func TestProfileLimitAndDelete(t *testing.T) {
	s := newTestServer(t)
	_, token := s.register("family@example.com")

	ids := map[string]string{}
	for _, name := range []string{"A", "B", "C", "D", "E"} {
		ids[name] = s.createProfile(token, name)
	}

	res := s.do(http.MethodPost, "/profiles", token, map[string]any{"name": "F"})
	s.expect(res, http.StatusUnprocessableEntity)
	if res.Body.Error != "profile_limit_exceeded" || res.Body.Message != "Maximum profile limit (5) reached" {
		t.Fatalf("unexpected limit response: %+v", res.Body)
	}
	var limit struct {
		CurrentCount int `json:"current_count"`
		MaxAllowed   int `json:"max_allowed"`
	}
	res.data(t, &limit)
	if limit.CurrentCount != 5 || limit.MaxAllowed != 5 {
		t.Fatalf("unexpected limit data: %+v", limit)
	}

	res = s.do(http.MethodGet, "/profiles", token, nil)
	s.expect(res, http.StatusOK)
	var list profileListResponse
	res.data(t, &list)
	if list.Total != 5 || list.Limit != 5 || list.Remaining != 0 || list.CurrentID == nil || *list.CurrentID != ids["A"] {
		t.Fatalf("unexpected list: %+v", list)
	}

	res = s.do(http.MethodDelete, "/profiles/"+ids["A"], token, nil)
	s.expect(res, http.StatusOK)
	if res.Body.Message != "Profile 'A' deleted successfully" {
		t.Fatalf("unexpected message: %q", res.Body.Message)
	}
	ids["F"] = s.createProfile(token, "F")

	res = s.do(http.MethodPost, "/profiles/"+ids["F"]+"/switch", token, nil)
	s.expect(res, http.StatusOK)
	if res.Body.Message != "Switched to profile 'F'" {
		t.Fatalf("unexpected message: %q", res.Body.Message)
	}
	res = s.do(http.MethodGet, "/profiles/current", token, nil)
	s.expect(res, http.StatusOK)
	var cur profileResponse
	res.data(t, &cur)
	if cur.ID != ids["F"] {
		t.Fatalf("expected F to be current, got %s", cur.Name)
	}

	s.expect(s.do(http.MethodDelete, "/profiles/"+ids["F"], token, nil), http.StatusOK)
	res = s.do(http.MethodGet, "/profiles/current", token, nil)
	s.expect(res, http.StatusOK)
	res.data(t, &cur)
	if cur.ID != ids["B"] {
		t.Fatalf("expected fallback to oldest profile B, got %s", cur.Name)
	}
}

func TestProfileDuplicateNameAndLastDelete(t *testing.T) {
	s := newTestServer(t)
	_, token := s.register("solo@example.com")

	res := s.do(http.MethodGet, "/profiles/current", token, nil)
	s.expect(res, http.StatusNotFound)

	only := s.createProfile(token, "Main")
	res = s.do(http.MethodPost, "/profiles", token, map[string]any{"name": "Main"})
	s.expect(res, http.StatusUnprocessableEntity)
	if res.Body.Error != "duplicate_profile_name" {
		t.Fatalf("unexpected error: %q", res.Body.Error)
	}

	res = s.do(http.MethodDelete, "/profiles/"+only, token, nil)
	s.expect(res, http.StatusBadRequest)
	if res.Body.Error != "cannot_delete_only_profile" {
		t.Fatalf("unexpected error: %q", res.Body.Error)
	}
	s.expect(s.do(http.MethodGet, "/profiles/"+only, token, nil), http.StatusOK)
}

func TestProfileOwnership(t *testing.T) {
	s := newTestServer(t)
	_, owner := s.register("owner@example.com")
	_, other := s.register("other@example.com")

	id := s.createProfile(owner, "Mine")
	s.createProfile(other, "Theirs")

	checks := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/profiles/" + id, nil},
		{http.MethodPut, "/profiles/" + id, map[string]any{"name": "Stolen"}},
		{http.MethodDelete, "/profiles/" + id, nil},
		{http.MethodPost, "/profiles/" + id + "/switch", nil},
		{http.MethodPost, "/profiles/" + id + "/preferences", map[string]any{"language": "fr"}},
		{http.MethodPost, "/profiles/" + id + "/parental-controls", map[string]any{"content_rating": "R"}},
		{http.MethodPost, "/profiles/" + id + "/verify-pin", map[string]any{"pin_code": "1234"}},
	}
	for _, c := range checks {
		res := s.do(c.method, c.path, other, c.body)
		s.expect(res, http.StatusForbidden)
		if res.Body.Error != "not_owner" {
			t.Fatalf("%s %s: unexpected error %q", c.method, c.path, res.Body.Error)
		}
	}

	res := s.do(http.MethodGet, "/profiles/"+id, owner, nil)
	s.expect(res, http.StatusOK)
	var p profileResponse
	res.data(t, &p)
	if p.Name != "Mine" {
		t.Fatalf("expected profile untouched, got %q", p.Name)
	}

	s.expect(s.do(http.MethodGet, "/profiles/00000000-0000-0000-0000-000000000000", owner, nil), http.StatusNotFound)
}

func TestProfileMergePatch(t *testing.T) {
	s := newTestServer(t)
	_, token := s.register("kids@example.com")

	res := s.do(http.MethodPost, "/profiles", token, map[string]any{
		"name":      "Kid",
		"avatar":    "https://cdn.example.com/a.png",
		"kids_mode": true,
		"parental_controls": map[string]any{
			"content_rating":   "PG",
			"watch_time_limit": 120,
			"require_pin":      true,
			"pin_code":         "1234",
		},
		"preferences": map[string]any{"language": "es"},
	})
	s.expect(res, http.StatusCreated)
	var p profileResponse
	res.data(t, &p)
	if !p.ParentalControls.HasPIN || p.Preferences.Language != "es" || p.Preferences.Quality != "auto" {
		t.Fatalf("unexpected created profile: %+v", p)
	}
	if strings.Contains(string(res.Body.Data), "pin_hash") || strings.Contains(string(res.Body.Data), "argon2") {
		t.Fatalf("pin leaked in response: %s", res.Body.Data)
	}

	res = s.do(http.MethodPost, "/profiles/"+p.ID+"/parental-controls", token, map[string]any{"watch_time_limit": 90})
	s.expect(res, http.StatusOK)
	res.data(t, &p)
	pc := p.ParentalControls
	if pc.WatchTimeLimit == nil || *pc.WatchTimeLimit != 90 || pc.ContentRating != "PG" || !pc.RequirePIN || !pc.HasPIN {
		t.Fatalf("expected only watch time to change: %+v", pc)
	}

	res = s.do(http.MethodPut, "/profiles/"+p.ID, token, map[string]any{
		"avatar":            nil,
		"parental_controls": map[string]any{"watch_time_limit": nil},
	})
	s.expect(res, http.StatusOK)
	res.data(t, &p)
	if p.Avatar != nil || p.ParentalControls.WatchTimeLimit != nil || p.Name != "Kid" || !p.KidsMode {
		t.Fatalf("expected nulls to clear only the named members: %+v", p)
	}

	res = s.do(http.MethodPost, "/profiles/"+p.ID+"/preferences", token, map[string]any{"autoplay": false, "quality": "4k"})
	s.expect(res, http.StatusOK)
	res.data(t, &p)
	if p.Preferences.Autoplay || p.Preferences.Quality != "4k" || p.Preferences.Language != "es" || !p.Preferences.Notifications {
		t.Fatalf("unexpected preferences: %+v", p.Preferences)
	}

	res = s.do(http.MethodPost, "/profiles/"+p.ID+"/parental-controls", token, map[string]any{
		"content_rating":   "X",
		"watch_time_limit": 2000,
		"pin_code":         "12a4",
	})
	s.expect(res, http.StatusUnprocessableEntity)
	for _, field := range []string{"content_rating", "watch_time_limit", "pin_code"} {
		if len(res.Body.Errors[field]) == 0 {
			t.Fatalf("expected error for %s, got %v", field, res.Body.Errors)
		}
	}

	res = s.do(http.MethodPut, "/profiles/"+p.ID, token, map[string]any{"name": strings.Repeat("n", 51)})
	s.expect(res, http.StatusUnprocessableEntity)
	if len(res.Body.Errors["name"]) == 0 {
		t.Fatalf("expected name error, got %v", res.Body.Errors)
	}
}

func TestProfileVerifyPIN(t *testing.T) {
	s := newTestServer(t)
	_, token := s.register("pin@example.com")

	open := s.createProfile(token, "Open")
	res := s.do(http.MethodPost, "/profiles", token, map[string]any{
		"name":              "Locked",
		"parental_controls": map[string]any{"require_pin": true, "pin_code": "4321"},
	})
	s.expect(res, http.StatusCreated)
	var locked profileResponse
	res.data(t, &locked)

	s.expect(s.do(http.MethodPost, "/profiles/"+locked.ID+"/verify-pin", token, map[string]any{"pin_code": "4321"}), http.StatusOK)
	res = s.do(http.MethodPost, "/profiles/"+locked.ID+"/verify-pin", token, map[string]any{"pin_code": "0000"})
	s.expect(res, http.StatusForbidden)
	if res.Body.Error != "invalid_pin" {
		t.Fatalf("unexpected error: %q", res.Body.Error)
	}
	s.expect(s.do(http.MethodPost, "/profiles/"+open+"/verify-pin", token, map[string]any{"pin_code": "0000"}), http.StatusOK)

	res = s.do(http.MethodPost, "/profiles", token, map[string]any{
		"name":              "NoPin",
		"parental_controls": map[string]any{"require_pin": true},
	})
	s.expect(res, http.StatusUnprocessableEntity)
	if len(res.Body.Errors["pin_code"]) == 0 {
		t.Fatalf("expected pin_code error, got %v", res.Body.Errors)
	}
}

func TestAdminGuards(t *testing.T) {
	s := newTestServer(t)
	_, admin := s.seedUser("admin@example.com", domain.RoleSuperAdmin)
	subID, sub := s.seedUser("sub@example.com", domain.RoleSubscriber)

	s.expect(s.do(http.MethodGet, "/admin/roles", "", nil), http.StatusUnauthorized)

	res := s.do(http.MethodGet, "/admin/roles", sub, nil)
	s.expect(res, http.StatusForbidden)
	var required struct {
		RequiredPermissions []string `json:"required_permissions"`
	}
	res.data(t, &required)
	if len(required.RequiredPermissions) != 1 || required.RequiredPermissions[0] != domain.PermManageUsers {
		t.Fatalf("unexpected guard data: %s", res.Body.Data)
	}

	res = s.do(http.MethodGet, "/admin/roles", admin, nil)
	s.expect(res, http.StatusOK)
	var catalog struct {
		Roles []roleResponse `json:"roles"`
	}
	res.data(t, &catalog)
	if len(catalog.Roles) != 3 {
		t.Fatalf("expected seeded roles, got %+v", catalog.Roles)
	}

	res = s.do(http.MethodGet, "/admin/analytics/roles", sub, nil)
	s.expect(res, http.StatusForbidden)
	var requiredRoles struct {
		RequiredRoles []string `json:"required_roles"`
	}
	res.data(t, &requiredRoles)
	if len(requiredRoles.RequiredRoles) != 2 {
		t.Fatalf("unexpected guard data: %s", res.Body.Data)
	}

	res = s.do(http.MethodPost, "/admin/users/"+subID+"/roles", admin, map[string]any{"roles": []string{"Wizard"}})
	s.expect(res, http.StatusUnprocessableEntity)
	if res.Body.Error != "role_not_found" {
		t.Fatalf("unexpected error: %q", res.Body.Error)
	}

	res = s.do(http.MethodPost, "/admin/users/"+subID+"/roles", admin, map[string]any{"roles": []string{domain.RoleProductionHouse}})
	s.expect(res, http.StatusOK)
	var detail userDetailResponse
	res.data(t, &detail)
	if len(detail.Roles) != 2 {
		t.Fatalf("expected two roles, got %v", detail.Roles)
	}
	s.expect(s.do(http.MethodGet, "/admin/analytics/roles", sub, nil), http.StatusOK)

	res = s.do(http.MethodDelete, "/admin/users/"+subID+"/roles/Production%20House", admin, nil)
	s.expect(res, http.StatusOK)
	s.expect(s.do(http.MethodGet, "/admin/analytics/roles", sub, nil), http.StatusForbidden)

	res = s.do(http.MethodPut, "/admin/users/"+subID+"/roles", admin, map[string]any{"roles": []string{domain.RoleSuperAdmin}})
	s.expect(res, http.StatusOK)
	s.expect(s.do(http.MethodGet, "/admin/roles", sub, nil), http.StatusOK)
	s.expect(s.do(http.MethodGet, "/admin/users/unknown", admin, nil), http.StatusNotFound)
}

func TestAdminSoftDeleteAndRestore(t *testing.T) {
	s := newTestServer(t)
	adminID, admin := s.seedUser("admin@example.com", domain.RoleSuperAdmin)
	subID, sub := s.seedUser("sub@example.com", domain.RoleSubscriber)

	s.expect(s.do(http.MethodDelete, "/admin/users/"+adminID, admin, nil), http.StatusUnprocessableEntity)

	s.expect(s.do(http.MethodDelete, "/admin/users/"+subID, admin, nil), http.StatusOK)
	s.expect(s.do(http.MethodGet, "/auth/me", sub, nil), http.StatusUnauthorized)
	s.expect(s.do(http.MethodPost, "/auth/login", "", map[string]any{
		"email": "sub@example.com", "password": testPassword,
	}), http.StatusUnauthorized)

	res := s.do(http.MethodPost, "/admin/users/"+subID+"/restore", admin, nil)
	s.expect(res, http.StatusOK)
	s.expect(s.do(http.MethodGet, "/auth/me", sub, nil), http.StatusUnauthorized)
	s.expect(s.do(http.MethodPost, "/auth/login", "", map[string]any{
		"email": "sub@example.com", "password": testPassword,
	}), http.StatusOK)
}

func TestHealthzAndNotFound(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected healthz: %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}

	res := s.do(http.MethodGet, "/nope", "", nil)
	s.expect(res, http.StatusNotFound)
	if res.Body.Error != "not_found" {
		t.Fatalf("unexpected error: %q", res.Body.Error)
	}
}
