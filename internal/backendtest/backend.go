// Package backendtest runs an in-process cookie-session auth backend for
// tests. It implements the anti-forgery cookie, current-user, login, register,
// password reset, verification and logout endpoints and records every request
// in arrival order.
package backendtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	SessionCookie = "laravel_session"
	CSRFCookie    = "XSRF-TOKEN"
	CSRFHeader    = "X-XSRF-TOKEN"
	// ResetToken is the only password reset token the backend accepts.
	ResetToken = "reset-token"

	ResetStatus        = "Your password has been reset."
	ForgotStatus       = "We have emailed your password reset link."
	VerificationStatus = "verification-link-sent"
)

type account struct {
	password string
	user     map[string]any
}

type override struct {
	status int
	body   string
}

type gate struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

// Backend is a fake auth backend. The zero value is not usable; call New.
type Backend struct {
	// RequireVerified makes the current-user endpoint answer 409 for users
	// without email_verified_at.
	RequireVerified bool

	mu        sync.Mutex
	requests  []string
	headers   []http.Header
	accounts  map[string]*account
	sessions  map[string]string
	overrides map[string]override
	gates     map[string]*gate

	server *httptest.Server
}

// New starts a backend that is closed when the test ends.
func New(t testing.TB) *Backend {
	t.Helper()
	b := &Backend{
		accounts:  make(map[string]*account),
		sessions:  make(map[string]string),
		overrides: make(map[string]override),
		gates:     make(map[string]*gate),
	}
	b.server = httptest.NewServer(b.routes())
	t.Cleanup(b.server.Close)
	return b
}

func (b *Backend) URL() string {
	return b.server.URL
}

// AddUser registers an account. user is returned by the current-user
// endpoint; "email" is set from email when absent.
func (b *Backend) AddUser(email, password string, user map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u := make(map[string]any, len(user)+1)
	for k, v := range user {
		u[k] = v
	}
	if _, ok := u["email"]; !ok {
		u["email"] = email
	}
	b.accounts[email] = &account{password: password, user: u}
}

// Respond forces method path to answer status with body until ClearOverrides.
func (b *Backend) Respond(method, path string, status int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.overrides[method+" "+path] = override{status: status, body: body}
}

func (b *Backend) ClearOverrides() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.overrides = make(map[string]override)
}

// Gate blocks the next requests to method path until release is called.
// entered is closed when the first such request arrives.
func (b *Backend) Gate(method, path string) (entered <-chan struct{}, release func()) {
	g := &gate{entered: make(chan struct{}), release: make(chan struct{})}
	b.mu.Lock()
	b.gates[method+" "+path] = g
	b.mu.Unlock()
	var once sync.Once
	return g.entered, func() {
		once.Do(func() { close(g.release) })
	}
}

// Requests returns "METHOD /path" for every request in arrival order.
func (b *Backend) Requests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.requests))
	copy(out, b.requests)
	return out
}

// Headers returns the request headers in arrival order.
func (b *Backend) Headers() []http.Header {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]http.Header, len(b.headers))
	copy(out, b.headers)
	return out
}

// Count returns how many requests hit method path.
func (b *Backend) Count(method, path string) int {
	want := method + " " + path
	n := 0
	for _, r := range b.Requests() {
		if r == want {
			n++
		}
	}
	return n
}

func (b *Backend) ResetRequests() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = nil
	b.headers = nil
}

// Sessions returns the number of live backend sessions.
func (b *Backend) Sessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

func (b *Backend) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(b.record)

	r.Get("/sanctum/csrf-cookie", b.csrfCookie)
	r.Get("/api/user", b.currentUser)

	r.Group(func(r chi.Router) {
		r.Use(b.verifyCSRF)
		r.Post("/login", b.login)
		r.Post("/register", b.register)
		r.Post("/forgot-password", b.forgotPassword)
		r.Post("/reset-password", b.resetPassword)
		r.Post("/email/verification-notification", b.verificationNotification)
		r.Post("/logout", b.logout)
	})

	return r
}

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path

		b.mu.Lock()
		b.requests = append(b.requests, key)
		b.headers = append(b.headers, r.Header.Clone())
		ov, forced := b.overrides[key]
		g := b.gates[key]
		b.mu.Unlock()

		if g != nil {
			g.once.Do(func() { close(g.entered) })
			select {
			case <-g.release:
			case <-r.Context().Done():
				return
			}
		}

		if forced {
			writeRaw(w, ov.status, ov.body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) verifyCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(CSRFCookie)
		if err != nil {
			writeJSON(w, 419, map[string]any{"message": "CSRF token mismatch."})
			return
		}
		want, err := url.QueryUnescape(c.Value)
		if err != nil || want == "" || r.Header.Get(CSRFHeader) != want {
			writeJSON(w, 419, map[string]any{"message": "CSRF token mismatch."})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) csrfCookie(w http.ResponseWriter, r *http.Request) {
	// The '=' and '/' characters exercise client-side cookie decoding.
	token := uuid.NewString() + "/x="
	http.SetCookie(w, &http.Cookie{Name: CSRFCookie, Value: url.QueryEscape(token), Path: "/"})
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) currentUser(w http.ResponseWriter, r *http.Request) {
	acct := b.accountFor(r)
	if acct == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthenticated."})
		return
	}
	b.mu.Lock()
	verified := acct.user["email_verified_at"] != nil
	requireVerified := b.RequireVerified
	user := make(map[string]any, len(acct.user))
	for k, v := range acct.user {
		user[k] = v
	}
	b.mu.Unlock()

	if requireVerified && !verified {
		writeJSON(w, http.StatusConflict, map[string]any{"message": "Your email address is not verified."})
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Remember bool   `json:"remember"`
	}
	if !decode(w, r, &in) {
		return
	}

	v := newValidation()
	v.required("email", in.Email)
	v.required("password", in.Password)
	if v.failed() {
		v.write(w)
		return
	}

	b.mu.Lock()
	acct := b.accounts[in.Email]
	b.mu.Unlock()
	if acct == nil || acct.password != in.Password {
		v.add("email", "These credentials do not match our records.")
		v.write(w)
		return
	}

	b.startSession(w, in.Email)
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) register(w http.ResponseWriter, r *http.Request) {
	var in map[string]any
	if !decode(w, r, &in) {
		return
	}
	name, _ := in["name"].(string)
	email, _ := in["email"].(string)
	password, _ := in["password"].(string)
	confirmation, _ := in["password_confirmation"].(string)

	v := newValidation()
	v.required("name", name)
	v.required("email", email)
	b.mu.Lock()
	_, taken := b.accounts[email]
	b.mu.Unlock()
	if taken {
		v.add("email", "The email has already been taken.")
	}
	v.required("password", password)
	if password != "" && password != confirmation {
		v.add("password", "The password field confirmation does not match.")
	}
	if v.failed() {
		v.write(w)
		return
	}

	user := map[string]any{"name": name, "email": email, "email_verified_at": nil}
	for k, val := range in {
		if k == "password" || k == "password_confirmation" {
			continue
		}
		if _, ok := user[k]; !ok {
			user[k] = val
		}
	}
	b.mu.Lock()
	b.accounts[email] = &account{password: password, user: user}
	b.mu.Unlock()

	b.startSession(w, email)
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &in) {
		return
	}
	b.mu.Lock()
	_, ok := b.accounts[in.Email]
	b.mu.Unlock()
	if !ok {
		v := newValidation()
		v.add("email", "We can't find a user with that email address.")
		v.write(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": ForgotStatus})
}

func (b *Backend) resetPassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token                string `json:"token"`
		Email                string `json:"email"`
		Password             string `json:"password"`
		PasswordConfirmation string `json:"password_confirmation"`
	}
	if !decode(w, r, &in) {
		return
	}

	v := newValidation()
	if in.Token != ResetToken {
		v.add("email", "This password reset token is invalid.")
	}
	if in.Password != in.PasswordConfirmation {
		v.add("password", "The password field confirmation does not match.")
	}
	if v.failed() {
		v.write(w)
		return
	}

	b.mu.Lock()
	if acct := b.accounts[in.Email]; acct != nil {
		acct.password = in.Password
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"status": ResetStatus})
}

func (b *Backend) verificationNotification(w http.ResponseWriter, r *http.Request) {
	if b.accountFor(r) == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthenticated."})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": VerificationStatus})
}

func (b *Backend) logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookie); err == nil {
		b.mu.Lock()
		delete(b.sessions, c.Value)
		b.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) startSession(w http.ResponseWriter, email string) {
	id := uuid.NewString()
	b.mu.Lock()
	b.sessions[id] = email
	b.mu.Unlock()
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: id, Path: "/", HttpOnly: true})
}

func (b *Backend) accountFor(r *http.Request) *account {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	email, ok := b.sessions[c.Value]
	if !ok {
		return nil
	}
	return b.accounts[email]
}

type validation struct {
	fields []string
	errors map[string][]string
}

func newValidation() *validation {
	return &validation{errors: make(map[string][]string)}
}

func (v *validation) add(field, msg string) {
	if _, ok := v.errors[field]; !ok {
		v.fields = append(v.fields, field)
	}
	v.errors[field] = append(v.errors[field], msg)
}

func (v *validation) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.add(field, "The "+field+" field is required.")
	}
}

func (v *validation) failed() bool {
	return len(v.fields) > 0
}

// write emits the 422 body with fields in the order they failed.
func (v *validation) write(w http.ResponseWriter) {
	var sb strings.Builder
	sb.WriteString(`{"message":`)
	msg, _ := json.Marshal(v.errors[v.fields[0]][0])
	sb.Write(msg)
	sb.WriteString(`,"errors":{`)
	for i, f := range v.fields {
		if i > 0 {
			sb.WriteByte(',')
		}
		k, _ := json.Marshal(f)
		m, _ := json.Marshal(v.errors[f])
		sb.Write(k)
		sb.WriteByte(':')
		sb.Write(m)
	}
	sb.WriteString("}}")
	writeRaw(w, http.StatusUnprocessableEntity, sb.String())
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "invalid JSON"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
