package authsession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrEthical07/authsession/internal/flows"
	"github.com/MrEthical07/authsession/internal/transport"
	"github.com/MrEthical07/authsession/session"
)

type actionKind uint8

const (
	actionLogin actionKind = iota
	actionRegister
	actionForgotPassword
	actionResetPassword
	actionVerificationResend
	actionLogout
	actionCount
)

type actionSpec struct {
	event            string
	success          MetricID
	validationFailed MetricID
	failure          MetricID
}

var actionSpecs = [actionCount]actionSpec{
	actionLogin:              {AuditLogin, MetricLoginSuccess, MetricLoginValidationFailed, MetricLoginFailure},
	actionRegister:           {AuditRegister, MetricRegisterSuccess, MetricRegisterValidationFailed, MetricRegisterFailure},
	actionForgotPassword:     {AuditForgotPassword, MetricForgotPasswordSuccess, MetricForgotPasswordValidationFailed, MetricForgotPasswordFailure},
	actionResetPassword:      {AuditResetPassword, MetricResetPasswordSuccess, MetricResetPasswordValidationFailed, MetricResetPasswordFailure},
	actionVerificationResend: {AuditVerificationResend, MetricVerificationResendSuccess, MetricVerificationResendFailure, MetricVerificationResendFailure},
	actionLogout:             {event: AuditLogout},
}

// State is a snapshot of a controller's session and mount.
type State struct {
	Status         SessionStatus
	User           User
	Err            error
	Generation     uint64
	Policy         Policy
	RedirectTarget string
	Route          string
}

// Controller is one mount of the auth session. It tracks the shared session
// slot for its cookie holder, exposes the auth actions and applies the
// redirect rules after every transition.
//
// Controllers are safe for concurrent use. Observers registered with Subscribe
// run synchronously on the goroutine that caused the transition and must not
// call Revalidate.
type Controller struct {
	client  *Client
	api     *transport.API
	nav     Navigator
	key     string
	mountID string
	policy  Policy
	target  string
	route   string
	params  map[string]string
	// ctx carries the mount's values for transitions that arrive through the
	// cache rather than through a call.
	ctx         context.Context
	unsubscribe func()

	mu        sync.Mutex
	entry     session.Entry
	last      decision
	closed    bool
	inflight  [actionCount]bool
	observers map[uint64]func(State)
	nextObs   uint64
}

func newController(c *Client, api *transport.API, nav Navigator, opts MountOptions, ctx context.Context) *Controller {
	params := make(map[string]string, len(opts.Params))
	for k, v := range opts.Params {
		params[k] = v
	}
	return &Controller{
		client:      c,
		api:         api,
		nav:         nav,
		key:         session.Key(api.URL(c.config.API.Endpoints.User), opts.CacheScope),
		mountID:     c.newMountID(),
		policy:      opts.Policy,
		target:      opts.RedirectTarget,
		route:       opts.Route,
		params:      params,
		ctx:         context.WithoutCancel(ctx),
		unsubscribe: func() {},
	}
}

// MountID identifies the controller in logs and audit events.
func (c *Controller) MountID() string {
	return c.mountID
}

// CacheKey returns the session slot key the controller is subscribed to.
func (c *Controller) CacheKey() string {
	return c.key
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	return State{
		Status:         c.entry.Status,
		User:           c.entry.User,
		Err:            c.entry.Err,
		Generation:     c.entry.Generation,
		Policy:         c.policy,
		RedirectTarget: c.target,
		Route:          c.route,
	}
}

// Session returns the current user, or nil when there is none.
func (c *Controller) Session() User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entry.User
}

// SessionError returns the error of the last current-user fetch, if any.
func (c *Controller) SessionError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entry.Err
}

// Status returns the lifecycle state of the controller's session.
func (c *Controller) Status() SessionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entry.Status
}

// Subscribe registers fn for every state transition until the returned func is
// called or the controller is closed.
func (c *Controller) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || fn == nil {
		return func() {}
	}
	if c.observers == nil {
		c.observers = make(map[uint64]func(State))
	}
	c.nextObs++
	id := c.nextObs
	c.observers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}
}

// Close detaches the controller from the session cache. Further actions fail
// with ErrControllerClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.observers = nil
	unsubscribe := c.unsubscribe
	c.mu.Unlock()

	unsubscribe()
}

// Revalidate refetches the current user. Fetch failures are recorded as the
// session error rather than returned; a 409 navigates to the verify-email
// route unless the controller is already mounted there. The returned error is
// ErrControllerClosed or a navigation failure.
func (c *Controller) Revalidate(ctx context.Context) error {
	if c.isClosed() {
		return ErrControllerClosed
	}
	ctx = ensureRequestID(ctx)

	entry, err := c.client.cache.Do(ctx, c.key, c.fetchSession)
	c.apply(entry)

	verifyRoute := c.client.config.Routes.VerifyEmail
	if errors.Is(err, ErrVerificationRequired) {
		if routePath(c.route) != routePath(verifyRoute) {
			if navErr := c.navigate(ctx, verifyRoute); navErr != nil {
				return navErr
			}
		}
	} else if err != nil {
		c.logError(ctx, "session fetch failed", err)
	}

	return c.reconcile(ctx)
}

// Reconcile re-applies the redirect rules to the current state. Only a
// decision that differs from the last one is acted on.
func (c *Controller) Reconcile(ctx context.Context) error {
	if c.isClosed() {
		return ErrControllerClosed
	}
	return c.reconcile(ensureRequestID(ctx))
}

func (c *Controller) reconcile(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	d := decide(ruleInput{
		policy:      c.policy,
		target:      c.target,
		route:       c.route,
		verifyRoute: c.client.config.Routes.VerifyEmail,
		user:        c.entry.User,
		err:         c.entry.Err,
	})
	if d == c.last {
		c.mu.Unlock()
		return nil
	}
	c.last = d
	c.mu.Unlock()

	switch d.kind {
	case decideNavigate:
		return c.navigate(ctx, d.target)
	case decideLogout:
		if err := c.Logout(ctx); err != nil && !errors.Is(err, ErrActionInFlight) {
			return err
		}
	}
	return nil
}

// Login posts credentials and revalidates the session once on success.
func (c *Controller) Login(ctx context.Context, req LoginRequest) (Result, error) {
	return c.mutate(ctx, actionLogin, c.client.config.API.Endpoints.Login, req, true)
}

// Register creates an account and revalidates the session once on success.
func (c *Controller) Register(ctx context.Context, req RegisterRequest) (Result, error) {
	return c.mutate(ctx, actionRegister, c.client.config.API.Endpoints.Register, req, true)
}

// ForgotPassword requests a reset link. Result.Status carries the backend's
// status message.
func (c *Controller) ForgotPassword(ctx context.Context, req ForgotPasswordRequest) (Result, error) {
	return c.mutate(ctx, actionForgotPassword, c.client.config.API.Endpoints.ForgotPassword, req, false)
}

// ResetPassword sets a new password and, on success, navigates to the login
// route with the base64 status message in its reset parameter.
func (c *Controller) ResetPassword(ctx context.Context, req ResetPasswordRequest) (Result, error) {
	ctx = ensureRequestID(ctx)
	if req.Token == "" {
		req.Token = c.params["token"]
	}
	if req.Token == "" {
		return Result{}, ErrMissingResetToken
	}

	res, err := c.mutate(ctx, actionResetPassword, c.client.config.API.Endpoints.ResetPassword, req, false)
	if err != nil || !res.OK() {
		return res, err
	}

	msg := res.Status
	if msg == "" {
		msg = ResetStatusMessage
		res.Status = msg
	}
	route := c.client.config.Routes.Login + "?reset=" + EncodeResetStatus(msg)
	if err := c.navigate(ctx, route); err != nil {
		return res, err
	}
	return res, nil
}

// ResendEmailVerification asks the backend to send another verification
// email. Result.Status carries the backend's status string.
func (c *Controller) ResendEmailVerification(ctx context.Context) (Result, error) {
	return c.mutate(ctx, actionVerificationResend, c.client.config.API.Endpoints.VerificationNotification, nil, false)
}

// Logout ends the session. Unless the session already carries an error it
// posts to the backend; either way it clears the session and navigates to the
// login route. Backend failures are logged, not returned.
func (c *Controller) Logout(ctx context.Context) error {
	if err := c.begin(actionLogout); err != nil {
		return err
	}
	defer c.end(actionLogout)
	ctx = ensureRequestID(ctx)

	c.mu.Lock()
	hasErr := c.entry.Err != nil
	c.mu.Unlock()

	return flows.RunLogout(ctx, flows.LogoutDeps{
		Event:      AuditLogout,
		Path:       c.client.config.API.Endpoints.Logout,
		SkipPost:   hasErr,
		LoginRoute: c.client.config.Routes.Login,
		FetchCSRF:  c.fetchCSRF,
		Post:       c.api.Post,
		Clear:      c.clearSession,
		Navigate:   c.navigate,
		Hooks:      c.hooks(),
		Metrics: flows.LogoutMetrics{
			Logout:        int(MetricLogout),
			LogoutSkipped: int(MetricLogoutSkipped),
			LogoutFailure: int(MetricLogoutFailure),
		},
	})
}

func (c *Controller) mutate(ctx context.Context, kind actionKind, path string, body any, revalidate bool) (Result, error) {
	if err := c.begin(kind); err != nil {
		return Result{}, err
	}
	defer c.end(kind)
	ctx = ensureRequestID(ctx)

	spec := actionSpecs[kind]
	deps := flows.MutationDeps{
		Event:     spec.event,
		Path:      path,
		Body:      body,
		FetchCSRF: c.fetchCSRF,
		Post:      c.api.Post,
		Hooks:     c.hooks(),
		Metrics: flows.MutationMetrics{
			CSRFFetch:        int(MetricCSRFFetch),
			CSRFFailure:      int(MetricCSRFFailure),
			Success:          int(spec.success),
			ValidationFailed: int(spec.validationFailed),
			Failure:          int(spec.failure),
		},
	}
	if revalidate {
		deps.AfterSuccess = func(ctx context.Context) {
			if err := c.Revalidate(ctx); err != nil {
				c.logError(ctx, "revalidation after "+spec.event+" failed", err)
			}
		}
	}

	out, err := flows.RunMutation(ctx, deps)
	if err != nil {
		return Result{}, err
	}
	if out.Response == nil {
		ve := decodeValidation(out.ValidationBody)
		return Result{
			Outcome:    OutcomeFieldErrors,
			Errors:     ve.Errors,
			Message:    ve.Message,
			HTTPStatus: ve.HTTPStatus(),
		}, nil
	}

	res := Result{
		Outcome:    OutcomeSuccess,
		HTTPStatus: out.Response.StatusCode,
	}
	if len(out.Response.Body) > 0 {
		res.Payload = append(json.RawMessage(nil), out.Response.Body...)
		var status struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		}
		if json.Unmarshal(out.Response.Body, &status) == nil {
			res.Status = status.Status
			res.Message = status.Message
		}
	}
	return res, nil
}

func (c *Controller) begin(kind actionKind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrControllerClosed
	}
	if !c.client.config.Actions.DeduplicateMutations {
		return nil
	}
	if c.inflight[kind] {
		c.client.metrics.Inc(MetricActionRejectedInFlight)
		return ErrActionInFlight
	}
	c.inflight[kind] = true
	return nil
}

func (c *Controller) end(kind actionKind) {
	c.mu.Lock()
	c.inflight[kind] = false
	c.mu.Unlock()
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// apply installs entry unless it is older than the current one. Entries that
// never reached the cache carry generation 0 and always apply.
func (c *Controller) apply(entry session.Entry) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	if entry.Generation != 0 && entry.Generation <= c.entry.Generation {
		c.mu.Unlock()
		return false
	}
	c.entry = entry
	state := c.stateLocked()
	observers := make([]func(State), 0, len(c.observers))
	for _, fn := range c.observers {
		observers = append(observers, fn)
	}
	c.mu.Unlock()

	for _, fn := range observers {
		fn(state)
	}
	return true
}

func (c *Controller) onEntry(entry session.Entry) {
	if !c.apply(entry) {
		return
	}
	if err := c.reconcile(c.ctx); err != nil {
		c.logError(c.ctx, "redirect failed", err)
	}
}

func (c *Controller) fetchSession(ctx context.Context) (session.Entry, error) {
	return flows.RunFetchSession(ctx, flows.FetchSessionDeps{
		Key:     c.key,
		GetUser: c.getUser,
		Load:    c.client.cache.Load,
		Store:   c.client.cache.Store,
		Observe: func(id int, d time.Duration) {
			c.client.metrics.Observe(MetricID(id), d)
		},
		Hooks: c.hooks(),
		Metrics: flows.FetchSessionMetrics{
			Fetch:                int(MetricSessionFetch),
			Success:              int(MetricSessionFetchSuccess),
			Failure:              int(MetricSessionFetchFailure),
			VerificationRequired: int(MetricVerificationRequired),
			Latency:              int(MetricSessionFetchLatency),
		},
		Events: flows.FetchSessionEvents{
			Fetch:                AuditSessionFetch,
			VerificationRequired: AuditVerificationRequired,
		},
		Errors: flows.FetchSessionErrors{
			VerificationRequired: ErrVerificationRequired,
		},
	})
}

func (c *Controller) getUser(ctx context.Context) (session.User, error) {
	resp, err := c.api.Get(ctx, c.client.config.API.Endpoints.User)
	if err != nil {
		return nil, err
	}
	var user session.User
	if err := resp.Decode(&user); err != nil {
		return nil, fmt.Errorf("decode current user: %w", err)
	}
	if user == nil {
		return nil, ErrEmptyUser
	}
	return user, nil
}

func (c *Controller) fetchCSRF(ctx context.Context) error {
	_, err := c.api.Get(ctx, c.client.config.API.Endpoints.CSRFCookie)
	return err
}

func (c *Controller) clearSession(ctx context.Context) error {
	cleared := session.Entry{Status: session.StatusUnresolved}
	stored, err := c.client.cache.Store(ctx, c.key, cleared)
	if err != nil {
		cleared.UpdatedAt = time.Now()
		c.apply(cleared)
		return err
	}
	c.apply(stored)
	return nil
}

func (c *Controller) navigate(ctx context.Context, route string) error {
	c.client.metrics.Inc(MetricRedirect)
	err := c.nav.Navigate(ctx, route)
	ev := AuditEvent{
		EventType: AuditRedirect,
		MountID:   c.mountID,
		Route:     c.route,
		Target:    route,
		Success:   err == nil,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	c.client.emitAudit(ctx, ev)
	return err
}

func (c *Controller) hooks() flows.Hooks {
	return flows.Hooks{
		MetricInc: func(id int) {
			c.client.metrics.Inc(MetricID(id))
		},
		EmitAudit: func(ctx context.Context, event string, success bool, status int, err error, meta func() map[string]string) {
			if c.client.audit == nil {
				return
			}
			ev := AuditEvent{
				EventType: event,
				MountID:   c.mountID,
				Route:     c.route,
				Status:    status,
				Success:   success,
			}
			if err != nil {
				ev.Error = err.Error()
			}
			if meta != nil {
				ev.Metadata = meta()
			}
			c.client.emitAudit(ctx, ev)
		},
		LogError: c.logError,
	}
}

func (c *Controller) logError(ctx context.Context, msg string, err error) {
	c.client.logger.ErrorContext(ctx, "authsession: "+msg,
		"mount_id", c.mountID,
		"request_id", RequestIDFromContext(ctx),
		"error", err,
	)
}
