// Package admission decides, per request, whether a metered call may go
// through, based on the caller's entitlement and usage so far.
package admission

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"sort"
	"strings"

	"eduplatform-api/internal/domain/usage"
	"eduplatform-api/internal/infra/tokens"
	"eduplatform-api/internal/metrics"

	"go.uber.org/zap"
)

type Outcome string

const (
	Allow       Outcome = "allow"
	Deny        Outcome = "deny"
	PassThrough Outcome = "pass_through"
)

const (
	CodeLimitExceeded     = "SUBSCRIPTION_LIMIT_EXCEEDED"
	CodeInvalidCredential = "INVALID_CREDENTIAL"
	CodeUnavailable       = "ADMISSION_UNAVAILABLE"
)

// Checker is the synchronous quota decision.
type Checker interface {
	CanPerform(ctx context.Context, userID uint, kind usage.ActionKind) (bool, error)
}

// Recorder takes usage entries without blocking. It reports false when the
// entry was dropped.
type Recorder interface {
	Enqueue(userID uint, kind usage.ActionKind, resourceTag, description string) bool
}

type Config struct {
	// MeteredPrefixes maps a path prefix to the action kind it consumes.
	MeteredPrefixes map[string]usage.ActionKind
	// FailOpen forwards requests when the decision itself fails.
	FailOpen bool
}

// DefaultMeteredPrefixes are the AI proxy routes.
func DefaultMeteredPrefixes() map[string]usage.ActionKind {
	return map[string]usage.ActionKind{
		"/api/gemini-25": usage.ActionAIRequest,
		"/api/deepseek":  usage.ActionAIRequest,
		"/api/ai":        usage.ActionAIRequest,
	}
}

type Request struct {
	Path          string
	Authenticated bool
	Credential    string
}

// Rejection is the JSON body of a refused request.
type Rejection struct {
	Message              string `json:"message"`
	ErrorCode            string `json:"errorCode"`
	SubscriptionRequired bool   `json:"subscriptionRequired"`
}

type Decision struct {
	Outcome    Outcome
	Status     int
	Body       *Rejection
	Identity   *tokens.Identity
	ActionKind usage.ActionKind
}

type prefixRule struct {
	prefix string
	kind   usage.ActionKind
}

type Gate struct {
	rules    []prefixRule
	failOpen bool
	reader   tokens.Reader
	checker  Checker
	recorder Recorder
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func New(cfg Config, reader tokens.Reader, checker Checker, recorder Recorder, logger *zap.Logger, m *metrics.Metrics) *Gate {
	if m == nil {
		m = metrics.Nop()
	}
	prefixes := cfg.MeteredPrefixes
	if prefixes == nil {
		prefixes = DefaultMeteredPrefixes()
	}
	rules := make([]prefixRule, 0, len(prefixes))
	for p, k := range prefixes {
		p = strings.ToLower(strings.TrimRight(strings.TrimSpace(p), "/"))
		if p == "" {
			continue
		}
		rules = append(rules, prefixRule{prefix: p, kind: k})
	}
	// longest prefix wins
	sort.Slice(rules, func(i, j int) bool { return len(rules[i].prefix) > len(rules[j].prefix) })

	return &Gate{
		rules:    rules,
		failOpen: cfg.FailOpen,
		reader:   reader,
		checker:  checker,
		recorder: recorder,
		logger:   logger,
		metrics:  m,
	}
}

// CleanPath collapses repeated slashes and resolves dot segments, so that
// a path is metered the same way the router and upstream resolve it.
func CleanPath(p string) string {
	if p == "" {
		return "/"
	}
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	return path.Clean("/" + p)
}

// Metered returns the action kind for p, matching whole path segments of
// its cleaned form.
func (g *Gate) Metered(p string) (usage.ActionKind, bool) {
	p = strings.ToLower(CleanPath(p))
	for _, r := range g.rules {
		if p == r.prefix || strings.HasPrefix(p, r.prefix+"/") {
			return r.kind, true
		}
	}
	return "", false
}

// Decide never fails: internal errors and panics become PassThrough, or a
// 503 denial when the gate runs fail-closed.
func (g *Gate) Decide(ctx context.Context, req Request) (d Decision) {
	req.Path = CleanPath(req.Path)
	kind, ok := g.Metered(req.Path)
	if !ok {
		return Decision{Outcome: PassThrough}
	}
	if !req.Authenticated {
		d = Decision{Outcome: PassThrough, ActionKind: kind}
		g.observe(req, d, "unauthenticated")
		return d
	}

	defer func() {
		if r := recover(); r != nil {
			d = g.failure(req, kind, d.Identity, fmt.Errorf("panic: %v", r))
		}
	}()

	identity, ok := g.reader.Read(ctx, req.Credential)
	if !ok {
		if g.failOpen {
			d = Decision{Outcome: PassThrough, ActionKind: kind}
			g.observe(req, d, "unreadable credential")
			return d
		}
		d = Decision{
			Outcome:    Deny,
			Status:     http.StatusUnauthorized,
			ActionKind: kind,
			Body: &Rejection{
				Message:   "The credential could not be verified.",
				ErrorCode: CodeInvalidCredential,
			},
		}
		g.observe(req, d, "unreadable credential")
		return d
	}

	allowed, err := g.checker.CanPerform(ctx, identity.UserID, kind)
	if err != nil {
		return g.failure(req, kind, identity, err)
	}

	if !allowed {
		d = Decision{
			Outcome:    Deny,
			Status:     http.StatusForbidden,
			Identity:   identity,
			ActionKind: kind,
			Body: &Rejection{
				Message:              "Your subscription does not allow more requests this period. Upgrade to continue.",
				ErrorCode:            CodeLimitExceeded,
				SubscriptionRequired: true,
			},
		}
		g.observe(req, d, "quota exhausted")
		return d
	}

	if !g.recorder.Enqueue(identity.UserID, kind, req.Path, string(kind)+" "+req.Path) {
		g.logger.Warn("usage record dropped",
			zap.Uint("user_id", identity.UserID), zap.String("path", req.Path))
	}
	d = Decision{Outcome: Allow, Identity: identity, ActionKind: kind}
	g.observe(req, d, "")
	return d
}

func (g *Gate) failure(req Request, kind usage.ActionKind, identity *tokens.Identity, err error) Decision {
	g.metrics.AdmissionDecisions.WithLabelValues("error").Inc()
	fields := []zap.Field{zap.String("path", req.Path), zap.Bool("fail_open", g.failOpen), zap.Error(err)}
	if identity != nil {
		fields = append(fields, zap.Uint("user_id", identity.UserID))
	}
	g.logger.Error("admission check failed", fields...)

	if g.failOpen {
		d := Decision{Outcome: PassThrough, Identity: identity, ActionKind: kind}
		g.metrics.AdmissionDecisions.WithLabelValues(string(d.Outcome)).Inc()
		return d
	}
	d := Decision{
		Outcome:    Deny,
		Status:     http.StatusServiceUnavailable,
		Identity:   identity,
		ActionKind: kind,
		Body: &Rejection{
			Message:   "Usage limits cannot be checked right now. Try again shortly.",
			ErrorCode: CodeUnavailable,
		},
	}
	g.metrics.AdmissionDecisions.WithLabelValues(string(d.Outcome)).Inc()
	return d
}

func (g *Gate) observe(req Request, d Decision, reason string) {
	g.metrics.AdmissionDecisions.WithLabelValues(string(d.Outcome)).Inc()

	fields := []zap.Field{
		zap.String("path", req.Path),
		zap.String("outcome", string(d.Outcome)),
		zap.String("action_kind", string(d.ActionKind)),
	}
	if d.Identity != nil {
		fields = append(fields, zap.Uint("user_id", d.Identity.UserID), zap.Uint("role_id", d.Identity.RoleID))
	}
	if reason != "" {
		fields = append(fields, zap.String("reason", reason))
	}
	if d.Status != 0 {
		fields = append(fields, zap.Int("status", d.Status))
	}
	if d.Outcome == Deny {
		g.logger.Warn("metered request denied", fields...)
		return
	}
	g.logger.Info("metered request forwarded", fields...)
}
