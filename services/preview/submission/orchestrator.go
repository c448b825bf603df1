// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package submission glues the validator, the normalization pipeline, and
// per-session history together. Raw text is validated; accepted text is
// pushed to history and normalized for the session theme; rejected text
// never reaches history or the sandbox.
package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/LivePreview/services/preview/generation"
	"github.com/AleutianAI/LivePreview/services/preview/normalize"
	"github.com/AleutianAI/LivePreview/services/preview/policy"
	"github.com/AleutianAI/LivePreview/services/preview/prefs"
	"github.com/AleutianAI/LivePreview/services/preview/sandbox"
)

var tracer = otel.Tracer("livepreview.preview.submission")

// History operation names reported to metrics and events.
const (
	OpSubmit   = "submit"
	OpCommit   = "commit"
	OpGenerate = "generate"
	OpUndo     = "undo"
	OpRedo     = "redo"
	OpTheme    = "theme"
)

// Outcome is the result of an operation that may change what the sandbox
// shows. When Accepted is false the verdict explains the rejection and
// history is unchanged.
type Outcome struct {
	Accepted        bool                   `json:"accepted"`
	Verdict         *policy.Verdict        `json:"verdict,omitempty"`
	Index           int                    `json:"index"`
	Snippet         string                 `json:"snippet,omitempty"`
	Component       string                 `json:"component,omitempty"`
	Finalization    normalize.Finalization `json:"finalization,omitempty"`
	ThemeDark       bool                   `json:"theme_dark"`
	Notice          string                 `json:"notice,omitempty"`
	UnresolvedHooks []string               `json:"unresolved_hooks,omitempty"`
}

// HistoryView is a read-only copy of a session's history.
type HistoryView struct {
	Entries []string `json:"entries"`
	Cursor  int      `json:"cursor"`
	CanUndo bool     `json:"can_undo"`
	CanRedo bool     `json:"can_redo"`
}

// SessionInfo describes a session to callers.
type SessionInfo struct {
	ID        string    `json:"session_id"`
	ThemeDark bool      `json:"theme_dark"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateOptions configures a new session. A nil ThemeDark falls back to
// the stored preference for ClientKey, then to light.
type CreateOptions struct {
	ThemeDark *bool
	ClientKey string
}

// Config wires the orchestrator's collaborators. Validator, Pipeline and
// Store are required.
type Config struct {
	Validator *policy.Validator
	Pipeline  *normalize.Pipeline
	Store     *Store
	Prefs     prefs.Store
	Generator generation.Generator
	Scope     *sandbox.Scope
	Metrics   Metrics
	Logger    *slog.Logger
	Now       func() time.Time
}

// Orchestrator runs submissions for many sessions.
//
// # Thread Safety
//
// Safe for concurrent use. Each session is locked for the duration of an
// operation; a generation round trip runs without the lock and is matched
// back to the session by ticket.
type Orchestrator struct {
	validator *policy.Validator
	pipeline  *normalize.Pipeline
	store     *Store
	prefs     prefs.Store
	generator generation.Generator
	scope     *sandbox.Scope
	metrics   Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// New creates an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Validator == nil {
		return nil, errors.New("submission: validator is required")
	}
	if cfg.Pipeline == nil {
		return nil, errors.New("submission: pipeline is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("submission: store is required")
	}
	o := &Orchestrator{
		validator: cfg.Validator,
		pipeline:  cfg.Pipeline,
		store:     cfg.Store,
		prefs:     cfg.Prefs,
		generator: cfg.Generator,
		scope:     cfg.Scope,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if o.prefs == nil {
		o.prefs = prefs.NewMemory()
	}
	if o.scope == nil {
		o.scope = sandbox.DefaultScope()
	}
	if o.metrics == nil {
		o.metrics = noopMetrics{}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "submission")
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// Store returns the session store.
func (o *Orchestrator) Store() *Store {
	return o.store
}

// Scope returns the execution scope snippets are checked against.
func (o *Orchestrator) Scope() *sandbox.Scope {
	return o.scope
}

// CreateSession starts a preview session.
func (o *Orchestrator) CreateSession(ctx context.Context, opts CreateOptions) (*SessionInfo, error) {
	dark := false
	switch {
	case opts.ThemeDark != nil:
		dark = *opts.ThemeDark
		if opts.ClientKey != "" {
			if err := o.prefs.SetTheme(ctx, opts.ClientKey, dark); err != nil {
				o.logger.Warn("storing theme preference failed", "error", err)
			}
		}
	case opts.ClientKey != "":
		stored, found, err := o.prefs.Theme(ctx, opts.ClientKey)
		if err != nil {
			o.logger.Warn("reading theme preference failed", "error", err)
		} else if found {
			dark = stored
		}
	}

	s := o.store.Create(dark, opts.ClientKey, o.now())
	o.metrics.SetActiveSessions(o.store.Len())
	o.logger.Info("session created", "session_id", s.ID, "theme_dark", dark)
	return &SessionInfo{ID: s.ID, ThemeDark: dark, CreatedAt: s.CreatedAt}, nil
}

// DeleteSession ends a session and its live subscriptions.
func (o *Orchestrator) DeleteSession(_ context.Context, id string) error {
	if !o.store.Delete(id) {
		return ErrSessionNotFound
	}
	o.metrics.SetActiveSessions(o.store.Len())
	o.logger.Info("session deleted", "session_id", id)
	return nil
}

// SweepIdle evicts sessions idle for longer than idle.
func (o *Orchestrator) SweepIdle(idle time.Duration) []string {
	evicted := o.store.Sweep(idle, o.now())
	if len(evicted) > 0 {
		o.metrics.SetActiveSessions(o.store.Len())
		o.logger.Info("idle sessions evicted", "count", len(evicted))
	}
	return evicted
}

// Validate runs the policy check without touching any session.
func (o *Orchestrator) Validate(ctx context.Context, code string) (*policy.Verdict, error) {
	verdict, err := o.validator.Validate(ctx, code)
	o.recordValidation(verdict, err)
	return verdict, err
}

// Normalize runs the pipeline without touching any session.
func (o *Orchestrator) Normalize(ctx context.Context, code string, themeDark bool) normalize.Result {
	res := o.pipeline.NormalizeDetailed(ctx, code, themeDark)
	o.metrics.RecordNormalization(themeDark, res.Finalization)
	return res
}

// Submit gates generated code and, when safe, records and normalizes it.
//
// # Outputs
//
//   - *Outcome: Accepted=false with the verdict on a policy rejection.
//   - error: ErrSessionNotFound, ErrEmptySource, or *policy.ParseError.
func (o *Orchestrator) Submit(ctx context.Context, id, code string) (*Outcome, error) {
	return o.gate(ctx, id, code, OpSubmit)
}

// Commit snapshots manually edited code. Edited code passes the same gate
// as generated code.
func (o *Orchestrator) Commit(ctx context.Context, id, code string) (*Outcome, error) {
	return o.gate(ctx, id, code, OpCommit)
}

func (o *Orchestrator) gate(ctx context.Context, id, code, op string) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "submission."+op,
		trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	s, err := o.session(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out, err := o.acceptLocked(ctx, s, code, op)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Bool("submission.accepted", out.Accepted))
	return out, nil
}

// acceptLocked validates code and, when safe, pushes it and normalizes it.
// Caller holds s.mu.
func (o *Orchestrator) acceptLocked(ctx context.Context, s *Session, code, op string) (*Outcome, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrEmptySource
	}

	verdict, err := o.validator.Validate(ctx, code)
	o.recordValidation(verdict, err)
	if err != nil {
		var pe *policy.ParseError
		if errors.As(err, &pe) {
			o.logger.Info("source rejected: parse error", "session_id", s.ID, "op", op, "error", pe.Error())
		}
		return nil, err
	}
	if !verdict.Safe {
		o.metrics.RecordHistory(op, "rejected")
		o.logger.Info("source rejected by policy",
			"session_id", s.ID,
			"op", op,
			"violations", len(verdict.Violations),
		)
		return &Outcome{Accepted: false, Verdict: verdict, Index: s.history.Cursor(), ThemeDark: s.themeDark}, nil
	}

	res := o.pipeline.NormalizeDetailed(ctx, code, s.themeDark)
	snippetVerdict, err := o.checkSnippet(ctx, s, res.Snippet, op)
	if err != nil {
		return nil, err
	}
	if !snippetVerdict.Safe {
		return &Outcome{Accepted: false, Verdict: snippetVerdict, Index: s.history.Cursor(), ThemeDark: s.themeDark}, nil
	}

	var index int
	if op == OpCommit {
		index = s.history.Commit(code)
	} else {
		index = s.history.Push(code)
	}
	o.metrics.RecordHistory(op, "ok")

	out := o.emitLocked(s, res, index, op)
	out.Verdict = verdict
	return out, nil
}

// checkSnippet validates normalized output against the policy. Accepted
// source can still normalize into unsafe text: dropping an import line can
// remove the opening of a block comment and expose what it hid.
func (o *Orchestrator) checkSnippet(ctx context.Context, s *Session, snippet, op string) (*policy.Verdict, error) {
	verdict, err := o.validator.ValidateSnippet(ctx, snippet)
	if err != nil {
		o.metrics.RecordHistory(op, "rejected")
		o.logger.Warn("normalized snippet does not parse", "session_id", s.ID, "op", op, "error", err)
		return nil, fmt.Errorf("normalized snippet: %w", err)
	}
	if !verdict.Safe {
		o.metrics.RecordHistory(op, "rejected")
		o.logger.Warn("normalized snippet rejected by policy",
			"session_id", s.ID,
			"op", op,
			"violations", len(verdict.Violations),
		)
	}
	return verdict, nil
}

// renderLocked normalizes a snapshot already in history, checks it, and
// publishes it. An unsafe snippet yields an outcome that is not accepted
// and nothing is published. Caller holds s.mu.
func (o *Orchestrator) renderLocked(ctx context.Context, s *Session, code string, op string) (*Outcome, error) {
	res := o.pipeline.NormalizeDetailed(ctx, code, s.themeDark)
	verdict, err := o.checkSnippet(ctx, s, res.Snippet, op)
	if err != nil {
		return nil, err
	}
	if !verdict.Safe {
		return &Outcome{Accepted: false, Verdict: verdict, Index: s.history.Cursor(), ThemeDark: s.themeDark}, nil
	}
	return o.emitLocked(s, res, s.history.Cursor(), op), nil
}

// emitLocked records a checked snippet and fans it out to live
// subscribers. Caller holds s.mu.
func (o *Orchestrator) emitLocked(s *Session, res normalize.Result, index int, op string) *Outcome {
	o.metrics.RecordNormalization(s.themeDark, res.Finalization)

	out := &Outcome{
		Accepted:     true,
		Index:        index,
		Snippet:      res.Snippet,
		Component:    res.Component,
		Finalization: res.Finalization,
		ThemeDark:    s.themeDark,
	}

	if scopeName := o.pipeline.Rules().HookScope; scopeName != "" {
		out.UnresolvedHooks = o.scope.UnresolvedHooks(res.Snippet, scopeName)
		if len(out.UnresolvedHooks) > 0 {
			o.logger.Warn("snippet references hooks missing from the execution scope",
				"session_id", s.ID,
				"hooks", out.UnresolvedHooks,
			)
		}
	}

	s.sandboxError = ""
	if dropped := s.publishLocked(Event{
		Type:      EventSnippet,
		SessionID: s.ID,
		Op:        op,
		Index:     index,
		Snippet:   res.Snippet,
		ThemeDark: s.themeDark,
	}); dropped > 0 {
		o.logger.Warn("live subscribers lagging; snippet dropped", "session_id", s.ID, "dropped", dropped)
	}
	return out
}

// Undo steps history back and renormalizes the snapshot now current.
func (o *Orchestrator) Undo(ctx context.Context, id string) (*Outcome, error) {
	return o.step(ctx, id, OpUndo)
}

// Redo steps history forward and renormalizes the snapshot now current.
func (o *Orchestrator) Redo(ctx context.Context, id string) (*Outcome, error) {
	return o.step(ctx, id, OpRedo)
}

func (o *Orchestrator) step(ctx context.Context, id, op string) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "submission."+op,
		trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	s, err := o.session(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		snapshot string
		ok       bool
	)
	if op == OpUndo {
		snapshot, ok = s.history.Undo()
	} else {
		snapshot, ok = s.history.Redo()
	}
	if !ok {
		o.metrics.RecordHistory(op, "noop")
		if op == OpUndo {
			return nil, ErrNothingToUndo
		}
		return nil, ErrNothingToRedo
	}
	out, err := o.renderLocked(ctx, s, snapshot, op)
	if err != nil || !out.Accepted {
		// Step back so the cursor keeps pointing at what the sandbox shows.
		if op == OpUndo {
			s.history.Redo()
		} else {
			s.history.Undo()
		}
		return out, err
	}
	o.metrics.RecordHistory(op, "ok")
	return out, nil
}

// History returns a copy of the session history.
func (o *Orchestrator) History(_ context.Context, id string) (*HistoryView, error) {
	s, err := o.session(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return &HistoryView{
		Entries: s.history.Entries(),
		Cursor:  s.history.Cursor(),
		CanUndo: s.history.CanUndo(),
		CanRedo: s.history.CanRedo(),
	}, nil
}

// SetTheme switches the session theme, remembers it for the client, and
// returns the current snapshot renormalized. The outcome is nil when
// history is empty.
func (o *Orchestrator) SetTheme(ctx context.Context, id string, dark bool) (*Outcome, error) {
	s, err := o.session(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.themeDark = dark
	if s.ClientKey != "" {
		if err := o.prefs.SetTheme(ctx, s.ClientKey, dark); err != nil {
			o.logger.Warn("storing theme preference failed", "session_id", s.ID, "error", err)
		}
	}

	current, ok := s.history.Current()
	if !ok {
		return nil, nil
	}
	return o.renderLocked(ctx, s, current, OpTheme)
}

// Generate requests code from the generator and submits the response.
//
// # Description
//
// Each call takes a new ticket for the session before awaiting the
// generator. When the response arrives a newer ticket means a later request
// superseded this one; the response is dropped with ErrStaleResponse and
// history is untouched. The last request issued wins.
//
// # Outputs
//
//   - *Outcome: As for Submit, with the generator's notice attached.
//   - error: ErrStaleResponse, *generation.TransportError,
//     *generation.GenerationError, *policy.ParseError, or ErrSessionNotFound.
func (o *Orchestrator) Generate(ctx context.Context, id string, req generation.Request) (*Outcome, error) {
	if o.generator == nil {
		return nil, ErrNoGenerator
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "submission.generate",
		trace.WithAttributes(
			attribute.String("session.id", id),
			attribute.String("generation.source", string(req.Source())),
		))
	defer span.End()

	s, err := o.session(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.ticket++
	ticket := s.ticket
	s.mu.Unlock()

	started := o.now()
	result, err := o.generator.Generate(ctx, req)
	elapsed := o.now().Sub(started)
	if err != nil {
		o.metrics.RecordGeneration(req.Source(), generationOutcome(err), elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Warn("generation failed", "session_id", id, "error", err)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticket != ticket {
		o.metrics.RecordGeneration(req.Source(), "stale", elapsed)
		o.logger.Info("stale generation response dropped",
			"session_id", id,
			"ticket", ticket,
			"latest", s.ticket,
		)
		return nil, ErrStaleResponse
	}
	o.metrics.RecordGeneration(req.Source(), "ok", elapsed)

	out, err := o.acceptLocked(ctx, s, result.Code, OpGenerate)
	if err != nil {
		return nil, err
	}
	out.Notice = result.Notice
	return out, nil
}

func generationOutcome(err error) string {
	switch {
	case generation.IsTransport(err):
		return "transport_error"
	case generation.IsGeneration(err):
		return "generation_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

// ReportSandboxError records an evaluation failure reported by the sandbox
// and forwards it verbatim to live subscribers. It is never retried.
func (o *Orchestrator) ReportSandboxError(_ context.Context, id, message string) (*sandbox.ExecutionError, error) {
	s, err := o.session(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sandboxError = message
	s.publishLocked(Event{
		Type:      EventSandboxError,
		SessionID: s.ID,
		Index:     s.history.Cursor(),
		ThemeDark: s.themeDark,
		Message:   message,
	})
	o.logger.Warn("sandbox execution error", "session_id", s.ID, "message", message)
	return sandbox.NewExecutionError(message), nil
}

// LastSandboxError returns the last error the sandbox reported for the
// current snapshot, if any.
func (o *Orchestrator) LastSandboxError(id string) (*sandbox.ExecutionError, error) {
	s, err := o.session(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sandboxError == "" {
		return nil, nil
	}
	return sandbox.NewExecutionError(s.sandboxError), nil
}

// Subscribe registers a live listener. The channel receives every snippet
// the session accepts and is closed when cancel is called or the session
// ends. The current snippet, if any, is delivered first.
func (o *Orchestrator) Subscribe(ctx context.Context, id string) (<-chan Event, func(), error) {
	s, err := o.session(id)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, ErrSessionNotFound
	}

	ch := make(chan Event, subscriberBuffer)
	subID := s.nextSub
	s.nextSub++
	s.subscribers[subID] = ch

	if current, ok := s.history.Current(); ok {
		res := o.pipeline.NormalizeDetailed(ctx, current, s.themeDark)
		ch <- Event{
			Type:      EventSnippet,
			SessionID: s.ID,
			Index:     s.history.Cursor(),
			Snippet:   res.Snippet,
			ThemeDark: s.themeDark,
		}
	}

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subscribers[subID]; ok {
			delete(s.subscribers, subID)
			close(sub)
		}
	}
	return ch, cancel, nil
}

func (o *Orchestrator) session(id string) (*Session, error) {
	s, err := o.store.Get(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, id)
	}
	s.touch(o.now())
	return s, nil
}

func (o *Orchestrator) recordValidation(verdict *policy.Verdict, err error) {
	switch {
	case err != nil:
		var pe *policy.ParseError
		if errors.As(err, &pe) {
			o.metrics.RecordValidation(OutcomeParseError, nil)
		}
	case verdict.Safe:
		o.metrics.RecordValidation(OutcomeSafe, nil)
	default:
		o.metrics.RecordValidation(OutcomeUnsafe, verdict.Violations)
	}
}
