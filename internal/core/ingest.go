package core

// ingest.go runs one bulk load session from start to finish:
//  1. Validate the actor and take a session slot from the limiter
//  2. Scan the document record by record, dispatching on mode and tag
//  3. Add each outcome to the summary and audit it
//  4. Audit completion, or audit the fatal error and return it
//
// Records commit one at a time. A failure on line N never undoes lines
// before it, and a fatal error returns no summary even though earlier
// records are already saved.

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/JonMunkholm/TruckRewards/internal/logging"
)

// SessionIDLayout formats the session start time into the session id.
const SessionIDLayout = "20060102_150405"

// Recorder observes ingestion for metrics. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveRecord(mode Mode, tag, status string)
	ObserveSession(mode Mode, result string, duration time.Duration)
}

// Session results reported to the Recorder.
const (
	SessionResultCompleted = "completed"
	SessionResultFailed    = "failed"
	SessionResultRejected  = "rejected"
)

type nopRecorder struct{}

func (nopRecorder) ObserveRecord(Mode, string, string)         {}
func (nopRecorder) ObserveSession(Mode, string, time.Duration) {}

// Ingestor processes bulk load documents against a Store.
// It is safe for concurrent use; each Run gets its own session state.
type Ingestor struct {
	store     Store
	auditSink AuditSink
	usernames *UsernameGenerator
	creds     CredentialIssuer
	limiter   *SessionLimiter
	recorder  Recorder
	now       func() time.Time
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithUsernameGenerator replaces the store-backed username generator.
func WithUsernameGenerator(g *UsernameGenerator) IngestorOption {
	return func(in *Ingestor) { in.usernames = g }
}

// WithCredentialIssuer replaces the default bcrypt issuer.
func WithCredentialIssuer(c CredentialIssuer) IngestorOption {
	return func(in *Ingestor) { in.creds = c }
}

// WithSessionLimiter bounds concurrent sessions.
func WithSessionLimiter(l *SessionLimiter) IngestorOption {
	return func(in *Ingestor) { in.limiter = l }
}

// WithRecorder reports per-record and per-session metrics.
func WithRecorder(r Recorder) IngestorOption {
	return func(in *Ingestor) { in.recorder = r }
}

// WithClock sets the time source used for session ids and durations.
func WithClock(now func() time.Time) IngestorOption {
	return func(in *Ingestor) { in.now = now }
}

// NewIngestor creates an ingestor over store, auditing to audit.
func NewIngestor(store Store, audit AuditSink, opts ...IngestorOption) *Ingestor {
	in := &Ingestor{
		store:     store,
		auditSink: audit,
		creds:     NewBcryptIssuer(DefaultBcryptCost),
		recorder:  nopRecorder{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.usernames == nil {
		in.usernames = NewUsernameGenerator(store, nil)
	}
	return in
}

// session is the state of one Run.
type session struct {
	*Ingestor
	id      string
	actor   Actor
	logger  *slog.Logger
	summary *Summary
}

// Run processes every record in r for actor and returns the session summary.
//
// A non-nil error means the session aborted: the document could not be read,
// ctx ended, or the limiter had no slot. Records handled before the abort
// remain committed.
func (in *Ingestor) Run(ctx context.Context, actor Actor, r io.Reader) (*Summary, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}

	if in.limiter != nil {
		if err := in.limiter.Acquire(ctx); err != nil {
			in.recorder.ObserveSession(actor.Mode, SessionResultRejected, 0)
			return nil, err
		}
		defer in.limiter.Release()
	}

	start := in.now()
	s := &session{
		Ingestor: in,
		id:       start.Format(SessionIDLayout),
		actor:    actor,
	}
	s.logger = logging.WithFields(ctx,
		"session_id", s.id,
		"mode", actor.Mode,
		"actor", actor.Username,
	)
	s.summary = newSummary(s.id)

	s.logger.Info("bulk load started")

	if err := s.process(ctx, r); err != nil {
		s.logger.Error("bulk load failed", "error", err, "processed", s.summary.Total)
		// The fatal event is written even when ctx is the cause.
		s.audit(context.WithoutCancel(ctx), EventBulkLoadError,
			fmt.Sprintf("Bulk load session %s failed with error: %v", s.id, err))
		in.recorder.ObserveSession(actor.Mode, SessionResultFailed, in.now().Sub(start))
		return nil, err
	}

	s.audit(ctx, EventBulkLoadCompleted,
		fmt.Sprintf("Bulk load session %s completed. %s", s.id, s.summary.String()))

	elapsed := in.now().Sub(start)
	in.recorder.ObserveSession(actor.Mode, SessionResultCompleted, elapsed)

	s.logger.Info("bulk load completed",
		"total", s.summary.Total,
		"success", s.summary.Success,
		"failed", s.summary.Failed,
		"duration_ms", elapsed.Milliseconds(),
	)
	return s.summary, nil
}

func (s *session) process(ctx context.Context, r io.Reader) error {
	sc := NewLineScanner(r)
	for sc.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec := sc.Record()
		out := dispatch(ctx, s, rec)
		s.record(ctx, out)
	}
	return sc.Err()
}

// record adds out to the summary and writes its per-line audit event.
func (s *session) record(ctx context.Context, out Outcome) {
	s.summary.add(out)
	s.recorder.ObserveRecord(s.actor.Mode, out.RecordType, out.Status)

	if !out.Succeeded() {
		s.logger.Debug("record failed", "line", out.LineNum, "type", out.RecordType, "message", out.Message)
	}

	s.audit(ctx, OutcomeEventType(out.RecordType, out.Status),
		fmt.Sprintf("Session: %s, Line: %d, Type: %s, Details: %s, Message: %s",
			s.id, out.LineNum, out.RecordType, out.Details, out.Message))
}

// audit writes an event attributed to the acting account. Failures are
// logged and never stop the session.
func (s *session) audit(ctx context.Context, eventType, details string) {
	if s.auditSink == nil {
		return
	}
	_, err := s.auditSink.Log(ctx, AuditLogParams{
		EventType: eventType,
		Details:   details,
		ActorID:   s.actor.AccountID,
	})
	if err != nil {
		s.logger.Warn("failed to write audit event", "event_type", eventType, "error", err)
	}
}
