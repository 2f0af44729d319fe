// Package repair asks a generative backend to fix code that no formatter
// accepted.
//
// A Router performs at most one backend call per request and never retries:
// a timeout or backend error is returned to the caller, which keeps the
// original text.
package repair

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/runger/clipfix/internal/knowledge"
	"github.com/runger/clipfix/internal/lang"
	"github.com/runger/clipfix/internal/provider"
	"github.com/runger/clipfix/internal/sanitize"
	"github.com/runger/clipfix/internal/storage"
)

// DefaultTimeout bounds one repair call.
const DefaultTimeout = 30 * time.Second

var (
	// ErrTimeout means the backend did not answer in time.
	ErrTimeout = errors.New("repair timed out")
	// ErrBackend means the backend failed or returned an unusable reply.
	ErrBackend = errors.New("repair backend error")
	// ErrDisabled means no backend is configured.
	ErrDisabled = errors.New("repair disabled")
)

// State is a step of a repair attempt.
type State int

const (
	NotRequested State = iota
	KnowledgeLoaded
	PromptSubmitted
	ReplyReceived
	TimedOut
	BackendError
	Done
)

var stateNames = [...]string{
	NotRequested:    "not_requested",
	KnowledgeLoaded: "knowledge_loaded",
	PromptSubmitted: "prompt_submitted",
	ReplyReceived:   "reply_received",
	TimedOut:        "timed_out",
	BackendError:    "backend_error",
	Done:            "done",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Attempt describes one repair request.
type Attempt struct {
	Language lang.Language
	Input    string
	Repaired string
	Model    string
	// Succeeded is set by Finish once the caller knows whether the repaired
	// text passed a formatter.
	Succeeded bool
	State     State
	// Trace lists every state the attempt passed through, in order.
	Trace    []State
	Duration time.Duration
	Err      error

	finished bool
}

func (a *Attempt) enter(s State) {
	a.State = s
	a.Trace = append(a.Trace, s)
}

// Recorder receives one metric per finished attempt. Record must not block.
type Recorder interface {
	Record(m storage.RepairMetric) bool
}

// Config configures a Router.
type Config struct {
	Profiles *knowledge.Store
	Backend  provider.Backend
	Timeout  time.Duration
	// MaxTokens is the reply budget for profiles that set none.
	MaxTokens int
	Recorder  Recorder
	RunID     string
	// Redact swaps secrets for placeholders before the prompt leaves the
	// process and restores them in the reply.
	Redact    bool
	Sanitizer *sanitize.Sanitizer
	Logger    *slog.Logger
}

// Router resolves a language's profile and submits one repair prompt.
type Router struct {
	profiles  *knowledge.Store
	backend   provider.Backend
	timeout   time.Duration
	maxTokens int
	recorder  Recorder
	runID     string
	redact    bool
	sanitizer *sanitize.Sanitizer
	logger    *slog.Logger
	now       func() time.Time
}

// NewRouter creates a router. A nil Backend yields a router whose Repair
// always fails with ErrDisabled.
func NewRouter(cfg Config) *Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Profiles == nil {
		cfg.Profiles = knowledge.NewStore("", cfg.Logger)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Sanitizer == nil {
		cfg.Sanitizer = sanitize.Default
	}
	return &Router{
		profiles:  cfg.Profiles,
		backend:   cfg.Backend,
		timeout:   cfg.Timeout,
		maxTokens: cfg.MaxTokens,
		recorder:  cfg.Recorder,
		runID:     cfg.RunID,
		redact:    cfg.Redact,
		sanitizer: cfg.Sanitizer,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// Enabled reports whether the router has a usable backend.
func (r *Router) Enabled() bool {
	return r.backend != nil && r.backend.Available()
}

// Repair submits text for repair. On success the returned attempt is in
// ReplyReceived with Repaired set; the caller must call Finish once it has
// validated the result. Failed attempts are finished and recorded before
// Repair returns. Cancellation of ctx itself is returned as ctx.Err().
func (r *Router) Repair(ctx context.Context, text string, l lang.Language) (*Attempt, error) {
	a := &Attempt{Language: l, Input: text}
	a.enter(NotRequested)
	if !r.Enabled() {
		a.Err = ErrDisabled
		return a, ErrDisabled
	}
	a.Model = provider.ModelOf(r.backend)

	profile := r.profiles.Get(l)
	a.enter(KnowledgeLoaded)

	code, redaction := text, (*sanitize.Redaction)(nil)
	if r.redact {
		code, redaction = r.sanitizer.Redact(text)
	}
	prompt := profile.Render(code)
	budget := profile.Budget(r.maxTokens)

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := r.now()
	a.enter(PromptSubmitted)
	r.logger.Debug("submitting repair", "language", l, "model", a.Model, "max_tokens", budget,
		"redacted", redaction.Len())
	reply, err := r.backend.Generate(callCtx, prompt, budget)
	a.Duration = r.now().Sub(start)

	if err == nil {
		reply = provider.StripFences(reply)
		if strings.TrimSpace(reply) == "" {
			err = provider.ErrEmptyReply
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			a.Err = ctx.Err()
			return a, ctx.Err()
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			a.enter(TimedOut)
			a.Err = fmt.Errorf("%w: %s after %v", ErrTimeout, l, r.timeout)
		} else {
			a.enter(BackendError)
			a.Err = fmt.Errorf("%w: %w", ErrBackend, err)
		}
		r.logger.Warn("repair failed", "language", l, "model", a.Model, "error", err)
		r.Finish(a, false)
		return a, a.Err
	}

	a.Repaired = redaction.Restore(reply)
	a.enter(ReplyReceived)
	return a, nil
}

// Finish closes the attempt and records its metric. It is safe to call
// more than once; only the first call counts.
func (r *Router) Finish(a *Attempt, succeeded bool) {
	if a == nil || a.finished {
		return
	}
	a.finished = true
	a.Succeeded = succeeded
	a.enter(Done)

	if r.recorder == nil {
		return
	}
	r.recorder.Record(storage.RepairMetric{
		RunID:      r.runID,
		Language:   string(a.Language),
		Model:      a.Model,
		Succeeded:  succeeded,
		DurationMs: a.Duration.Milliseconds(),
	})
}
