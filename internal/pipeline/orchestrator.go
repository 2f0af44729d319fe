// Package pipeline runs segments through classification, the formatter
// chain and at most one repair, and reassembles the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/runger/clipfix/internal/cache"
	"github.com/runger/clipfix/internal/classify"
	"github.com/runger/clipfix/internal/format"
	"github.com/runger/clipfix/internal/knowledge"
	"github.com/runger/clipfix/internal/lang"
	"github.com/runger/clipfix/internal/repair"
	"github.com/runger/clipfix/internal/sanitize"
	"github.com/runger/clipfix/internal/segment"
)

// Mode is how a segment's output was produced.
type Mode string

const (
	ModeFormatted Mode = "formatted"
	ModeRepaired  Mode = "repaired+formatted"
	ModeFailed    Mode = "failed"
	// ModeUnchanged marks segments that were not processed at all, such as
	// prose between code blocks or passthrough fences.
	ModeUnchanged Mode = "unchanged"
)

// FailureKind says why a segment failed.
type FailureKind string

const (
	FailureNone                 FailureKind = ""
	FailureNoFormatters         FailureKind = "no_formatters"
	FailureFormatterUnavailable FailureKind = "formatter_unavailable"
	FailureFormatterError       FailureKind = "formatter_error"
	FailureFormatterTimeout     FailureKind = "formatter_timeout"
	FailureRepairTimeout        FailureKind = "repair_timeout"
	FailureRepairBackend        FailureKind = "repair_backend_error"
	FailureRepairInvalid        FailureKind = "repair_invalid_output"
)

// maxDiagnostic bounds the diagnostic carried in outcomes and annotations.
const maxDiagnostic = 200

// FormatAttempt is one formatter invocation.
type FormatAttempt struct {
	FormatterID string
	Input       string
	Output      string
	Err         error
	Succeeded   bool
}

// Outcome is the result of processing one segment.
type Outcome struct {
	Index          int
	Succeeded      bool
	Output         string
	Mode           Mode
	Language       lang.Language
	Classification classify.Result
	// Formatter is the ID of the formatter whose output was accepted.
	Formatter  string
	Attempts   []FormatAttempt
	Repair     *repair.Attempt
	Failure    FailureKind
	Diagnostic string
	Cached     bool
	Duration   time.Duration
}

// Runner runs a formatter by ID. *format.Registry satisfies it.
type Runner interface {
	Run(ctx context.Context, id string, l lang.Language, text string) (string, error)
}

// OrchestratorConfig configures an Orchestrator.
type OrchestratorConfig struct {
	Profiles   *knowledge.Store
	Formatters Runner
	// Repairer may be nil, which disables repair.
	Repairer *repair.Router
	// Cache may be nil.
	Cache *cache.Cache
	// CacheRepairs also caches repaired+formatted results.
	CacheRepairs bool
	// Annotate prefixes failed segments with a one-line comment.
	Annotate bool
	Logger   *slog.Logger
}

// Orchestrator drives the formatter chain and the repair fallback for one
// segment at a time. It is safe for concurrent use.
type Orchestrator struct {
	profiles     *knowledge.Store
	formatters   Runner
	repairer     *repair.Router
	cache        *cache.Cache
	cacheRepairs bool
	annotate     bool
	logger       *slog.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Profiles == nil {
		cfg.Profiles = knowledge.NewStore("", cfg.Logger)
	}
	return &Orchestrator{
		profiles:     cfg.Profiles,
		formatters:   cfg.Formatters,
		repairer:     cfg.Repairer,
		cache:        cfg.Cache,
		cacheRepairs: cfg.CacheRepairs,
		annotate:     cfg.Annotate,
		logger:       cfg.Logger,
	}
}

// Process formats seg as cls.Language, repairing it at most once when
// allowRepair is set. The only error returned is cancellation of ctx; every
// other failure is reported in the Outcome with the original text kept.
func (o *Orchestrator) Process(ctx context.Context, seg segment.Segment, cls classify.Result, allowRepair bool) (Outcome, error) {
	start := time.Now()
	lead := leadingBlankLines(seg.Text)
	out, err := o.process(ctx, seg.WithText(seg.Text[len(lead):]), cls, allowRepair)
	out.Output = lead + out.Output
	out.Duration = time.Since(start)
	return out, err
}

func (o *Orchestrator) process(ctx context.Context, seg segment.Segment, cls classify.Result, allowRepair bool) (Outcome, error) {
	l := cls.Language
	text := seg.Text
	crlf := seg.CRLF()
	profile := o.profiles.Get(l)
	out := Outcome{Index: seg.Index, Language: l, Classification: cls}

	// Cached outputs are stored as the formatter emitted them, so the same
	// text pasted with other line endings shares an entry.
	formatKey := cache.Key{Language: l, Op: cache.OpFormat, Text: text}
	if cached, ok := o.cacheGet(ctx, formatKey); ok {
		out.Succeeded, out.Output, out.Mode, out.Cached = true, matchLineEndings(text, cached, crlf), ModeFormatted, true
		return out, nil
	}

	if len(profile.Formatters) == 0 {
		return o.fail(out, profile, text, crlf, FailureNoFormatters, fmt.Sprintf("no formatters for %s", l)), nil
	}

	formatted, id, attempts, chainErr := o.runChain(ctx, profile.Formatters, l, text)
	out.Attempts = append(out.Attempts, attempts...)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, ctxErr
	}
	if chainErr == nil {
		o.cachePut(ctx, formatKey, formatted)
		out.Succeeded, out.Output, out.Mode, out.Formatter = true, matchLineEndings(text, formatted, crlf), ModeFormatted, id
		return out, nil
	}
	if !ranAny(attempts) {
		// No installed tool could judge the text, and a repair could not be
		// verified either. Leave it as it was.
		out.Succeeded, out.Output, out.Mode = true, text, ModeUnchanged
		out.Failure, out.Diagnostic = FailureFormatterUnavailable, oneLine(chainErr.Error())
		o.logger.Debug("no formatter installed", "segment", seg.Index, "language", l,
			"diagnostic", out.Diagnostic)
		return out, nil
	}

	if !allowRepair || o.repairer == nil || !o.repairer.Enabled() {
		return o.fail(out, profile, text, crlf, formatterFailure(chainErr), chainErr.Error()), nil
	}

	repairKey := cache.Key{Language: l, Op: cache.OpRepaired, Text: text}
	if o.cacheRepairs {
		if cached, ok := o.cacheGet(ctx, repairKey); ok {
			out.Succeeded, out.Output, out.Mode, out.Cached = true, matchLineEndings(text, cached, crlf), ModeRepaired, true
			return out, nil
		}
	}

	attempt, err := o.repairer.Repair(ctx, text, l)
	out.Repair = attempt
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		kind := FailureRepairBackend
		if errors.Is(err, repair.ErrTimeout) {
			kind = FailureRepairTimeout
		}
		return o.fail(out, profile, text, crlf, kind, err.Error()), nil
	}

	if hazards := sanitize.IntroducedHazards(text, attempt.Repaired); len(hazards) > 0 {
		o.repairer.Finish(attempt, false)
		o.logger.Warn("rejecting repair that introduces destructive statements",
			"segment", seg.Index, "language", l, "hazards", hazards)
		return o.fail(out, profile, text, crlf, FailureRepairInvalid,
			"repair introduced "+strings.Join(hazards, ", ")), nil
	}

	formatted, id, attempts, chainErr = o.runChain(ctx, profile.Formatters, l, attempt.Repaired)
	out.Attempts = append(out.Attempts, attempts...)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, ctxErr
	}
	if chainErr != nil {
		o.repairer.Finish(attempt, false)
		return o.fail(out, profile, text, crlf, FailureRepairInvalid, chainErr.Error()), nil
	}

	o.repairer.Finish(attempt, true)
	if o.cacheRepairs {
		o.cachePut(ctx, repairKey, formatted)
	}
	out.Succeeded, out.Output, out.Mode, out.Formatter = true, matchLineEndings(text, formatted, crlf), ModeRepaired, id
	return out, nil
}

// runChain tries each formatter in order and returns the first success.
// The error is the last failure that was not ErrUnavailable, or the last
// ErrUnavailable when no formatter could run at all.
func (o *Orchestrator) runChain(ctx context.Context, ids []string, l lang.Language, text string) (string, string, []FormatAttempt, error) {
	attempts := make([]FormatAttempt, 0, len(ids))
	var lastErr, lastUnavailable error
	for _, id := range ids {
		if ctx.Err() != nil {
			return "", "", attempts, ctx.Err()
		}
		result, err := o.formatters.Run(ctx, id, l, text)
		attempts = append(attempts, FormatAttempt{FormatterID: id, Input: text, Output: result, Err: err, Succeeded: err == nil})
		if err == nil {
			return result, id, attempts, nil
		}
		if errors.Is(err, format.ErrUnavailable) {
			lastUnavailable = err
			continue
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = lastUnavailable
	}
	return "", "", attempts, lastErr
}

// ranAny reports whether some formatter in the chain was able to run.
func ranAny(attempts []FormatAttempt) bool {
	for _, a := range attempts {
		if !errors.Is(a.Err, format.ErrUnavailable) {
			return true
		}
	}
	return false
}

func formatterFailure(err error) FailureKind {
	switch {
	case errors.Is(err, format.ErrTimeout):
		return FailureFormatterTimeout
	case errors.Is(err, format.ErrUnavailable):
		return FailureFormatterUnavailable
	default:
		return FailureFormatterError
	}
}

func (o *Orchestrator) fail(out Outcome, profile *knowledge.Profile, text string, crlf bool, kind FailureKind, diagnostic string) Outcome {
	out.Succeeded = false
	out.Mode = ModeFailed
	out.Failure = kind
	out.Diagnostic = oneLine(diagnostic)
	out.Output = text
	if o.annotate && profile.HasCommentSyntax() {
		nl := "\n"
		if crlf {
			nl = "\r\n"
		}
		out.Output = fmt.Sprintf("%s clipfix: could not format %s: %s%s%s",
			profile.CommentPrefix, out.Language, out.Diagnostic, nl, text)
	}
	o.logger.Debug("segment failed", "segment", out.Index, "language", out.Language,
		"failure", kind, "diagnostic", out.Diagnostic)
	return out
}

func (o *Orchestrator) cacheGet(ctx context.Context, k cache.Key) (string, bool) {
	if o.cache == nil {
		return "", false
	}
	return o.cache.Get(ctx, k)
}

func (o *Orchestrator) cachePut(ctx context.Context, k cache.Key, output string) {
	if o.cache != nil {
		o.cache.Put(ctx, k, output)
	}
}

// matchLineEndings converts out to CRLF line breaks when crlf is set and
// then makes it end the way in does.
func matchLineEndings(in, out string, crlf bool) string {
	if crlf {
		out = strings.ReplaceAll(strings.ReplaceAll(out, "\r\n", "\n"), "\n", "\r\n")
	}
	return matchTrailingNewline(in, out)
}

// matchTrailingNewline makes out end the way in does. Formatters always
// emit a final newline, but a fenced body never includes the newline before
// its closing fence.
func matchTrailingNewline(in, out string) string {
	out = strings.TrimRight(out, "\r\n")
	switch {
	case strings.HasSuffix(in, "\r\n"):
		return out + "\r\n"
	case strings.HasSuffix(in, "\n"):
		return out + "\n"
	default:
		return out
	}
}

// leadingBlankLines returns the whitespace-only lines at the start of s.
// Text between a closing fence and the next structure starts with the
// closer's line break, which formatters would drop.
func leadingBlankLines(s string) string {
	end := 0
	for {
		i := strings.IndexByte(s[end:], '\n')
		if i < 0 || strings.TrimSpace(s[end:end+i]) != "" {
			return s[:end]
		}
		end += i + 1
	}
}

func oneLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if len(s) > maxDiagnostic {
		s = strings.ToValidUTF8(s[:maxDiagnostic], "") + "..."
	}
	return s
}
