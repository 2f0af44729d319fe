// Package classify decides the language of a code segment.
//
// Classification is deterministic wherever it can be: fence and heredoc
// hints first, then structured-data checks, then ordered lexical signals.
// A generative backend is consulted only when the lexical signals are
// missing or ambiguous, and its failures degrade to the configured default.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/runger/clipfix/internal/lang"
	"github.com/runger/clipfix/internal/provider"
	"github.com/runger/clipfix/internal/sanitize"
	"github.com/runger/clipfix/internal/segment"
)

// Confidence orders classification results. Higher is more certain.
type Confidence int

const (
	ConfidenceDefault Confidence = iota
	ConfidenceModel
	ConfidenceWeak
	ConfidenceStrong
	ConfidenceHint
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceDefault:
		return "default"
	case ConfidenceModel:
		return "model"
	case ConfidenceWeak:
		return "weak"
	case ConfidenceStrong:
		return "strong"
	case ConfidenceHint:
		return "hint"
	default:
		return "unknown"
	}
}

// Source records which step produced a Result.
type Source string

const (
	SourceHint      Source = "hint"
	SourceHeuristic Source = "heuristic"
	SourceModel     Source = "model"
	SourceDefault   Source = "default"
)

// Result is the outcome of classifying one segment.
type Result struct {
	Language   lang.Language
	Confidence Confidence
	Source     Source
	// Reason names the rule that decided, for --verbose output.
	Reason string
}

const (
	// DefaultMaxPromptBytes caps the code sent for model classification.
	DefaultMaxPromptBytes = 8192
	// DefaultTimeout bounds the model call.
	DefaultTimeout = 15 * time.Second
	modelMaxTokens = 32
)

// Config configures a Classifier.
type Config struct {
	// Backend is consulted for ambiguous input when AllowModel is set.
	Backend    provider.Backend
	AllowModel bool
	// DefaultLanguage is the last resort. Default: python
	DefaultLanguage lang.Language
	// SignalOrder sets the specificity order of lexical signals.
	SignalOrder []lang.Language
	// Override forces every segment to one language, as a hint would.
	Override       lang.Language
	MaxPromptBytes int
	Sanitizer      *sanitize.Sanitizer
	Timeout        time.Duration
	Logger         *slog.Logger
}

// Classifier is safe for concurrent use.
type Classifier struct {
	backend    provider.Backend
	allowModel bool
	def        lang.Language
	order      []lang.Language
	override   lang.Language
	maxPrompt  int
	sanitizer  *sanitize.Sanitizer
	timeout    time.Duration
	logger     *slog.Logger
}

// New creates a Classifier.
func New(cfg Config) *Classifier {
	c := &Classifier{
		backend:    cfg.Backend,
		allowModel: cfg.AllowModel,
		def:        cfg.DefaultLanguage,
		order:      cfg.SignalOrder,
		override:   cfg.Override,
		maxPrompt:  cfg.MaxPromptBytes,
		sanitizer:  cfg.Sanitizer,
		timeout:    cfg.Timeout,
		logger:     cfg.Logger,
	}
	if c.def == lang.Unknown {
		c.def = lang.Python
	}
	if len(c.order) == 0 {
		c.order = DefaultSignalOrder
	}
	if c.maxPrompt <= 0 {
		c.maxPrompt = DefaultMaxPromptBytes
	}
	if c.sanitizer == nil {
		c.sanitizer = sanitize.Default
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Classify returns the language of seg. It never fails.
func (c *Classifier) Classify(ctx context.Context, seg segment.Segment) Result {
	if c.override != lang.Unknown {
		return Result{Language: c.override, Confidence: ConfidenceHint, Source: SourceHint, Reason: "override"}
	}
	if l, ok := lang.Normalize(seg.LanguageHint); ok {
		return Result{Language: l, Confidence: ConfidenceHint, Source: SourceHint, Reason: "hint " + seg.LanguageHint}
	}

	r, ambiguous := c.Heuristic(seg.Text)
	if r.Source == SourceHeuristic && !ambiguous {
		return r
	}

	if c.allowModel && c.backend != nil && c.backend.Available() {
		l, err := c.askModel(ctx, seg.Text)
		if err == nil {
			return Result{Language: l, Confidence: ConfidenceModel, Source: SourceModel, Reason: provider.ModelOf(c.backend)}
		}
		c.logger.Warn("model classification failed", "segment", seg.Index, "error", err)
	}

	if ambiguous {
		return r
	}
	return Result{Language: c.def, Confidence: ConfidenceDefault, Source: SourceDefault, Reason: "default"}
}

// Heuristic runs the deterministic steps. ambiguous is set when several
// languages had weak signals; r then holds the first of them in order.
// When nothing matched, r has SourceDefault and the configured default.
func (c *Classifier) Heuristic(text string) (r Result, ambiguous bool) {
	strong := func(l lang.Language, reason string) (Result, bool) {
		return Result{Language: l, Confidence: ConfidenceStrong, Source: SourceHeuristic, Reason: reason}, false
	}

	if isJSON(text) {
		return strong(lang.JSON, "json")
	}
	if isYAML(text) {
		return strong(lang.YAML, "yaml")
	}
	if l, ok := matchShebang(text); ok {
		return strong(l, "shebang")
	}
	if l, name, ok := matchStrong(text, c.order); ok {
		return strong(l, name)
	}

	weak := matchWeak(text, c.order)
	switch len(weak) {
	case 0:
		return Result{Language: c.def, Confidence: ConfidenceDefault, Source: SourceDefault, Reason: "default"}, false
	case 1:
		return Result{Language: weak[0], Confidence: ConfidenceWeak, Source: SourceHeuristic, Reason: "weak signals"}, false
	default:
		return Result{Language: weak[0], Confidence: ConfidenceWeak, Source: SourceHeuristic, Reason: "ambiguous weak signals"}, true
	}
}

func isJSON(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" || (t[0] != '{' && t[0] != '[') {
		return false
	}
	return json.Valid([]byte(t))
}

var yamlLine = regexp.MustCompile(`^\s*(-(\s|$)|("[^"]*"|'[^']*'|[A-Za-z0-9_./-]+)\s*:(\s|$))`)

// isYAML accepts block mappings and sequences whose lines mostly look like
// YAML. Keys with spaces are rejected so "class A:" style code is not YAML.
func isYAML(text string) bool {
	var total, shaped int
	for _, line := range strings.Split(text, "\n") {
		t := strings.TrimSpace(line)
		if t == "" || strings.HasPrefix(t, "#") || t == "---" {
			continue
		}
		total++
		if yamlLine.MatchString(line) {
			shaped++
		}
	}
	if total < 2 || shaped*10 < total*6 {
		return false
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return false
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return false
	}
	root := doc.Content[0]
	switch root.Kind {
	case yaml.MappingNode:
		for i := 0; i < len(root.Content); i += 2 {
			if strings.ContainsAny(root.Content[i].Value, " \t(") {
				return false
			}
		}
		return true
	case yaml.SequenceNode:
		return true
	default:
		return false
	}
}

const modelPrompt = `Identify the programming language of the code below.
Answer with JSON only, e.g. {"language": "python"}.
Valid answers: %s.

Example:
Code:
fn main() { println!("hi"); }
Answer: {"language": "rust"}

Example:
Code:
SELECT id FROM users;
Answer: {"language": "sql"}

Code:
%s
Answer:`

func (c *Classifier) askModel(ctx context.Context, text string) (lang.Language, error) {
	names := make([]string, len(lang.All))
	for i, l := range lang.All {
		names[i] = string(l)
	}
	code := provider.Truncate(c.sanitizer.Sanitize(text), c.maxPrompt)
	prompt := fmt.Sprintf(modelPrompt, strings.Join(names, ", "), code)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reply, err := c.backend.Generate(ctx, prompt, modelMaxTokens)
	if err != nil {
		return lang.Unknown, err
	}
	name, ok := provider.ExtractField(reply, "language")
	if !ok {
		return lang.Unknown, fmt.Errorf("unrecognized reply %q", provider.Truncate(reply, 80))
	}
	l, ok := lang.Normalize(name)
	if !ok {
		return lang.Unknown, fmt.Errorf("unsupported language %q", name)
	}
	return l, nil
}
