package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/runger/clipfix/internal/cache"
	"github.com/runger/clipfix/internal/classify"
	"github.com/runger/clipfix/internal/lang"
	"github.com/runger/clipfix/internal/segment"
)

// EngineConfig wires an Engine.
type EngineConfig struct {
	Classifier   *classify.Classifier
	Orchestrator *Orchestrator
	Executor     *Executor
	// Cache is only used for CacheStats; the orchestrator owns lookups.
	Cache       *cache.Cache
	AllowRepair bool
	// FormatInterstitial also formats raw text between fences and heredocs.
	FormatInterstitial bool
	// RunID tags the run; a new UUID is generated when empty.
	RunID  string
	Logger *slog.Logger
}

// Engine is the entry point: raw text in, reassembled text out.
type Engine struct {
	classifier         *classify.Classifier
	orchestrator       *Orchestrator
	executor           *Executor
	cache              *cache.Cache
	allowRepair        bool
	formatInterstitial bool
	runID              string
	logger             *slog.Logger
}

// NewEngine creates an engine.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Classifier == nil {
		cfg.Classifier = classify.New(classify.Config{Logger: cfg.Logger})
	}
	if cfg.Executor == nil {
		cfg.Executor = NewExecutor(ExecutorConfig{Logger: cfg.Logger})
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	return &Engine{
		classifier:         cfg.Classifier,
		orchestrator:       cfg.Orchestrator,
		executor:           cfg.Executor,
		cache:              cfg.Cache,
		allowRepair:        cfg.AllowRepair,
		formatInterstitial: cfg.FormatInterstitial,
		runID:              cfg.RunID,
		logger:             cfg.Logger,
	}
}

// SegmentSummary describes what happened to one segment.
type SegmentSummary struct {
	Index      int
	Kind       segment.Kind
	Language   lang.Language
	Source     classify.Source
	Confidence classify.Confidence
	Mode       Mode
	Formatter  string
	RepairUsed bool
	Cached     bool
	Failure    FailureKind
	Diagnostic string
	Duration   time.Duration
}

// Result is the outcome of one Run.
type Result struct {
	Output   string
	Segments []SegmentSummary
	// Mode is failed if any segment failed, otherwise the most involved
	// mode any segment needed.
	Mode     Mode
	RunID    string
	Duration time.Duration
	// Workers is the pool size used; 1 means the segments ran sequentially.
	Workers int
}

// Failed counts failed segments.
func (r *Result) Failed() int {
	n := 0
	for _, s := range r.Segments {
		if s.Mode == ModeFailed {
			n++
		}
	}
	return n
}

// Changed reports whether the output differs from the input.
func (r *Result) Changed(input string) bool {
	return r.Output != input
}

// Speedup is the ratio of summed per-segment time to wall time.
func (r *Result) Speedup() float64 {
	if r.Duration <= 0 {
		return 1
	}
	var sum time.Duration
	for _, s := range r.Segments {
		sum += s.Duration
	}
	if sum == 0 {
		return 1
	}
	return float64(sum) / float64(r.Duration)
}

// RunID returns the identifier attached to logs and metrics of this engine.
func (e *Engine) RunID() string { return e.runID }

// Run segments raw, processes every code segment and reassembles the text.
// Segment failures are reported in the result; the error is non-nil only
// when ctx is cancelled, in which case no partial output is returned.
func (e *Engine) Run(ctx context.Context, raw string) (*Result, error) {
	start := time.Now()
	segs := segment.Split(raw)
	res := &Result{RunID: e.runID, Mode: ModeUnchanged, Workers: 1}
	if len(segs) == 0 {
		res.Duration = time.Since(start)
		return res, nil
	}

	structured := segment.HasStructure(segs)
	var work []segment.Segment
	for _, s := range segs {
		if e.shouldProcess(s, structured) {
			work = append(work, s)
		}
	}

	res.Workers = e.executor.Workers(len(work))
	outcomes, err := e.executor.ProcessAll(ctx, work, e.processSegment)
	if err != nil {
		return nil, err
	}

	byIndex := make(map[int]Outcome, len(outcomes))
	for _, o := range outcomes {
		byIndex[o.Index] = o
	}

	out := make([]segment.Segment, len(segs))
	for i, s := range segs {
		o, ok := byIndex[s.Index]
		if !ok {
			out[i] = s
			res.Segments = append(res.Segments, SegmentSummary{Index: s.Index, Kind: s.Kind, Mode: ModeUnchanged})
			continue
		}
		out[i] = s.WithText(o.Output)
		res.Segments = append(res.Segments, summarize(s, o))
		res.Mode = worse(res.Mode, o.Mode)
	}

	res.Output = segment.Join(out)
	res.Duration = time.Since(start)
	e.logger.Debug("run finished", "run_id", e.runID, "segments", len(segs), "processed", len(work),
		"mode", res.Mode, "duration", res.Duration)
	return res, nil
}

func (e *Engine) processSegment(ctx context.Context, seg segment.Segment) (Outcome, error) {
	cls := e.classifier.Classify(ctx, seg)
	e.logger.Debug("classified segment", "segment", seg.Index, "language", cls.Language,
		"source", cls.Source, "confidence", cls.Confidence, "reason", cls.Reason)
	return e.orchestrator.Process(ctx, seg, cls, e.allowRepair)
}

func (e *Engine) shouldProcess(s segment.Segment, structured bool) bool {
	if strings.TrimSpace(s.Text) == "" {
		return false
	}
	switch s.Kind {
	case segment.Raw:
		// An unclosed fence means the paste was cut short; leave it alone.
		if segment.HasOpenFence(s.Text) {
			return false
		}
		return !structured || e.formatInterstitial
	default:
		return !lang.IsPassthrough(s.LanguageHint)
	}
}

func summarize(s segment.Segment, o Outcome) SegmentSummary {
	return SegmentSummary{
		Index:      s.Index,
		Kind:       s.Kind,
		Language:   o.Language,
		Source:     o.Classification.Source,
		Confidence: o.Classification.Confidence,
		Mode:       o.Mode,
		Formatter:  o.Formatter,
		RepairUsed: o.Repair != nil || o.Mode == ModeRepaired,
		Cached:     o.Cached,
		Failure:    o.Failure,
		Diagnostic: o.Diagnostic,
		Duration:   o.Duration,
	}
}

var modeRank = map[Mode]int{
	ModeUnchanged: 0,
	ModeFormatted: 1,
	ModeRepaired:  2,
	ModeFailed:    3,
}

func worse(a, b Mode) Mode {
	if modeRank[b] > modeRank[a] {
		return b
	}
	return a
}

// CacheStats reports both cache tiers. It returns zero stats when caching
// is off.
func (e *Engine) CacheStats(ctx context.Context) (cache.Stats, error) {
	if e.cache == nil {
		return cache.Stats{}, nil
	}
	return e.cache.Stats(ctx)
}
