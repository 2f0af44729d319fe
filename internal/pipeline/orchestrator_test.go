package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runger/clipfix/internal/cache"
	"github.com/runger/clipfix/internal/classify"
	"github.com/runger/clipfix/internal/format"
	"github.com/runger/clipfix/internal/knowledge"
	"github.com/runger/clipfix/internal/lang"
	"github.com/runger/clipfix/internal/repair"
	"github.com/runger/clipfix/internal/segment"
)

const (
	brokenPython   = "x=1\n if x>0:\nprint(x)"
	repairedPython = "x = 1\nif x > 0:\n    print(x)"
)

// pythonFormatter accepts only the repaired program.
func pythonFormatter(text string) (string, error) {
	if strings.TrimSpace(text) != repairedPython {
		return "", fmt.Errorf("%w: cannot parse: 2:0: unexpected indent", format.ErrFailed)
	}
	return repairedPython + "\n", nil
}

func pythonClass() classify.Result {
	return classify.Result{Language: lang.Python, Confidence: classify.ConfidenceStrong, Source: classify.SourceHeuristic}
}

type orchestratorFixture struct {
	runner   *fakeRunner
	backend  *fakeBackend
	recorder *fakeRecorder
	cache    *cache.Cache
	orch     *Orchestrator
}

func newFixture(t *testing.T, runner *fakeRunner, backend *fakeBackend, mutate func(*OrchestratorConfig, *repair.Config)) *orchestratorFixture {
	t.Helper()
	f := &orchestratorFixture{runner: runner, backend: backend, recorder: &fakeRecorder{}, cache: cache.New(cache.Config{})}
	rcfg := repair.Config{Recorder: f.recorder, Timeout: time.Second}
	if backend != nil {
		rcfg.Backend = backend
	}
	ocfg := OrchestratorConfig{
		Profiles:   knowledge.NewStore("", nil),
		Formatters: runner,
		Cache:      f.cache,
		Annotate:   true,
	}
	if mutate != nil {
		mutate(&ocfg, &rcfg)
	}
	ocfg.Repairer = repair.NewRouter(rcfg)
	f.orch = NewOrchestrator(ocfg)
	return f
}

func TestOrchestrator_FormatsJSON(t *testing.T) {
	reg := format.NewRegistry(format.RegistryConfig{})
	reg.Register(format.JSONFormatter{})
	orch := NewOrchestrator(OrchestratorConfig{Formatters: reg})

	seg := segment.Segment{Text: `{"a":1,"b":2}`}
	out, err := orch.Process(context.Background(), seg, classify.Result{Language: lang.JSON}, true)
	require.NoError(t, err)
	assert.True(t, out.Succeeded)
	assert.Equal(t, ModeFormatted, out.Mode)
	assert.Equal(t, "json", out.Formatter)
	assert.Equal(t, "{\n  \"a\": 1,\n  \"b\": 2\n}", out.Output)

	// Formatting the result again changes nothing.
	again, err := orch.Process(context.Background(), segment.Segment{Text: out.Output}, classify.Result{Language: lang.JSON}, true)
	require.NoError(t, err)
	assert.Equal(t, out.Output, again.Output)
}

func TestOrchestrator_FirstSuccessWins(t *testing.T) {
	runner := &fakeRunner{funcs: map[string]func(string) (string, error){
		"black":  func(string) (string, error) { return "black\n", nil },
		"dedent": func(string) (string, error) { return "dedent\n", nil },
	}}
	f := newFixture(t, runner, nil, nil)

	out, err := f.orch.Process(context.Background(), segment.Segment{Text: "x\n"}, pythonClass(), true)
	require.NoError(t, err)
	assert.Equal(t, "black\n", out.Output)
	assert.Equal(t, "black", out.Formatter)
	require.Len(t, out.Attempts, 2)
	assert.Equal(t, "ruff", out.Attempts[0].FormatterID)
	assert.ErrorIs(t, out.Attempts[0].Err, format.ErrUnavailable)
	assert.True(t, out.Attempts[1].Succeeded)
}

func TestOrchestrator_RepairsBrokenPython(t *testing.T) {
	runner := &fakeRunner{funcs: map[string]func(string) (string, error){"black": pythonFormatter}}
	backend := &fakeBackend{reply: "```python\n" + repairedPython + "\n```"}
	f := newFixture(t, runner, backend, nil)

	out, err := f.orch.Process(context.Background(), segment.Segment{Text: brokenPython}, pythonClass(), true)
	require.NoError(t, err)
	assert.True(t, out.Succeeded)
	assert.Equal(t, ModeRepaired, out.Mode)
	assert.Equal(t, repairedPython, out.Output)
	assert.Equal(t, int32(1), backend.calls.Load())

	require.NotNil(t, out.Repair)
	assert.True(t, out.Repair.Succeeded)
	assert.Equal(t, repair.Done, out.Repair.State)

	metrics := f.recorder.all()
	require.Len(t, metrics, 1)
	assert.True(t, metrics[0].Succeeded)
	assert.Equal(t, "python", metrics[0].Language)
}

func TestOrchestrator_IrreparableKeepsOriginalWithComment(t *testing.T) {
	runner := &fakeRunner{funcs: map[string]func(string) (string, error){
		"black":  failing("cannot parse"),
		"dedent": failing("syntax error"),
	}}
	backend := &fakeBackend{reply: "print((1 +"}
	f := newFixture(t, runner, backend, nil)

	in := "print((1 +\n"
	out, err := f.orch.Process(context.Background(), segment.Segment{Text: in}, pythonClass(), true)
	require.NoError(t, err)
	assert.False(t, out.Succeeded)
	assert.Equal(t, ModeFailed, out.Mode)
	assert.Equal(t, FailureRepairInvalid, out.Failure)
	assert.Equal(t, "# clipfix: could not format python: formatter failed: syntax error\n"+in, out.Output)
	assert.Equal(t, int32(1), backend.calls.Load())

	metrics := f.recorder.all()
	require.Len(t, metrics, 1)
	assert.False(t, metrics[0].Succeeded)
}

func TestOrchestrator_AtMostOneRepair(t *testing.T) {
	runner := &fakeRunner{funcs: map[string]func(string) (string, error){
		"ruff":   failing("a"),
		"black":  failing("b"),
		"dedent": failing("c"),
	}}
	backend := &fakeBackend{reply: "still broken"}
	f := newFixture(t, runner, backend, nil)

	_, err := f.orch.Process(context.Background(), segment.Segment{Text: "x"}, pythonClass(), true)
	require.NoError(t, err)
	assert.Equal(t, int32(1), backend.calls.Load())
	assert.Equal(t, 6, runner.callCount(), "the chain runs once before and once after the repair")
}

func TestOrchestrator_RepairNotAllowed(t *testing.T) {
	runner := &fakeRunner{funcs: map[string]func(string) (string, error){"black": pythonFormatter}}
	backend := &fakeBackend{reply: repairedPython}
	f := newFixture(t, runner, backend, nil)

	out, err := f.orch.Process(context.Background(), segment.Segment{Text: brokenPython}, pythonClass(), false)
	require.NoError(t, err)
	assert.Equal(t, ModeFailed, out.Mode)
	assert.Equal(t, FailureFormatterError, out.Failure)
	assert.Zero(t, backend.calls.Load())
	assert.Nil(t, out.Repair)
	assert.True(t, strings.HasSuffix(out.Output, brokenPython))
}

func TestOrchestrator_FailureKinds(t *testing.T) {
	tests := []struct {
		name  string
		funcs map[string]func(string) (string, error)
		want  FailureKind
	}{
		{"timeout", map[string]func(string) (string, error){
			"black": func(string) (string, error) { return "", fmt.Errorf("%w: black after 10s", format.ErrTimeout) },
		}, FailureFormatterTimeout},
		{"error after timeout", map[string]func(string) (string, error){
			"black":  func(string) (string, error) { return "", fmt.Errorf("%w: black after 10s", format.ErrTimeout) },
			"dedent": failing("bad"),
		}, FailureFormatterError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, &fakeRunner{funcs: tt.funcs}, nil, nil)
			out, err := f.orch.Process(context.Background(), segment.Segment{Text: "x"}, pythonClass(), true)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Failure)
		})
	}
}

func TestOrchestrator_NoInstalledFormatterSkipsRepair(t *testing.T) {
	backend := &fakeBackend{reply: "echo fixed\n"}
	f := newFixture(t, &fakeRunner{}, backend, nil)

	in := "if true; then echo ok; fi\n"
	out, err := f.orch.Process(context.Background(), segment.Segment{Text: in},
		classify.Result{Language: lang.Bash}, true)
	require.NoError(t, err)
	assert.True(t, out.Succeeded)
	assert.Equal(t, ModeUnchanged, out.Mode)
	assert.Equal(t, in, out.Output, "text is not annotated")
	assert.Equal(t, FailureFormatterUnavailable, out.Failure)
	assert.Contains(t, out.Diagnostic, "shfmt")
	assert.Nil(t, out.Repair)
	assert.Zero(t, backend.calls.Load())
	assert.Empty(t, f.recorder.all())
}

func TestOrchestrator_CRLF(t *testing.T) {
	runner := &fakeRunner{funcs: map[string]func(string) (string, error){
		"black": func(string) (string, error) { return "a = 1\nb = 2\n", nil },
	}}
	f := newFixture(t, runner, nil, nil)

	// Multi-line body.
	out, err := f.orch.Process(context.Background(), segment.Segment{Text: "a=1\r\nb=2\r\n"}, pythonClass(), true)
	require.NoError(t, err)
	assert.Equal(t, "a = 1\r\nb = 2\r\n", out.Output)

	// A one-line fenced body takes its line endings from the fence.
	seg := segment.Segment{Prefix: "```python\r\n", Text: "a=1;b=2", Suffix: "\r\n```\r\n", Kind: segment.Fenced}
	out, err = f.orch.Process(context.Background(), seg, pythonClass(), true)
	require.NoError(t, err)
	assert.Equal(t, "a = 1\r\nb = 2", out.Output)

	// The same text in an LF document reuses the cache entry without CRs.
	seg.Prefix, seg.Suffix = "```python\n", "\n```\n"
	out, err = f.orch.Process(context.Background(), seg, pythonClass(), true)
	require.NoError(t, err)
	assert.True(t, out.Cached)
	assert.Equal(t, "a = 1\nb = 2", out.Output)
}

func TestOrchestrator_CRLFAnnotation(t *testing.T) {
	runner := &fakeRunner{funcs: map[string]func(string) (string, error){"black": failing("bad")}}
	f := newFixture(t, runner, nil, nil)

	out, err := f.orch.Process(context.Background(), segment.Segment{Text: "x(\r\n"}, pythonClass(), false)
	require.NoError(t, err)
	assert.Equal(t, "# clipfix: could not format python: formatter failed: bad\r\nx(\r\n", out.Output)
}

func TestMatchLineEndings(t *testing.T) {
	assert.Equal(t, "a\r\nb\r\n", matchLineEndings("x\r\n", "a\nb\n", true))
	assert.Equal(t, "a\r\nb", matchLineEndings("x", "a\r\nb\n", true))
	assert.Equal(t, "a\nb\n", matchLineEndings("x\n", "a\nb\n", false))
}

func TestOrchestrator_UnknownLanguageHasNoFormatters(t *testing.T) {
	f := newFixture(t, &fakeRunner{}, &fakeBackend{reply: "x"}, nil)

	out, err := f.orch.Process(context.Background(), segment.Segment{Text: "MOVE A TO B."},
		classify.Result{Language: lang.Language("cobol")}, true)
	require.NoError(t, err)
	assert.Equal(t, FailureNoFormatters, out.Failure)
	assert.Zero(t, f.backend.calls.Load())
}

func TestOrchestrator_JSONFailureIsNotAnnotated(t *testing.T) {
	reg := format.NewRegistry(format.RegistryConfig{})
	reg.Register(format.JSONFormatter{})
	orch := NewOrchestrator(OrchestratorConfig{Formatters: reg, Annotate: true})

	in := `{"a": 1,}`
	out, err := orch.Process(context.Background(), segment.Segment{Text: in}, classify.Result{Language: lang.JSON}, false)
	require.NoError(t, err)
	assert.Equal(t, ModeFailed, out.Mode)
	assert.Equal(t, in, out.Output)
	assert.NotEmpty(t, out.Diagnostic)
}

func TestOrchestrator_RepairTimeout(t *testing.T) {
	runner := &fakeRunner{funcs: map[string]func(string) (string, error){"black": pythonFormatter}}
	backend := &fakeBackend{block: true}
	f := newFixture(t, runner, backend, func(_ *OrchestratorConfig, rc *repair.Config) {
		rc.Timeout = 10 * time.Millisecond
	})

	out, err := f.orch.Process(context.Background(), segment.Segment{Text: brokenPython}, pythonClass(), true)
	require.NoError(t, err)
	assert.Equal(t, FailureRepairTimeout, out.Failure)
	assert.Contains(t, out.Output, brokenPython)
}

func TestOrchestrator_RepairBackendError(t *testing.T) {
	runner := &fakeRunner{funcs: map[string]func(string) (string, error){"black": pythonFormatter}}
	backend := &fakeBackend{err: fmt.Errorf("rate limited")}
	f := newFixture(t, runner, backend, nil)

	out, err := f.orch.Process(context.Background(), segment.Segment{Text: brokenPython}, pythonClass(), true)
	require.NoError(t, err)
	assert.Equal(t, FailureRepairBackend, out.Failure)
}

func TestOrchestrator_RejectsHazardousRepair(t *testing.T) {
	runner := &fakeRunner{funcs: map[string]func(string) (string, error){"shfmt": failing("unclosed if")}}
	backend := &fakeBackend{reply: "rm -rf /tmp/build\nif true; then echo ok; fi\n"}
	f := newFixture(t, runner, backend, nil)

	in := "if true; then echo ok\n"
	out, err := f.orch.Process(context.Background(), segment.Segment{Text: in},
		classify.Result{Language: lang.Bash}, true)
	require.NoError(t, err)
	assert.Equal(t, FailureRepairInvalid, out.Failure)
	assert.Contains(t, out.Diagnostic, "repair introduced")
	assert.Equal(t, 1, runner.callCount(), "hazardous repair is never formatted")
	assert.True(t, strings.HasSuffix(out.Output, in))
}

func TestOrchestrator_CachesFormatResults(t *testing.T) {
	runner := &fakeRunner{funcs: map[string]func(string) (string, error){"black": identity}}
	f := newFixture(t, runner, nil, nil)
	seg := segment.Segment{Text: "x = 1\n"}

	first, err := f.orch.Process(context.Background(), seg, pythonClass(), true)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := f.orch.Process(context.Background(), seg, pythonClass(), true)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Output, second.Output)
	assert.Equal(t, 2, runner.callCount(), "ruff (unavailable) and black ran once")

	// The same text as another language is a different key.
	_, ok := f.cache.Get(context.Background(), cache.Key{Language: lang.Bash, Op: cache.OpFormat, Text: seg.Text})
	assert.False(t, ok)
}

func TestOrchestrator_CachesRepairsWhenEnabled(t *testing.T) {
	for _, include := range []bool{false, true} {
		t.Run(fmt.Sprint(include), func(t *testing.T) {
			runner := &fakeRunner{funcs: map[string]func(string) (string, error){"black": pythonFormatter}}
			backend := &fakeBackend{reply: repairedPython}
			f := newFixture(t, runner, backend, func(oc *OrchestratorConfig, _ *repair.Config) {
				oc.CacheRepairs = include
			})
			seg := segment.Segment{Text: brokenPython}

			for i := 0; i < 2; i++ {
				out, err := f.orch.Process(context.Background(), seg, pythonClass(), true)
				require.NoError(t, err)
				assert.Equal(t, ModeRepaired, out.Mode)
			}
			want := int32(2)
			if include {
				want = 1
			}
			assert.Equal(t, want, backend.calls.Load())
		})
	}
}

func TestOrchestrator_Cancellation(t *testing.T) {
	runner := &fakeRunner{
		funcs: map[string]func(string) (string, error){"black": identity},
		delay: func(string) time.Duration { return time.Minute },
	}
	f := newFixture(t, runner, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.orch.Process(ctx, segment.Segment{Text: "x"}, pythonClass(), true)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMatchTrailingNewline(t *testing.T) {
	assert.Equal(t, "a", matchTrailingNewline("x", "a\n"))
	assert.Equal(t, "a\n", matchTrailingNewline("x\n", "a\n\n"))
	assert.Equal(t, "a\r\n", matchTrailingNewline("x\r\n", "a\n"))
	assert.Equal(t, "a\n", matchTrailingNewline("x\n", "a"))
}

func TestOrchestrator_KeepsLeadingBlankLines(t *testing.T) {
	runner := &fakeRunner{funcs: map[string]func(string) (string, error){"black": identity}}
	f := newFixture(t, runner, nil, nil)

	out, err := f.orch.Process(context.Background(), segment.Segment{Text: "\n  \nx = 1\n"}, pythonClass(), true)
	require.NoError(t, err)
	assert.Equal(t, "\n  \nx = 1\n", out.Output)
	assert.Equal(t, "", leadingBlankLines("x\n\n"))
	assert.Equal(t, "\n", leadingBlankLines("\n"))
}

func TestOneLine(t *testing.T) {
	assert.Equal(t, "first", oneLine("  first\nsecond"))
	long := strings.Repeat("é", 150)
	got := oneLine(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len(got), maxDiagnostic+3)
}
