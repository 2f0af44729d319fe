package format

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runger/clipfix/internal/lang"
)

type fakeFormatter struct {
	id        string
	out       string
	err       error
	delay     time.Duration
	serial    bool
	missing   bool
	running   atomic.Int32
	maxActive atomic.Int32
}

func (f *fakeFormatter) ID() string           { return f.id }
func (f *fakeFormatter) Available() bool      { return !f.missing }
func (f *fakeFormatter) ConcurrentSafe() bool { return !f.serial }

func (f *fakeFormatter) Format(ctx context.Context, _ lang.Language, _ string) (string, error) {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		cur := f.maxActive.Load()
		if n <= cur || f.maxActive.CompareAndSwap(cur, n) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.out, f.err
}

func TestRegistry_RunSuccess(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	r.Register(&fakeFormatter{id: "ok", out: "x = 1\n"})

	out, err := r.Run(context.Background(), "ok", lang.Python, "x=1")
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", out)
}

func TestRegistry_Unavailable(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	r.Register(&fakeFormatter{id: "gone", missing: true})

	_, err := r.Run(context.Background(), "gone", lang.Python, "x")
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = r.Run(context.Background(), "never-registered", lang.Python, "x")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRegistry_Timeout(t *testing.T) {
	r := NewRegistry(RegistryConfig{Timeout: 20 * time.Millisecond})
	r.Register(&fakeFormatter{id: "slow", out: "x", delay: time.Second})

	_, err := r.Run(context.Background(), "slow", lang.Python, "x")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestRegistry_ParentCancelIsNotTimeout(t *testing.T) {
	r := NewRegistry(RegistryConfig{Timeout: time.Second})
	r.Register(&fakeFormatter{id: "slow", out: "x", delay: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := r.Run(ctx, "slow", lang.Python, "x")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestRegistry_RejectsEmptyOutput(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	r.Register(&fakeFormatter{id: "empty", out: "  \n"})

	_, err := r.Run(context.Background(), "empty", lang.Python, "x = 1")
	assert.ErrorIs(t, err, ErrInvalidOutput)
}

func TestRegistry_RejectsInvalidUTF8(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	r.Register(&fakeFormatter{id: "bad", out: "\xff\xfe"})

	_, err := r.Run(context.Background(), "bad", lang.Python, "x = 1")
	assert.ErrorIs(t, err, ErrInvalidOutput)
}

func TestRegistry_SerialFormatterNeverOverlaps(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	f := &fakeFormatter{id: "serial", out: "ok", delay: 5 * time.Millisecond, serial: true}
	r.Register(f)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Run(context.Background(), "serial", lang.SQL, "select 1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), f.maxActive.Load())
}

func TestRegistry_IDsSorted(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	r.Register(&fakeFormatter{id: "b"})
	r.Register(&fakeFormatter{id: "a", missing: true})

	assert.Equal(t, []string{"a", "b"}, r.IDs())
	assert.Equal(t, map[string]bool{"a": false, "b": true}, r.Availability())
}

func TestNewDefaultRegistry(t *testing.T) {
	r, err := NewDefaultRegistry(RegistryConfig{}, []CommandSpec{
		{ID: "ruff", Command: "my-ruff", Extension: "py"},
	})
	require.NoError(t, err)

	for _, id := range []string{"json", "yaml", "gofmt", "dedent", "black", "sqlfluff", "prettier-ts"} {
		_, ok := r.Get(id)
		assert.True(t, ok, "missing %s", id)
	}

	f, ok := r.Get("ruff")
	require.True(t, ok)
	cf := f.(*CommandFormatter)
	assert.Equal(t, "my-ruff", cf.Binary())
	assert.Equal(t, []string{"my-ruff", FilePlaceholder}, cf.argv)
	assert.Equal(t, ".py", cf.spec.Extension)

	sq, _ := r.Get("sqlfluff")
	assert.False(t, sq.ConcurrentSafe())
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "fmt.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestCommandFormatter_FileMode(t *testing.T) {
	script := writeScript(t, `tr 'a-z' 'A-Z' < "$1" > "$1.tmp" && mv "$1.tmp" "$1"`+"\n")

	f, err := NewCommandFormatter(CommandSpec{ID: "upper", Command: script, Extension: ".txt"})
	require.NoError(t, err)
	require.True(t, f.Available())

	out, err := f.Format(context.Background(), lang.Python, "abc\n")
	require.NoError(t, err)
	assert.Equal(t, "ABC\n", out)
}

func TestCommandFormatter_StdinMode(t *testing.T) {
	script := writeScript(t, "sed 's/ *= */ = /'\n")

	f, err := NewCommandFormatter(CommandSpec{ID: "eq", Command: script, Stdin: true})
	require.NoError(t, err)

	out, err := f.Format(context.Background(), lang.Python, "x=1\n")
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", out)
}

func TestCommandFormatter_NonZeroExit(t *testing.T) {
	script := writeScript(t, "echo 'cannot parse line 1' >&2\nexit 3\n")

	f, err := NewCommandFormatter(CommandSpec{ID: "bad", Command: script, Extension: ".py"})
	require.NoError(t, err)

	_, err = f.Format(context.Background(), lang.Python, "def f(:\n")
	require.ErrorIs(t, err, ErrFailed)
	assert.Contains(t, err.Error(), "cannot parse line 1")
}

func TestCommandFormatter_Timeout(t *testing.T) {
	script := writeScript(t, "sleep 30\n")

	f, err := NewCommandFormatter(CommandSpec{ID: "hang", Command: script, Extension: ".py"})
	require.NoError(t, err)
	f.grace = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = f.Format(ctx, lang.Python, "x")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCommandFormatter_DedentsInput(t *testing.T) {
	script := writeScript(t, "cat\n")

	f, err := NewCommandFormatter(CommandSpec{ID: "cat", Command: script, Stdin: true, Dedent: true})
	require.NoError(t, err)

	out, err := f.Format(context.Background(), lang.Python, "    if x:\n        y()\n")
	require.NoError(t, err)
	assert.Equal(t, "if x:\n    y()\n", out)
}

func TestCommandFormatter_MissingBinary(t *testing.T) {
	f, err := NewCommandFormatter(CommandSpec{ID: "nope", Command: "clipfix-no-such-formatter --flag"})
	require.NoError(t, err)
	assert.False(t, f.Available())
}

func TestNewCommandFormatter_Invalid(t *testing.T) {
	_, err := NewCommandFormatter(CommandSpec{ID: "x", Command: ""})
	assert.Error(t, err)
	_, err = NewCommandFormatter(CommandSpec{Command: "cat"})
	assert.Error(t, err)
	_, err = NewCommandFormatter(CommandSpec{ID: "x", Command: `cat "unterminated`})
	assert.Error(t, err)
}
