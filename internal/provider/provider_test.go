package provider

import (
	"context"
	"errors"
	"sync/atomic"
)

// fakeBackend is a scriptable Backend for tests in this package.
type fakeBackend struct {
	name      string
	available bool
	reply     string
	err       error
	calls     atomic.Int32
}

func (f *fakeBackend) Name() string    { return f.name }
func (f *fakeBackend) Available() bool { return f.available }

func (f *fakeBackend) Generate(ctx context.Context, _ string, _ int) (string, error) {
	f.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.reply, f.err
}

var errBoom = errors.New("boom")
