package format

import "sync"

// diagnosticBytes caps how much formatter stderr is kept for error messages.
const diagnosticBytes = 4096

// tailWriter keeps only the last limit bytes written to it.
type tailWriter struct {
	mu    sync.Mutex
	data  []byte
	limit int
}

func newTailWriter(limit int) *tailWriter {
	if limit <= 0 {
		limit = diagnosticBytes
	}
	return &tailWriter{limit: limit}
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(p) >= w.limit {
		w.data = append(w.data[:0], p[len(p)-w.limit:]...)
		return len(p), nil
	}
	if over := len(w.data) + len(p) - w.limit; over > 0 {
		w.data = append(w.data[:0], w.data[over:]...)
	}
	w.data = append(w.data, p...)
	return len(p), nil
}

func (w *tailWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.data)
}
