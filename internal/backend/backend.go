package backend

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/example/verifai/internal/verification"
)

// RawPrediction is the unvalidated output of a backend. Exactly one of Text
// (free-form model reply) or Fields (structured payload) is populated.
type RawPrediction struct {
	Text   string
	Fields map[string]any
}

// String renders the payload for diagnostics.
func (r RawPrediction) String() string {
	if r.Fields == nil {
		return r.Text
	}
	encoded, err := json.Marshal(r.Fields)
	if err != nil {
		return "<unencodable fields>"
	}
	return string(encoded)
}

// Backend produces a raw prediction for a verification request.
type Backend interface {
	Name() string
	Predict(ctx context.Context, req verification.Request) (RawPrediction, error)
}

// Builder constructs a backend during startup.
type Builder func(ctx context.Context) (Backend, error)

type holder struct {
	backend Backend
}

// Handle owns the process-wide backend. It is written once during startup
// and read concurrently afterwards.
type Handle struct {
	once    sync.Once
	current atomic.Pointer[holder]
	initErr error
}

// NewHandle returns an uninitialized handle.
func NewHandle() *Handle {
	return &Handle{}
}

// Init builds the backend once. Later calls return the first result.
func (h *Handle) Init(ctx context.Context, build Builder) error {
	h.once.Do(func() {
		b, err := build(ctx)
		if err != nil {
			h.initErr = err
			return
		}
		h.current.Store(&holder{backend: b})
	})
	return h.initErr
}

// Get returns the ready backend or ErrBackendUnavailable.
func (h *Handle) Get() (Backend, error) {
	if h == nil {
		return nil, verification.NewError(verification.ErrBackendUnavailable, "no backend handle")
	}
	cur := h.current.Load()
	if cur == nil {
		return nil, verification.NewError(verification.ErrBackendUnavailable, "backend not initialized")
	}
	return cur.backend, nil
}

// Ready reports whether the backend finished initializing.
func (h *Handle) Ready() bool {
	return h != nil && h.current.Load() != nil
}

// Name returns the active backend name, or an empty string when not ready.
func (h *Handle) Name() string {
	if b, err := h.Get(); err == nil {
		return b.Name()
	}
	return ""
}
