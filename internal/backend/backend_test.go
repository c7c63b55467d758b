package backend

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/verifai/internal/backend/classifier"
	"github.com/example/verifai/internal/verification"
)

func predictFields(t *testing.T, b Backend, objectClass string) map[string]any {
	t.Helper()
	raw, err := b.Predict(context.Background(), verification.Request{Image: "ignored", ObjectClass: objectClass})
	require.NoError(t, err)
	require.NotNil(t, raw.Fields)
	assert.Empty(t, raw.Text)
	return raw.Fields
}

func TestTableLookupKnownClass(t *testing.T) {
	fields := predictFields(t, NewTableLookup(), "bottle")

	assert.Equal(t, "verified", fields["status"])
	assert.Equal(t, 99.2, fields["confidence"])
	assert.Equal(t, "Consumable Safety Agent", fields["agent"])
}

func TestTableLookupFallsBackToDefault(t *testing.T) {
	for _, class := range []string{"umbrella", "Bottle", " bottle", "bottles", ""} {
		t.Run(class, func(t *testing.T) {
			fields := predictFields(t, NewTableLookup(), class)

			assert.Equal(t, "warning", fields["status"])
			assert.Equal(t, 75.0, fields["confidence"])
			assert.Equal(t, "General Object Agent", fields["agent"])
			assert.Equal(t, defaultEntry.Summary, fields["summary"])
		})
	}
}

func TestTableLookupEntriesInRange(t *testing.T) {
	for class, entry := range catalogue {
		assert.True(t, entry.Status.Valid(), class)
		assert.GreaterOrEqual(t, entry.Confidence, verification.MinConfidence, class)
		assert.LessOrEqual(t, entry.Confidence, verification.MaxConfidence, class)
		assert.NotEmpty(t, entry.Agent, class)
	}
}

func TestStaticRule(t *testing.T) {
	tests := []struct {
		class  string
		status string
	}{
		{class: "bottle", status: "verified"},
		{class: "water bottle", status: "verified"},
		{class: "my cell phone", status: "verified"},
		{class: "watch", status: "warning"},
		{class: "Bottle", status: "warning"},
		{class: "", status: "warning"},
	}
	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			fields := predictFields(t, NewStaticRule(), tt.class)
			assert.Equal(t, tt.status, fields["status"])
			assert.Equal(t, staticConfidence, fields["confidence"])
			assert.Equal(t, staticAgent, fields["agent"])
		})
	}
}

func TestLearnedClassifierPlaceholder(t *testing.T) {
	artifacts, err := classifier.NewStore(t.TempDir(), zap.NewNop()).LoadOrCreate()
	require.NoError(t, err)

	fields := predictFields(t, NewLearnedClassifier(artifacts), "counterfeit watch")
	assert.Equal(t, "verified", fields["status"])
	assert.Equal(t, 93.0, fields["confidence"])
	assert.Equal(t, "Prediction output: authentic", fields["agent_finding"])
	assert.Equal(t, "Self-hosted AI model predicted this item is authentic.", fields["summary"])
}

func TestLearnedClassifierCounterfeitLabel(t *testing.T) {
	vec, err := classifier.FitVectorizer([]string{"authentic", "counterfeit"})
	require.NoError(t, err)
	model := &classifier.Model{
		Labels:  [2]string{classifier.LabelCounterfeit, classifier.LabelAuthentic},
		Weights: []float64{3, -3},
	}
	b := NewLearnedClassifier(&classifier.Artifacts{Vectorizer: vec, Model: model})

	fields := predictFields(t, b, "counterfeit")
	assert.Equal(t, "warning", fields["status"])
	assert.Equal(t, "Prediction output: counterfeit", fields["agent_finding"])
}

func TestHandleNotReadyUntilInit(t *testing.T) {
	h := NewHandle()
	assert.False(t, h.Ready())
	assert.Empty(t, h.Name())

	_, err := h.Get()
	assert.ErrorIs(t, err, verification.ErrBackendUnavailable)

	require.NoError(t, h.Init(context.Background(), func(context.Context) (Backend, error) {
		return NewStaticRule(), nil
	}))
	assert.True(t, h.Ready())
	assert.Equal(t, "static", h.Name())

	b, err := h.Get()
	require.NoError(t, err)
	assert.Equal(t, "static", b.Name())
}

func TestHandleInitRunsOnce(t *testing.T) {
	h := NewHandle()
	var (
		mu    sync.Mutex
		calls int
		wg    sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Init(context.Background(), func(context.Context) (Backend, error) {
				mu.Lock()
				calls++
				mu.Unlock()
				return NewTableLookup(), nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, calls)
	assert.Equal(t, "table", h.Name())
}

func TestHandleFailedInitStaysUnavailable(t *testing.T) {
	h := NewHandle()
	boom := errors.New("artifacts unwritable")

	err := h.Init(context.Background(), func(context.Context) (Backend, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, h.Ready())

	err = h.Init(context.Background(), func(context.Context) (Backend, error) { return NewStaticRule(), nil })
	assert.ErrorIs(t, err, boom)

	_, err = h.Get()
	assert.ErrorIs(t, err, verification.ErrBackendUnavailable)
}

func TestNilHandleIsUnavailable(t *testing.T) {
	var h *Handle
	assert.False(t, h.Ready())
	_, err := h.Get()
	assert.ErrorIs(t, err, verification.ErrBackendUnavailable)
}

func TestRawPredictionString(t *testing.T) {
	assert.Equal(t, "reply", RawPrediction{Text: "reply"}.String())
	assert.JSONEq(t, `{"status":"verified"}`, RawPrediction{Fields: map[string]any{"status": "verified"}}.String())
}
