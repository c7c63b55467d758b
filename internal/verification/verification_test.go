package verification

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTitle(t *testing.T) {
	cases := map[string]string{
		"bottle":     "Live Verification for Bottle",
		"cell phone": "Live Verification for Cell Phone",
		"LAPTOP":     "Live Verification for Laptop",
		"":           "Live Verification for ",
	}
	for in, want := range cases {
		t.Run(in, func(t *testing.T) {
			got := Title(in)
			assert.Equal(t, want, got)
			assert.Equal(t, got, Title(in))
		})
	}
}

func TestErrorMatchesKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &Error{Kind: ErrInvalidStatus, Reason: "status \"maybe\"", Raw: "{...}"})

	assert.True(t, errors.Is(err, ErrInvalidStatus))
	assert.False(t, errors.Is(err, ErrInvalidConfidence))
	assert.Equal(t, "{...}", RawOutput(err))
	assert.Contains(t, err.Error(), "invalid status")
}

func TestWrapErrorKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := WrapError(ErrBackendTransportFailure, "gemini", cause)

	assert.True(t, errors.Is(err, ErrBackendTransportFailure))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "backend transport failure: gemini: connection reset", err.Error())
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(NewError(ErrInvalidImage, "empty payload")))
	assert.False(t, IsClientError(NewError(ErrMalformedBackendOutput, "")))
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusDanger.Valid())
	assert.False(t, Status("Verified").Valid())
}

func TestKindName(t *testing.T) {
	assert.Equal(t, "invalid_confidence", KindName(fmt.Errorf("ctx: %w", NewError(ErrInvalidConfidence, "200"))))
	assert.Equal(t, "backend_unavailable", KindName(NewError(ErrBackendUnavailable, "")))
	assert.Equal(t, "internal", KindName(errors.New("db down")))
}
