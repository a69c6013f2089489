package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassString(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(99).String())
}

func TestWrapFormatsContext(t *testing.T) {
	base := stderrors.New("boom")
	err := Wrap(base, "flowstore", "Get", "load flow")
	require.Error(t, err)
	assert.Equal(t, "flowstore.Get: load flow failed: boom", err.Error())
	assert.ErrorIs(t, err, base)
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "c", "m", "a"))
	assert.NoError(t, WrapTransient(nil, "c", "m", "a"))
	assert.NoError(t, WrapInvalid(nil, "c", "m", "a"))
	assert.NoError(t, WrapFatal(nil, "c", "m", "a"))
}

func TestClassifiedWrappers(t *testing.T) {
	base := stderrors.New("boom")

	tests := []struct {
		name  string
		wrap  func(error, string, string, string) error
		check func(error) bool
	}{
		{"transient", WrapTransient, IsTransient},
		{"invalid", WrapInvalid, IsInvalid},
		{"fatal", WrapFatal, IsFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.wrap(base, "engine", "ValidateFlow", "check readiness")
			require.Error(t, err)
			assert.True(t, tt.check(err))
			assert.ErrorIs(t, err, base)
		})
	}
}

func TestClassificationOfStandardErrors(t *testing.T) {
	assert.True(t, IsTransient(ErrConnectionTimeout))
	assert.True(t, IsTransient(ErrStorageUnavailable))
	assert.True(t, IsFatal(ErrInvalidConfig))
	assert.True(t, IsInvalid(ErrParsingFailed))
}

func TestClassifyWrappedChain(t *testing.T) {
	err := fmt.Errorf("outer: %w", WrapInvalid(stderrors.New("bad schema"), "engine", "parse", "decode"))
	assert.Equal(t, ErrorInvalid, Classify(err))
	assert.Equal(t, ErrorTransient, Classify(nil))
	assert.Equal(t, ErrorTransient, Classify(stderrors.New("connection reset")))
}

func TestRetryConfigFor(t *testing.T) {
	cfg := RetryConfigFor(7)
	assert.Equal(t, 7, cfg.MaxAttempts)
	assert.True(t, cfg.AddJitter)
}
