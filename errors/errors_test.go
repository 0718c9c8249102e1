package errors

import (
	"context"
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

func TestWrapFormat(t *testing.T) {
	base := stderrors.New("boom")
	err := Wrap(base, "StreamClient", "Publish", "emit event")
	require.Error(t, err)
	assert.Equal(t, "StreamClient.Publish: emit event failed: boom", err.Error())
	assert.True(t, stderrors.Is(err, base))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "c", "m", "a"))
	assert.NoError(t, WrapTransient(nil, "c", "m", "a"))
	assert.NoError(t, WrapFatal(nil, "c", "m", "a"))
	assert.NoError(t, WrapInvalid(nil, "c", "m", "a"))
}

func TestClassifiedWrapping(t *testing.T) {
	base := stderrors.New("db write refused")

	transient := WrapTransient(base, "Store", "InsertMetadata", "insert row")
	assert.True(t, IsTransient(transient))
	assert.False(t, IsFatal(transient))

	fatal := WrapFatal(base, "Config", "Load", "parse file")
	assert.True(t, IsFatal(fatal))
	assert.False(t, IsTransient(fatal))

	invalid := WrapInvalid(base, "Queue", "Push", "validate event")
	assert.True(t, IsInvalid(invalid))
	assert.Equal(t, ErrorInvalid, Classify(invalid))
}

func TestClassifiedUnwrap(t *testing.T) {
	base := stderrors.New("inner")
	err := WrapTransient(base, "c", "m", "a")

	var ce *ClassifiedError
	require.True(t, stderrors.As(err, &ce))
	assert.Equal(t, "c", ce.Component)
	assert.Equal(t, "m", ce.Operation)
	assert.True(t, stderrors.Is(err, base))
}

func TestIsTransientSentinels(t *testing.T) {
	assert.True(t, IsTransient(ErrConnectionTimeout))
	assert.True(t, IsTransient(ErrConnectionLost))
	assert.True(t, IsTransient(ErrStorageUnavailable))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(fmt.Errorf("dial tcp: connection refused")))
	assert.False(t, IsTransient(nil))
}

func TestIsFatalSentinels(t *testing.T) {
	assert.True(t, IsFatal(ErrInvalidConfig))
	assert.True(t, IsFatal(ErrMissingConfig))
	assert.True(t, IsFatal(ErrBudgetExhausted))
	assert.False(t, IsFatal(ErrQueueFull))
	assert.False(t, IsFatal(nil))
}

func TestClassifyDefaultsToTransient(t *testing.T) {
	assert.Equal(t, ErrorTransient, Classify(stderrors.New("mystery")))
}
