package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMirageError_ErrorString(t *testing.T) {
	err := New(CategoryConfig, SeverityFatal, "bad config")
	assert.Equal(t, "config (fatal): bad config", err.Error())

	wrapped := Wrap(errors.New("boom"), CategoryFileSystem, SeverityError, "cannot read")
	assert.Equal(t, "filesystem (error): cannot read: boom", wrapped.Error())
}

func TestMirageError_UnwrapChain(t *testing.T) {
	cause := ErrUnreadableInput
	err := Wrap(fmt.Errorf("open /x: %w", cause), CategoryFileSystem, SeverityWarning, "skipping file")

	require.True(t, errors.Is(err, ErrUnreadableInput))
	assert.True(t, IsCategory(err, CategoryFileSystem))
	assert.False(t, IsCategory(err, CategoryModel))
}

func TestMirageError_WithContext(t *testing.T) {
	err := ValidationFailed("mutation.rate", "must be in (0,1]")
	require.NotNil(t, err.Context)
	assert.Equal(t, "mutation.rate", err.Context["field"])
	assert.Equal(t, CategoryValidation, err.Category)
}

func TestGetCategory_PlainError(t *testing.T) {
	assert.Equal(t, CategoryInternal, GetCategory(errors.New("plain")))
}

func TestGetCategory_WrappedDeep(t *testing.T) {
	inner := DaemonError("bus closed")
	outer := fmt.Errorf("startup: %w", inner)
	assert.Equal(t, CategoryDaemon, GetCategory(outer))
}

func TestSentinels_AreDistinct(t *testing.T) {
	sentinels := []error{
		ErrUnreadableInput,
		ErrUnclassifiableContent,
		ErrReassembly,
		ErrModelExhausted,
		ErrOutputWrite,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			assert.False(t, errors.Is(a, b), "sentinel %d matches %d", i, j)
		}
	}
}
