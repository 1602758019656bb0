package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCategories(t *testing.T) {
	assert.True(t, IsNotFound(NewNotFound("missing")))
	assert.True(t, IsValidation(NewValidation("bad input")))
	assert.True(t, IsUnavailable(NewUnavailable("down", nil)))
	assert.True(t, IsInternal(NewInternal("boom", nil)))

	assert.False(t, IsNotFound(NewValidation("bad input")))
	assert.False(t, IsNotFound(stderrors.New("plain")))
	assert.False(t, IsNotFound(nil))
}

func TestWrap(t *testing.T) {
	t.Run("preserves category", func(t *testing.T) {
		wrapped := Wrap(NewNotFound("entry missing"), "lookup failed")
		assert.True(t, IsNotFound(wrapped))
		assert.Contains(t, wrapped.Error(), "lookup failed")
	})

	t.Run("plain errors become internal", func(t *testing.T) {
		wrapped := Wrap(stderrors.New("io failure"), "persist")
		assert.True(t, IsInternal(wrapped))
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, Wrap(nil, "context"))
	})
}

func TestAppError_Unwrap(t *testing.T) {
	cause := stderrors.New("root cause")
	err := NewInternal("wrapper", cause)
	assert.True(t, stderrors.Is(err, cause))
}
