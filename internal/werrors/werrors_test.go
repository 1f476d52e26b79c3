package werrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesWrappedKind(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(NotFound, cause, "lookup %s", "thing")

	assert.True(t, Is(err, NotFound))
	assert.False(t, Is(err, InvalidInput))
	assert.Equal(t, NotFound, KindOf(err))
	assert.ErrorIs(t, err, cause)
}

func TestIsFalseForPlainError(t *testing.T) {
	assert.False(t, Is(errors.New("plain"), NotFound))
	assert.Equal(t, Unknown, KindOf(errors.New("plain")))
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		want bool
	}{
		{"protocol error retries", ProtocolError, true},
		{"io error retries", IO, true},
		{"invalid input does not retry", InvalidInput, false},
		{"not found does not retry", NotFound, false},
		{"cryptography does not retry", Cryptography, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(New(tt.kind, "x")))
		})
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("underlying")
	err := Wrap(IO, cause, "read file")
	assert.Contains(t, err.Error(), "underlying")
	assert.Contains(t, err.Error(), "read file")
	assert.Contains(t, err.Error(), "io")
}
