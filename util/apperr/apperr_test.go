package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCode(t *testing.T) {
	base := New(ErrUnavailable, "book %d", 7)
	require.Equal(t, ErrUnavailable, Code(base))
	require.Equal(t, "UNAVAILABLE: book 7", base.Error())

	wrapped := fmt.Errorf("request rental: %w", base)
	require.Equal(t, ErrUnavailable, Code(wrapped))
	require.True(t, Is(wrapped, ErrUnavailable))
	require.False(t, Is(nil, ErrUnavailable))

	require.Equal(t, ErrCode(""), Code(errors.New("plain")))
}

func TestWrap(t *testing.T) {
	require.NoError(t, Wrap(ErrConflict, nil, "x"))

	cause := errors.New("dial tcp: refused")
	err := Wrap(ErrProviderUnavailable, cause, "create order")
	require.ErrorIs(t, err, cause)
	require.Equal(t, ErrProviderUnavailable, Code(err))
	require.Contains(t, err.Error(), "create order")
}
