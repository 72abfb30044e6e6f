package validation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	BookID int64  `json:"book_id" validate:"required,gt=0"`
	Token  string `json:"token,omitempty" validate:"omitempty,len=4"`
}

func TestValidate(t *testing.T) {
	v := New()
	require.NoError(t, v.Validate(&sample{BookID: 1}))

	err := v.Validate(&sample{Token: "abc"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "book_id: failed required")
	require.Contains(t, err.Error(), "token: failed len=4")
}
