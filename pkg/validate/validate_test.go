package validate_test

import (
	"testing"

	"github.com/Astemirdum/bookhub/pkg/validate"
	"github.com/stretchr/testify/require"
)

func TestCustomValidator_Validate(t *testing.T) {
	type req struct {
		UserEmail string `validate:"required"`
		BookID    string `validate:"required"`
	}
	v := validate.NewCustomValidator()

	require.NoError(t, v.Validate(req{UserEmail: "u@x.com", BookID: "b1"}))

	err := v.Validate(req{UserEmail: "u@x.com"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "BookID")
}
