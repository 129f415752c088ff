package validate_test

import (
	"testing"

	"github.com/ardanlabs/utxochain/foundation/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spend struct {
	To     string `json:"to" validate:"required,address"`
	Amount uint64 `json:"amount" validate:"required,gt=0"`
}

func TestCheck(t *testing.T) {
	err := validate.Check(spend{To: "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4", Amount: 10})
	require.NoError(t, err)

	err = validate.Check(spend{To: "bob"})
	require.Error(t, err)
	require.True(t, validate.IsFieldErrors(err))

	fields := validate.GetFieldErrors(err).Fields()
	assert.Len(t, fields, 2)
	assert.Contains(t, fields["to"], "20 byte hex address")
	assert.Contains(t, fields, "amount")
}
