package wasmerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMessageIncludesCodeNameAndCause(t *testing.T) {
	cause := errors.New("boom")
	e := Wrap(CodeMemoryOutOfRange, "address 0x10", cause)
	require.Contains(t, e.Error(), "memory-out-of-range")
	require.Contains(t, e.Error(), "address 0x10")
	require.Contains(t, e.Error(), "boom")
	require.ErrorIs(t, e, cause)
}

func TestIsTrapDistinguishesControlStatus(t *testing.T) {
	require.False(t, CodeOK.IsTrap())
	require.False(t, CodeNeedMoreGas.IsTrap())
	require.True(t, CodeDivideByZero.IsTrap())
	require.True(t, CodeMemoryOutOfRange.IsTrap())
}

func TestUnknownCodeStringFallsBackToNumeric(t *testing.T) {
	require.Equal(t, "code(9999)", Code(9999).String())
}
