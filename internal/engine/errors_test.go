package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAsErrorTypedNil(t *testing.T) {
	var typedNil *Error
	var err error = typedNil
	require.Error(t, err) // non-nil interface holding a nil pointer

	e, ok := AsError(err)
	require.False(t, ok)
	require.Nil(t, e)
	require.False(t, IsKind(err, KindInput))
	require.False(t, IsKind(err, KindExecution))
}

func TestAsErrorWrapped(t *testing.T) {
	inner := executionError(fmt.Errorf("boom"), "write record")
	wrapped := fmt.Errorf("apply item: %w", inner)

	e, ok := AsError(wrapped)
	require.True(t, ok)
	require.Equal(t, KindExecution, e.Kind)
	require.True(t, IsKind(wrapped, KindExecution))
	require.False(t, IsKind(wrapped, KindStatus))
}

func TestIsKindPlainError(t *testing.T) {
	require.False(t, IsKind(fmt.Errorf("plain"), KindExecution))
	require.False(t, IsKind(nil, KindInput))
}
