package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTreeError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *TreeError
		expected string
	}{
		{
			name:     "without underlying error",
			err:      New(CodeEmptyPointSet, "no points supplied"),
			expected: "[EMPTY_POINT_SET] no points supplied",
		},
		{
			name:     "with underlying error",
			err:      Wrap(CodeTopologyViolation, "bad communicator size", errors.New("P=6, K=2")),
			expected: "[TOPOLOGY_VIOLATION] bad communicator size: P=6, K=2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestTreeError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(CodePointOutsideDomain, "outside domain", underlying)
	assert.Equal(t, underlying, err.Unwrap())
}

func TestTreeError_Is(t *testing.T) {
	err1 := New(CodeTopologyViolation, "error 1")
	err2 := New(CodeTopologyViolation, "error 2")
	err3 := New(CodeEmptyPointSet, "error 3")

	assert.True(t, errors.Is(err1, err2))
	assert.False(t, errors.Is(err1, err3))
}

func TestCode(t *testing.T) {
	assert.Equal(t, CodeEmptyPointSet, Code(ErrEmptyPointSet))
	assert.Equal(t, CodeUnknown, Code(errors.New("plain error")))
	assert.Equal(t, CodeUnknown, Code(nil))
}
