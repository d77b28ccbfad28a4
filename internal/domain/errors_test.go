package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsRejection(t *testing.T) {
	rejection, ok := AsRejection(Reject("Voting has ended"))
	require.True(t, ok)
	assert.Equal(t, "Voting has ended", rejection.Reason)

	wrapped := fmt.Errorf("handling request: %w", Reject("Permission denied"))
	rejection, ok = AsRejection(wrapped)
	require.True(t, ok)
	assert.Equal(t, "Permission denied", rejection.Reason)

	_, ok = AsRejection(fmt.Errorf("connection refused"))
	assert.False(t, ok)
}

func TestReject_Formats(t *testing.T) {
	r := Reject("User %s not found", "alice")
	assert.Equal(t, "User alice not found", r.Error())
}
