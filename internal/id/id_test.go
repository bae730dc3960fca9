package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_Monotonic(t *testing.T) {
	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		assert.Len(t, next, 26)
		assert.Less(t, prev, next)
		prev = next
	}
}

func TestClientOrderID(t *testing.T) {
	cid := ClientOrderID()
	assert.True(t, strings.HasPrefix(cid, "smc-"))
	assert.LessOrEqual(t, len(cid), 36)
}

func TestCloseOrderID(t *testing.T) {
	posID := New()
	cid := CloseOrderID(posID)
	assert.Equal(t, "smc-x-"+posID, cid)
	assert.Equal(t, cid, CloseOrderID(posID), "stable for the same position")
	assert.NotEqual(t, cid, CloseOrderID(New()))
	assert.LessOrEqual(t, len(cid), 36)
}
