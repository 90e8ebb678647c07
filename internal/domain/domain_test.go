package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryStatusTerminal(t *testing.T) {
	terminal := []QueryStatus{QuerySuccess, QueryFailed, QuerySkipped}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "%s should be terminal", s)
	}
	nonTerminal := []QueryStatus{QueryQueued, QueryProcessing}
	for _, s := range nonTerminal {
		assert.False(t, s.Terminal(), "%s should not be terminal", s)
	}
}
