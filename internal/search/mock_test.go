package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClientDeterministic(t *testing.T) {
	cl := NewMockClient(MockClientOptions{Seed: 7, ResultsPerPage1: 5})
	ctx := context.Background()

	r1, err := cl.Search(ctx, "85001 bars", 1)
	require.NoError(t, err)
	r2, err := cl.Search(ctx, "85001 bars", 1)
	require.NoError(t, err)
	assert.Equal(t, r1.Places, r2.Places, "same (q, page) must yield identical results")
	assert.Len(t, r1.Places, 5)
}

func TestMockClientPagesBeyondFirstAreEmpty(t *testing.T) {
	cl := NewMockClient(MockClientOptions{Seed: 7, ResultsPerPage1: 5})
	res, err := cl.Search(context.Background(), "85001 bars", 2)
	require.NoError(t, err)
	assert.Empty(t, res.Places)
}

func TestMockClientEarlyExitZips(t *testing.T) {
	cl := NewMockClient(MockClientOptions{Seed: 7, ResultsPerPage1: 5, EarlyExitZips: map[string]bool{"85001": true}})
	res, err := cl.Search(context.Background(), "85001 bars", 1)
	require.NoError(t, err)
	assert.Empty(t, res.Places)
}
