package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildQueueMemoryBackend(t *testing.T) {
	q, err := buildQueue("memory", "")
	require.NoError(t, err)
	require.NotNil(t, q)
	require.NoError(t, q.Close())
}
