package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockflow/internal/testing/guard"
)

func TestInTestModeFollowsGuard(t *testing.T) {
	t.Cleanup(RefreshTestMode)
	RefreshTestMode()
	require.True(t, InTestMode())

	t.Setenv(guard.EnvVar, "0")
	RefreshTestMode()
	require.False(t, InTestMode())
}
