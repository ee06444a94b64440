package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitLevels(t *testing.T) {
	l := Init(0)
	require.NotNil(t, l)
	require.Same(t, l, Log)
	require.True(t, l.Core().Enabled(zap.InfoLevel))
	require.False(t, l.Core().Enabled(zap.DebugLevel))

	l = Init(1)
	require.True(t, l.Core().Enabled(zap.DebugLevel))
}
