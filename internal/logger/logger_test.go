package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Levels(t *testing.T) {
	for _, level := range []string{"", "debug", "info", "warn", "error"} {
		l, err := New(level, false)
		require.NoError(t, err, "level %q", level)
		assert.NotNil(t, l)
	}

	_, err := New("loud", false)
	assert.Error(t, err)
}

func TestNop_AcceptsEverything(t *testing.T) {
	l := Nop().With("operation", "backup")
	assert.NotPanics(t, func() {
		l.Debug("d", "k", 1)
		l.Info("i")
		l.Warn("w", "odd")
		l.Error("e", "error", assert.AnError)
	})
	assert.NoError(t, l.Sync())
}
