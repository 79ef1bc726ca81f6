package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	t.Run("Should write structured output at the configured level", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&Config{Level: DebugLevel, Output: &buf})
		log.Debug("loading layer", "origin", "config.toml")
		assert.Contains(t, buf.String(), "loading layer")
		assert.Contains(t, buf.String(), "config.toml")
	})

	t.Run("Should suppress messages below the configured level", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&Config{Level: ErrorLevel, Output: &buf})
		log.Info("hidden")
		assert.Empty(t, buf.String())
	})

	t.Run("Should carry fields added with With", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&Config{Level: InfoLevel, Output: &buf}).With("profile", "dev")
		log.Info("resolved")
		assert.Contains(t, buf.String(), "dev")
	})
}

func TestFromContext(t *testing.T) {
	t.Run("Should return the logger stored in the context", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&Config{Level: InfoLevel, Output: &buf})
		ctx := ContextWithLogger(context.Background(), log)
		FromContext(ctx).Info("from context")
		assert.Contains(t, buf.String(), "from context")
	})

	t.Run("Should fall back to a usable default logger", func(t *testing.T) {
		log := FromContext(context.Background())
		require.NotNil(t, log)
	})
}
