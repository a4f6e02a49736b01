package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPolicy(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, DefaultPolicy)
	assert.NoError(t, err)

	t.Run("clean message allowed", func(t *testing.T) {
		ok, err := engine.Allow(ctx, "What is the HR leave policy?", "hr", []string{"sports", "games"})
		assert.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("keyword blocked", func(t *testing.T) {
		ok, err := engine.Allow(ctx, "What's the latest SPORTS score?", "hr", []string{"sports"})
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("substring match", func(t *testing.T) {
		ok, err := engine.Allow(ctx, "endgame strategy", "hr", []string{"game"})
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("no keywords always allowed", func(t *testing.T) {
		ok, err := engine.Allow(ctx, "anything about sports", "hr", nil)
		assert.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestNewEngineInvalidPolicy(t *testing.T) {
	_, err := NewEngine(context.Background(), "this is not rego")
	assert.Error(t, err)
}
