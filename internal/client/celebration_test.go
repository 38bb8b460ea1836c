package client

import (
	"exam_prep_backend/internal/model"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCelebrationGateRequiresLoad(t *testing.T) {
	g := NewCelebrationGate()
	key := CelebrationKey(model.CelebrationChapter, "c1")
	assert.Equal(t, "chapter:c1", key)

	assert.False(t, g.Evaluate(key, 50, 100))

	g.Load(key, false)
	assert.True(t, g.Evaluate(key, 50, 100))
	assert.False(t, g.Evaluate(key, 50, 100))
	assert.True(t, g.Shown(key))
}

func TestCelebrationGateTransitionOnly(t *testing.T) {
	g := NewCelebrationGate()
	key := CelebrationKey(model.CelebrationUnit, "u1")
	g.Load(key, false)

	assert.False(t, g.Evaluate(key, 100, 100))
	assert.False(t, g.Evaluate(key, 20, 99))
	assert.True(t, g.Evaluate(key, 99, 100))
}

func TestCelebrationGateLoadedShown(t *testing.T) {
	g := NewCelebrationGate()
	key := CelebrationKey(model.CelebrationSubject, "s1")
	g.Load(key, true)
	assert.False(t, g.Evaluate(key, 0, 100))

	g.Clear(key)
	assert.True(t, g.Evaluate(key, 0, 100))
}

func TestCelebrationGateLoadIfAbsent(t *testing.T) {
	g := NewCelebrationGate()
	key := CelebrationKey(model.CelebrationChapter, "c1")

	g.LoadIfAbsent(key, true)
	g.Clear(key)
	g.LoadIfAbsent(key, true)
	assert.False(t, g.Shown(key))
	assert.True(t, g.Evaluate(key, 0, 100))
}
