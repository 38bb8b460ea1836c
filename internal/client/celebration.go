package client

import (
	"exam_prep_backend/internal/model"
	"sync"
)

func CelebrationKey(kind model.CelebrationKind, id string) string {
	return string(kind) + ":" + id
}

type latch struct {
	loaded bool
	shown  bool
}

// CelebrationGate 每个章节/单元/学科的一次性庆祝状态机
type CelebrationGate struct {
	mu      sync.Mutex
	latches map[string]*latch
}

func NewCelebrationGate() *CelebrationGate {
	return &CelebrationGate{latches: make(map[string]*latch)}
}

// Load 记录从服务端或本地镜像读到的标记。加载前 Evaluate 永远不会触发
func (g *CelebrationGate) Load(key string, shown bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	l := g.get(key)
	l.loaded = true
	l.shown = l.shown || shown
}

// LoadIfAbsent 仅在尚未加载过时记录标记，Clear 之后不会被旧标记覆盖
func (g *CelebrationGate) LoadIfAbsent(key string, shown bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	l := g.get(key)
	if l.loaded {
		return
	}
	l.loaded = true
	l.shown = shown
}

// Evaluate 进度从 <100 变为 100 且尚未展示时触发，并在本地锁定
func (g *CelebrationGate) Evaluate(key string, prev, next int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	l := g.get(key)
	if !l.loaded || l.shown || prev >= 100 || next != 100 {
		return false
	}
	l.shown = true
	return true
}

// Clear 重置进度时解除本地锁定
func (g *CelebrationGate) Clear(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if l, ok := g.latches[key]; ok {
		l.shown = false
	}
}

func (g *CelebrationGate) Shown(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.latches[key]
	return ok && l.shown
}

func (g *CelebrationGate) get(key string) *latch {
	l, ok := g.latches[key]
	if !ok {
		l = &latch{}
		g.latches[key] = l
	}
	return l
}
