package client

import (
	"context"
	"errors"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/service"
	"exam_prep_backend/internal/util"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const DefaultTreeCapacity = 10

// TreeAPI 层级数据读取接口，由 APIClient 实现
type TreeAPI interface {
	GetExamTree(ctx context.Context, examID string) (*model.HierarchyNode, error)
	ListExams(ctx context.Context, status string, page, limit int) (*service.ExamPage, error)
}

// ExamTree 转换后的考试层级树，带按 id 的索引
type ExamTree struct {
	Root   model.HierarchyNode
	index  map[string]model.HierarchyNode
	parent map[string]string
}

func NewExamTree(root model.HierarchyNode) *ExamTree {
	t := &ExamTree{
		Root:   root,
		index:  make(map[string]model.HierarchyNode),
		parent: make(map[string]string),
	}
	t.walk(root, "")
	return t
}

func (t *ExamTree) walk(n model.HierarchyNode, parentID string) {
	t.index[n.ID] = n
	if parentID != "" {
		t.parent[n.ID] = parentID
	}
	for _, child := range n.Children {
		t.walk(child, n.ID)
	}
}

func (t *ExamTree) Node(id string) (model.HierarchyNode, bool) {
	n, ok := t.index[id]
	return n, ok
}

func (t *ExamTree) Parent(id string) (string, bool) {
	p, ok := t.parent[id]
	return p, ok
}

// ChapterIDs 单元下的章节 id，按树中顺序
func (t *ExamTree) ChapterIDs(unitID string) []string {
	unit, ok := t.index[unitID]
	if !ok || unit.Type != "unit" {
		return nil
	}
	ids := make([]string, 0, len(unit.Children))
	for _, c := range unit.Children {
		if c.Type == "chapter" {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

type TreeCacheOptions struct {
	Capacity int
	Logger   *zap.Logger
	// OnExams 考试列表刷新成功后回调
	OnExams func([]model.Exam)
}

type treeEntry struct {
	tree *ExamTree
	seq  uint64
}

// TreeCache 按考试 id 缓存层级树，超出容量淘汰最早插入的条目，相同 id 的并发请求只发一次
type TreeCache struct {
	api     TreeAPI
	opts    TreeCacheOptions
	log     *zap.Logger
	trees   singleflight.Group
	refresh singleflight.Group

	mu        sync.Mutex
	capacity  int
	entries   map[string]*treeEntry
	seq       uint64
	selected  string
	selGen    uint64
	selCancel context.CancelFunc
	exams     []model.Exam
	examsAt   time.Time
}

func NewTreeCache(api TreeAPI, opts TreeCacheOptions) *TreeCache {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultTreeCapacity
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &TreeCache{
		api:      api,
		opts:     opts,
		log:      log,
		capacity: capacity,
		entries:  make(map[string]*treeEntry),
	}
}

func (c *TreeCache) lookup(examID string) (*ExamTree, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[examID]
	if !ok {
		return nil, false
	}
	return e.tree, true
}

func (c *TreeCache) store(examID string, tree *ExamTree) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.entries[examID] = &treeEntry{tree: tree, seq: c.seq}
	for len(c.entries) > c.capacity {
		oldestID, oldestSeq := "", uint64(0)
		for id, e := range c.entries {
			if oldestID == "" || e.seq < oldestSeq {
				oldestID, oldestSeq = id, e.seq
			}
		}
		delete(c.entries, oldestID)
	}
}

// Get 命中直接返回；未命中时复用同一考试正在进行的请求
func (c *TreeCache) Get(ctx context.Context, examID string) (*ExamTree, error) {
	if examID == "" {
		return nil, util.Validationf("exam id is required")
	}
	if tree, ok := c.lookup(examID); ok {
		return tree, nil
	}

	tree, err := c.fetch(ctx, examID)
	// 领头请求被取消时，自身未取消的调用方重试一次
	if errors.Is(err, util.ErrAborted) && ctx.Err() == nil {
		tree, err = c.fetch(ctx, examID)
	}
	return tree, err
}

func (c *TreeCache) fetch(ctx context.Context, examID string) (*ExamTree, error) {
	ch := c.trees.DoChan(examID, func() (interface{}, error) {
		node, err := c.api.GetExamTree(ctx, examID)
		if err != nil {
			return nil, err
		}
		// 已取消的请求不写缓存
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", util.ErrAborted, ctx.Err())
		}
		tree := NewExamTree(*node)
		c.store(examID, tree)
		return tree, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*ExamTree), nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", util.ErrTimeout, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", util.ErrAborted, ctx.Err())
	}
}

// Select 切换当前考试，取消上一次尚未完成的选择。被取代的选择返回 ErrAborted 且不修改选中状态
func (c *TreeCache) Select(ctx context.Context, examID string) (*ExamTree, error) {
	c.mu.Lock()
	if c.selCancel != nil {
		c.selCancel()
	}
	sctx, cancel := context.WithCancel(ctx)
	c.selGen++
	gen := c.selGen
	c.selCancel = cancel
	c.mu.Unlock()

	tree, err := c.Get(sctx, examID)

	c.mu.Lock()
	defer c.mu.Unlock()
	cancel()
	if gen != c.selGen {
		return nil, fmt.Errorf("%w: selection of %s superseded", util.ErrAborted, examID)
	}
	c.selCancel = nil
	if err != nil {
		return nil, err
	}
	c.selected = examID
	return tree, nil
}

func (c *TreeCache) Selected() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// ChapterIDs 在已缓存的树中查找单元的章节
func (c *TreeCache) ChapterIDs(unitID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if ids := e.tree.ChapterIDs(unitID); ids != nil {
			return ids
		}
	}
	return nil
}

func (c *TreeCache) Invalidate(examID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, examID)
}

func (c *TreeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Exams 返回最近一次刷新的考试列表，从未刷新过时同步拉取
func (c *TreeCache) Exams(ctx context.Context) ([]model.Exam, error) {
	c.mu.Lock()
	exams, at := c.exams, c.examsAt
	c.mu.Unlock()
	if !at.IsZero() {
		return exams, nil
	}
	return c.RefreshExams(ctx)
}

// RefreshExams 重新拉取考试列表（只刷新列表，不刷新树）
func (c *TreeCache) RefreshExams(ctx context.Context) ([]model.Exam, error) {
	v, err, _ := c.refresh.Do("exams", func() (interface{}, error) {
		page, err := c.api.ListExams(ctx, util.StatusActive, util.DefaultPage, util.MaxLimit)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.exams = page.List
		c.examsAt = time.Now()
		c.mu.Unlock()
		if c.opts.OnExams != nil {
			c.opts.OnExams(page.List)
		}
		return page.List, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.Exam), nil
}

// OnFocus 窗口重新获得焦点时后台刷新考试列表
func (c *TreeCache) OnFocus(ctx context.Context) {
	go c.refreshInBackground(ctx)
}

// StartRefresh 按固定间隔后台刷新考试列表，ctx 结束时停止
func (c *TreeCache) StartRefresh(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				go c.refreshInBackground(ctx)
			}
		}
	}()
}

func (c *TreeCache) refreshInBackground(ctx context.Context) {
	if _, err := c.RefreshExams(ctx); err != nil && ctx.Err() == nil {
		c.log.Warn("exam list refresh failed", zap.Error(err))
	}
}
