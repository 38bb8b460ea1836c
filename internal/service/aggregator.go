package service

import (
	"context"
	"encoding/json"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/util"
	"exam_prep_backend/pkg/eventbus"
	"exam_prep_backend/pkg/logger"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ProgressEvent 进度变更通知，按 (学生, 单元) 投递给订阅者
type ProgressEvent struct {
	StudentID       uint                   `json:"studentId"`
	UnitID          string                 `json:"unitId"`
	ChapterID       string                 `json:"chapterId,omitempty"`
	Reason          string                 `json:"reason"`
	ChapterProgress *model.ChapterProgress `json:"chapterProgress,omitempty"`
	UnitProgress    int                    `json:"unitProgress"`
	SubjectID       string                 `json:"subjectId,omitempty"`
	SubjectProgress *int                   `json:"subjectProgress,omitempty"`
	At              time.Time              `json:"at"`
}

type subscription struct {
	studentID uint
	unitID    string
	fn        func(ProgressEvent)
}

// Aggregator 汇总章节→单元→学科进度，并维护按单元划分的订阅
type Aggregator struct {
	taxonomy TaxonomyReader
	store    ProgressStore
	bus      eventbus.Bus

	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]subscription
	unsub  func()
}

func NewAggregator(taxonomy TaxonomyReader, store ProgressStore, bus eventbus.Bus) *Aggregator {
	if bus == nil {
		bus = eventbus.NewLocalBus()
	}
	a := &Aggregator{
		taxonomy: taxonomy,
		store:    store,
		bus:      bus,
		subs:     make(map[uint64]subscription),
	}
	a.unsub = bus.Subscribe(util.TopicProgressUpdated, a.handle)
	return a
}

func roundMean(sum, n int) int {
	if n == 0 {
		return 0
	}
	return model.ClampPercent(int(math.Round(float64(sum) / float64(n))))
}

// UnitProgress 单元内所有启用章节的平均进度，没有记录的章节按 0 计
func (a *Aggregator) UnitProgress(ctx context.Context, unitID string, chapters model.ChapterProgressMap) (int, error) {
	chapterIDs, err := a.taxonomy.ActiveChapterIDs(ctx, unitID)
	if err != nil {
		return 0, fmt.Errorf("%w: list chapters of unit %s: %v", util.ErrStore, unitID, err)
	}

	sum := 0
	for _, id := range chapterIDs {
		if cp, ok := chapters[id]; ok {
			sum += model.ClampPercent(cp.Progress)
		}
	}
	return roundMean(sum, len(chapterIDs)), nil
}

// RefreshSubject 重新计算单元所属学科的进度并写回
func (a *Aggregator) RefreshSubject(ctx context.Context, studentID uint, unitID string) (*model.SubjectProgress, error) {
	unit, err := a.taxonomy.GetUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if unit.SubjectID == "" {
		return nil, nil
	}

	unitIDs, err := a.taxonomy.ActiveUnitIDs(ctx, unit.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("%w: list units of subject %s: %v", util.ErrStore, unit.SubjectID, err)
	}
	scores, err := a.store.UnitScores(ctx, studentID, unitIDs)
	if err != nil {
		return nil, err
	}

	sum := 0
	for _, id := range unitIDs {
		sum += scores[id]
	}

	sp, err := a.store.GetSubjectOrNew(ctx, studentID, unit.SubjectID)
	if err != nil {
		return nil, err
	}
	next := roundMean(sum, len(unitIDs))
	if sp.ID != 0 && sp.SubjectProgress == next {
		return sp, nil
	}
	sp.SubjectProgress = next
	if err := a.store.SaveSubjectProgress(ctx, studentID, unit.SubjectID, next); err != nil {
		return nil, err
	}
	return sp, nil
}

// Subscribe 订阅某个学生某个单元的进度事件，返回取消函数
func (a *Aggregator) Subscribe(studentID uint, unitID string, fn func(ProgressEvent)) func() {
	a.mu.Lock()
	a.nextID++
	id := a.nextID
	a.subs[id] = subscription{studentID: studentID, unitID: unitID, fn: fn}
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.subs, id)
			a.mu.Unlock()
		})
	}
}

// Publish 经事件总线广播，多实例部署时其他实例的订阅者同样收到
func (a *Aggregator) Publish(ctx context.Context, ev ProgressEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		logger.Log.Error("marshal progress event", zap.Error(err))
		return
	}
	if err := a.bus.Publish(ctx, util.TopicProgressUpdated, raw); err != nil {
		logger.Log.Warn("publish progress event failed",
			zap.Uint("studentId", ev.StudentID),
			zap.String("unitId", ev.UnitID),
			zap.Error(err),
		)
	}
}

func (a *Aggregator) handle(payload []byte) {
	var ev ProgressEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		logger.Log.Warn("bad progress event", zap.Error(err))
		return
	}

	a.mu.RLock()
	targets := make([]func(ProgressEvent), 0)
	for _, s := range a.subs {
		if s.studentID == ev.StudentID && s.unitID == ev.UnitID {
			targets = append(targets, s.fn)
		}
	}
	a.mu.RUnlock()

	for _, fn := range targets {
		fn(ev)
	}
}

func (a *Aggregator) Close() {
	if a.unsub != nil {
		a.unsub()
	}
}
