package client

import (
	"context"
	"errors"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/service"
	"exam_prep_backend/internal/util"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// 数据来源
const (
	SourceServer = "server"
	SourceMirror = "mirror"
	SourceLocal  = "local"
)

// ProgressAPI 跟踪器依赖的服务端接口，由 APIClient 实现
type ProgressAPI interface {
	Authenticated() bool
	GetProgress(ctx context.Context, unitID string) ([]model.UnitSnapshot, error)
	UpdateChapter(ctx context.Context, req service.ChapterUpdateRequest) (*model.UnitSnapshot, error)
	ReplaceUnit(ctx context.Context, req service.BulkReplaceRequest) (*model.UnitSnapshot, error)
	TrackVisit(ctx context.Context, req service.TrackVisitRequest) (*service.ChapterProgressResponse, error)
	MarkCongratulations(ctx context.Context, req service.MarkCongratulationsRequest) error
	GetSubject(ctx context.Context, subjectID string) (*model.SubjectProgress, error)
}

type Celebration struct {
	Kind      model.CelebrationKind
	UnitID    string
	ChapterID string
	SubjectID string
}

func (c Celebration) key() string {
	switch c.Kind {
	case model.CelebrationChapter:
		return CelebrationKey(c.Kind, c.ChapterID)
	case model.CelebrationUnit:
		return CelebrationKey(c.Kind, c.UnitID)
	}
	return CelebrationKey(c.Kind, c.SubjectID)
}

type TrackerOptions struct {
	Debounce time.Duration
	// OnCelebrate 庆祝触发时的界面通知
	OnCelebrate func(Celebration)
	// Chapters 返回单元内启用的章节，用于本地估算单元进度；为空时单元进度只采用服务端返回值
	Chapters func(unitID string) []string
	Logger   *zap.Logger
}

// UnitView 某一时刻的单元进度
type UnitView struct {
	UnitID                   string                   `json:"unitId"`
	Progress                 model.ChapterProgressMap `json:"progress"`
	UnitProgress             int                      `json:"unitProgress"`
	UnitCongratulationsShown bool                     `json:"unitCongratulationsShown"`
	Source                   string                   `json:"source"`
}

type unitState struct {
	loaded       bool
	chapters     model.ChapterProgressMap
	unitProgress int
	unitShown    bool
	dirty        map[string]bool
	pendingMarks []Celebration
}

func (s *unitState) view(unitID, source string) UnitView {
	return UnitView{
		UnitID:                   unitID,
		Progress:                 s.chapters.Clone(),
		UnitProgress:             s.unitProgress,
		UnitCongratulationsShown: s.unitShown,
		Source:                   source,
	}
}

// ProgressTracker 客户端进度状态：本地先写镜像，服务端写入按单元防抖
type ProgressTracker struct {
	api      ProgressAPI
	mirror   *DeviceMirror
	gate     *CelebrationGate
	debounce *Debouncer
	opts     TrackerOptions
	log      *zap.Logger

	mu       sync.Mutex
	units    map[string]*unitState
	subjects map[string]int
	subs     map[string]map[uint64]func(UnitView)
	nextSub  uint64
}

func NewProgressTracker(api ProgressAPI, mirror *DeviceMirror, opts TrackerOptions) *ProgressTracker {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if mirror == nil {
		mirror = NewDeviceMirror(nil, log)
	}
	return &ProgressTracker{
		api:      api,
		mirror:   mirror,
		gate:     NewCelebrationGate(),
		debounce: NewDebouncer(opts.Debounce),
		opts:     opts,
		log:      log,
		units:    make(map[string]*unitState),
		subjects: make(map[string]int),
		subs:     make(map[string]map[uint64]func(UnitView)),
	}
}

func (t *ProgressTracker) stateLocked(unitID string) *unitState {
	st, ok := t.units[unitID]
	if !ok {
		st = &unitState{chapters: model.ChapterProgressMap{}, dirty: map[string]bool{}}
		if rec, found, err := t.mirror.Load(unitID); err == nil && found {
			st.chapters = rec.Progress
			st.unitProgress = rec.UnitProgress
		}
		t.units[unitID] = st
	}
	return st
}

// fallbackToMirror 网络、超时和认证失败时读取本地镜像
func fallbackToMirror(err error) bool {
	return errors.Is(err, util.ErrNetwork) || errors.Is(err, util.ErrTimeout) || errors.Is(err, util.ErrAuth)
}

// Load 已登录时以服务端为准并覆盖镜像，否则镜像即为权威数据。尚未写出的本地修改保留
func (t *ProgressTracker) Load(ctx context.Context, unitID string) (*UnitView, error) {
	if unitID == "" {
		return nil, util.Validationf("unitId is required")
	}

	var snap *model.UnitSnapshot
	if t.api != nil && t.api.Authenticated() {
		list, err := t.api.GetProgress(ctx, unitID)
		switch {
		case err == nil:
			snap = &model.UnitSnapshot{UnitID: unitID, Progress: model.ChapterProgressMap{}}
			for i := range list {
				if list[i].UnitID == unitID {
					snap = &list[i]
					break
				}
			}
		case fallbackToMirror(err):
			t.log.Warn("progress load failed, using device mirror", zap.String("unitId", unitID), zap.Error(err))
		default:
			return nil, err
		}
	}

	var rec MirrorRecord
	if snap == nil {
		r, _, err := t.mirror.Load(unitID)
		if err != nil {
			t.log.Warn("device mirror unreadable", zap.String("unitId", unitID), zap.Error(err))
		}
		rec = r
	}

	t.mu.Lock()
	st := t.stateLocked(unitID)
	source := SourceMirror
	next := rec.Progress.Clone()
	unitProgress := rec.UnitProgress
	if snap != nil {
		source = SourceServer
		next = snap.Progress.Clone()
		unitProgress = snap.UnitProgress
		st.unitShown = st.unitShown || snap.UnitCongratulationsShown
	}
	for id := range st.dirty {
		next[id] = st.chapters[id]
	}
	st.chapters = next
	st.unitProgress = unitProgress
	if len(st.dirty) > 0 {
		if avg, ok := t.unitAverage(unitID, st.chapters); ok {
			st.unitProgress = avg
		}
	}
	st.loaded = true

	for id, cp := range st.chapters {
		t.gate.LoadIfAbsent(CelebrationKey(model.CelebrationChapter, id), cp.CongratulationsShown)
	}
	t.gate.LoadIfAbsent(CelebrationKey(model.CelebrationUnit, unitID), st.unitShown)

	t.saveMirrorLocked(unitID, st)
	view := st.view(unitID, source)
	t.mu.Unlock()

	t.publish(view)
	return &view, nil
}

// View 返回内存中的当前状态
func (t *ProgressTracker) View(unitID string) (UnitView, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.units[unitID]
	if !ok {
		return UnitView{}, false
	}
	return st.view(unitID, SourceLocal), true
}

// SetChapterProgress 滑块设置进度
func (t *ProgressTracker) SetChapterProgress(ctx context.Context, unitID, chapterID string, value int) (model.ChapterProgress, error) {
	return t.mutate(ctx, unitID, chapterID, func(cp *model.ChapterProgress) {
		cp.SetManual(value, false)
	})
}

func (t *ProgressTracker) MarkDone(ctx context.Context, unitID, chapterID string) (model.ChapterProgress, error) {
	return t.mutate(ctx, unitID, chapterID, func(cp *model.ChapterProgress) {
		cp.SetManual(100, true)
	})
}

// Reset 进度归零并解除本地庆祝锁定；服务端标记保持不变
func (t *ProgressTracker) Reset(ctx context.Context, unitID, chapterID string) (model.ChapterProgress, error) {
	cp, err := t.mutate(ctx, unitID, chapterID, func(cp *model.ChapterProgress) {
		cp.SetManual(0, false)
	})
	if err == nil {
		t.gate.Clear(CelebrationKey(model.CelebrationChapter, chapterID))
	}
	return cp, err
}

func (t *ProgressTracker) mutate(ctx context.Context, unitID, chapterID string, apply func(cp *model.ChapterProgress)) (model.ChapterProgress, error) {
	if unitID == "" || chapterID == "" {
		return model.ChapterProgress{}, util.Validationf("unitId and chapterId are required")
	}

	t.mu.Lock()
	st := t.stateLocked(unitID)
	cp, ok := st.chapters[chapterID]
	if !ok {
		cp = model.NewChapterProgress()
	}
	prev, prevUnit := cp.Progress, st.unitProgress

	apply(&cp)
	st.chapters[chapterID] = cp
	st.dirty[chapterID] = true
	avg, unitKnown := t.unitAverage(unitID, st.chapters)
	if unitKnown {
		st.unitProgress = avg
	}

	fired := t.evaluateLocked(unitID, chapterID, st, prev, cp.Progress, prevUnit, unitKnown)
	authed := t.authenticated()
	for _, c := range fired {
		if authed {
			// 等进度写入成功后再标记，保证服务端已有该章节
			st.pendingMarks = append(st.pendingMarks, c)
		} else {
			t.recordLatchLocked(st, c)
		}
	}
	t.saveMirrorLocked(unitID, st)
	view := st.view(unitID, SourceLocal)
	out := st.chapters[chapterID].Clone()
	t.mu.Unlock()

	t.debounce.Trigger(unitID, func() {
		if err := t.flushUnit(context.Background(), unitID); err != nil {
			t.log.Warn("debounced progress write failed", zap.String("unitId", unitID), zap.Error(err))
		}
	})
	t.publish(view)
	t.notify(fired)
	return out, nil
}

// RecordVisit 立即上报访问，服务端计算自动进度。上报失败时保留本地访问记录，下次写入时带上
func (t *ProgressTracker) RecordVisit(ctx context.Context, unitID, chapterID string, itemType model.ItemType, itemID string) (model.ChapterProgress, error) {
	if unitID == "" || chapterID == "" {
		return model.ChapterProgress{}, util.Validationf("unitId and chapterId are required")
	}
	if !itemType.Valid() {
		return model.ChapterProgress{}, util.ErrInvalidItemType
	}
	if itemType != model.ItemChapter && itemID == "" {
		return model.ChapterProgress{}, util.Validationf("itemId is required for %s", itemType)
	}

	t.mu.Lock()
	st := t.stateLocked(unitID)
	cp, ok := st.chapters[chapterID]
	if !ok {
		cp = model.NewChapterProgress()
	}
	prev := cp.Progress
	changed := cp.VisitedItems.Add(itemType, itemID)
	st.chapters[chapterID] = cp
	if changed {
		t.saveMirrorLocked(unitID, st)
	}
	local := cp.Clone()
	t.mu.Unlock()

	// 自动进度只由服务端计算，离线访问只记入已访问集合，下次写入时带上
	if !t.authenticated() {
		return local, nil
	}

	resp, err := t.api.TrackVisit(ctx, service.TrackVisitRequest{
		UnitID:    unitID,
		ChapterID: chapterID,
		ItemType:  itemType,
		ItemID:    itemID,
	})
	if err != nil {
		if changed {
			t.mu.Lock()
			st.dirty[chapterID] = true
			t.mu.Unlock()
			t.debounce.Trigger(unitID, func() {
				if err := t.flushUnit(context.Background(), unitID); err != nil {
					t.log.Warn("debounced progress write failed", zap.String("unitId", unitID), zap.Error(err))
				}
			})
		}
		return local, err
	}

	t.mu.Lock()
	current := st.chapters[chapterID]
	server := resp.ChapterProgress.Clone()
	var next model.ChapterProgress
	if st.dirty[chapterID] {
		next = current
		next.VisitedItems.Merge(server.VisitedItems)
		next.ApplyAuto(server.AutoCalculatedProgress)
	} else {
		next = server
		next.VisitedItems.Merge(current.VisitedItems)
		next.CongratulationsShown = next.CongratulationsShown || current.CongratulationsShown
	}
	st.chapters[chapterID] = next

	prevUnit := st.unitProgress
	unitKnown := len(st.dirty) == 0
	if unitKnown {
		st.unitProgress = resp.UnitProgress
	} else if avg, ok := t.unitAverage(unitID, st.chapters); ok {
		st.unitProgress, unitKnown = avg, true
	}
	fired := t.evaluateLocked(unitID, chapterID, st, prev, next.Progress, prevUnit, unitKnown)
	t.saveMirrorLocked(unitID, st)
	view := st.view(unitID, SourceServer)
	out := next.Clone()
	t.mu.Unlock()

	t.publish(view)
	t.notify(fired)
	for _, c := range fired {
		t.sendMark(ctx, c)
	}
	return out, nil
}

// RefreshSubject 读取学科进度；首次读取只加载标记，之后按前后值判断是否庆祝
func (t *ProgressTracker) RefreshSubject(ctx context.Context, subjectID string) (*model.SubjectProgress, error) {
	if subjectID == "" {
		return nil, util.Validationf("subjectId is required")
	}
	if !t.authenticated() {
		return nil, util.ErrAuth
	}
	sp, err := t.api.GetSubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	key := CelebrationKey(model.CelebrationSubject, subjectID)
	t.mu.Lock()
	prev, seen := t.subjects[subjectID]
	t.subjects[subjectID] = sp.SubjectProgress
	t.mu.Unlock()

	if !seen {
		t.gate.LoadIfAbsent(key, sp.SubjectCongratulationsShown)
		return sp, nil
	}
	if t.gate.Evaluate(key, prev, sp.SubjectProgress) {
		c := Celebration{Kind: model.CelebrationSubject, SubjectID: subjectID}
		t.notify([]Celebration{c})
		t.sendMark(ctx, c)
	}
	return sp, nil
}

// evaluateLocked 依次判断章节与单元庆祝条件。unitKnown 为 false 时单元进度不可信，跳过单元判断
func (t *ProgressTracker) evaluateLocked(unitID, chapterID string, st *unitState, prev, next, prevUnit int, unitKnown bool) []Celebration {
	if !st.loaded {
		return nil
	}
	var fired []Celebration

	chapterKey := CelebrationKey(model.CelebrationChapter, chapterID)
	t.gate.LoadIfAbsent(chapterKey, st.chapters[chapterID].CongratulationsShown)
	if t.gate.Evaluate(chapterKey, prev, next) {
		fired = append(fired, Celebration{Kind: model.CelebrationChapter, UnitID: unitID, ChapterID: chapterID})
	}

	if unitKnown {
		fired = append(fired, t.evaluateUnitLocked(unitID, st, prevUnit)...)
	}
	return fired
}

func (t *ProgressTracker) evaluateUnitLocked(unitID string, st *unitState, prevUnit int) []Celebration {
	if !st.loaded {
		return nil
	}
	unitKey := CelebrationKey(model.CelebrationUnit, unitID)
	t.gate.LoadIfAbsent(unitKey, st.unitShown)
	if t.gate.Evaluate(unitKey, prevUnit, st.unitProgress) {
		return []Celebration{{Kind: model.CelebrationUnit, UnitID: unitID}}
	}
	return nil
}

func (t *ProgressTracker) notify(fired []Celebration) {
	if t.opts.OnCelebrate == nil {
		return
	}
	for _, c := range fired {
		t.opts.OnCelebrate(c)
	}
}

// sendMark 单独写入庆祝标记；失败只记录日志，本地锁定不回退
func (t *ProgressTracker) sendMark(ctx context.Context, c Celebration) {
	err := t.api.MarkCongratulations(ctx, service.MarkCongratulationsRequest{
		Type:      c.Kind,
		UnitID:    c.UnitID,
		ChapterID: c.ChapterID,
		SubjectID: c.SubjectID,
	})
	if err != nil {
		t.log.Warn("mark congratulations failed",
			zap.String("key", c.key()),
			zap.Error(err),
		)
		return
	}
	if c.Kind == model.CelebrationSubject {
		return
	}
	t.mu.Lock()
	if st, ok := t.units[c.UnitID]; ok {
		t.recordLatchLocked(st, c)
		t.saveMirrorLocked(c.UnitID, st)
	}
	t.mu.Unlock()
}

func (t *ProgressTracker) recordLatchLocked(st *unitState, c Celebration) {
	switch c.Kind {
	case model.CelebrationChapter:
		if cp, ok := st.chapters[c.ChapterID]; ok {
			cp.CongratulationsShown = true
			st.chapters[c.ChapterID] = cp
		}
	case model.CelebrationUnit:
		st.unitShown = true
	}
}

// flushUnit 写出单元内的脏章节：一个章节用 POST，多个章节用 PUT 整体替换。
// 失败时章节保持为脏，下次写入重试
func (t *ProgressTracker) flushUnit(ctx context.Context, unitID string) error {
	if !t.authenticated() {
		return nil
	}

	t.mu.Lock()
	st, ok := t.units[unitID]
	if !ok || (len(st.dirty) == 0 && len(st.pendingMarks) == 0) {
		t.mu.Unlock()
		return nil
	}
	ids := make([]string, 0, len(st.dirty))
	for id := range st.dirty {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	all := st.chapters.Clone()
	unitProgress := st.unitProgress
	marks := st.pendingMarks
	st.dirty = map[string]bool{}
	st.pendingMarks = nil
	t.mu.Unlock()

	var snap *model.UnitSnapshot
	var err error
	switch len(ids) {
	case 0:
	case 1:
		snap, err = t.api.UpdateChapter(ctx, service.ChapterUpdateRequest{
			UnitID:       unitID,
			ChapterID:    ids[0],
			Progress:     all[ids[0]],
			UnitProgress: unitProgress,
		})
	default:
		snap, err = t.api.ReplaceUnit(ctx, service.BulkReplaceRequest{
			UnitID:       unitID,
			Progress:     all,
			UnitProgress: unitProgress,
		})
	}
	if err != nil {
		t.mu.Lock()
		for _, id := range ids {
			st.dirty[id] = true
		}
		st.pendingMarks = append(marks, st.pendingMarks...)
		t.mu.Unlock()
		return err
	}

	var fired []Celebration
	if snap != nil {
		t.mu.Lock()
		for id, cp := range snap.Progress {
			if st.dirty[id] {
				continue
			}
			if local, ok := st.chapters[id]; ok {
				cp.CongratulationsShown = cp.CongratulationsShown || local.CongratulationsShown
			}
			st.chapters[id] = cp
		}
		st.unitShown = st.unitShown || snap.UnitCongratulationsShown
		if len(st.dirty) == 0 {
			prevUnit := st.unitProgress
			st.unitProgress = snap.UnitProgress
			fired = t.evaluateUnitLocked(unitID, st, prevUnit)
		}
		t.saveMirrorLocked(unitID, st)
		view := st.view(unitID, SourceServer)
		t.mu.Unlock()
		t.publish(view)
		t.notify(fired)
	}

	for _, c := range append(marks, fired...) {
		t.sendMark(ctx, c)
	}
	return nil
}

// unitAverage 按单元内启用章节估算单元进度；章节列表未知时 ok=false
func (t *ProgressTracker) unitAverage(unitID string, chapters model.ChapterProgressMap) (int, bool) {
	var ids []string
	if t.opts.Chapters != nil {
		ids = t.opts.Chapters(unitID)
	}
	if len(ids) == 0 {
		return 0, false
	}
	sum := 0
	for _, id := range ids {
		sum += model.ClampPercent(chapters[id].Progress)
	}
	return model.ClampPercent(int(math.Round(float64(sum) / float64(len(ids))))), true
}

func (t *ProgressTracker) saveMirrorLocked(unitID string, st *unitState) {
	err := t.mirror.Save(unitID, MirrorRecord{Progress: st.chapters, UnitProgress: st.unitProgress})
	if err != nil {
		t.log.Warn("device mirror write failed", zap.String("unitId", unitID), zap.Error(err))
	}
}

func (t *ProgressTracker) authenticated() bool {
	return t.api != nil && t.api.Authenticated()
}

// Subscribe 订阅某个单元的本地状态变化，返回取消函数
func (t *ProgressTracker) Subscribe(unitID string, fn func(UnitView)) func() {
	t.mu.Lock()
	t.nextSub++
	id := t.nextSub
	if t.subs[unitID] == nil {
		t.subs[unitID] = make(map[uint64]func(UnitView))
	}
	t.subs[unitID][id] = fn
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs[unitID], id)
			if len(t.subs[unitID]) == 0 {
				delete(t.subs, unitID)
			}
			t.mu.Unlock()
		})
	}
}

func (t *ProgressTracker) publish(view UnitView) {
	t.mu.Lock()
	fns := make([]func(UnitView), 0, len(t.subs[view.UnitID]))
	for _, fn := range t.subs[view.UnitID] {
		fns = append(fns, fn)
	}
	t.mu.Unlock()
	for _, fn := range fns {
		fn(view)
	}
}

// Dirty 单元内尚未写出的章节数
func (t *ProgressTracker) Dirty(unitID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.units[unitID]; ok {
		return len(st.dirty)
	}
	return 0
}

// Flush 立即执行所有防抖中的写入
func (t *ProgressTracker) Flush() {
	t.debounce.Flush()
}

// Sync 同步写出所有单元的脏章节，用于失败后的手动重试
func (t *ProgressTracker) Sync(ctx context.Context) error {
	t.debounce.Flush()

	t.mu.Lock()
	ids := make([]string, 0, len(t.units))
	for id, st := range t.units {
		if len(st.dirty) > 0 || len(st.pendingMarks) > 0 {
			ids = append(ids, id)
		}
	}
	t.mu.Unlock()
	sort.Strings(ids)

	var errs []error
	for _, id := range ids {
		if err := t.flushUnit(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close 退出前写出所有待写入数据
func (t *ProgressTracker) Close() {
	t.debounce.Flush()
	t.debounce.Stop()
}
