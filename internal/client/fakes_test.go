package client

import (
	"context"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/service"
	"sync"
)

// fakeAPI 内存服务端，记录所有调用
type fakeAPI struct {
	mu        sync.Mutex
	authed    bool
	units     map[string]model.UnitSnapshot
	getErr    error
	updateErr error
	markErr   error
	visitFn   func(req service.TrackVisitRequest) (*service.ChapterProgressResponse, error)
	subject   model.SubjectProgress
	// chapterCount 单元内启用章节数，未设置时按已有记录计算
	chapterCount map[string]int

	calls    []string
	updates  []service.ChapterUpdateRequest
	replaces []service.BulkReplaceRequest
	marks    []service.MarkCongratulationsRequest
}

func newFakeAPI(authed bool) *fakeAPI {
	return &fakeAPI{authed: authed, units: map[string]model.UnitSnapshot{}}
}

func (f *fakeAPI) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeAPI) Authenticated() bool { return f.authed }

func (f *fakeAPI) GetProgress(_ context.Context, unitID string) ([]model.UnitSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("get")
	if f.getErr != nil {
		return nil, f.getErr
	}
	snap, ok := f.units[unitID]
	if !ok {
		return []model.UnitSnapshot{}, nil
	}
	snap.Progress = snap.Progress.Clone()
	return []model.UnitSnapshot{snap}, nil
}

func (f *fakeAPI) apply(unitID string, chapters model.ChapterProgressMap, replace bool) *model.UnitSnapshot {
	snap, ok := f.units[unitID]
	if !ok || replace {
		snap = model.UnitSnapshot{UnitID: unitID, Progress: model.ChapterProgressMap{}}
	}
	if snap.Progress == nil {
		snap.Progress = model.ChapterProgressMap{}
	}
	for id, cp := range chapters {
		snap.Progress[id] = cp.Clone()
	}
	sum := 0
	for _, cp := range snap.Progress {
		sum += cp.Progress
	}
	n := len(snap.Progress)
	if c := f.chapterCount[unitID]; c > 0 {
		n = c
	}
	if n > 0 {
		snap.UnitProgress = sum / n
	}
	f.units[unitID] = snap
	out := snap
	out.Progress = snap.Progress.Clone()
	return &out
}

func (f *fakeAPI) UpdateChapter(_ context.Context, req service.ChapterUpdateRequest) (*model.UnitSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("update")
	f.updates = append(f.updates, req)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return f.apply(req.UnitID, model.ChapterProgressMap{req.ChapterID: req.Progress}, false), nil
}

func (f *fakeAPI) ReplaceUnit(_ context.Context, req service.BulkReplaceRequest) (*model.UnitSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("replace")
	f.replaces = append(f.replaces, req)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return f.apply(req.UnitID, req.Progress, true), nil
}

func (f *fakeAPI) TrackVisit(_ context.Context, req service.TrackVisitRequest) (*service.ChapterProgressResponse, error) {
	f.mu.Lock()
	fn := f.visitFn
	f.record("visit")
	f.mu.Unlock()
	return fn(req)
}

func (f *fakeAPI) MarkCongratulations(_ context.Context, req service.MarkCongratulationsRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("mark:" + string(req.Type))
	if f.markErr != nil {
		return f.markErr
	}
	f.marks = append(f.marks, req)
	return nil
}

func (f *fakeAPI) GetSubject(_ context.Context, subjectID string) (*model.SubjectProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sp := f.subject
	sp.SubjectID = subjectID
	return &sp, nil
}

func (f *fakeAPI) markCount(kind model.CelebrationKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.marks {
		if m.Type == kind {
			n++
		}
	}
	return n
}

func (f *fakeAPI) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
