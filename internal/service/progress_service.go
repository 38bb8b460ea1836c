package service

import (
	"context"
	"errors"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/util"
	"exam_prep_backend/pkg/logger"
	"exam_prep_backend/pkg/monitoring"
	"exam_prep_backend/pkg/tracing"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type TrackVisitRequest struct {
	UnitID    string         `json:"unitId" validate:"required"`
	ChapterID string         `json:"chapterId" validate:"required"`
	ItemType  model.ItemType `json:"itemType" validate:"required,oneof=chapter topic subtopic definition"`
	ItemID    string         `json:"itemId" validate:"required_unless=ItemType chapter"`
}

type CalculateRequest struct {
	UnitID    string `json:"unitId" validate:"required"`
	ChapterID string `json:"chapterId" validate:"required"`
}

type ChapterUpdateRequest struct {
	UnitID       string                `json:"unitId" validate:"required"`
	ChapterID    string                `json:"chapterId" validate:"required"`
	Progress     model.ChapterProgress `json:"progress"`
	UnitProgress int                   `json:"unitProgress"`
}

type BulkReplaceRequest struct {
	UnitID       string                   `json:"unitId" validate:"required"`
	Progress     model.ChapterProgressMap `json:"progress"`
	UnitProgress int                      `json:"unitProgress"`
}

type MarkCongratulationsRequest struct {
	Type      model.CelebrationKind `json:"type" validate:"required,oneof=chapter unit subject"`
	UnitID    string                `json:"unitId" validate:"required_if=Type chapter,required_if=Type unit"`
	ChapterID string                `json:"chapterId" validate:"required_if=Type chapter"`
	SubjectID string                `json:"subjectId" validate:"required_if=Type subject"`
}

type ChapterProgressResponse struct {
	UnitID                 string                `json:"unitId"`
	ChapterID              string                `json:"chapterId"`
	ChapterProgress        model.ChapterProgress `json:"chapterProgress"`
	AutoCalculatedProgress int                   `json:"autoCalculatedProgress"`
	UnitProgress           int                   `json:"unitProgress"`
}

type ProgressService struct {
	store      ProgressStore
	calculator *ProgressCalculator
	aggregator *Aggregator
	locks      *keyedMutex
	validate   *validator.Validate
}

func NewProgressService(store ProgressStore, calculator *ProgressCalculator, aggregator *Aggregator) *ProgressService {
	return &ProgressService{
		store:      store,
		calculator: calculator,
		aggregator: aggregator,
		locks:      newKeyedMutex(),
		validate:   validator.New(),
	}
}

func (s *ProgressService) check(req interface{}) error {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				if fe.Field() == "ItemType" && fe.Tag() == "oneof" {
					return util.ErrInvalidItemType
				}
				fields = append(fields, fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag()))
			}
			return util.Validationf("invalid fields: %s", strings.Join(fields, ", "))
		}
		return util.Validationf("%v", err)
	}
	return nil
}

// RecordVisit 记录一次访问。重复访问不改变任何状态
func (s *ProgressService) RecordVisit(ctx context.Context, studentID uint, req TrackVisitRequest) (*ChapterProgressResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	ctx, span := tracing.Start(ctx, "ProgressService.RecordVisit")
	defer span.End()
	span.SetAttributes(
		attribute.String("unit.id", req.UnitID),
		attribute.String("chapter.id", req.ChapterID),
		attribute.String("item.type", string(req.ItemType)),
	)

	unlock := s.locks.Lock(docKey(studentID, req.UnitID))
	defer unlock()

	doc, err := s.store.GetOrNew(ctx, studentID, req.UnitID)
	if err != nil {
		return nil, err
	}

	chapters := doc.ChapterMap()
	cp, exists := chapters[req.ChapterID]
	if !exists {
		cp = model.NewChapterProgress()
	}

	if !cp.VisitedItems.Add(req.ItemType, req.ItemID) && exists {
		return &ChapterProgressResponse{
			UnitID:                 req.UnitID,
			ChapterID:              req.ChapterID,
			ChapterProgress:        cp,
			AutoCalculatedProgress: cp.AutoCalculatedProgress,
			UnitProgress:           doc.UnitProgress,
		}, nil
	}

	auto := s.calculator.Recompute(ctx, req.ChapterID, &cp, true)
	chapters[req.ChapterID] = cp

	if err := s.persist(ctx, doc, chapters, "track_visit"); err != nil {
		return nil, err
	}
	s.afterWrite(ctx, doc, req.ChapterID, &cp, "track_visit")

	return &ChapterProgressResponse{
		UnitID:                 req.UnitID,
		ChapterID:              req.ChapterID,
		ChapterProgress:        cp,
		AutoCalculatedProgress: auto,
		UnitProgress:           doc.UnitProgress,
	}, nil
}

// Recalculate 基于现有访问集合重新计算，不记录新访问（章节本身不计入条目）
func (s *ProgressService) Recalculate(ctx context.Context, studentID uint, req CalculateRequest) (*ChapterProgressResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	ctx, span := tracing.Start(ctx, "ProgressService.Recalculate")
	defer span.End()

	unlock := s.locks.Lock(docKey(studentID, req.UnitID))
	defer unlock()

	doc, err := s.store.Get(ctx, studentID, req.UnitID)
	if err != nil {
		return nil, err
	}
	chapters := doc.ChapterMap()
	cp, ok := chapters[req.ChapterID]
	if !ok {
		return nil, util.ErrChapterNotFound
	}

	auto := s.calculator.Recompute(ctx, req.ChapterID, &cp, false)
	chapters[req.ChapterID] = cp

	if err := s.persist(ctx, doc, chapters, "calculate"); err != nil {
		return nil, err
	}
	s.afterWrite(ctx, doc, req.ChapterID, &cp, "calculate")

	return &ChapterProgressResponse{
		UnitID:                 req.UnitID,
		ChapterID:              req.ChapterID,
		ChapterProgress:        cp,
		AutoCalculatedProgress: auto,
		UnitProgress:           doc.UnitProgress,
	}, nil
}

// ApplyChapterUpdate 写入客户端提交的完整章节记录。
// 访问集合取并集，已持久化的庆祝标记不会被旧数据覆盖
func (s *ProgressService) ApplyChapterUpdate(ctx context.Context, studentID uint, req ChapterUpdateRequest) (*model.UnitSnapshot, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	ctx, span := tracing.Start(ctx, "ProgressService.ApplyChapterUpdate")
	defer span.End()

	unlock := s.locks.Lock(docKey(studentID, req.UnitID))
	defer unlock()

	doc, err := s.store.GetOrNew(ctx, studentID, req.UnitID)
	if err != nil {
		return nil, err
	}
	chapters := doc.ChapterMap()
	cp := mergeChapter(chapters, req.ChapterID, req.Progress)
	chapters[req.ChapterID] = cp

	if err := s.persist(ctx, doc, chapters, "update_chapter"); err != nil {
		return nil, err
	}
	if doc.UnitProgress != req.UnitProgress {
		logger.Log.Debug("client unit progress differs from aggregate",
			zap.String("unitId", req.UnitID),
			zap.Int("client", req.UnitProgress),
			zap.Int("server", doc.UnitProgress),
		)
	}
	s.afterWrite(ctx, doc, req.ChapterID, &cp, "update_chapter")

	snap := doc.Snapshot()
	return &snap, nil
}

// ReplaceUnit 整体替换单元内全部章节记录
func (s *ProgressService) ReplaceUnit(ctx context.Context, studentID uint, req BulkReplaceRequest) (*model.UnitSnapshot, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	for id := range req.Progress {
		if strings.TrimSpace(id) == "" {
			return nil, util.Validationf("empty chapter id in progress map")
		}
	}
	ctx, span := tracing.Start(ctx, "ProgressService.ReplaceUnit")
	defer span.End()

	unlock := s.locks.Lock(docKey(studentID, req.UnitID))
	defer unlock()

	doc, err := s.store.GetOrNew(ctx, studentID, req.UnitID)
	if err != nil {
		return nil, err
	}
	existing := doc.ChapterMap()
	next := make(model.ChapterProgressMap, len(req.Progress))
	for id, incoming := range req.Progress {
		next[id] = mergeChapter(existing, id, incoming)
	}

	if err := s.persist(ctx, doc, next, "replace_unit"); err != nil {
		return nil, err
	}
	s.afterWrite(ctx, doc, "", nil, "replace_unit")

	snap := doc.Snapshot()
	return &snap, nil
}

func mergeChapter(existing model.ChapterProgressMap, chapterID string, incoming model.ChapterProgress) model.ChapterProgress {
	cp := incoming.Clone()
	if prev, ok := existing[chapterID]; ok {
		cp.VisitedItems.Merge(prev.VisitedItems)
		cp.CongratulationsShown = cp.CongratulationsShown || prev.CongratulationsShown
	}
	cp.Normalize()
	return cp
}

// persist 重新汇总单元进度并与章节数据一次写入
func (s *ProgressService) persist(ctx context.Context, doc *model.UnitProgress, chapters model.ChapterProgressMap, op string) error {
	unitProgress, err := s.aggregator.UnitProgress(ctx, doc.UnitID, chapters)
	if err != nil {
		monitoring.ObserveWrite(op, err)
		return err
	}
	doc.SetChapterMap(chapters)
	doc.UnitProgress = unitProgress

	err = s.store.Save(ctx, doc)
	monitoring.ObserveWrite(op, err)
	return err
}

// afterWrite 更新学科进度并通知订阅者；学科汇总失败只记录日志
func (s *ProgressService) afterWrite(ctx context.Context, doc *model.UnitProgress, chapterID string, cp *model.ChapterProgress, reason string) {
	ev := ProgressEvent{
		StudentID:    doc.StudentID,
		UnitID:       doc.UnitID,
		ChapterID:    chapterID,
		Reason:       reason,
		UnitProgress: doc.UnitProgress,
	}
	if cp != nil {
		c := cp.Clone()
		ev.ChapterProgress = &c
	}

	sp, err := s.aggregator.RefreshSubject(ctx, doc.StudentID, doc.UnitID)
	if err != nil {
		logger.Log.Warn("subject progress refresh failed",
			zap.Uint("studentId", doc.StudentID),
			zap.String("unitId", doc.UnitID),
			zap.Error(err),
		)
	} else if sp != nil {
		v := sp.SubjectProgress
		ev.SubjectID = sp.SubjectID
		ev.SubjectProgress = &v
	}

	s.aggregator.Publish(ctx, ev)
}

// MarkCongratulations 独立于进度写入设置庆祝标记
func (s *ProgressService) MarkCongratulations(ctx context.Context, studentID uint, req MarkCongratulationsRequest) error {
	if err := s.check(req); err != nil {
		return err
	}
	ctx, span := tracing.Start(ctx, "ProgressService.MarkCongratulations")
	defer span.End()

	if req.Type != model.CelebrationSubject {
		unlock := s.locks.Lock(docKey(studentID, req.UnitID))
		defer unlock()
	}

	err := s.store.MarkCelebrationShown(ctx, req.Type, model.CelebrationTarget{
		StudentID: studentID,
		UnitID:    req.UnitID,
		ChapterID: req.ChapterID,
		SubjectID: req.SubjectID,
	})
	monitoring.ObserveWrite("mark_congratulations", err)
	return err
}

func (s *ProgressService) List(ctx context.Context, studentID uint, unitID string) ([]model.UnitSnapshot, error) {
	docs, err := s.store.ListByStudent(ctx, studentID, unitID)
	if err != nil {
		return nil, err
	}
	out := make([]model.UnitSnapshot, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].Snapshot())
	}
	return out, nil
}

func (s *ProgressService) GetSubject(ctx context.Context, studentID uint, subjectID string) (*model.SubjectProgress, error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, util.Validationf("subjectId is required")
	}
	return s.store.GetSubjectOrNew(ctx, studentID, subjectID)
}

// Subscribe 订阅当前学生某单元的进度事件
func (s *ProgressService) Subscribe(studentID uint, unitID string, fn func(ProgressEvent)) func() {
	return s.aggregator.Subscribe(studentID, unitID, fn)
}
