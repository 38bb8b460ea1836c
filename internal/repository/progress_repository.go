package repository

import (
	"context"
	"errors"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/util"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProgressRepository 进度文档的唯一读写入口，所有写操作均为 upsert
type ProgressRepository struct {
	DB *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: db}
}

func (r *ProgressRepository) Get(ctx context.Context, studentID uint, unitID string) (*model.UnitProgress, error) {
	var doc model.UnitProgress
	err := r.DB.WithContext(ctx).
		Where("student_id = ? AND unit_id = ?", studentID, unitID).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrProgressNotFound
	}
	if err != nil {
		return nil, util.StoreErr("get progress", err)
	}
	return &doc, nil
}

// GetOrNew 不存在时返回未落库的新文档
func (r *ProgressRepository) GetOrNew(ctx context.Context, studentID uint, unitID string) (*model.UnitProgress, error) {
	doc, err := r.Get(ctx, studentID, unitID)
	if errors.Is(err, util.ErrNotFound) {
		return model.NewUnitProgress(studentID, unitID), nil
	}
	return doc, err
}

func (r *ProgressRepository) ListByStudent(ctx context.Context, studentID uint, unitID string) ([]model.UnitProgress, error) {
	var docs []model.UnitProgress
	query := r.DB.WithContext(ctx).Where("student_id = ?", studentID)
	if unitID != "" {
		query = query.Where("unit_id = ?", unitID)
	}
	if err := query.Order("updated_at DESC").Find(&docs).Error; err != nil {
		return nil, util.StoreErr("list progress", err)
	}
	return docs, nil
}

// UnitScores 返回学生在给定单元上的单元进度
func (r *ProgressRepository) UnitScores(ctx context.Context, studentID uint, unitIDs []string) (map[string]int, error) {
	scores := make(map[string]int, len(unitIDs))
	if len(unitIDs) == 0 {
		return scores, nil
	}

	var rows []struct {
		UnitID       string
		UnitProgress int
	}
	err := r.DB.WithContext(ctx).Model(&model.UnitProgress{}).
		Select("unit_id, unit_progress").
		Where("student_id = ? AND unit_id IN ?", studentID, unitIDs).
		Scan(&rows).Error
	if err != nil {
		return nil, util.StoreErr("unit scores", err)
	}
	for _, row := range rows {
		scores[row.UnitID] = row.UnitProgress
	}
	return scores, nil
}

// Save 整文档写入。新文档按 (student_id, unit_id) upsert，已有文档按主键更新
func (r *ProgressRepository) Save(ctx context.Context, doc *model.UnitProgress) error {
	doc.UpdatedAt = time.Now()
	db := r.DB.WithContext(ctx)
	columns := []string{"progress", "unit_progress", "unit_congratulations_shown", "updated_at"}

	var err error
	if doc.ID != 0 {
		err = db.Model(doc).Select(columns).Updates(doc).Error
	} else {
		err = db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_id"}, {Name: "unit_id"}},
			DoUpdates: clause.AssignmentColumns(columns),
		}).Create(doc).Error
	}
	return util.StoreErr("save progress", err)
}

// UpsertChapter 写入完整的章节记录，文档不存在时创建
func (r *ProgressRepository) UpsertChapter(ctx context.Context, studentID uint, unitID, chapterID string, cp model.ChapterProgress) (*model.UnitProgress, error) {
	doc, err := r.GetOrNew(ctx, studentID, unitID)
	if err != nil {
		return nil, err
	}
	chapters := doc.ChapterMap()
	chapters[chapterID] = cp
	doc.SetChapterMap(chapters)
	if err := r.Save(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *ProgressRepository) SetUnitProgress(ctx context.Context, studentID uint, unitID string, value int) error {
	doc, err := r.GetOrNew(ctx, studentID, unitID)
	if err != nil {
		return err
	}
	doc.UnitProgress = model.ClampPercent(value)
	return r.Save(ctx, doc)
}

// MarkCelebrationShown 单独写入庆祝标记，与进度写入互不影响
func (r *ProgressRepository) MarkCelebrationShown(ctx context.Context, kind model.CelebrationKind, target model.CelebrationTarget) error {
	switch kind {
	case model.CelebrationChapter:
		doc, err := r.Get(ctx, target.StudentID, target.UnitID)
		if err != nil {
			return err
		}
		chapters := doc.ChapterMap()
		cp, ok := chapters[target.ChapterID]
		if !ok {
			return util.ErrChapterNotFound
		}
		cp.CongratulationsShown = true
		chapters[target.ChapterID] = cp
		doc.SetChapterMap(chapters)
		return r.Save(ctx, doc)

	case model.CelebrationUnit:
		doc, err := r.GetOrNew(ctx, target.StudentID, target.UnitID)
		if err != nil {
			return err
		}
		doc.UnitCongratulationsShown = true
		return r.Save(ctx, doc)

	case model.CelebrationSubject:
		sp := &model.SubjectProgress{StudentID: target.StudentID, SubjectID: target.SubjectID, SubjectCongratulationsShown: true}
		return util.StoreErr("mark subject celebration", r.upsertSubject(ctx, sp, "subject_congratulations_shown"))
	}
	return fmt.Errorf("%w: unknown celebration type %q", util.ErrValidation, kind)
}

func (r *ProgressRepository) GetSubject(ctx context.Context, studentID uint, subjectID string) (*model.SubjectProgress, error) {
	var sp model.SubjectProgress
	err := r.DB.WithContext(ctx).
		Where("student_id = ? AND subject_id = ?", studentID, subjectID).
		First(&sp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: subject progress", util.ErrNotFound)
	}
	if err != nil {
		return nil, util.StoreErr("get subject progress", err)
	}
	return &sp, nil
}

func (r *ProgressRepository) GetSubjectOrNew(ctx context.Context, studentID uint, subjectID string) (*model.SubjectProgress, error) {
	sp, err := r.GetSubject(ctx, studentID, subjectID)
	if errors.Is(err, util.ErrNotFound) {
		return &model.SubjectProgress{StudentID: studentID, SubjectID: subjectID}, nil
	}
	return sp, err
}

// SaveSubjectProgress 只写入科目进度列，庆祝标记列只由 MarkCelebrationShown 写入
func (r *ProgressRepository) SaveSubjectProgress(ctx context.Context, studentID uint, subjectID string, value int) error {
	sp := &model.SubjectProgress{StudentID: studentID, SubjectID: subjectID, SubjectProgress: model.ClampPercent(value)}
	return util.StoreErr("save subject progress", r.upsertSubject(ctx, sp, "subject_progress"))
}

// upsertSubject 按 (student_id, subject_id) 插入，冲突时只更新给定列
func (r *ProgressRepository) upsertSubject(ctx context.Context, sp *model.SubjectProgress, column string) error {
	sp.UpdatedAt = time.Now()
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "student_id"}, {Name: "subject_id"}},
		DoUpdates: clause.AssignmentColumns([]string{column, "updated_at"}),
	}).Create(sp).Error
}
