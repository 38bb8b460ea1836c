package repository

import (
	"context"
	"errors"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/util"

	"gorm.io/gorm"
)

type TaxonomyRepository struct {
	DB *gorm.DB
}

func NewTaxonomyRepository(db *gorm.DB) *TaxonomyRepository {
	return &TaxonomyRepository{DB: db}
}

// withStatus status 为 all 时不过滤
func withStatus(db *gorm.DB, status string) *gorm.DB {
	if status == util.StatusAll {
		return db
	}
	return db.Where("status = ?", status)
}

func (r *TaxonomyRepository) ActiveTopicIDs(ctx context.Context, chapterID string) ([]string, error) {
	var ids []string
	err := r.DB.WithContext(ctx).Model(&model.Topic{}).
		Where("chapter_id = ? AND status = ?", chapterID, model.StatusActive).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *TaxonomyRepository) ActiveSubtopicIDs(ctx context.Context, topicIDs []string) ([]string, error) {
	if len(topicIDs) == 0 {
		return nil, nil
	}
	var ids []string
	err := r.DB.WithContext(ctx).Model(&model.Subtopic{}).
		Where("topic_id IN ? AND status = ?", topicIDs, model.StatusActive).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *TaxonomyRepository) CountActiveDefinitions(ctx context.Context, subtopicIDs []string) (int64, error) {
	if len(subtopicIDs) == 0 {
		return 0, nil
	}
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Definition{}).
		Where("subtopic_id IN ? AND status = ?", subtopicIDs, model.StatusActive).
		Count(&count).Error
	return count, err
}

func (r *TaxonomyRepository) ActiveChapterIDs(ctx context.Context, unitID string) ([]string, error) {
	var ids []string
	err := r.DB.WithContext(ctx).Model(&model.Chapter{}).
		Where("unit_id = ? AND status = ?", unitID, model.StatusActive).
		Order("`order` ASC").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *TaxonomyRepository) ActiveUnitIDs(ctx context.Context, subjectID string) ([]string, error) {
	var ids []string
	err := r.DB.WithContext(ctx).Model(&model.Unit{}).
		Where("subject_id = ? AND status = ?", subjectID, model.StatusActive).
		Order("`order` ASC").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *TaxonomyRepository) GetUnit(ctx context.Context, unitID string) (*model.Unit, error) {
	var unit model.Unit
	err := r.DB.WithContext(ctx).Where("id = ?", unitID).First(&unit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrUnitNotFound
	}
	if err != nil {
		return nil, err
	}
	return &unit, nil
}

func (r *TaxonomyRepository) ListExams(ctx context.Context, status string, page, limit int) ([]model.Exam, int64, error) {
	var exams []model.Exam
	var total int64

	query := withStatus(r.DB.WithContext(ctx).Model(&model.Exam{}), status)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	err := query.Order("`order` ASC, name ASC").Offset(offset).Limit(limit).Find(&exams).Error
	return exams, total, err
}

func (r *TaxonomyRepository) ListChapters(ctx context.Context, unitID, status string) ([]model.Chapter, error) {
	var chapters []model.Chapter
	err := withStatus(r.DB.WithContext(ctx).Where("unit_id = ?", unitID), status).
		Order("`order` ASC").
		Find(&chapters).Error
	return chapters, err
}

// ExamTree 组装 考试→学科→单元→章节 的嵌套树
func (r *TaxonomyRepository) ExamTree(ctx context.Context, examID, status string) (*model.HierarchyNode, error) {
	db := r.DB.WithContext(ctx)

	var exam model.Exam
	err := withStatus(db.Where("id = ?", examID), status).First(&exam).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var subjects []model.Subject
	if err := withStatus(db.Where("exam_id = ?", examID), status).Order("`order` ASC").Find(&subjects).Error; err != nil {
		return nil, err
	}
	subjectIDs := make([]string, 0, len(subjects))
	for _, s := range subjects {
		subjectIDs = append(subjectIDs, s.ID)
	}

	var units []model.Unit
	if len(subjectIDs) > 0 {
		if err := withStatus(db.Where("subject_id IN ?", subjectIDs), status).Order("`order` ASC").Find(&units).Error; err != nil {
			return nil, err
		}
	}
	unitIDs := make([]string, 0, len(units))
	for _, u := range units {
		unitIDs = append(unitIDs, u.ID)
	}

	var chapters []model.Chapter
	if len(unitIDs) > 0 {
		if err := withStatus(db.Where("unit_id IN ?", unitIDs), status).Order("`order` ASC").Find(&chapters).Error; err != nil {
			return nil, err
		}
	}

	chaptersByUnit := make(map[string][]model.HierarchyNode)
	for _, c := range chapters {
		chaptersByUnit[c.UnitID] = append(chaptersByUnit[c.UnitID], node(c.TaxonomyNode, "chapter", nil))
	}
	unitsBySubject := make(map[string][]model.HierarchyNode)
	for _, u := range units {
		unitsBySubject[u.SubjectID] = append(unitsBySubject[u.SubjectID], node(u.TaxonomyNode, "unit", chaptersByUnit[u.ID]))
	}
	subjectNodes := make([]model.HierarchyNode, 0, len(subjects))
	for _, s := range subjects {
		subjectNodes = append(subjectNodes, node(s.TaxonomyNode, "subject", unitsBySubject[s.ID]))
	}

	root := node(exam.TaxonomyNode, "exam", subjectNodes)
	return &root, nil
}

func node(n model.TaxonomyNode, kind string, children []model.HierarchyNode) model.HierarchyNode {
	return model.HierarchyNode{
		ID:       n.ID,
		Name:     n.Name,
		Type:     kind,
		Order:    n.Order,
		Status:   n.Status,
		Children: children,
	}
}

// SetStatus 管理端启用/停用内容
func (r *TaxonomyRepository) SetStatus(ctx context.Context, resource model.TaxonomyResource, id string, status model.ContentStatus) error {
	db := r.DB.WithContext(ctx).Table(string(resource))

	// MySQL 默认返回实际变更行数，状态未变时为 0，因此先确认记录存在
	var count int64
	if err := db.Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return util.ErrNotFound
	}
	return r.DB.WithContext(ctx).Table(string(resource)).Where("id = ?", id).Update("status", status).Error
}
