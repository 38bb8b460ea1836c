package service

import (
	"context"
	"exam_prep_backend/internal/model"
)

// ProgressStore 进度文档存储，由 repository.ProgressRepository 实现
type ProgressStore interface {
	Get(ctx context.Context, studentID uint, unitID string) (*model.UnitProgress, error)
	GetOrNew(ctx context.Context, studentID uint, unitID string) (*model.UnitProgress, error)
	ListByStudent(ctx context.Context, studentID uint, unitID string) ([]model.UnitProgress, error)
	UnitScores(ctx context.Context, studentID uint, unitIDs []string) (map[string]int, error)
	Save(ctx context.Context, doc *model.UnitProgress) error
	MarkCelebrationShown(ctx context.Context, kind model.CelebrationKind, target model.CelebrationTarget) error
	GetSubjectOrNew(ctx context.Context, studentID uint, subjectID string) (*model.SubjectProgress, error)
	SaveSubjectProgress(ctx context.Context, studentID uint, subjectID string, value int) error
}

// TaxonomyReader 内容层级只读接口，由 repository.TaxonomyRepository 实现
type TaxonomyReader interface {
	ActiveTopicIDs(ctx context.Context, chapterID string) ([]string, error)
	ActiveSubtopicIDs(ctx context.Context, topicIDs []string) ([]string, error)
	CountActiveDefinitions(ctx context.Context, subtopicIDs []string) (int64, error)
	ActiveChapterIDs(ctx context.Context, unitID string) ([]string, error)
	ActiveUnitIDs(ctx context.Context, subjectID string) ([]string, error)
	GetUnit(ctx context.Context, unitID string) (*model.Unit, error)
}

// TaxonomyQueries 带缓存的层级查询所需的读写接口
type TaxonomyQueries interface {
	ListExams(ctx context.Context, status string, page, limit int) ([]model.Exam, int64, error)
	ExamTree(ctx context.Context, examID, status string) (*model.HierarchyNode, error)
	ListChapters(ctx context.Context, unitID, status string) ([]model.Chapter, error)
	SetStatus(ctx context.Context, resource model.TaxonomyResource, id string, status model.ContentStatus) error
}
