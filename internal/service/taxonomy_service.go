package service

import (
	"context"
	"errors"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/util"
	"fmt"
)

// 缓存资源名称
const (
	cacheExams    = "exams"
	cacheTree     = "tree"
	cacheChapters = "chapters"
)

type ExamPage struct {
	List  []model.Exam `json:"list"`
	Total int64        `json:"total"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
}

// TaxonomyService 层级数据只读查询，仅缓存 active 查询；all 查询总是读库
type TaxonomyService struct {
	repo  TaxonomyQueries
	cache *QueryCache
}

func NewTaxonomyService(repo TaxonomyQueries, cache *QueryCache) *TaxonomyService {
	return &TaxonomyService{repo: repo, cache: cache}
}

func normalizeStatus(status string) (string, error) {
	switch status {
	case "", util.StatusActive:
		return util.StatusActive, nil
	case util.StatusAll:
		return util.StatusAll, nil
	}
	return "", util.Validationf("status must be active or all")
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = util.DefaultPage
	}
	if limit < 1 {
		limit = util.DefaultLimit
	}
	if limit > util.MaxLimit {
		limit = util.MaxLimit
	}
	return page, limit
}

func (s *TaxonomyService) ListExams(ctx context.Context, status string, page, limit int) (*ExamPage, error) {
	status, err := normalizeStatus(status)
	if err != nil {
		return nil, err
	}
	page, limit = normalizePage(page, limit)
	sig := Signature("exams:"+status, page, limit)

	if status == util.StatusActive {
		if v, ok := s.cache.Get(cacheExams, sig); ok {
			return v.(*ExamPage), nil
		}
	}

	exams, total, err := s.repo.ListExams(ctx, status, page, limit)
	if err != nil {
		return nil, util.StoreErr("list exams", err)
	}
	result := &ExamPage{List: exams, Total: total, Page: page, Limit: limit}

	if status == util.StatusActive {
		s.cache.Set(cacheExams, sig, result)
	}
	return result, nil
}

func (s *TaxonomyService) ExamTree(ctx context.Context, examID, status string) (*model.HierarchyNode, error) {
	if examID == "" {
		return nil, util.Validationf("exam id is required")
	}
	status, err := normalizeStatus(status)
	if err != nil {
		return nil, err
	}
	sig := Signature("tree:"+examID+":"+status, 0, 0)

	if status == util.StatusActive {
		if v, ok := s.cache.Get(cacheTree, sig); ok {
			return v.(*model.HierarchyNode), nil
		}
	}

	tree, err := s.repo.ExamTree(ctx, examID, status)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			return nil, err
		}
		return nil, util.StoreErr("exam tree", err)
	}
	if status == util.StatusActive {
		s.cache.Set(cacheTree, sig, tree)
	}
	return tree, nil
}

func (s *TaxonomyService) UnitChapters(ctx context.Context, unitID, status string) ([]model.Chapter, error) {
	if unitID == "" {
		return nil, util.Validationf("unit id is required")
	}
	status, err := normalizeStatus(status)
	if err != nil {
		return nil, err
	}
	sig := Signature("chapters:"+unitID+":"+status, 0, 0)

	if status == util.StatusActive {
		if v, ok := s.cache.Get(cacheChapters, sig); ok {
			return v.([]model.Chapter), nil
		}
	}

	chapters, err := s.repo.ListChapters(ctx, unitID, status)
	if err != nil {
		return nil, util.StoreErr("list chapters", err)
	}
	if status == util.StatusActive {
		s.cache.Set(cacheChapters, sig, chapters)
	}
	return chapters, nil
}

// SetStatus 管理端切换状态后清空受影响资源的缓存
func (s *TaxonomyService) SetStatus(ctx context.Context, resource model.TaxonomyResource, id string, status model.ContentStatus) error {
	if !resource.Valid() {
		return util.Validationf("unknown resource %q", resource)
	}
	if status != model.StatusActive && status != model.StatusInactive {
		return util.Validationf("status must be active or inactive")
	}
	if id == "" {
		return util.Validationf("id is required")
	}

	if err := s.repo.SetStatus(ctx, resource, id, status); err != nil {
		if errors.Is(err, util.ErrNotFound) {
			return fmt.Errorf("%w: %s %s", util.ErrNotFound, resource, id)
		}
		return util.StoreErr("set status", err)
	}

	for _, r := range invalidatedBy(resource) {
		s.cache.InvalidateResource(ctx, r)
	}
	return nil
}

func invalidatedBy(resource model.TaxonomyResource) []string {
	switch resource {
	case model.ResourceExam:
		return []string{cacheExams, cacheTree}
	case model.ResourceSubject, model.ResourceUnit:
		return []string{cacheTree}
	case model.ResourceChapter:
		return []string{cacheChapters, cacheTree}
	}
	return nil
}
