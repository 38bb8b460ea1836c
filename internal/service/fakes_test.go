package service

import (
	"context"
	"errors"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/util"
	"fmt"
	"sync"
)

// fakeTaxonomy 内存层级数据：chapter -> topics -> subtopics -> definitions
type fakeTaxonomy struct {
	topics       map[string][]string // chapterID -> topicIDs
	subtopics    map[string][]string // topicID -> subtopicIDs
	definitions  map[string]int      // subtopicID -> count
	chapters     map[string][]string // unitID -> chapterIDs
	units        map[string][]string // subjectID -> unitIDs
	unitSubject  map[string]string   // unitID -> subjectID
	failTopics   bool
	failChapters bool
	topicLookups int
}

func newFakeTaxonomy() *fakeTaxonomy {
	return &fakeTaxonomy{
		topics:      map[string][]string{},
		subtopics:   map[string][]string{},
		definitions: map[string]int{},
		chapters:    map[string][]string{},
		units:       map[string][]string{},
		unitSubject: map[string]string{},
	}
}

// withChapter 注册一个章节：topics 个主题，subtopics 个子主题（挂在第一个主题下），definitions 个定义
func (f *fakeTaxonomy) withChapter(unitID, chapterID string, topics, subtopics, definitions int) *fakeTaxonomy {
	f.chapters[unitID] = append(f.chapters[unitID], chapterID)
	for i := 0; i < topics; i++ {
		f.topics[chapterID] = append(f.topics[chapterID], fmt.Sprintf("%s-t%d", chapterID, i+1))
	}
	if topics > 0 {
		first := f.topics[chapterID][0]
		for i := 0; i < subtopics; i++ {
			f.subtopics[first] = append(f.subtopics[first], fmt.Sprintf("%s-s%d", chapterID, i+1))
		}
		if subtopics > 0 {
			f.definitions[f.subtopics[first][0]] = definitions
		}
	}
	return f
}

func (f *fakeTaxonomy) ActiveTopicIDs(_ context.Context, chapterID string) ([]string, error) {
	f.topicLookups++
	if f.failTopics {
		return nil, errors.New("taxonomy unavailable")
	}
	return f.topics[chapterID], nil
}

func (f *fakeTaxonomy) ActiveSubtopicIDs(_ context.Context, topicIDs []string) ([]string, error) {
	var out []string
	for _, id := range topicIDs {
		out = append(out, f.subtopics[id]...)
	}
	return out, nil
}

func (f *fakeTaxonomy) CountActiveDefinitions(_ context.Context, subtopicIDs []string) (int64, error) {
	var n int64
	for _, id := range subtopicIDs {
		n += int64(f.definitions[id])
	}
	return n, nil
}

func (f *fakeTaxonomy) ActiveChapterIDs(_ context.Context, unitID string) ([]string, error) {
	if f.failChapters {
		return nil, errors.New("taxonomy unavailable")
	}
	return f.chapters[unitID], nil
}

func (f *fakeTaxonomy) ActiveUnitIDs(_ context.Context, subjectID string) ([]string, error) {
	return f.units[subjectID], nil
}

func (f *fakeTaxonomy) GetUnit(_ context.Context, unitID string) (*model.Unit, error) {
	u := &model.Unit{SubjectID: f.unitSubject[unitID]}
	u.ID = unitID
	return u, nil
}

// fakeStore 内存进度存储
type fakeStore struct {
	mu       sync.Mutex
	nextID   uint
	docs     map[string]*model.UnitProgress
	subjects map[string]*model.SubjectProgress
	saves    int
	marks    []model.CelebrationKind
	failSave bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:     map[string]*model.UnitProgress{},
		subjects: map[string]*model.SubjectProgress{},
	}
}

func cloneDoc(d *model.UnitProgress) *model.UnitProgress {
	out := *d
	out.SetChapterMap(d.ChapterMap())
	return &out
}

func (s *fakeStore) Get(_ context.Context, studentID uint, unitID string) (*model.UnitProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[docKey(studentID, unitID)]
	if !ok {
		return nil, util.ErrProgressNotFound
	}
	return cloneDoc(d), nil
}

func (s *fakeStore) GetOrNew(ctx context.Context, studentID uint, unitID string) (*model.UnitProgress, error) {
	d, err := s.Get(ctx, studentID, unitID)
	if errors.Is(err, util.ErrNotFound) {
		return model.NewUnitProgress(studentID, unitID), nil
	}
	return d, err
}

func (s *fakeStore) ListByStudent(_ context.Context, studentID uint, unitID string) ([]model.UnitProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.UnitProgress
	for _, d := range s.docs {
		if d.StudentID == studentID && (unitID == "" || d.UnitID == unitID) {
			out = append(out, *cloneDoc(d))
		}
	}
	return out, nil
}

func (s *fakeStore) UnitScores(_ context.Context, studentID uint, unitIDs []string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]int{}
	for _, id := range unitIDs {
		if d, ok := s.docs[docKey(studentID, id)]; ok {
			out[id] = d.UnitProgress
		}
	}
	return out, nil
}

func (s *fakeStore) Save(_ context.Context, doc *model.UnitProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave {
		return util.StoreErr("save progress", errors.New("disk full"))
	}
	if doc.ID == 0 {
		s.nextID++
		doc.ID = s.nextID
	}
	s.saves++
	s.docs[docKey(doc.StudentID, doc.UnitID)] = cloneDoc(doc)
	return nil
}

func (s *fakeStore) MarkCelebrationShown(ctx context.Context, kind model.CelebrationKind, target model.CelebrationTarget) error {
	switch kind {
	case model.CelebrationChapter:
		doc, err := s.Get(ctx, target.StudentID, target.UnitID)
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
		s.mu.Lock()
		s.marks = append(s.marks, kind)
		s.mu.Unlock()
		return s.Save(ctx, doc)
	case model.CelebrationUnit:
		doc, err := s.GetOrNew(ctx, target.StudentID, target.UnitID)
		if err != nil {
			return err
		}
		doc.UnitCongratulationsShown = true
		s.mu.Lock()
		s.marks = append(s.marks, kind)
		s.mu.Unlock()
		return s.Save(ctx, doc)
	case model.CelebrationSubject:
		s.mu.Lock()
		defer s.mu.Unlock()
		s.marks = append(s.marks, kind)
		s.subjectLocked(target.StudentID, target.SubjectID).SubjectCongratulationsShown = true
		return nil
	}
	return util.ErrValidation
}

func (s *fakeStore) GetSubjectOrNew(_ context.Context, studentID uint, subjectID string) (*model.SubjectProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sp, ok := s.subjects[docKey(studentID, subjectID)]; ok {
		out := *sp
		return &out, nil
	}
	return &model.SubjectProgress{StudentID: studentID, SubjectID: subjectID}, nil
}

func (s *fakeStore) SaveSubjectProgress(_ context.Context, studentID uint, subjectID string, value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjectLocked(studentID, subjectID).SubjectProgress = value
	return nil
}

func (s *fakeStore) subjectLocked(studentID uint, subjectID string) *model.SubjectProgress {
	key := docKey(studentID, subjectID)
	sp, ok := s.subjects[key]
	if !ok {
		s.nextID++
		sp = &model.SubjectProgress{StudentID: studentID, SubjectID: subjectID}
		sp.ID = s.nextID
		s.subjects[key] = sp
	}
	return sp
}

func (s *fakeStore) doc(studentID uint, unitID string) *model.UnitProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[docKey(studentID, unitID)]
	if !ok {
		return nil
	}
	return cloneDoc(d)
}

func newTestService(tax *fakeTaxonomy, store *fakeStore) *ProgressService {
	agg := NewAggregator(tax, store, nil)
	return NewProgressService(store, NewProgressCalculator(NewItemCounter(tax)), agg)
}
