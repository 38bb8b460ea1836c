package model

import (
	"gorm.io/datatypes"
)

type ItemType string

const (
	ItemChapter    ItemType = "chapter"
	ItemTopic      ItemType = "topic"
	ItemSubtopic   ItemType = "subtopic"
	ItemDefinition ItemType = "definition"
)

func (t ItemType) Valid() bool {
	switch t {
	case ItemChapter, ItemTopic, ItemSubtopic, ItemDefinition:
		return true
	}
	return false
}

type CelebrationKind string

const (
	CelebrationChapter CelebrationKind = "chapter"
	CelebrationUnit    CelebrationKind = "unit"
	CelebrationSubject CelebrationKind = "subject"
)

// VisitedItems 已访问内容集合，只增不减
type VisitedItems struct {
	Chapter     bool     `json:"chapter"`
	Topics      []string `json:"topics"`
	Subtopics   []string `json:"subtopics"`
	Definitions []string `json:"definitions"`
}

// Add 记录一次访问，返回集合是否发生变化
func (v *VisitedItems) Add(itemType ItemType, itemID string) bool {
	switch itemType {
	case ItemChapter:
		if v.Chapter {
			return false
		}
		v.Chapter = true
		return true
	case ItemTopic:
		return addUnique(&v.Topics, itemID)
	case ItemSubtopic:
		return addUnique(&v.Subtopics, itemID)
	case ItemDefinition:
		return addUnique(&v.Definitions, itemID)
	}
	return false
}

// Merge 合并另一份集合（并集）
func (v *VisitedItems) Merge(other VisitedItems) {
	if other.Chapter {
		v.Chapter = true
	}
	for _, id := range other.Topics {
		addUnique(&v.Topics, id)
	}
	for _, id := range other.Subtopics {
		addUnique(&v.Subtopics, id)
	}
	for _, id := range other.Definitions {
		addUnique(&v.Definitions, id)
	}
}

// ItemCount 不含章节本身的已访问数量
func (v VisitedItems) ItemCount() int {
	return len(v.Topics) + len(v.Subtopics) + len(v.Definitions)
}

func (v VisitedItems) Clone() VisitedItems {
	return VisitedItems{
		Chapter:     v.Chapter,
		Topics:      append([]string(nil), v.Topics...),
		Subtopics:   append([]string(nil), v.Subtopics...),
		Definitions: append([]string(nil), v.Definitions...),
	}
}

func addUnique(set *[]string, id string) bool {
	for _, existing := range *set {
		if existing == id {
			return false
		}
	}
	*set = append(*set, id)
	return true
}

// ChapterProgress 单个章节的进度记录
// swagger:model ChapterProgress
type ChapterProgress struct {
	Progress               int          `json:"progress"`
	IsCompleted            bool         `json:"isCompleted"`
	IsManualOverride       bool         `json:"isManualOverride"`
	ManualProgress         *int         `json:"manualProgress,omitempty"`
	AutoCalculatedProgress int          `json:"autoCalculatedProgress"`
	VisitedItems           VisitedItems `json:"visitedItems"`
	CongratulationsShown   bool         `json:"congratulationsShown"`
}

func NewChapterProgress() ChapterProgress {
	return ChapterProgress{
		VisitedItems: VisitedItems{
			Topics:      []string{},
			Subtopics:   []string{},
			Definitions: []string{},
		},
	}
}

// ApplyAuto 记录自动计算值；手动覆盖时保持手动值不变
func (c *ChapterProgress) ApplyAuto(auto int) {
	c.AutoCalculatedProgress = ClampPercent(auto)
	if !c.IsManualOverride {
		c.Progress = c.AutoCalculatedProgress
		c.IsCompleted = c.Progress == 100
	}
}

// SetManual 用户通过滑块/完成/重置设置进度。force 表示始终视为手动覆盖
func (c *ChapterProgress) SetManual(value int, force bool) {
	value = ClampPercent(value)
	if force || value != c.AutoCalculatedProgress {
		c.IsManualOverride = true
		v := value
		c.ManualProgress = &v
	} else {
		c.IsManualOverride = false
		c.ManualProgress = nil
	}
	c.Progress = value
	c.IsCompleted = value == 100
}

// Normalize 修正外部传入记录，使其满足不变式
func (c *ChapterProgress) Normalize() {
	c.AutoCalculatedProgress = ClampPercent(c.AutoCalculatedProgress)
	if c.IsManualOverride {
		if c.ManualProgress == nil {
			v := ClampPercent(c.Progress)
			c.ManualProgress = &v
		}
		v := ClampPercent(*c.ManualProgress)
		c.ManualProgress = &v
		c.Progress = v
	} else {
		c.ManualProgress = nil
		c.Progress = c.AutoCalculatedProgress
	}
	c.IsCompleted = c.Progress == 100
	if c.VisitedItems.Topics == nil {
		c.VisitedItems.Topics = []string{}
	}
	if c.VisitedItems.Subtopics == nil {
		c.VisitedItems.Subtopics = []string{}
	}
	if c.VisitedItems.Definitions == nil {
		c.VisitedItems.Definitions = []string{}
	}
}

func (c ChapterProgress) Clone() ChapterProgress {
	out := c
	if c.ManualProgress != nil {
		v := *c.ManualProgress
		out.ManualProgress = &v
	}
	out.VisitedItems = c.VisitedItems.Clone()
	return out
}

type ChapterProgressMap map[string]ChapterProgress

func (m ChapterProgressMap) Clone() ChapterProgressMap {
	out := make(ChapterProgressMap, len(m))
	for id, cp := range m {
		out[id] = cp.Clone()
	}
	return out
}

// UnitProgress 每个学生每个单元一份进度文档
// swagger:model UnitProgress
type UnitProgress struct {
	BaseModel
	StudentID                uint                                   `gorm:"uniqueIndex:idx_student_unit;not null" json:"studentId"`
	UnitID                   string                                 `gorm:"uniqueIndex:idx_student_unit;type:varchar(36);not null" json:"unitId"`
	Chapters                 datatypes.JSONType[ChapterProgressMap] `gorm:"column:progress" json:"progress"`
	UnitProgress             int                                    `gorm:"default:0" json:"unitProgress"`
	UnitCongratulationsShown bool                                   `gorm:"default:false" json:"unitCongratulationsShown"`
}

func (UnitProgress) TableName() string {
	return "unit_progress"
}

func NewUnitProgress(studentID uint, unitID string) *UnitProgress {
	return &UnitProgress{
		StudentID: studentID,
		UnitID:    unitID,
		Chapters:  datatypes.NewJSONType(ChapterProgressMap{}),
	}
}

// ChapterMap 返回可修改的章节映射副本
func (u *UnitProgress) ChapterMap() ChapterProgressMap {
	m := u.Chapters.Data()
	if m == nil {
		return ChapterProgressMap{}
	}
	return m.Clone()
}

func (u *UnitProgress) SetChapterMap(m ChapterProgressMap) {
	u.Chapters = datatypes.NewJSONType(m)
}

// SubjectProgress 学科级进度与庆祝标记
// swagger:model SubjectProgress
type SubjectProgress struct {
	BaseModel
	StudentID                   uint   `gorm:"uniqueIndex:idx_student_subject;not null" json:"studentId"`
	SubjectID                   string `gorm:"uniqueIndex:idx_student_subject;type:varchar(36);not null" json:"subjectId"`
	SubjectProgress             int    `gorm:"default:0" json:"subjectProgress"`
	SubjectCongratulationsShown bool   `gorm:"default:false" json:"subjectCongratulationsShown"`
}

func (SubjectProgress) TableName() string {
	return "subject_progress"
}

// UnitSnapshot 设备端缓存与接口返回共用的形状
type UnitSnapshot struct {
	UnitID                   string             `json:"unitId,omitempty"`
	Progress                 ChapterProgressMap `json:"progress"`
	UnitProgress             int                `json:"unitProgress"`
	UnitCongratulationsShown bool               `json:"unitCongratulationsShown"`
}

func (u *UnitProgress) Snapshot() UnitSnapshot {
	return UnitSnapshot{
		UnitID:                   u.UnitID,
		Progress:                 u.ChapterMap(),
		UnitProgress:             u.UnitProgress,
		UnitCongratulationsShown: u.UnitCongratulationsShown,
	}
}

func ClampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// CelebrationTarget 标记庆祝已展示时的定位信息
type CelebrationTarget struct {
	StudentID uint
	UnitID    string
	ChapterID string
	SubjectID string
}
