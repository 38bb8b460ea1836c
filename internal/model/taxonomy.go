package model

// 内容层级：考试 → 学科 → 单元 → 章节 → 主题 → 子主题 → 定义
// 本服务只读取层级数据，用于统计可访问条目与聚合进度

type ContentStatus string

const (
	StatusActive   ContentStatus = "active"
	StatusInactive ContentStatus = "inactive"
)

type TaxonomyNode struct {
	UUIDBase
	Name   string        `gorm:"size:255;not null" json:"name"`
	Order  int           `gorm:"default:0" json:"order"`
	Status ContentStatus `gorm:"type:varchar(16);default:'active';index" json:"status"`
}

// swagger:model Exam
type Exam struct {
	TaxonomyNode
}

func (Exam) TableName() string { return "exams" }

// swagger:model Subject
type Subject struct {
	TaxonomyNode
	ExamID string `gorm:"type:varchar(36);index" json:"examId"`
}

func (Subject) TableName() string { return "subjects" }

// swagger:model Unit
type Unit struct {
	TaxonomyNode
	SubjectID string `gorm:"type:varchar(36);index" json:"subjectId"`
}

func (Unit) TableName() string { return "units" }

// swagger:model Chapter
type Chapter struct {
	TaxonomyNode
	UnitID string `gorm:"type:varchar(36);index" json:"unitId"`
}

func (Chapter) TableName() string { return "chapters" }

type Topic struct {
	TaxonomyNode
	ChapterID string `gorm:"type:varchar(36);index" json:"chapterId"`
}

func (Topic) TableName() string { return "topics" }

type Subtopic struct {
	TaxonomyNode
	TopicID string `gorm:"type:varchar(36);index" json:"topicId"`
}

func (Subtopic) TableName() string { return "subtopics" }

type Definition struct {
	TaxonomyNode
	SubtopicID string `gorm:"type:varchar(36);index" json:"subtopicId"`
}

func (Definition) TableName() string { return "definitions" }

// TaxonomyResource 可被缓存与状态切换的资源类型
type TaxonomyResource string

const (
	ResourceExam       TaxonomyResource = "exams"
	ResourceSubject    TaxonomyResource = "subjects"
	ResourceUnit       TaxonomyResource = "units"
	ResourceChapter    TaxonomyResource = "chapters"
	ResourceTopic      TaxonomyResource = "topics"
	ResourceSubtopic   TaxonomyResource = "subtopics"
	ResourceDefinition TaxonomyResource = "definitions"
)

func (r TaxonomyResource) Valid() bool {
	switch r {
	case ResourceExam, ResourceSubject, ResourceUnit, ResourceChapter,
		ResourceTopic, ResourceSubtopic, ResourceDefinition:
		return true
	}
	return false
}

// HierarchyNode 接口返回的嵌套层级树
// swagger:model HierarchyNode
type HierarchyNode struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Order    int             `json:"order"`
	Status   ContentStatus   `json:"status"`
	Children []HierarchyNode `json:"children,omitempty"`
}

// ItemCounts 章节下可访问条目数量
type ItemCounts struct {
	Topics      int `json:"topics"`
	Subtopics   int `json:"subtopics"`
	Definitions int `json:"definitions"`
	Total       int `json:"total"`
}
