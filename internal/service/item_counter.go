package service

import (
	"context"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/pkg/logger"

	"go.uber.org/zap"
)

// ItemCounter 统计章节下启用状态的主题/子主题/定义数量
type ItemCounter struct {
	taxonomy TaxonomyReader
}

func NewItemCounter(taxonomy TaxonomyReader) *ItemCounter {
	return &ItemCounter{taxonomy: taxonomy}
}

// Count 查询失败时返回全零且 ok=false，由调用方决定降级方式而不是让请求失败
func (c *ItemCounter) Count(ctx context.Context, chapterID string) (model.ItemCounts, bool) {
	topicIDs, err := c.taxonomy.ActiveTopicIDs(ctx, chapterID)
	if err != nil {
		c.warn(chapterID, "topics", err)
		return model.ItemCounts{}, false
	}

	subtopicIDs, err := c.taxonomy.ActiveSubtopicIDs(ctx, topicIDs)
	if err != nil {
		c.warn(chapterID, "subtopics", err)
		return model.ItemCounts{}, false
	}

	definitions, err := c.taxonomy.CountActiveDefinitions(ctx, subtopicIDs)
	if err != nil {
		c.warn(chapterID, "definitions", err)
		return model.ItemCounts{}, false
	}

	counts := model.ItemCounts{
		Topics:      len(topicIDs),
		Subtopics:   len(subtopicIDs),
		Definitions: int(definitions),
	}
	counts.Total = counts.Topics + counts.Subtopics + counts.Definitions
	return counts, true
}

func (c *ItemCounter) warn(chapterID, step string, err error) {
	logger.Log.Warn("item count failed, falling back to zero",
		zap.String("chapterId", chapterID),
		zap.String("step", step),
		zap.Error(err),
	)
}
