package service

import (
	"context"
	"exam_prep_backend/internal/model"
	"math"
)

// CalculateAutoProgress round(100*visited/total)，total 为 0 时返回 0
func CalculateAutoProgress(visited, total int) int {
	if total <= 0 || visited <= 0 {
		return 0
	}
	return model.ClampPercent(int(math.Round(100 * float64(visited) / float64(total))))
}

// CountVisited includeChapter 为 true 时章节本身计为一个条目
func CountVisited(v model.VisitedItems, includeChapter bool) int {
	n := v.ItemCount()
	if includeChapter && v.Chapter {
		n++
	}
	return n
}

type ProgressCalculator struct {
	counter *ItemCounter
}

func NewProgressCalculator(counter *ItemCounter) *ProgressCalculator {
	return &ProgressCalculator{counter: counter}
}

// Recompute 根据已访问集合重新计算自动进度并写回章节记录。
// 访问记录流程 includeChapter=true；手动重算流程为 false。
// 条目统计失败时保留上一次的自动进度（新章节为 0），章节本身不单独计入分母
func (p *ProgressCalculator) Recompute(ctx context.Context, chapterID string, cp *model.ChapterProgress, includeChapter bool) int {
	counts, ok := p.counter.Count(ctx, chapterID)
	if !ok {
		auto := cp.AutoCalculatedProgress
		cp.ApplyAuto(auto)
		return auto
	}
	total := counts.Total
	if includeChapter {
		total++
	}
	auto := CalculateAutoProgress(CountVisited(cp.VisitedItems, includeChapter), total)
	cp.ApplyAuto(auto)
	return auto
}
