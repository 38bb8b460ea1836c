package controller

import (
	"exam_prep_backend/internal/service"
	"exam_prep_backend/internal/util"
	"exam_prep_backend/pkg/logger"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const streamHeartbeat = 25 * time.Second

type ProgressController struct {
	ProgressService *service.ProgressService
}

func NewProgressController(progressService *service.ProgressService) *ProgressController {
	return &ProgressController{ProgressService: progressService}
}

// @Summary 获取进度
// @Description 获取当前学生的单元进度，传 unitId 时只返回该单元
// @Tags 进度
// @Produce json
// @Security BearerAuth
// @Param unitId query string false "单元ID"
// @Success 200 {object} util.Response{data=[]model.UnitSnapshot}
// @Router /api/progress [get]
func (c *ProgressController) GetProgress(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	list, err := c.ProgressService.List(ctx.Request.Context(), user.UserID, ctx.Query("unitId"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

// @Summary 更新章节进度
// @Description 合并单个章节的进度（访问记录取并集），返回整个单元
// @Tags 进度
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.ChapterUpdateRequest true "章节进度"
// @Success 200 {object} util.Response{data=model.UnitSnapshot}
// @Router /api/progress [post]
func (c *ProgressController) UpdateChapter(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.ChapterUpdateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	snap, err := c.ProgressService.ApplyChapterUpdate(ctx.Request.Context(), user.UserID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, snap)
}

// @Summary 替换单元进度
// @Description 用请求中的章节集合整体替换单元进度
// @Tags 进度
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.BulkReplaceRequest true "单元进度"
// @Success 200 {object} util.Response{data=model.UnitSnapshot}
// @Router /api/progress [put]
func (c *ProgressController) ReplaceUnit(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.BulkReplaceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	snap, err := c.ProgressService.ReplaceUnit(ctx.Request.Context(), user.UserID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, snap)
}

// @Summary 记录访问
// @Description 记录章节/主题/子主题/定义的访问并重新计算自动进度
// @Tags 进度
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.TrackVisitRequest true "访问内容"
// @Success 200 {object} util.Response{data=service.ChapterProgressResponse}
// @Router /api/progress/track-visit [post]
func (c *ProgressController) TrackVisit(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.TrackVisitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	resp, err := c.ProgressService.RecordVisit(ctx.Request.Context(), user.UserID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, resp)
}

// @Summary 重新计算章节进度
// @Tags 进度
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.CalculateRequest true "章节"
// @Success 200 {object} util.Response{data=service.ChapterProgressResponse}
// @Router /api/progress/calculate [post]
func (c *ProgressController) Calculate(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.CalculateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	resp, err := c.ProgressService.Recalculate(ctx.Request.Context(), user.UserID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, resp)
}

// @Summary 标记庆祝已展示
// @Description type 为 chapter / unit / subject
// @Tags 进度
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.MarkCongratulationsRequest true "标记目标"
// @Success 200 {object} util.Response
// @Router /api/progress/mark-congratulations [post]
func (c *ProgressController) MarkCongratulations(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.MarkCongratulationsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if err := c.ProgressService.MarkCongratulations(ctx.Request.Context(), user.UserID, req); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// @Summary 获取学科进度
// @Tags 进度
// @Produce json
// @Security BearerAuth
// @Param subjectId path string true "学科ID"
// @Success 200 {object} util.Response{data=model.SubjectProgress}
// @Router /api/progress/subjects/{subjectId} [get]
func (c *ProgressController) GetSubject(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	sp, err := c.ProgressService.GetSubject(ctx.Request.Context(), user.UserID, ctx.Param("subjectId"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, sp)
}

// @Summary 订阅单元进度
// @Description SSE 推送当前学生指定单元的进度变化，浏览器可通过 ?token= 传令牌
// @Tags 进度
// @Produce text/event-stream
// @Security BearerAuth
// @Param unitId query string true "单元ID"
// @Router /api/progress/stream [get]
func (c *ProgressController) Stream(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	unitID := ctx.Query("unitId")
	if unitID == "" {
		util.BadRequest(ctx, "unitId is required")
		return
	}

	streamID := uuid.NewString()
	events := make(chan service.ProgressEvent, 16)
	cancel := c.ProgressService.Subscribe(user.UserID, unitID, func(ev service.ProgressEvent) {
		select {
		case events <- ev:
		default:
			logger.Log.Warn("progress stream full, event dropped",
				zap.String("stream", streamID),
				zap.String("unitId", unitID),
			)
		}
	})
	defer cancel()

	// 设置SSE响应头
	ctx.Header("Content-Type", "text/event-stream")
	ctx.Header("Cache-Control", "no-cache")
	ctx.Header("Connection", "keep-alive")

	ctx.SSEvent("ready", gin.H{"stream": streamID, "unitId": unitID})
	ctx.Writer.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Request.Context().Done():
			return
		case ev := <-events:
			ctx.SSEvent("progress", ev)
			ctx.Writer.Flush()
		case <-heartbeat.C:
			ctx.SSEvent("ping", time.Now().Unix())
			ctx.Writer.Flush()
		}
	}
}
