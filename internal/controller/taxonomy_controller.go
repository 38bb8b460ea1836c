package controller

import (
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/service"
	"exam_prep_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

type TaxonomyController struct {
	TaxonomyService *service.TaxonomyService
}

func NewTaxonomyController(taxonomyService *service.TaxonomyService) *TaxonomyController {
	return &TaxonomyController{TaxonomyService: taxonomyService}
}

type StatusRequest struct {
	Status model.ContentStatus `json:"status" binding:"required"`
}

// statusParam status=all 仅教师与管理员可用
func statusParam(ctx *gin.Context) (string, bool) {
	status := ctx.DefaultQuery("status", util.StatusActive)
	if status == util.StatusAll {
		user := util.GetUserFromContext(ctx)
		if user == nil || !user.Role.IsStaff() {
			util.Forbidden(ctx)
			return "", false
		}
	}
	return status, true
}

// @Summary 考试列表
// @Tags 层级
// @Produce json
// @Security BearerAuth
// @Param status query string false "active 或 all" default(active)
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(20)
// @Success 200 {object} util.Response{data=service.ExamPage}
// @Router /api/exams [get]
func (c *TaxonomyController) ListExams(ctx *gin.Context) {
	status, ok := statusParam(ctx)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", strconv.Itoa(util.DefaultPage)))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", strconv.Itoa(util.DefaultLimit)))

	result, err := c.TaxonomyService.ListExams(ctx.Request.Context(), status, page, limit)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 考试层级树
// @Description 考试→学科→单元→章节
// @Tags 层级
// @Produce json
// @Security BearerAuth
// @Param id path string true "考试ID"
// @Param status query string false "active 或 all" default(active)
// @Success 200 {object} util.Response{data=model.HierarchyNode}
// @Router /api/exams/{id}/tree [get]
func (c *TaxonomyController) ExamTree(ctx *gin.Context) {
	status, ok := statusParam(ctx)
	if !ok {
		return
	}

	tree, err := c.TaxonomyService.ExamTree(ctx.Request.Context(), ctx.Param("id"), status)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, tree)
}

// @Summary 单元章节列表
// @Tags 层级
// @Produce json
// @Security BearerAuth
// @Param id path string true "单元ID"
// @Param status query string false "active 或 all" default(active)
// @Success 200 {object} util.Response{data=[]model.Chapter}
// @Router /api/units/{id}/chapters [get]
func (c *TaxonomyController) UnitChapters(ctx *gin.Context) {
	status, ok := statusParam(ctx)
	if !ok {
		return
	}

	chapters, err := c.TaxonomyService.UnitChapters(ctx.Request.Context(), ctx.Param("id"), status)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, chapters)
}

// @Summary 切换层级数据状态
// @Description 管理员启用/停用考试、学科、单元、章节、主题、子主题或定义，并清除相关缓存
// @Tags 管理员
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param resource path string true "exams/subjects/units/chapters/topics/subtopics/definitions"
// @Param id path string true "ID"
// @Param request body StatusRequest true "目标状态"
// @Success 200 {object} util.Response
// @Router /api/admin/taxonomy/{resource}/{id}/status [patch]
func (c *TaxonomyController) SetStatus(ctx *gin.Context) {
	var req StatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	resource := model.TaxonomyResource(ctx.Param("resource"))
	id := ctx.Param("id")
	if err := c.TaxonomyService.SetStatus(ctx.Request.Context(), resource, id, req.Status); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"resource": resource, "id": id, "status": req.Status})
}
