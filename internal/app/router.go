package app

import (
	"exam_prep_backend/docs"
	"exam_prep_backend/internal/config"
	"exam_prep_backend/internal/middleware"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
	}

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		a.registerProgressRoutes(authGroup, c)
		a.registerTaxonomyRoutes(authGroup, c)
	}

	// 3. 管理员相关接口
	a.registerAdminRoutes(router, c, cfg)
}

func (a *App) registerProgressRoutes(group *gin.RouterGroup, c *controllers) {
	progress := group.Group("/progress")
	{
		progress.GET("", c.progress.GetProgress)
		progress.POST("", c.progress.UpdateChapter)
		progress.PUT("", c.progress.ReplaceUnit)
		progress.POST("/track-visit", c.progress.TrackVisit)
		progress.POST("/calculate", c.progress.Calculate)
		progress.POST("/mark-congratulations", c.progress.MarkCongratulations)
		progress.GET("/subjects/:subjectId", c.progress.GetSubject)
		progress.GET("/stream", c.progress.Stream)
		progress.GET("/ws", c.progress.Socket)
	}
}

func (a *App) registerTaxonomyRoutes(group *gin.RouterGroup, c *controllers) {
	group.GET("/exams", c.taxonomy.ListExams)
	group.GET("/exams/:id/tree", c.taxonomy.ExamTree)
	group.GET("/units/:id/chapters", c.taxonomy.UnitChapters)
}

func (a *App) registerAdminRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(cfg), middleware.RoleMiddleware(model.Admin))
	{
		admin.PATCH("/taxonomy/:resource/:id/status", c.taxonomy.SetStatus)
	}
}
