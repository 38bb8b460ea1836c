// @title ExamPrep 进度服务 API
// @version 1.0
// @description 考试备考平台的学习进度跟踪与题库目录服务。
// @termsOfService http://swagger.io/terms/

// @contact.name API支持
// @contact.url http://www.swagger.io/support
// @contact.email support@swagger.io

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /api

package main

import (
	"context"
	"exam_prep_backend/internal/app"
	"exam_prep_backend/internal/config"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/util"
	"exam_prep_backend/pkg/logger"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
)

// issueToken 解析 "用户ID:角色" 并签发令牌，供本地调试与 progressctl 使用
func issueToken(cfg *config.Config, spec string) (string, error) {
	idPart, rolePart, ok := strings.Cut(spec, ":")
	if !ok {
		rolePart = string(model.Student)
	}
	id, err := strconv.ParseUint(idPart, 10, 32)
	if err != nil || id == 0 {
		return "", fmt.Errorf("invalid user id %q", idPart)
	}
	role := model.UserRole(rolePart)
	switch role {
	case model.Student, model.Teacher, model.Admin:
	default:
		return "", fmt.Errorf("invalid role %q", rolePart)
	}
	return util.GenerateJWT(uint(id), role, cfg.JWT.Secret, cfg.JWT.ExpireTime)
}

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization
func main() {
	// 命令行参数
	migrateOnly := flag.Bool("migrate-only", false, "只执行数据库迁移，完成后退出")
	migrate := flag.Bool("migrate", false, "启动时强制执行数据库迁移（即使是 release 模式）")
	tokenFor := flag.String("issue-token", "", "签发调试令牌后退出，格式 用户ID[:角色]")
	flag.Parse()

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *tokenFor != "" {
		token, err := issueToken(cfg, *tokenFor)
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	// 设置迁移标志
	cfg.ForceMigrate = *migrate || *migrateOnly
	cfg.MigrateOnly = *migrateOnly

	application := app.NewApp(cfg)
	defer logger.Log.Sync()

	// 迁移完成后直接退出
	if *migrateOnly {
		application.Close(context.Background())
		log.Println("数据库迁移完成，退出程序")
		return
	}

	application.Run()
}
