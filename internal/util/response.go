package util

import (
	"errors"
	"exam_prep_backend/pkg/logger"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// PageResponse 分页响应结构
type PageResponse struct {
	List  interface{} `json:"list"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

func Unauthorized(c *gin.Context) {
	Error(c, http.StatusUnauthorized, "Unauthorized")
}

func Forbidden(c *gin.Context) {
	Error(c, http.StatusForbidden, "Forbidden")
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func InternalServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal server error")
}

// HandleError 按错误分类映射 HTTP 状态码
func HandleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		BadRequest(c, err.Error())
	case errors.Is(err, ErrNotFound):
		Error(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAuth):
		Unauthorized(c)
	case errors.Is(err, ErrForbidden):
		Forbidden(c)
	case errors.Is(err, ErrTimeout):
		Error(c, http.StatusGatewayTimeout, "Request timed out")
	case errors.Is(err, ErrNetwork):
		Error(c, http.StatusBadGateway, "Upstream unreachable")
	default:
		logger.Log.Error("Internal server error",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		InternalServerError(c)
	}
}

// StatusError 客户端根据响应码还原错误分类
func StatusError(status int, message string) error {
	message = strings.TrimSpace(message)
	var kind error
	switch {
	case status == http.StatusBadRequest:
		kind = ErrValidation
	case status == http.StatusNotFound:
		kind = ErrNotFound
	case status == http.StatusUnauthorized:
		kind = ErrAuth
	case status == http.StatusForbidden:
		kind = ErrForbidden
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		kind = ErrTimeout
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable:
		kind = ErrNetwork
	default:
		kind = ErrStore
	}
	if message == "" {
		return kind
	}
	return fmt.Errorf("%w: %s", kind, message)
}
