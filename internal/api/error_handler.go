package api

import (
	"errors"
	"net/http"

	"github.com/IdrisKulubi/HIH-sub002/internal/logger"
	"github.com/IdrisKulubi/HIH-sub002/internal/utils"
	"github.com/IdrisKulubi/HIH-sub002/internal/workflow"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// APIError 请求层错误(参数绑定、格式校验)
type APIError struct {
	Code    int
	Reason  string
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// StatusForKind 工作流错误分类对应的 HTTP 状态码
func StatusForKind(kind workflow.ErrorKind) int {
	switch kind {
	case workflow.KindAuthorization:
		return http.StatusForbidden
	case workflow.KindNotFound:
		return http.StatusNotFound
	case workflow.KindValidation:
		return http.StatusBadRequest
	case workflow.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandlerMiddleware 错误处理中间件
// 控制器通过 c.Error 记录错误, 由本中间件统一输出
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		var apiErr *APIError
		if errors.As(err, &apiErr) {
			Error(c, apiErr.Code, apiErr.Reason, apiErr.Message)
			return
		}

		var validationErr *utils.ValidationError
		if errors.As(err, &validationErr) {
			Error(c, http.StatusBadRequest, validationErr.Code, validationErr.Message)
			return
		}

		kind := workflow.KindOf(err)
		if kind == workflow.KindInternal {
			logger.Get().WithFields(logrus.Fields{
				"request_id": c.GetString("request_id"),
				"path":       c.FullPath(),
			}).WithError(err).Error("request failed")
			Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			return
		}
		Error(c, StatusForKind(kind), workflow.CodeOf(err), err.Error())
	}
}

// badRequest 记录请求绑定错误
func badRequest(c *gin.Context, err error) {
	_ = c.Error(&APIError{Code: http.StatusBadRequest, Reason: "INVALID_REQUEST", Message: err.Error()})
}

// fail 记录服务层错误
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
}
