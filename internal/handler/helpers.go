package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperqa/internal/ai"
	"github.com/xxxsen/paperqa/internal/middleware"
	"github.com/xxxsen/paperqa/internal/pkg/errcode"
	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
	"github.com/xxxsen/paperqa/internal/pkg/response"
)

type errorMapping struct {
	kind   error
	status int
	code   int
}

// Checked in order: a wrapped error may carry more than one kind.
var errorMappings = []errorMapping{
	{kind: appErr.ErrInvalid, status: http.StatusBadRequest, code: errcode.ErrInvalid},
	{kind: appErr.ErrNotFound, status: http.StatusNotFound, code: errcode.ErrNotFound},
	{kind: appErr.ErrTooMany, status: http.StatusTooManyRequests, code: errcode.ErrTooMany},
	{kind: ai.ErrUnavailable, status: http.StatusServiceUnavailable, code: errcode.ErrAIUnavailable},
	{kind: appErr.ErrIngestionVerification, status: http.StatusInternalServerError, code: errcode.ErrIngestionVerification},
	{kind: appErr.ErrFetch, status: http.StatusBadGateway, code: errcode.ErrFetch},
	{kind: appErr.ErrSearch, status: http.StatusBadGateway, code: errcode.ErrSearch},
	{kind: appErr.ErrGeneration, status: http.StatusBadGateway, code: errcode.ErrGeneration},
	{kind: appErr.ErrChat, status: http.StatusBadGateway, code: errcode.ErrChat},
}

func classifyError(err error) (int, int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.kind) {
			return m.status, m.code, err.Error()
		}
	}
	return http.StatusInternalServerError, errcode.ErrInternal, err.Error()
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	status, code, message := classifyError(err)
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", status),
		zap.Error(err),
	)
	response.Error(c, status, code, message)
}

func invalidRequest(c *gin.Context, message string) {
	response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, message)
}
