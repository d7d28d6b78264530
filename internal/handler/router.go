package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	Papers  *PaperHandler
	Chat    *ChatHandler
	System  *SystemHandler
	Metrics http.Handler
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("", deps.System.Root)
	api.GET("/healthz", deps.System.Healthz)
	if deps.Metrics != nil {
		api.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	api.POST("/search-papers", deps.Papers.SearchPapers)
	api.POST("/select-paper", deps.Papers.SelectPaper)
	api.POST("/chat", deps.Chat.Chat)
	api.GET("/sessions/:id/history", deps.Chat.History)
}
