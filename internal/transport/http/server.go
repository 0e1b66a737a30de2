package http

import (
	"github.com/gin-gonic/gin"

	"github.com/sivakandan01/ai-backend/internal/bootstrap"
	"github.com/sivakandan01/ai-backend/internal/transport/http/handler"
	"github.com/sivakandan01/ai-backend/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	ragHandler := handler.NewRAGHandler(app.RAGService)

	v1 := router.Group("/api/v1")
	ragGroup := v1.Group("/rag")
	ragGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	ragGroup.POST("/upload", ragHandler.Upload)
	ragGroup.POST("/query", ragHandler.Query)
	ragGroup.GET("/documents", ragHandler.ListDocuments)
	ragGroup.GET("/documents/:id/status", ragHandler.DocumentStatus)
	ragGroup.DELETE("/documents/:id", ragHandler.DeleteDocument)

	return router
}
