package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"papercompanion/internal/ai"
	appsvc "papercompanion/internal/app"
	"papercompanion/internal/bootstrap"
	"papercompanion/internal/cache"
	"papercompanion/internal/migrate"
	"papercompanion/internal/platform/rabbitmq"
	"papercompanion/internal/repository"
	"papercompanion/internal/transport/http/handler"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	paperRepo := repository.NewPaperRepository(app.DB)
	sessionRepo := repository.NewSessionRepository(app.DB)
	cacheRepo := repository.NewCacheRepository(app.DB)

	llmClient := ai.NewOpenAICompatibleClient()
	chatCfg := ai.ChatConfig{
		BaseURL: app.Config.LLM.BaseURL,
		APIKey:  app.Config.LLM.APIKey,
		Model:   app.Config.LLM.Model,
	}
	extractionCfg := chatCfg
	if app.Config.LLM.ExtractionModel != "" {
		extractionCfg.Model = app.Config.LLM.ExtractionModel
	}

	historyCache := cache.NewRecentHistoryCache(
		app.Redis,
		time.Duration(app.Config.Redis.HistoryTTLSeconds)*time.Second,
	)

	paperService := appsvc.NewPaperService(paperRepo)
	queryService := appsvc.NewQueryService(
		paperRepo,
		sessionRepo,
		historyCache,
		llmClient,
		chatCfg,
		app.Config.LLM.MaxContextMessage,
	)
	insightService := appsvc.NewInsightService(
		sessionRepo,
		cacheRepo,
		ai.NewInsightExtractor(llmClient, extractionCfg),
	)
	exportPublisher := rabbitmq.NewExportPublisher(app.MQConn, app.Config.RabbitMQ.NoteExportQueue)

	paperHandler := handler.NewPaperHandler(paperService, paperRepo)
	sessionHandler := handler.NewSessionHandler(sessionRepo, queryService, exportPublisher)
	insightHandler := handler.NewInsightHandler(insightService, sessionRepo)
	cacheHandler := handler.NewCacheHandler(cacheRepo, app.Config.Cache.MaxEntriesPerType)

	v1 := router.Group("/api/v1")

	papers := v1.Group("/papers")
	papers.POST("", paperHandler.Upload)
	papers.GET("", paperHandler.List)
	papers.GET("/search", paperHandler.Search)
	papers.GET("/:id", paperHandler.Get)
	papers.PATCH("/:id", paperHandler.Update)
	papers.DELETE("/:id", paperHandler.Delete)

	sessions := v1.Group("/sessions")
	sessions.POST("", sessionHandler.Create)
	sessions.GET("", sessionHandler.List)
	sessions.GET("/:id", sessionHandler.Get)
	sessions.DELETE("/:id", sessionHandler.Delete)
	sessions.POST("/:id/status", sessionHandler.UpdateStatus)
	sessions.GET("/:id/stats", sessionHandler.Stats)
	sessions.GET("/:id/messages", sessionHandler.GetMessages)
	sessions.POST("/:id/messages", sessionHandler.Ask)
	sessions.POST("/:id/messages/stream", sessionHandler.AskStream)
	sessions.GET("/:id/flags", sessionHandler.GetFlags)
	sessions.POST("/:id/flags", sessionHandler.AddFlag)
	sessions.GET("/:id/insights", insightHandler.Get)
	sessions.POST("/:id/export", sessionHandler.Export)

	schemaHandler := handler.NewSchemaHandler(migrate.New(app.DB, migrate.All()...))
	v1.GET("/schema", schemaHandler.Info)

	cacheGroup := v1.Group("/cache")
	cacheGroup.GET("/stats", cacheHandler.Stats)
	cacheGroup.POST("/sweep", cacheHandler.Sweep)
	cacheGroup.POST("/cleanup", cacheHandler.Cleanup)
	cacheGroup.DELETE("", cacheHandler.Clear)

	return router
}
