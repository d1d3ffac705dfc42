// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"doccatalog-go/internal/ai"
	"doccatalog-go/internal/authtoken"
	"doccatalog-go/internal/broker"
	"doccatalog-go/internal/config"
	"doccatalog-go/internal/handler"
	"doccatalog-go/internal/middleware"
	"doccatalog-go/internal/pipeline"
	"doccatalog-go/internal/repository"
	"doccatalog-go/internal/search"
	"doccatalog-go/internal/session"
	"doccatalog-go/internal/taxonomy"
	"doccatalog-go/pkg/blob"
	"doccatalog-go/pkg/database"
	"doccatalog-go/pkg/es"
	"doccatalog-go/pkg/log"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、对象存储与搜索引擎
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err := es.InitES(cfg.Elasticsearch, cfg.Search.VectorDim); err != nil {
		log.Errorf("elasticsearch 初始化失败: %v", err)
		return
	}
	blobStore, err := blob.NewStore(cfg.MinIO)
	if err != nil {
		log.Errorf("blob store 初始化失败: %v", err)
		return
	}

	// 4. 初始化 Cache/Broker（Redis 队列/缓存 + Kafka 扇出）
	msgBroker := broker.New(database.RDB, cfg.Kafka)

	// 5. 初始化 Repository 层
	documentRepo := repository.NewDocumentRepository(database.DB)
	taxonomyRepo := repository.NewTaxonomyRepository(database.DB)

	// 6. 初始化 Taxonomy Engine（启动时从数据库加载并缓存整个层级）
	taxonomyEngine, err := taxonomy.NewEngine(taxonomyRepo)
	if err != nil {
		log.Errorf("taxonomy engine 初始化失败: %v", err)
		return
	}

	// 7. 初始化 AI Gateway（每个 provider 独立熔断器）
	gateway := ai.NewGateway(cfg.AIProviders, cfg.Tika, cfg.Embedding, cfg.LLM)

	// 8. 初始化摄取管道：Enqueuer / WorkerPool / Scheduler
	enqueuer := pipeline.NewEnqueuer(documentRepo, msgBroker, cfg.Pipeline)
	workerPool := pipeline.NewWorkerPool(documentRepo, msgBroker, blobStore, gateway, taxonomyEngine, cfg.Pipeline, cfg.Elasticsearch.IndexName, cfg.Search.VectorDim)
	scheduler := pipeline.NewScheduler(enqueuer, msgBroker, cfg.Pipeline)

	// 9. 初始化搜索服务
	searchService := search.NewService(documentRepo, msgBroker, gateway, taxonomyEngine, cfg.Search, cfg.Elasticsearch.IndexName)

	// 10. 初始化 Session Core 与 bearer-token 兼容层
	sessionStore := session.NewStore(msgBroker, cfg.Session)
	tokenManager := authtoken.NewManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)

	// 11. 启动后台循环：worker 池、调度器、会话后端健康检查
	bgCtx, cancelBg := context.WithCancel(context.Background())
	stop := make(chan struct{})
	workerPool.Run(bgCtx, stop)
	go scheduler.Run(bgCtx, stop)
	go sessionStore.Run(bgCtx, msgBroker, stop)
	go taxonomyEngine.Run(time.Duration(cfg.Taxonomy.SnapshotRefreshS)*time.Second, stop)

	// 12. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery(), session.Middleware(sessionStore, cfg.Session))

	documentHandler := handler.NewDocumentHandler(documentRepo, enqueuer, blobStore, cfg.Pipeline)
	searchHandler := handler.NewSearchHandler(searchService)
	taxonomyHandler := handler.NewTaxonomyHandler(taxonomyEngine)
	adminHandler := handler.NewAdminHandler(documentRepo, msgBroker, gateway, pipeline.DocumentQueue)
	healthHandler := handler.NewHealthHandler(sessionStore)
	progressHandler := handler.NewProgressHandler(documentRepo, tokenManager)

	apiV1 := r.Group("/api/v1")
	{
		apiV1.GET("/health", healthHandler.Health)
		apiV1.GET("/health/session", healthHandler.Session)

		auth := apiV1.Group("/auth")
		{
			auth.POST("/login", session.LoginHandler(sessionStore, cfg.Session))
			auth.POST("/logout", session.LogoutHandler(sessionStore, cfg.Session))
		}

		taxonomyGroup := apiV1.Group("/taxonomy")
		{
			taxonomyGroup.GET("/hierarchy", taxonomyHandler.Hierarchy)
			taxonomyGroup.GET("/categories", taxonomyHandler.Categories)
			taxonomyGroup.GET("/canonical-terms", taxonomyHandler.CanonicalTerms)
			taxonomyGroup.GET("/search", taxonomyHandler.Search)
		}

		searchGroup := apiV1.Group("/search")
		{
			searchGroup.GET("", searchHandler.Search)
			searchGroup.GET("/top-queries", searchHandler.TopQueries)
		}

		documents := apiV1.Group("/documents")
		{
			documents.GET("/:id", documentHandler.Get)
			documents.GET("/:id/status", documentHandler.Status)
			documents.GET("/:id/download", documentHandler.Download)
			documents.GET("/:id/preview", documentHandler.Preview)
			documents.GET("", documentHandler.List)

			protected := documents.Group("/")
			protected.Use(middleware.BearerOrSession(tokenManager))
			{
				protected.POST("upload", documentHandler.Upload)
				protected.POST(":id/reprocess", documentHandler.Reprocess)
			}
		}

		progress := apiV1.Group("/documents/:id/progress")
		progress.Use(session.RequireAuth(cfg.Session))
		{
			progress.GET("/token", progressHandler.IssueToken)
		}
		r.GET("/ws/documents/:id/progress", progressHandler.Handle)

		admin := apiV1.Group("/admin")
		admin.Use(session.RequireAuth(cfg.Session), middleware.AdminAuthMiddleware())
		{
			admin.GET("/stats", adminHandler.Stats)
			admin.POST("/taxonomy/initialize", taxonomyHandler.Initialize)
		}
	}

	// 13. 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	close(stop)
	cancelBg()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	if err := msgBroker.Close(); err != nil {
		log.Warnf("关闭 broker 连接失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}
