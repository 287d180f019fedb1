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

	"feedscope-go/internal/config"
	"feedscope-go/internal/handler"
	"feedscope-go/internal/middleware"
	"feedscope-go/internal/pipeline"
	"feedscope-go/internal/repository"
	"feedscope-go/internal/service"
	"feedscope-go/internal/vector"
	"feedscope-go/pkg/chroma"
	"feedscope-go/pkg/database"
	"feedscope-go/pkg/embedding"
	"feedscope-go/pkg/kafka"
	"feedscope-go/pkg/log"
	"feedscope-go/pkg/rerank"
	"feedscope-go/pkg/tasks"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis 和向量库
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	chromaClient := chroma.NewClient(cfg.Chroma)
	registry, err := vector.NewRegistry(chromaClient)
	if err != nil {
		log.Fatalf("向量集合注册表初始化失败: %v", err)
	}
	kafka.InitProducers(cfg.Kafka)

	// 4. 初始化 Repository
	articleRepo := repository.NewArticleRepository(database.DB)
	relationRepo := repository.NewRelationRepository(database.DB)

	// 5. 初始化 Service (依赖注入)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	var rerankClient rerank.Client
	if cfg.Rerank.Enabled {
		rerankClient = rerank.NewClient(cfg.Rerank)
	}
	searchService := service.NewSearchService(
		embeddingClient,
		registry,
		articleRepo,
		relationRepo,
		rerankClient,
		cfg.Search,
		cfg.Rerank.Enabled,
	)
	relatedService := service.NewRelatedService(searchService, relationRepo, cfg.Refresh)

	// 6. 初始化索引管线 (Processor + 串行队列)
	processor := pipeline.NewProcessor(articleRepo, relationRepo, embeddingClient, registry)
	queue := pipeline.NewQueue(processor, 0)
	defer queue.Close()

	// 7. 启动后台 Kafka 消费者
	go kafka.StartIndexConsumer(cfg.Kafka, queue)
	go kafka.StartRefreshConsumer(cfg.Kafka, refreshWorker{relatedService})

	// 7.1 周期性刷新过期的相关文章缓存条目
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	go runRefreshSweep(sweepCtx, relatedService, cfg.Refresh.Interval)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		// Search 路由组：semantic/keyword/hybrid/related 统一入口
		search := apiV1.Group("/search")
		{
			search.GET("", handler.NewSearchHandler(searchService, cfg.Search).Search)
		}

		// Article 路由组：相关文章缓存与向量索引
		articles := apiV1.Group("/articles")
		{
			articles.GET("/:id/related", handler.NewRelatedHandler(relatedService).GetRelated)
			articles.POST("/:id/related/refresh", handler.NewRelatedHandler(relatedService).RefreshRelated)
			articles.POST("/:id/index", handler.NewIndexHandler().IndexArticle)
			articles.DELETE("/:id/index", handler.NewIndexHandler().DeleteArticle)
		}

		// Related 路由组：批量维护
		related := apiV1.Group("/related")
		{
			related.POST("/batch-refresh", handler.NewRelatedHandler(relatedService).BatchRefresh)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
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

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	// Kafka 消费循环会随进程退出自然结束，索引队列由 defer 关闭。
	log.Info("服务已优雅关闭")
}

// refreshWorker 把增量刷新任务接到 RelatedService 上。
// 刷新失败已在服务内部按条目记录，这里永远返回 nil 以免消息重投。
type refreshWorker struct {
	related service.RelatedService
}

func (w refreshWorker) Process(ctx context.Context, task tasks.RelatedRefreshTask) error {
	w.related.IncrementalRefresh(ctx, task.ArticleID, task.UserID, service.RefreshOptions{})
	return nil
}

// runRefreshSweep 按固定间隔扫描并刷新所有用户的过期缓存条目。
func runRefreshSweep(ctx context.Context, related service.RelatedService, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log.Infof("相关文章缓存周期刷新已启动, 间隔: %s", interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			related.BatchRefresh(ctx, 0, service.RefreshOptions{})
		}
	}
}
