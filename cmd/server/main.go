// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ncert-tutor-go/internal/adaptive"
	"ncert-tutor-go/internal/config"
	"ncert-tutor-go/internal/handler"
	"ncert-tutor-go/internal/middleware"
	"ncert-tutor-go/internal/model"
	"ncert-tutor-go/internal/pipeline"
	"ncert-tutor-go/internal/repository"
	"ncert-tutor-go/internal/seed"
	"ncert-tutor-go/internal/service"
	"ncert-tutor-go/pkg/database"
	"ncert-tutor-go/pkg/diagram"
	"ncert-tutor-go/pkg/embedding"
	"ncert-tutor-go/pkg/es"
	"ncert-tutor-go/pkg/kafka"
	"ncert-tutor-go/pkg/llm"
	"ncert-tutor-go/pkg/log"
	"ncert-tutor-go/pkg/scraper"
	"ncert-tutor-go/pkg/speech"
	"ncert-tutor-go/pkg/storage"
	"ncert-tutor-go/pkg/tika"
	"ncert-tutor-go/pkg/token"

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

	// 3. 初始化数据库、Redis、对象存储、检索引擎和消息队列
	database.InitMySQL(cfg.Database.MySQL.DSN)
	if err := database.Migrate(database.DB, model.AllModels()...); err != nil {
		log.Fatal("数据库迁移失败", err)
	}
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	store := storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch, cfg.Embedding.Dimensions); err != nil {
		log.Fatal("es 初始化失败", err)
	}
	passageIndex := es.NewPassageIndex(es.ESClient, cfg.Elasticsearch.IndexName)
	if err := kafka.Validate(cfg.Kafka); err != nil {
		log.Fatal("kafka 配置无效", err)
	}
	producer := kafka.NewProducer(cfg.Kafka)
	defer producer.Close()

	// 4. 初始化 Repository
	studentRepo := repository.NewStudentRepository(database.DB)
	conversationRepo := repository.NewConversationRepository(database.DB)
	queryCacheRepo := repository.NewQueryCacheRepository(database.DB)
	analyticsRepo := repository.NewAnalyticsRepository(database.DB)
	resourceRepo := repository.NewResourceRepository(database.DB)
	textbookRepo := repository.NewTextbookRepository(database.DB)
	sessionStore := repository.NewSessionStore(database.RDB, cfg.Session.Timeout(), cfg.Session.HistoryTurns)
	attemptCounter := repository.NewAttemptCounter(database.RDB)

	// 5. 初始化外部客户端
	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	tikaClient := tika.NewClient(cfg.Tika)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	speechClient := speech.NewClient(cfg.Speech)
	renderer, err := diagram.NewRenderer(800, 600)
	if err != nil {
		log.Fatal("初始化图表渲染器失败", err)
	}
	retry := llm.RetryConfigFrom(cfg.LLM.Retry)
	primary, err := llm.NewProvider(rootCtx, cfg.LLM.Primary, retry)
	if err != nil {
		log.Fatal("初始化主模型失败", err)
	}
	var fallback llm.Provider
	if cfg.LLM.Fallback.Provider != "" {
		if fallback, err = llm.NewProvider(rootCtx, cfg.LLM.Fallback, retry); err != nil {
			log.Fatal("初始化备用模型失败", err)
		}
	}
	var web service.WebFallback
	if cfg.Scraper.Enabled {
		web = scraper.New(cfg.Scraper)
	}

	// 6. 初始化 Service (依赖注入)
	selector := adaptive.NewSelector(thresholdsFrom(cfg.Adaptive), boundsFrom(cfg.Adaptive))
	cacheService := service.NewCacheService(queryCacheRepo, cfg.Cache.TTL())
	progressService := service.NewProgressService(studentRepo, selector)
	conversationService := service.NewConversationService(conversationRepo, sessionStore, cfg.Session.Timeout())
	analyticsService := service.NewAnalyticsService(analyticsRepo)
	resourceService := service.NewResourceService(resourceRepo)
	mediaService := service.NewMediaService(store, speechClient, renderer)
	profileService := service.NewProfileService(studentRepo, selector, jwtManager)
	adminService := service.NewAdminService(cfg.Admin, studentRepo, textbookRepo, cacheService, jwtManager)
	ingestionService := service.NewIngestionService(textbookRepo, store, producer)
	searchService := service.NewSearchService(embeddingClient, passageIndex)
	synthesizer := service.NewChatService(searchService, web, primary, fallback, service.SynthesizerOptions{
		TopK:         cfg.Retrieval.TopK,
		MinRelevance: cfg.Retrieval.MinRelevance,
		Timeout:      cfg.LLM.Timeout(),
		MaxTokens:    cfg.LLM.MaxTokens,
		Temperature:  cfg.LLM.Temperature,
	})
	tutorService := service.NewTutorService(service.TutorDeps{
		Students:      studentRepo,
		Conversations: conversationService,
		Cache:         cacheService,
		Progress:      progressService,
		Synthesizer:   synthesizer,
		Analytics:     analyticsService,
		Resources:     resourceService,
		Media:         mediaService,
		Transcriber:   speechClient,
		Policy: adaptive.ResourcePolicy{
			RelevanceFloor:    cfg.Adaptive.ResourceRelevanceFloor,
			StruggleThreshold: cfg.Adaptive.ResourceStruggleThreshold,
		},
		Timeout: cfg.LLM.Timeout(),
	})

	// 7. 启动后台任务：教材处理管道、缓存与会话清理
	processor := pipeline.NewProcessor(store, tikaClient, embeddingClient, passageIndex, textbookRepo, cfg.Embedding.Model)
	consumer := kafka.NewConsumer(cfg.Kafka, processor, attemptCounter)
	go func() {
		if err := consumer.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Kafka 消费者退出", err)
		}
	}()
	janitor := service.NewJanitor(cacheService, conversationService, time.Duration(cfg.Cache.PurgeIntervalMinutes)*time.Minute)
	go janitor.Run(rootCtx)

	// 7.1 导入 initfile 目录中的教材，已导入则跳过
	go seed.Textbooks(rootCtx, "initfile", ingestionService)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	handler.RegisterRoutes(r, handler.Handlers{
		Profile:      handler.NewProfileHandler(profileService, progressService, analyticsService),
		Chat:         handler.NewChatHandler(tutorService, profileService, jwtManager),
		Conversation: handler.NewConversationHandler(conversationService, mediaService),
		Resource:     handler.NewResourceHandler(resourceService),
		Admin:        handler.NewAdminHandler(adminService, ingestionService),
	}, jwtManager, profileService)

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

	// 先停止后台任务，再给 HTTP 请求 5 秒收尾
	cancelRoot()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}

func thresholdsFrom(c config.AdaptiveConfig) adaptive.Thresholds {
	return adaptive.Thresholds{
		StepDownRatio:            c.StepDownRatio,
		StepUpRatio:              c.StepUpRatio,
		MinSuccessesForStepUp:    c.MinSuccessesForStepUp,
		MinQueriesBetweenChanges: c.MinQueriesBetweenChanges,
	}
}

// boundsFrom 解析配置中的分层边界，无法识别的年级段或难度会被忽略。
func boundsFrom(c config.AdaptiveConfig) map[adaptive.GradeBucket]adaptive.Bounds {
	out := make(map[adaptive.GradeBucket]adaptive.Bounds, len(c.Bounds))
	for name, b := range c.Bounds {
		bucket, ok := adaptive.ParseBucket(name)
		if !ok {
			log.Warnf("忽略未知年级段的分层配置: %s", name)
			continue
		}
		floor, okFloor := adaptive.ParseTier(b.Floor)
		ceiling, okCeiling := adaptive.ParseTier(b.Ceiling)
		if !okFloor || !okCeiling {
			log.Warnf("忽略无效的分层配置: %s=%s..%s", name, b.Floor, b.Ceiling)
			continue
		}
		out[bucket] = adaptive.Bounds{Floor: floor, Ceiling: ceiling}
	}
	return out
}
