// internal/app/server.go
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"salesbridge-service/internal/config"
	"salesbridge-service/internal/db"
	"salesbridge-service/internal/gateway/messaging"
	"salesbridge-service/internal/gateway/phonecheck"
	"salesbridge-service/internal/gateway/salescrm"
	chatHandler "salesbridge-service/internal/handlers/chats"
	conversationHandler "salesbridge-service/internal/handlers/conversations"
	peopleHandler "salesbridge-service/internal/handlers/people"
	repHandler "salesbridge-service/internal/handlers/reps"
	salesHandler "salesbridge-service/internal/handlers/sales"
	"salesbridge-service/internal/middleware"
	"salesbridge-service/internal/pkg/cache"
	"salesbridge-service/internal/repository/postgres"
	"salesbridge-service/internal/service/assignment"
	"salesbridge-service/internal/service/chatsync"
	"salesbridge-service/internal/service/directory"
	"salesbridge-service/internal/service/identity"
	"salesbridge-service/internal/service/lead"
	"salesbridge-service/internal/service/notify"
	"salesbridge-service/internal/service/orchestrator"
	peopleService "salesbridge-service/internal/service/people"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg    *config.Config
	engine *gin.Engine
	logger *zap.Logger
}

func NewServer() *Server {
	cfg := config.Load()
	engine := gin.Default()
	return &Server{cfg: cfg, engine: engine}
}

func (s *Server) Start() error {
	ctx := context.Background()

	// ----- Logger -----
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	s.logger = logger

	// ----- PostgreSQL -----
	pool, err := db.NewPostgresPool(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// ----- Redis (optional, lookups degrade to direct fetches) -----
	redisCfg := db.RedisConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPassword,
		DB:       s.cfg.RedisDB,
		PoolSize: 10,
	}
	redisClient, err := db.NewRedisClient(redisCfg)
	if err != nil {
		logger.Warn("redis unavailable, caching disabled", zap.Error(err))
		redisClient = nil
	}
	cacheStore := cache.New(redisClient, logger)
	cacheTTL := time.Duration(s.cfg.SalesCRM.CacheTTL) * time.Second

	// ----- Gateways -----
	platform := messaging.NewClient(s.cfg.Messaging.BaseURL, s.cfg.Messaging.APIKey, logger)
	crm := salescrm.NewClient(
		s.cfg.SalesCRM.BaseURL,
		s.cfg.SalesCRM.Username,
		s.cfg.SalesCRM.Password,
		cacheStore,
		cacheTTL,
		logger,
	)
	phoneChecker := phonecheck.NewClient(s.cfg.PhoneAPI.URL, cacheStore, cacheTTL, logger)

	// ----- Repositories -----
	dbWrapper := postgres.NewDB(pool)
	personRepo := postgres.NewPersonRepo(dbWrapper)
	repRepo := postgres.NewSalesRepRepo(dbWrapper)
	conversationRepo := postgres.NewConversationRepo(dbWrapper)
	messageRepo := postgres.NewMessageRepo(dbWrapper)

	// ----- Services -----
	notifier := notify.NewNotifier(s.cfg.SMTP, logger)
	resolver := identity.NewResolver(personRepo, phoneChecker, platform, logger)
	syncer := chatsync.NewSyncer(platform, messageRepo, s.cfg.Messaging.PageSize, s.cfg.Messaging.MaxPages, logger)
	inbound := chatsync.NewInbound(personRepo, repRepo, conversationRepo, platform, syncer, s.cfg.Messaging.ServiceNumber, logger)
	salesService := orchestrator.NewSales(
		resolver,
		personRepo,
		repRepo,
		conversationRepo,
		platform,
		crm,
		notifier,
		syncer,
		orchestrator.Config{
			ServiceNumber:   s.cfg.Messaging.ServiceNumber,
			WelcomeTemplate: s.cfg.Messaging.WelcomeTemplate,
			TemplateLang:    s.cfg.Messaging.TemplateLang,
		},
		logger,
	)
	assignmentService := assignment.NewService(messageRepo, repRepo, conversationRepo, platform, syncer, logger)
	leadService := lead.NewService(crm, platform, conversationRepo, messageRepo, logger)
	directoryService := directory.NewService(platform, crm, repRepo, logger)
	peopleSvc := peopleService.NewService(platform, personRepo, logger)

	// ----- Handlers -----
	salesHandlerInst := salesHandler.NewSalesHandler(salesService)
	chatHandlerInst := chatHandler.NewChatHandler(inbound, syncer, messageRepo)
	conversationHandlerInst := conversationHandler.NewConversationHandler(
		conversationRepo,
		messageRepo,
		personRepo,
		assignmentService,
		leadService,
		crm,
	)
	peopleHandlerInst := peopleHandler.NewPeopleHandler(personRepo, peopleSvc)
	repHandlerInst := repHandler.NewRepHandler(repRepo, directoryService)

	// ----- Middlewares -----
	authMiddleware := middleware.NewAuthMiddleware(s.cfg.APIToken)

	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(),
	)

	// ----- Router -----
	handlers := &Handlers{
		SalesHandler:        salesHandlerInst,
		ChatHandler:         chatHandlerInst,
		ConversationHandler: conversationHandlerInst,
		PeopleHandler:       peopleHandlerInst,
		RepHandler:          repHandlerInst,
		AuthMiddleware:      authMiddleware,
	}
	SetupRouter(s.engine, logger, handlers)

	// ----- Start HTTP -----
	log.Printf("server running on %s", s.cfg.HTTPAddr)
	return s.engine.Run(s.cfg.HTTPAddr)
}
