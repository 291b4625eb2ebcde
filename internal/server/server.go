package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"chatrelay/internal/config"
	"chatrelay/internal/credential"
	"chatrelay/internal/handler"
	"chatrelay/internal/metrics"
	"chatrelay/internal/pkg/cache"
	"chatrelay/internal/pkg/jwt"
	"chatrelay/internal/pkg/lock"
	"chatrelay/internal/pkg/storagefactory"
	"chatrelay/internal/provider"
	"chatrelay/internal/repository"
	"chatrelay/internal/server/middleware"
	"chatrelay/internal/service"
)

const defaultLockTTL = 5 * time.Second

// Server HTTP 服务器
type Server struct {
	cfg     *config.Config
	engine  *gin.Engine
	mirror  repository.MirrorStore // nil 表示未启用镜像
	redis   *cache.RedisCache
	metrics *metrics.Metrics

	chat          *handler.ChatHandler
	conversations *handler.ConversationHandler
	messages      *handler.MessageHandler
	assistants    *handler.AssistantHandler
	health        *handler.HealthHandler
}

// Option 服务器选项
type Option func(*options)

type options struct {
	provider service.Provider
	mirror   repository.MirrorStore
	secrets  credential.SecretSource
}

// WithProvider 替换上游客户端
func WithProvider(p service.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithMirror 直接使用给定的镜像存储，不再按配置创建
func WithMirror(m repository.MirrorStore) Option {
	return func(o *options) { o.mirror = m }
}

// WithSecretSource 替换凭证来源
func WithSecretSource(s credential.SecretSource) Option {
	return func(o *options) { o.secrets = s }
}

// New 创建服务器实例
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	// 设置 Gin 模式
	switch cfg.Server.Mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	// 凭证来源：进程环境优先，其次 .env 文件
	secrets := o.secrets
	if secrets == nil {
		dotenv, err := credential.NewDotenvSource(cfg.Secrets.EnvFiles...)
		if err != nil {
			return nil, fmt.Errorf("load env files: %w", err)
		}
		secrets = credential.ChainSource{credential.EnvSource{}, dotenv}
	}

	// 本地镜像
	mirror := o.mirror
	if mirror == nil {
		m, err := storagefactory.NewMirrorStore(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open mirror store: %w", err)
		}
		if m != nil {
			if err := m.Migrate(ctx); err != nil {
				_ = m.Close()
				return nil, fmt.Errorf("migrate mirror store: %w", err)
			}
			log.Info().Str("driver", cfg.Mirror.Driver).Msg("mirror store ready")
		} else {
			log.Warn().Msg("mirror disabled, history is served from the provider only")
		}
		mirror = m
	}

	// Redis (可选)，用于跨实例的重命名锁
	var (
		redisCache *cache.RedisCache
		locker     lock.Locker = lock.NewLocal()
	)
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedisCache(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Redis, falling back to in-process locks")
		} else {
			redisCache = rc
			ttl := cfg.Relay.LockTTL
			if ttl <= 0 {
				ttl = defaultLockTTL
			}
			locker = lock.NewRedis(rc, ttl)
			log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")
		}
	}

	p := o.provider
	if p == nil {
		p = provider.NewClient()
	}
	m := metrics.New()

	assistantSvc := service.NewAssistantService(cfg.Assistants, credential.NewResolver(secrets))
	var writer *service.MirrorWriter
	if mirror != nil {
		writer = service.NewMirrorWriter(mirror, cfg.Relay.UserMessageOffset, m)
	}

	deps := map[string]handler.Pinger{}
	if mirror != nil {
		deps["mirror"] = mirror
	}
	if redisCache != nil {
		deps["redis"] = redisCache
	}

	srv := &Server{
		cfg:           cfg,
		engine:        gin.New(),
		mirror:        mirror,
		redis:         redisCache,
		metrics:       m,
		chat:          handler.NewChatHandler(service.NewChatService(assistantSvc, p, writer, m, cfg.Mirror.WriteTimeout)),
		conversations: handler.NewConversationHandler(service.NewConversationService(assistantSvc, p, mirror, locker, m)),
		messages:      handler.NewMessageHandler(service.NewHistoryService(assistantSvc, p, mirror, m)),
		assistants:    handler.NewAssistantHandler(assistantSvc),
		health:        handler.NewHealthHandler(deps),
	}

	// 设置路由
	srv.setupRoutes()

	return srv, nil
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	// 全局中间件
	s.engine.Use(middleware.Recovery())
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.Logger())
	s.engine.Use(middleware.CORS())

	// 健康检查
	s.engine.GET("/health", s.health.Health)
	s.engine.GET("/ready", s.health.Ready)
	s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	// Swagger 文档
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := s.engine.Group("")
	if s.cfg.Auth.JWTSecret != "" {
		api.Use(middleware.OptionalAuth(jwt.NewJWT(s.cfg.Auth.JWTSecret, s.cfg.Auth.AccessTokenExpiry)))
	} else {
		log.Warn().Msg("JWT secret not configured, user identity is taken from request bodies")
	}

	chat := []gin.HandlerFunc{s.chat.Chat}
	if s.cfg.Relay.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(s.cfg.Relay.RateLimit, s.cfg.Relay.RateBurst)
		chat = append([]gin.HandlerFunc{limiter.Middleware()}, chat...)
	}
	api.POST("/chat", chat...)

	api.GET("/assistants", s.assistants.List)
	api.GET("/conversations", s.conversations.List)
	api.PATCH("/conversations/:id", s.conversations.Rename)
	api.DELETE("/conversations/:id", s.conversations.Delete)
	api.POST("/messages", s.messages.List)
}

// Run 启动服务器
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	// 启动服务器
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待关闭信号或错误
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.Close()
		return err
	case err := <-errCh:
		s.Close()
		return err
	}
}

// Close 关闭镜像与 Redis 连接
func (s *Server) Close() {
	if s.mirror != nil {
		if err := s.mirror.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close mirror store")
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close Redis connection")
		}
	}
}

// Engine 获取 Gin 引擎 (用于测试)
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
