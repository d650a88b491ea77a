package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/ollama-chat-backend/internal/config"
	"github.com/iliyamo/ollama-chat-backend/internal/database"
	"github.com/iliyamo/ollama-chat-backend/internal/handler"
	"github.com/iliyamo/ollama-chat-backend/internal/identity"
	"github.com/iliyamo/ollama-chat-backend/internal/inference"
	"github.com/iliyamo/ollama-chat-backend/internal/logging"
	"github.com/iliyamo/ollama-chat-backend/internal/middleware"
	"github.com/iliyamo/ollama-chat-backend/internal/queue"
	"github.com/iliyamo/ollama-chat-backend/internal/repository"
	"github.com/iliyamo/ollama-chat-backend/internal/router"
	"github.com/iliyamo/ollama-chat-backend/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, db, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	if db != nil {
		defer db.Close()
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn().Msg("redis unreachable: rate limiting off, otp sign-in unavailable")
	} else {
		defer rdb.Close()
	}

	var events service.Publisher = service.NopPublisher{}
	if cfg.RabbitURL != "" {
		pub := service.NewAMQPPublisher(cfg.RabbitURL)
		defer pub.Close()
		events = pub
	}

	reg := inference.NewRegistry(cfg.Inference.OpenAIKey != "")
	backends := map[inference.Provider]inference.Gateway{
		inference.ProviderOllama: inference.NewOllama(cfg.Inference.OllamaURL, cfg.Inference.Temperature),
	}
	if cfg.Inference.OpenAIKey != "" {
		backends[inference.ProviderOpenAI] = inference.NewOpenAI(cfg.Inference.OpenAIKey, cfg.Inference.OpenAIBaseURL, cfg.Inference.Temperature)
	}
	gateway := inference.NewRouter(reg, backends, log)

	conversations := service.NewConversationService(st, gateway, reg, events, service.ChatConfig{
		ContextLength: cfg.Inference.ContextLength,
		SystemPrompt:  cfg.Inference.SystemPrompt,
		Timeout:       cfg.Inference.Timeout,
	}, log)
	settings := service.NewSettingsService(st.Settings, reg)

	otp := identity.OTP{Users: st.Users, Redis: rdb, Events: events, TTL: cfg.OTPTTL}
	chain := identity.Chain{
		identity.KindPassword: identity.Password{Users: st.Users},
		identity.KindOTP:      otp,
		identity.KindGoogle:   identity.Google{Users: st.Users, ClientID: cfg.GoogleClientID},
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log))
	origins := []string{"*"}
	if cfg.FrontendURL != "" {
		origins = []string{cfg.FrontendURL}
	}
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: origins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization, echo.HeaderXRequestID},
	}))

	router.RegisterRoutes(e, &handler.ReadyHandler{DB: db, Redis: rdb})
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, st.Users, st.Tokens, chain, otp), cfg.JWTSecret)
	router.RegisterChat(e, handler.NewChatHandler(conversations), handler.NewSettingsHandler(settings),
		cfg.JWTSecret, middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log))
	router.RegisterAdmin(e, handler.NewAdminHandler(st.Users), cfg.JWTSecret)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		log.Info().Str("addr", addr).Str("env", cfg.Env).Str("store", cfg.StoreDriver).Msg("listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	if cfg.RabbitURL != "" {
		consumer := &queue.Consumer{URL: cfg.RabbitURL, Dir: "logs", Log: log}
		g.Go(func() error { return consumer.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(sctx)
	})
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
	log.Info().Msg("shut down")
}

// openStore returns the configured store.  db is nil for the memory driver.
func openStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (repository.Store, *sql.DB, error) {
	if cfg.StoreDriver == "memory" {
		log.Warn().Msg("using the in-memory store; data is lost on exit")
		return repository.NewMemory().Store(), nil, nil
	}
	db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return repository.Store{}, nil, err
	}
	if cfg.MigrateOnStart {
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return repository.Store{}, nil, err
		}
	}
	return repository.NewMySQLStore(db), db, nil
}
