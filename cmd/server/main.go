package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"ripple/internal/config"
	"ripple/internal/domain"
	"ripple/internal/httpserver"
	"ripple/internal/security"
	"ripple/internal/service"
	"ripple/internal/store/mongo"
	"ripple/internal/store/sqlite"
	"ripple/internal/ws"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	// Initialize the message store
	var (
		userRepo    domain.UserRepository
		messageRepo domain.MessageRepository
		sessionRepo domain.SessionRepository
		groupRepo   domain.GroupRepository
	)
	switch cfg.StoreDriver {
	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		db, err := mongo.Open(ctx, cfg.MongoURI, cfg.MongoDB)
		cancel()
		if err != nil {
			log.Fatalf("failed to connect to mongo: %v", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = db.Client().Disconnect(ctx)
		}()

		ctx, cancel = context.WithTimeout(context.Background(), 15*time.Second)
		err = mongo.EnsureIndexes(ctx, db)
		cancel()
		if err != nil {
			log.Fatalf("failed to ensure indexes: %v", err)
		}

		userRepo = mongo.NewUserRepo(db)
		messageRepo = mongo.NewMessageRepo(db)
		sessionRepo = mongo.NewSessionRepo(db)
		groupRepo = mongo.NewGroupRepo(db)
	case "sqlite":
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if err := sqlite.Migrate(db); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}

		userRepo = sqlite.NewUserRepo(db)
		messageRepo = sqlite.NewMessageRepo(db)
		sessionRepo = sqlite.NewSessionRepo(db)
		groupRepo = sqlite.NewGroupRepo(db)
	}

	// Security components
	tokenSvc := security.NewTokenService(cfg.JWTSecret, time.Duration(cfg.AccessTokenMinutes)*time.Minute)
	passwordHasher := security.NewPasswordHasher(0)

	// Services
	svcs := &httpserver.Services{
		Auth:     service.NewAuthService(userRepo, tokenSvc, passwordHasher),
		Users:    service.NewUserService(userRepo),
		Messages: service.NewMessageService(messageRepo, sessionRepo, groupRepo, userRepo, cfg.MaxMessageChars, cfg.MaxPageSize),
		Sessions: service.NewSessionService(sessionRepo, messageRepo, userRepo, cfg.MaxPageSize),
		Groups:   service.NewGroupService(groupRepo, sessionRepo, userRepo, cfg.MaxGroupMembers, cfg.InviteCodeLength),
	}

	// Realtime gateway
	gateway := ws.NewGateway(svcs.Auth, svcs.Messages, svcs.Groups)

	// Build HTTP router
	router := httpserver.NewRouter(cfg, svcs, gateway)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		log.WithFields(log.Fields{"addr": cfg.HTTPAddr(), "store": cfg.StoreDriver}).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warnf("graceful shutdown failed: %v", err)
	}
}
