package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	appchat "campusxchange/internal/app/chat"
	domainchat "campusxchange/internal/domain/chat"
	"campusxchange/internal/domain/identity"
	domainlistings "campusxchange/internal/domain/listings"
	"campusxchange/internal/infra/broker/kafka"
	"campusxchange/internal/infra/config"
	mongostore "campusxchange/internal/infra/db/mongo"
	ginserver "campusxchange/internal/infra/http/gin"
	"campusxchange/internal/infra/obs"
	"campusxchange/internal/infra/outbox"
	"campusxchange/internal/infra/security"
	"campusxchange/internal/infra/storage/memory"
	"campusxchange/internal/infra/ws"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := getenv("APP_ENV", "dev")
	logger := obs.NewLogger(env)

	cfg, err := config.Load()
	if err != nil {
		logger.Warn("using fallback configuration", "error", err)
		cfg.Env = env
		cfg.HTTPAddr = getenv("HTTP_ADDR", ":8080")
		cfg.StoreMode = "memory"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	st, err := buildStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("storage initialization failed", "error", err, "mode", cfg.StoreMode)
		os.Exit(1)
	}

	presence := appchat.NewPresence()
	rooms := appchat.NewRooms()
	chat := appchat.NewService(appchat.ServiceConfig{
		Conversations: st.conversations,
		Messages:      st.messages,
		Listings:      st.listings,
		Presence:      presence,
		Rooms:         rooms,
		Events:        outbox.Sink{Store: st.outbox},
		Logger:        logger,
		Retention:     cfg.ChatRetention,
		StoreTimeout:  cfg.ChatStoreTimeout,
	})

	verifier := identity.StoreVerifier{Sessions: st.sessions}
	gateway := ws.NewGateway(chat, presence, rooms, verifier, logger, ws.GatewayConfig{
		SendBuffer:   cfg.WSSendBuffer,
		PingInterval: cfg.WSPingInterval,
		WriteTimeout: cfg.WSWriteTimeout,
	})

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Ready: st.ready,
	}, ginserver.Handlers{
		Chat:           &ginserver.ChatHandler{Chat: chat, Logger: logger},
		Realtime:       gateway.Handle,
		AuthMiddleware: ginserver.AuthMiddleware{Verifier: verifier, Logger: logger}.Handle,
	})

	fixturesPath := cfg.FixturesPath
	if fixturesPath == "" {
		fixturesPath = defaultFixturesPath()
	}
	if err := loadFixtures(ctx, fixturesPath, st, logger); err != nil {
		logger.Warn("fixtures load failed", "error", err, "path", fixturesPath)
	}

	sweeper := &appchat.Sweeper{
		Conversations: st.conversations,
		Messages:      st.messages,
		Listings:      st.listings,
		Rooms:         rooms,
		Logger:        logger,
		Interval:      cfg.SweepInterval,
	}
	go func() {
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("sweeper stopped", "error", err)
		}
	}()

	if len(cfg.KafkaBrokers) > 0 {
		startKafka(ctx, cfg, st, logger)
	} else {
		logger.Info("kafka disabled, chat events stay queued in the outbox")
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "store", cfg.StoreMode)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

// listingStore is a Directory that can also absorb fixture rows.
type listingStore interface {
	domainlistings.Directory
	Save(ctx context.Context, listing *domainlistings.Listing) error
}

// sessionStore is a SessionStore that can also absorb fixture rows.
type sessionStore interface {
	identity.SessionStore
	Save(ctx context.Context, session *identity.Session) error
}

type stores struct {
	conversations domainchat.ConversationRepository
	messages      domainchat.MessageRepository
	listings      listingStore
	sessions      sessionStore
	outbox        outbox.Store
	ready         func() error
}

func buildStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (*stores, error) {
	switch cfg.StoreMode {
	case "mongo":
		client, err := mongostore.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("mongo connect: %w", err)
		}
		conversations := mongostore.NewConversationRepository(client.DB)
		messages := mongostore.NewMessageRepository(client.DB)
		sessions := mongostore.NewSessionStore(client.DB)
		outboxStore := mongostore.NewOutboxStore(client.DB)
		indexCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		for name, ensure := range map[string]func(context.Context) error{
			"conversations": conversations.EnsureIndexes,
			"messages":      messages.EnsureIndexes,
			"sessions":      sessions.EnsureIndexes,
			"outbox":        outboxStore.EnsureIndexes,
		} {
			if err := ensure(indexCtx); err != nil {
				return nil, fmt.Errorf("ensure %s indexes: %w", name, err)
			}
		}
		logger.Info("mongo storage ready", "db", cfg.MongoDB)
		return &stores{
			conversations: conversations,
			messages:      messages,
			listings:      mongostore.NewListingDirectory(client.DB),
			sessions:      sessions,
			outbox:        outboxStore,
			ready: func() error {
				pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				return client.Ping(pingCtx)
			},
		}, nil
	default:
		logger.Info("in-memory storage selected, state is lost on restart")
		return &stores{
			conversations: memory.NewConversationRepository(),
			messages:      memory.NewMessageRepository(),
			listings:      memory.NewListingDirectory(),
			sessions:      memory.NewSessionStore(),
			outbox:        memory.NewOutbox(),
			ready:         func() error { return nil },
		}, nil
	}
}

func startKafka(ctx context.Context, cfg config.Config, st *stores, logger *slog.Logger) {
	producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
	if err != nil {
		logger.Error("kafka producer init failed, chat events stay queued", "error", err)
	} else {
		worker := &outbox.Worker{
			Store:       st.outbox,
			Producer:    producer,
			Interval:    cfg.OutboxPollInterval,
			TopicPrefix: cfg.KafkaTopicPrefix,
			Backoff:     cfg.RetryBackoff,
		}
		go func() {
			defer producer.Close()
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("outbox worker stopped", "error", err)
			}
		}()
	}

	handler := &kafka.ListingEventHandler{Conversations: st.conversations, Logger: logger}
	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaConsumerGroup, nil, handler)
	if err != nil {
		logger.Error("kafka consumer init failed, listing events ignored", "error", err)
		return
	}
	topics := []string{cfg.KafkaTopicPrefix + "listing.events.v1"}
	go func() {
		defer consumer.Close()
		if err := consumer.Run(ctx, topics); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("listing events consumer stopped", "error", err)
		}
	}()
	logger.Info("listing events consumer started", "topics", topics, "group", cfg.KafkaConsumerGroup)
}

type fixtureFile struct {
	Listings []listingFixture `json:"listings"`
	Sessions []sessionFixture `json:"sessions"`
}

type listingFixture struct {
	ID         string `json:"id"`
	SellerID   string `json:"seller_id"`
	Title      string `json:"title"`
	PriceCents int64  `json:"price_cents"`
	Status     string `json:"status"`
}

type sessionFixture struct {
	Token     string `json:"token"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	ExpiresAt string `json:"expires_at"`
}

// loadFixtures seeds listings and dev sessions from a JSON file. Session
// rows without a token get a freshly minted one, logged so a developer can
// pick it up for curl or websocket clients.
func loadFixtures(ctx context.Context, path string, st *stores, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("fixtures file not found, skipping", "path", path)
			return nil
		}
		return fmt.Errorf("read fixtures: %w", err)
	}

	var fx fixtureFile
	if err := json.Unmarshal(data, &fx); err != nil {
		return fmt.Errorf("decode fixtures: %w", err)
	}

	for _, row := range fx.Listings {
		status := domainlistings.ListingActive
		if strings.EqualFold(row.Status, string(domainlistings.ListingSold)) {
			status = domainlistings.ListingSold
		}
		listing := &domainlistings.Listing{
			ID:         row.ID,
			SellerID:   row.SellerID,
			Title:      row.Title,
			PriceCents: row.PriceCents,
			Status:     status,
		}
		if listing.ID == "" || listing.SellerID == "" {
			logger.Error("listing fixture missing id or seller", "listing_id", row.ID)
			continue
		}
		if err := st.listings.Save(ctx, listing); err != nil {
			logger.Error("cannot store fixture listing", "listing_id", row.ID, "error", err)
			continue
		}
		logger.Info("listing fixture imported", "listing_id", listing.ID)
	}

	tokens := security.RandomTokenGenerator{}
	for _, row := range fx.Sessions {
		if row.UserID == "" {
			logger.Error("session fixture missing user_id")
			continue
		}
		token := row.Token
		minted := false
		if token == "" {
			token, err = tokens.NewToken()
			if err != nil {
				logger.Error("cannot mint fixture token", "user_id", row.UserID, "error", err)
				continue
			}
			minted = true
		}
		session := &identity.Session{
			Token:     token,
			UserID:    row.UserID,
			UserName:  row.UserName,
			ExpiresAt: parseFixtureTime(row.ExpiresAt, time.Now().Add(24*time.Hour)),
		}
		if err := st.sessions.Save(ctx, session); err != nil {
			logger.Error("cannot store fixture session", "user_id", row.UserID, "error", err)
			continue
		}
		if minted {
			logger.Info("session fixture minted", "user_id", row.UserID, "token", token)
		} else {
			logger.Info("session fixture imported", "user_id", row.UserID)
		}
	}
	return nil
}

func parseFixtureTime(value string, fallback time.Time) time.Time {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return fallback
}

func defaultFixturesPath() string {
	candidates := []string{
		filepath.Join("data", "fixtures.json"),
		filepath.Join("backend", "data", "fixtures.json"),
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return candidates[0]
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
