package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/tuncanbit/paylink/internal/application/terminal"
	"github.com/tuncanbit/paylink/internal/infrastructure/database"
	"github.com/tuncanbit/paylink/internal/infrastructure/events"
	"github.com/tuncanbit/paylink/internal/infrastructure/http/clients"
	"github.com/tuncanbit/paylink/internal/infrastructure/proximity"
	"github.com/tuncanbit/paylink/internal/repositories/sessionrepo"
	"github.com/tuncanbit/paylink/internal/server"
	"github.com/tuncanbit/paylink/internal/server/handlers"
	"github.com/tuncanbit/paylink/internal/server/websocket"
	"github.com/tuncanbit/paylink/pkg/config"
	"github.com/tuncanbit/paylink/pkg/logger"
)

const bridgeCleanupInterval = time.Minute

func main() {
	log := logger.New()

	cfg, err := config.Load(os.Getenv("PAYLINK_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.Logger.Level != "" {
		log = logger.NewWithConfig(cfg.Logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := &handlers.Handlers{
		Config: cfg,
		Logger: log,
	}

	var repo sessionrepo.ISessionRepository
	if cfg.Database.Enabled {
		db, err := database.New(&cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.ShutDown()

		if err := sessionrepo.Migrate(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate database")
		}
		repo = sessionrepo.New(db, log)
		h.Database = db
	}

	h.WsHub = websocket.NewWsHub(log)
	h.Bridges = websocket.NewManager(log)
	h.Proximity = proximity.NewHubBroadcaster(h.Bridges, log)

	if cfg.Payment.TerminalID == "" {
		cfg.Payment.TerminalID = "pos-" + uuid.NewString()
	}

	terminalSvc := terminal.New(cfg.Session, h.Proximity, func(pc terminal.PaymentConfig) terminal.Backend {
		payCfg := cfg.Payment
		payCfg.ProjectID = pc.ProjectID
		payCfg.APIKey = pc.APIKey
		payCfg.BackendURL = pc.BackendURL
		return clients.NewPayClient(payCfg, log)
	}, repo, log)
	h.Terminal = terminalSvc

	enabled := terminalSvc.Initialize(terminal.PaymentConfig{
		ProjectID:    cfg.Payment.ProjectID,
		APIKey:       cfg.Payment.APIKey,
		BackendURL:   cfg.Payment.BackendURL,
		TerminalID:   cfg.Payment.TerminalID,
		MerchantName: cfg.Payment.MerchantName,
		LinkBaseURL:  cfg.Payment.LinkBaseURL,
	})

	var source terminal.EventSource
	switch cfg.Events.Source {
	case "kafka":
		kafkaSource := events.NewKafkaSource(cfg.Kafka, log)
		defer kafkaSource.Close()
		source = kafkaSource
	case "poll":
		if enabled {
			source = events.NewPoller(terminalSvc.GetClient(), cfg.Payment.TerminalID, cfg.Events.PollInterval, log)
		}
	default:
		h.Webhook = events.NewWebhookSource(0, log)
		source = h.Webhook
	}

	removeForwarding := handlers.ForwardListenerEvents(terminalSvc, h.WsHub)
	defer removeForwarding()

	go h.WsHub.Run(ctx)
	go h.Bridges.Run(ctx, bridgeCleanupInterval)

	if enabled {
		if err := terminalSvc.Connect(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to register terminal with the payment backend")
		}

		go func() {
			if err := terminalSvc.Run(ctx, source); err != nil {
				log.Error().Err(err).Msg("Payment event listener stopped")
			}
		}()
	}

	srv := server.New(cfg, h, log)
	if err := srv.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
	}

	if enabled {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := terminalSvc.Disconnect(disconnectCtx); err != nil {
			log.Warn().Err(err).Msg("Failed to unregister terminal")
		}
	}
}
