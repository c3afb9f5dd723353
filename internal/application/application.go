package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/psds-microservice/helpy/paths"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/incubator-platform/support-chat/internal/auth"
	"github.com/incubator-platform/support-chat/internal/config"
	"github.com/incubator-platform/support-chat/internal/database"
	"github.com/incubator-platform/support-chat/internal/gateway"
	"github.com/incubator-platform/support-chat/internal/handler"
	"github.com/incubator-platform/support-chat/internal/kafka"
	"github.com/incubator-platform/support-chat/internal/notification"
	"github.com/incubator-platform/support-chat/internal/repository"
	"github.com/incubator-platform/support-chat/internal/router"
	"github.com/incubator-platform/support-chat/internal/service"
)

// API is the api-mode application: REST, WebSocket gateway and the reminder scheduler.
type API struct {
	cfg       *config.Config
	log       *zap.Logger
	httpSrv   *http.Server
	hub       *gateway.Hub
	scheduler *notification.Scheduler
	producer  *kafka.Producer
	mqtt      mqtt.Client
}

// NewAPI builds the dependency graph. Postgres is migrated before the store opens.
func NewAPI(cfg *config.Config, log *zap.Logger) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var (
		store   service.TicketStore
		coaches service.CoachDirectory
		db      *gorm.DB
	)
	switch cfg.StoreDriver {
	case "memory":
		mem := repository.NewMemoryStore()
		store, coaches = mem, mem
		log.Warn("using in-memory ticket store, data is lost on restart")
	default:
		if err := database.MigrateUp(cfg.DatabaseURL(), log); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		var err error
		if db, err = database.Open(cfg.DSN()); err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		store, coaches = repository.NewTicketRepository(db), repository.NewCoachRepository(db)
	}

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicTicket, log.Named("kafka"))
	opts := []service.Option{service.WithLogger(log.Named("support"))}
	if producer.Enabled() {
		opts = append(opts, service.WithProducer(producer))
	}
	svc := service.NewSupportService(store, coaches, opts...)

	var verifier auth.Verifier
	if cfg.Auth.JWTSecret != "" {
		verifier = auth.NewJWTVerifier(cfg.Auth.JWTSecret)
	} else {
		verifier = auth.NewRemoteVerifier(cfg.Auth.ServiceURL, cfg.Auth.InternalKey)
	}
	verifier = auth.NewCachedVerifier(verifier, cfg.Auth.CacheSize, cfg.Auth.CacheTTL)

	hub := gateway.NewHub(log.Named("gateway"))
	ws := gateway.NewServer(svc, verifier, hub,
		gateway.WithAllowedOrigins(cfg.WSAllowedOrigins),
		gateway.WithLogger(log.Named("gateway")),
		gateway.WithRequestTimeout(cfg.WSRequestTimeout),
		gateway.WithSendBuffer(cfg.WSSendBuffer),
	)

	var mailer notification.Mailer = notification.LogMailer{Log: log.Named("mail")}
	if cfg.SMTP.Host != "" {
		mailer = notification.NewSMTPMailer(notification.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			User:     cfg.SMTP.User,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	}
	var (
		pusher     notification.Pusher = notification.LogPusher{Log: log.Named("push")}
		mqttClient mqtt.Client
	)
	if cfg.MQTT.Broker != "" {
		c, err := notification.ConnectMQTT(notification.MQTTConfig{BrokerURL: cfg.MQTT.Broker, ClientID: cfg.MQTT.ClientID}, log.Named("mqtt"))
		if err != nil {
			return nil, fmt.Errorf("mqtt: %w", err)
		}
		mqttClient = c
		pusher = notification.NewMQTTPusher(c, cfg.MQTT.TopicPrefix)
	}
	prefs := notification.NewPreferenceStore(cfg.Notify.DefaultTimezone)
	scheduler := notification.NewScheduler(prefs, mailer, pusher,
		notification.WithTick(cfg.Notify.Tick),
		notification.WithSchedulerLogger(log.Named("scheduler")),
	)

	var ready func(ctx context.Context) error
	if db != nil {
		ready = func(ctx context.Context) error { return database.Ping(db.WithContext(ctx)) }
	}

	h := router.New(router.Handlers{
		Health:       handler.NewHealthHandler(ready),
		Ticket:       handler.NewTicketHandler(svc, ws),
		Notification: handler.NewNotificationHandler(scheduler),
		Gateway:      ws,
		Verifier:     verifier,
		Log:          log.Named("http"),
	})

	// No WriteTimeout: it would cut long-lived WebSocket connections.
	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &API{
		cfg:       cfg,
		log:       log,
		httpSrv:   httpSrv,
		hub:       hub,
		scheduler: scheduler,
		producer:  producer,
		mqtt:      mqttClient,
	}, nil
}

// Run serves until ctx is cancelled, then drains connections.
func (a *API) Run(ctx context.Context) error {
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	a.log.Info("HTTP server listening", zap.String("addr", a.httpSrv.Addr))
	a.log.Info("endpoints",
		zap.String("swagger", base+paths.PathSwagger),
		zap.String("health", base+paths.PathHealth),
		zap.String("ready", base+paths.PathReady),
		zap.String("api", base+"/api/v1/"),
		zap.String("websocket", "ws://"+host+":"+a.cfg.HTTPPort+router.PathWebSocket),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *API) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Hijacked WebSocket connections are not tracked by Shutdown.
	a.hub.CloseAll()
	err := a.httpSrv.Shutdown(shutdownCtx)
	if cerr := a.producer.Close(); cerr != nil {
		a.log.Warn("kafka producer close", zap.Error(cerr))
	}
	if a.mqtt != nil {
		a.mqtt.Disconnect(250)
	}
	if err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	a.log.Info("server stopped")
	return nil
}
