package app

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kickzhub/storefront/internal/domain/address"
	"github.com/kickzhub/storefront/internal/domain/notification"
	"github.com/kickzhub/storefront/internal/domain/order"
	"github.com/kickzhub/storefront/internal/domain/revenue"
	"github.com/kickzhub/storefront/internal/handler"
	"github.com/kickzhub/storefront/internal/notification/email"
	"github.com/kickzhub/storefront/internal/notification/kafka"
	"github.com/kickzhub/storefront/pkg/health"
	"github.com/kickzhub/storefront/pkg/httpmiddleware"
)

// Telemetry provides tracing and metrics. *app.Telemetry from
// github.com/go-faster/sdk implements it.
type Telemetry = httpmiddleware.TelemetryProvider

// Run creates all dependencies, starts the HTTP server and the notification
// workers, and handles graceful shutdown. It is the single wiring point for
// the application.
func Run(ctx context.Context, lg *zap.Logger, m Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage.Driver),
	)

	backend, err := OpenBackend(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	// Notification senders.
	senders, closers, err := newSenders(cfg.Notify)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				lg.Warn("Close sender", zap.Error(err))
			}
		}
	}()
	dispatcher, err := notification.NewDispatcher(notification.Options{
		Workers:       cfg.Notify.Workers,
		QueueSize:     cfg.Notify.QueueSize,
		SendTimeout:   cfg.Notify.SendTimeout,
		MeterProvider: m.MeterProvider(),
	}, senders...)
	if err != nil {
		return errors.Wrap(err, "create dispatcher")
	}

	// Domain services.
	orderService, err := order.NewService(backend.OrderTx, backend.Orders, backend.Products, dispatcher, order.Options{
		TotalPolicy:     order.TotalPolicy(cfg.Orders.TotalPolicy),
		RestockOnCancel: cfg.Orders.RestockOnCancel,
		InitialStatus:   order.Status(cfg.Orders.InitialStatus),
		TracerProvider:  m.TracerProvider(),
		MeterProvider:   m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	addressService := address.NewService(backend.AddressTx, backend.Addresses, backend.Users)
	loc, err := cfg.Revenue.Location()
	if err != nil {
		return err
	}
	revenueAggregator := revenue.NewAggregator(backend.Revenue, loc)

	// Health checks.
	probes := health.New(3)
	probes.Add(health.Readiness, cfg.Storage.Driver, 5*time.Second, backend.Ping)
	probes.Add(health.Readiness, "notifications", time.Second,
		health.Backlog(dispatcher.Pending, cfg.Notify.QueueSize*9/10))
	probes.Add(health.Liveness, "goroutines", time.Second, health.Goroutines(10000))

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", probes.Live)
	mux.HandleFunc("GET /readyz", probes.Ready)
	handler.New(orderService, addressService, revenueAggregator).Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				Origins: cfg.CORS.Origins,
				MaxAge:  cfg.CORS.MaxAge,
			}),
			httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
				PerSecond: cfg.RateLimit.PerSecond,
				Burst:     cfg.RateLimit.Burst,
				IdleTTL:   cfg.RateLimit.IdleTTL,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("storefront-api", m),
			httpmiddleware.LogRequests(),
		),
	}

	// Notifications outlive the request context so orders accepted while
	// draining are still delivered.
	notifyCtx, stopNotify := context.WithCancel(context.WithoutCancel(ctx))
	defer stopNotify()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(notifyCtx)
	})
	g.Go(func() error {
		return probes.Run(gctx, 10*time.Second)
	})
	g.Go(func() error {
		// Graceful shutdown: wait for cancellation, drain, then stop.
		<-gctx.Done()
		probes.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		stopNotify()

		stats := dispatcher.Stats()
		lg.Info("Notifications stopped",
			zap.Int64("sent", stats.Sent),
			zap.Int64("failed", stats.Failed),
			zap.Int64("dropped", stats.Dropped),
		)
		return nil
	})
	g.Go(func() error {
		probes.SetReady(true)
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	return g.Wait()
}

// newSenders builds the configured delivery channels. With none configured
// placed orders are only logged.
func newSenders(cfg NotifyConfig) ([]notification.Sender, []io.Closer, error) {
	var (
		senders []notification.Sender
		closers []io.Closer
	)
	if cfg.SMTP.Host != "" {
		client, err := email.NewClient(email.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			TLS:      cfg.SMTP.TLS,
		})
		if err != nil {
			return nil, nil, errors.Wrap(err, "smtp")
		}
		senders = append(senders, email.NewSender(client, cfg.SMTP.From))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		p := kafka.NewPublisher(kafka.NewWriter(kafka.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			WriteTimeout: cfg.Kafka.WriteTimeout,
		}))
		senders = append(senders, p)
		closers = append(closers, p)
	}
	return senders, closers, nil
}
