package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/accordsai/checkoutlane/pkg/db"
	"github.com/accordsai/checkoutlane/services/checkout/internal/api"
	"github.com/accordsai/checkoutlane/services/checkout/internal/config"
	"github.com/accordsai/checkoutlane/services/checkout/internal/idempotency"
	"github.com/accordsai/checkoutlane/services/checkout/internal/mapper"
	"github.com/accordsai/checkoutlane/services/checkout/internal/notify"
	"github.com/accordsai/checkoutlane/services/checkout/internal/order"
	"github.com/accordsai/checkoutlane/services/checkout/internal/payment"
	"github.com/accordsai/checkoutlane/services/checkout/internal/session"
	"github.com/accordsai/checkoutlane/services/checkout/internal/store"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	app := &cli.App{
		Name:   "checkout",
		Usage:  "Agentic Commerce Protocol checkout session server",
		Action: func(c *cli.Context) error { return serve(c.Context, log) },
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP server",
				Action: func(c *cli.Context) error { return serve(c.Context, log) },
			},
			{
				Name:  "migrate",
				Usage: "create the checkout tables in DATABASE_URL",
				Action: func(c *cli.Context) error {
					env, err := loadEnv(log)
					if err != nil {
						return err
					}
					pool, err := db.Connect(c.Context, env.DatabaseURL)
					if err != nil {
						return err
					}
					defer pool.Close()
					if err := store.Migrate(c.Context, pool); err != nil {
						return err
					}
					log.Info("checkout schema applied")
					return nil
				},
			},
			{
				Name:  "check-config",
				Usage: "validate the environment and the channels file, then exit",
				Action: func(c *cli.Context) error {
					env, err := loadEnv(log)
					if err != nil {
						return err
					}
					f, channels, err := loadChannels(env)
					if err != nil {
						return err
					}
					for code := range f.Channels {
						ch, _ := channels.Get(code)
						log.WithFields(logrus.Fields{
							"channel":       code,
							"currency":      ch.Currency,
							"has_token":     ch.Gateway.BearerToken != "",
							"has_psp":       ch.Gateway.PSPURL != "",
							"has_webhook":   ch.Gateway.WebhookURL != "",
							"payment_code":  ch.Gateway.PaymentMethodCode,
							"products":      len(f.Catalog.Products),
							"shipping_opts": len(f.Catalog.ShippingMethods),
						}).Info("channel ok")
					}
					return nil
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("checkout exited")
	}
}

func loadEnv(log *logrus.Logger) (config.Env, error) {
	env, err := config.LoadEnv()
	if err != nil {
		return config.Env{}, err
	}
	level, err := logrus.ParseLevel(env.LogLevel)
	if err != nil {
		return config.Env{}, errors.Wrapf(err, "LOG_LEVEL %q", env.LogLevel)
	}
	log.SetLevel(level)
	return env, nil
}

func loadChannels(env config.Env) (*config.File, *config.Channels, error) {
	f, err := config.LoadFile(env.ChannelsFile)
	if err != nil {
		return nil, nil, err
	}
	channels, err := config.NewChannels(f, env.DefaultChannel)
	if err != nil {
		return nil, nil, err
	}
	return f, channels, nil
}

func serve(ctx context.Context, log *logrus.Logger) error {
	env, err := loadEnv(log)
	if err != nil {
		return err
	}
	f, channels, err := loadChannels(env)
	if err != nil {
		return err
	}

	memOrders := order.NewMemoryStore()
	var (
		sessions store.Repository = store.NewMemory(memOrders)
		orders   order.Store      = memOrders
		numbers  order.Sequence   = &order.MemorySequence{}
		pool     *pgxpool.Pool
	)
	if env.DatabaseURL != "" {
		pool, err = db.Connect(ctx, env.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		sessions = store.New(pool)
		orders = order.NewPGStore(pool)
		numbers = order.PGSequence{DB: pool}
		log.Info("using postgres storage")
	} else {
		log.Warn("DATABASE_URL not set, sessions and orders are kept in memory")
	}

	catalog := f.Catalog.Build()
	workflow := order.NewWorkflow()
	calculators := order.DefaultCalculators()
	svc := &session.Service{
		Sessions:  sessions,
		Orders:    orders,
		Mutator:   &order.Processor{Catalog: catalog, Calculators: calculators, Numbers: numbers},
		Workflow:  workflow,
		Addresses: mapper.AddressDecoder{Provinces: catalog, Log: log},
		Serializer: mapper.Serializer{
			Fulfillment:   mapper.Fulfillment{Methods: catalog, Calculators: calculators, Log: log},
			PermalinkBase: channels.PermalinkBase,
		},
		Capturer: &payment.Capturer{PSP: payment.NewClient(env.PSPTimeout), Workflow: workflow, Log: log},
		Events:   notify.New(channels, env.WebhookTimeout, log),
		Guard:    idempotency.New(sessions),
		Log:      log,
	}
	srv := &api.Server{
		Sessions: svc,
		Channels: channels,
		Log:      log,

		RateLimitRPS:       env.RateLimitRPS,
		RateLimitBurst:     env.RateLimitBurst,
		TrustProxy:         env.TrustProxy,
		SignatureTolerance: env.SigTolerance,
	}

	httpServer := &http.Server{
		Addr:              ":" + env.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", httpServer.Addr).Info("checkout server listening")
		errCh <- httpServer.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	log.Info("checkout server stopped")
	return nil
}
