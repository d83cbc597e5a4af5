package cmd

import (
	"context"
	"fmt"
	"net"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"crm-backend/config"
	"crm-backend/controllers"
	"crm-backend/database"
	"crm-backend/middlewares"
	"crm-backend/routes"
	"crm-backend/services"
	"crm-backend/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		app := fx.New(serverModule(cfg), fx.NopLogger)
		if err := app.Err(); err != nil {
			return err
		}
		app.Run()
		return nil
	},
}

func serverModule(cfg config.Config) fx.Option {
	return fx.Options(
		fx.Supply(cfg),
		fx.StopTimeout(cfg.ShutdownTimeout),
		fx.Provide(
			newLogger,
			newApp,
			newCustomerService,
			controllers.NewCustomerController,
			newRouteOptions,
		),
		storeModule(cfg),
		// telemetry first so the SQL driver picks up the providers
		fx.Invoke(setupTelemetry),
		fx.Invoke(routes.Register),
		fx.Invoke(startServer),
	)
}

// storeModule selects the record store for cfg.StoreDriver.
func storeModule(cfg config.Config) fx.Option {
	if cfg.StoreDriver == config.StoreDriverMemory {
		return fx.Provide(func(log zerolog.Logger) services.CustomerStore {
			log.Warn().Msg("using in-memory customer store; data is lost on exit")
			return database.NewMemoryCustomerStore()
		})
	}
	return fx.Provide(newDB, newPostgresStore)
}

func setupTelemetry(lc fx.Lifecycle, cfg config.Config) error {
	shutdown, err := telemetry.Setup(cfg.OtelExporter)
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{OnStop: shutdown})
	return nil
}

func newDB(lc fx.Lifecycle, cfg config.Config, log zerolog.Logger) (*gorm.DB, error) {
	db, err := database.Connect(context.Background(), cfg.DatabaseURL, log)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info().Msg("database connected and migrated")

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return database.Close(db)
		},
	})
	return db, nil
}

func newPostgresStore(lc fx.Lifecycle, cfg config.Config, log zerolog.Logger, db *gorm.DB) (services.CustomerStore, error) {
	store := database.NewCustomerStore(db)
	if cfg.RedisURL == "" {
		return store, nil
	}

	rdb, err := database.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// cache is optional: a failed ping only degrades to direct reads
			if err := rdb.Ping(ctx).Err(); err != nil {
				log.Warn().Err(err).Msg("redis unreachable, customer cache will miss")
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return rdb.Close()
		},
	})
	return database.NewCachedCustomerStore(store, rdb, cfg.CacheTTL, log), nil
}

func newCustomerService(store services.CustomerStore, log zerolog.Logger) *services.CustomerService {
	return services.NewCustomerService(store, services.WithLogger(log.With().Str("component", "customers").Logger()))
}

type routeParams struct {
	fx.In

	Config config.Config
	Log    zerolog.Logger
	// Only present with the postgres store.
	DB *gorm.DB `optional:"true"`
}

func newRouteOptions(p routeParams) routes.Options {
	opts := routes.Options{Prefix: p.Config.APIPrefix}
	if p.Config.AuthEnabled() {
		opts.Auth = middlewares.RequireBearer([]byte(p.Config.JWTSecret))
	}
	if p.DB != nil {
		opts.Idempotency = middlewares.Idempotency(p.DB, p.Log)
	}
	return opts
}

func startServer(lc fx.Lifecycle, sd fx.Shutdowner, app *fiber.App, cfg config.Config, log zerolog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", ":"+cfg.Port)
			if err != nil {
				return err
			}
			log.Info().Str("addr", ln.Addr().String()).Msg("API server started")
			go func() {
				if err := app.Listener(ln); err != nil {
					log.Error().Err(err).Msg("HTTP server stopped")
					_ = sd.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("stopping HTTP server")
			return app.ShutdownWithContext(ctx)
		},
	})
}
