package main

import (
	"context"
	"fmt"
	"time"

	"form-backend/auth"
	"form-backend/config"
	"form-backend/db"
	"form-backend/logging"
	"form-backend/server"
	"form-backend/services"
	"form-backend/session"

	"github.com/alexedwards/scs/v2"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const startupTimeout = 10 * time.Second

func runServe(opts serveOptions) error {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}
	if opts.port != 0 {
		cfg.Port = opts.port
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	fx.New(appOptions(cfg)).Run()
	return nil
}

func appOptions(cfg *config.Config) fx.Option {
	return fx.Options(
		fx.Supply(cfg),
		fx.Provide(
			newLogger,
			server.NewMetrics,
			newMongo,
			newDatabase,
			newSessionStore,
			newSessionManager,
			newUsers,
			newSubmissions,
			newTokens,
			newAuthHandler,
			newFormHandler,
			newEngine,
			newServer,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(registerHooks),
	)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogLevel, cfg.Production())
}

// newMongo fails startup when the database cannot be reached.
func newMongo(lc fx.Lifecycle, cfg *config.Config, metrics *server.Metrics, log *zap.Logger) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	client, err := db.Connect(ctx, cfg.MongoURI)
	if err != nil {
		metrics.SetDatabaseUp(false)
		return nil, err
	}
	metrics.SetDatabaseUp(true)
	log.Info("connected to mongodb", zap.String("database", cfg.Database))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Disconnect(ctx)
		},
	})
	return client, nil
}

func newDatabase(client *mongo.Client, cfg *config.Config) *mongo.Database {
	return client.Database(cfg.Database)
}

func newSessionStore(database *mongo.Database) (scs.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	return db.NewSessionStore(ctx, database)
}

func newSessionManager(cfg *config.Config, store scs.Store, log *zap.Logger) *session.Manager {
	if cfg.Production() && cfg.SessionSecret == config.DefaultSessionSecret {
		log.Warn("SESSION_SECRET is the default value in production")
	}
	return session.New(session.Config{
		Secret:   cfg.SessionSecret,
		Lifetime: session.DefaultLifetime,
		Secure:   cfg.Production(),
	}, store, log)
}

func newUsers(database *mongo.Database) (auth.UserStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	return db.NewUsers(ctx, database)
}

func newSubmissions(database *mongo.Database) (services.SubmissionStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	return db.NewSubmissions(ctx, database)
}

func newTokens(cfg *config.Config) *auth.Tokens {
	return auth.NewTokens(cfg.TokenSecret(), auth.DefaultTokenTTL)
}

func newAuthHandler(cfg *config.Config, users auth.UserStore, tokens *auth.Tokens, sessions *session.Manager, log *zap.Logger) *auth.Handler {
	return auth.NewHandler(users, tokens, sessions, auth.Options{
		Google:      auth.NewGoogleConfig(cfg),
		RedirectURL: cfg.CORSOrigin,
	}, log)
}

func newFormHandler(cfg *config.Config, store services.SubmissionStore, tokens *auth.Tokens, sessions *session.Manager, log *zap.Logger) *services.Handler {
	uploads := services.NewUploads(cfg.UploadDir, config.UploadPrefix, cfg.MaxUploadBytes)
	return services.NewHandler(store, uploads, auth.RequireAuth(tokens, sessions), log)
}

type engineParams struct {
	fx.In

	Config   *config.Config
	Log      *zap.Logger
	Sessions *session.Manager
	Metrics  *server.Metrics
	Auth     *auth.Handler
	Forms    *services.Handler
}

func newEngine(p engineParams) *gin.Engine {
	if p.Config.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	return server.NewEngine(server.Pipeline{
		Config:   p.Config,
		Log:      p.Log,
		Sessions: p.Sessions,
		Metrics:  p.Metrics,
		Groups: []server.Group{
			{Prefix: config.AuthPrefix, Routes: p.Auth},
			{Prefix: config.FormPrefix, Routes: p.Forms},
		},
	})
}

func newServer(cfg *config.Config, engine *gin.Engine, metrics *server.Metrics, log *zap.Logger) *server.Server {
	return server.New(cfg, server.Handler(engine), metrics, log)
}

func registerHooks(lc fx.Lifecycle, srv *server.Server, shutdowner fx.Shutdowner, log *zap.Logger) {
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if err := srv.Start(); err != nil {
				return fmt.Errorf("start server: %w", err)
			}
			go func() {
				select {
				case err := <-srv.Errors():
					log.Error("server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				case <-done:
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(done)
			_ = log.Sync()
			return srv.Shutdown(ctx)
		},
	})
}
