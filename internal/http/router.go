package http

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/geocoder89/eventhub/internal/auth"
	"github.com/geocoder89/eventhub/internal/cache"
	"github.com/geocoder89/eventhub/internal/config"
	"github.com/geocoder89/eventhub/internal/engine"
	"github.com/geocoder89/eventhub/internal/http/handlers"
	"github.com/geocoder89/eventhub/internal/http/middlewares"
	"github.com/geocoder89/eventhub/internal/keyedlock"
	"github.com/geocoder89/eventhub/internal/notifications"
	"github.com/geocoder89/eventhub/internal/observability"
	"github.com/geocoder89/eventhub/internal/queue/redisclient"
	"github.com/geocoder89/eventhub/internal/realtime"
	"github.com/geocoder89/eventhub/internal/sideeffects"

	"github.com/geocoder89/eventhub/internal/domain/user"
	"github.com/geocoder89/eventhub/internal/repo/postgres"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

func NewRouter(log *slog.Logger, pool *pgxpool.Pool, cfg config.Config) *gin.Engine {
	cfgEnv := os.Getenv("APP_ENV")

	if cfgEnv != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	redis := redisclient.New(redisclient.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(RequestLogger(log))
	r.Use(middlewares.CORSMiddleware([]string{
		"http://localhost:3000",
	}))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.MaxBodyBytes(1 << 20)) //1MB max body
	r.Use(middlewares.RequireJSON())         // Require JSON content type for post and put requests.

	readyCheck := func() error {
		// postgres ping
		if pool != nil {

			ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
			defer cancel()
			err := pool.Ping(ctx)

			if err != nil {
				return err
			}
		}

		// Redis ping

		{
			ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
			defer cancel()

			err := redis.Ping(ctx)

			if err != nil {
				return err
			}
		}

		return nil
	}

	// health
	h := handlers.NewHealthHandler(readyCheck)

	// wire up repositories
	prom := observability.NewProm(prometheus.NewRegistry())
	eventsRepo := postgres.NewEventsRepo(pool)
	registrationRepo := postgres.NewRegistrationsRepo(pool, prom)
	usersRepo := postgres.NewUsersRepo(pool)
	refreshTokensRepo := postgres.NewRefreshTokensRepo(pool)
	jobsRepo := postgres.NewJobsRepo(pool, prom)

	// shared engine infrastructure: cache (C3), process-local keyed lock
	// (C2), realtime fan-out (C11, relayed across replicas via Redis
	// pub/sub), and the bounded side-effect dispatcher (C12).
	sharedCache := cache.New(cfg.EventCacheTTL)
	locker := keyedlock.New()
	hub := realtime.NewHub(prom.RealtimeDrops)
	hub.WithRedis(redis.Raw())

	notifier := notifications.NewProtectedNotifier(
		notifications.NewLogNotifier(),
		notifications.ProtectedNotifierConfig{},
	)
	dispatcher, err := sideeffects.New(context.Background(), notifier, cfg.SideEffectPoolSize, log)
	if err != nil {
		log.Error("sideeffects: dispatcher init failed", "err", err)
		os.Exit(1)
	}

	eng := engine.New(
		eventsRepo,
		registrationRepo,
		usersRepo,
		locker,
		sharedCache,
		broadcasterAdapter{hub: hub},
		dispatcherAdapter{d: dispatcher},
		log,
		cfg.DefaultTimezone,
	)

	// JWT Manager
	jwtManager := auth.NewManager(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute, // 60mins
		time.Duration(cfg.JWTRefreshTTLDays)*24*time.Hour,
	)
	// Wire up more handler
	eventsHandler := handlers.NewEventsHandlerWithCache(eventsRepo, sharedCache)
	registrationHandler := handlers.NewRegistrationHandler(registrationRepo)
	jobsHandler := handlers.NewJobsHandler(jobsRepo)
	authHandler := handlers.NewAuthHandler(usersRepo, usersRepo, jwtManager, refreshTokensRepo, cfg)
	engineHandler := handlers.NewEngineHandler(eng, nil)
	authMiddleware := middlewares.NewAuthMiddleware(jwtManager)

	// rate limiter middleware

	loginLimiter := middlewares.NewRateLimiter(5, 1*time.Minute)
	signupLimiter := middlewares.NewRateLimiter(3, 1*time.Minute)
	refreshLimiter := middlewares.NewRateLimiter(10, 1*time.Minute)
	registerLimiter := middlewares.NewRateLimiter(5, 1*time.Minute)

	// public routes
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	r.POST("/signup", signupLimiter.RateLimiterMiddleware(middlewares.KeyByIP), authHandler.SignUp)
	r.POST("/login", loginLimiter.RateLimiterMiddleware(middlewares.KeyByIP), authHandler.Login)
	r.POST("/auth/refresh", refreshLimiter.RateLimiterMiddleware(middlewares.KeyByIP), authHandler.Refresh)
	r.POST("/auth/logout", authHandler.Logout)

	// public events browsing.
	r.GET("/events", eventsHandler.ListEvents)
	r.GET("/events/:id", eventsHandler.GetEventById)
	r.GET("/events/time-conflict", engineHandler.TimeConflict)
	r.GET("/events/:id/has-registrations", engineHandler.HasRegistrations)

	// authenticated routes only authenticated users, can access this route.

	authed := r.Group("/")

	authed.Use(authMiddleware.RequireAuth())

	{
		authed.POST("/events/:id/signup", registerLimiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP), engineHandler.Signup)
		authed.POST("/events/:id/cancel", engineHandler.Cancel)
		authed.POST("/events/:id/assign", engineHandler.Assign)
		authed.POST("/events/:id/move", engineHandler.Move)
		authed.POST("/events/:id/remove", engineHandler.Remove)
		authed.POST("/events/:id/workshop-topic/:group", engineHandler.SetWorkshopTopic)
		authed.POST("/events/:id/update", engineHandler.UpdateEvent)
		authed.GET("/events/:id/registrations", registrationHandler.ListForEvent)
		authed.POST("/events/:id/publish", jobsHandler.PublishEvent)
	}

	// admin authorized route set up.

	admin := authed.Group("/")
	admin.Use(authMiddleware.RequireAnyRole(string(user.RoleSuperAdmin), string(user.RoleAdministrator)))

	{
		admin.POST("/events", eventsHandler.CreateEvent)
		admin.DELETE("/events/:id", eventsHandler.DeleteEvent)
		// event registration route
	}

	return r
}
