package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/valetudoapp/valetudo/internal/auth"
	"github.com/valetudoapp/valetudo/internal/config"
	"github.com/valetudoapp/valetudo/internal/db"
	"github.com/valetudoapp/valetudo/internal/estimate"
	"github.com/valetudoapp/valetudo/internal/events"
	"github.com/valetudoapp/valetudo/internal/food"
	"github.com/valetudoapp/valetudo/internal/kvstore"
	"github.com/valetudoapp/valetudo/internal/middleware"
	"github.com/valetudoapp/valetudo/internal/nutrition"
	"github.com/valetudoapp/valetudo/internal/scan"
	"github.com/valetudoapp/valetudo/internal/social"
	"github.com/valetudoapp/valetudo/internal/telemetry/metrics"
	"github.com/valetudoapp/valetudo/internal/telemetry/tracing"
	"github.com/valetudoapp/valetudo/internal/workout"
	"github.com/valetudoapp/valetudo/pkg"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server

	config      *config.Config
	versionInfo string

	// nil when running on in-memory repos only
	dbPool *pgxpool.Pool
	// nil when running without redis
	redisClient *redis.Client

	accounts     *auth.Accounts
	authService  *auth.Service
	loginChecker *auth.LoginChecker
	rateLimiter  middleware.RequestRateLimiter

	foodService     *food.Service
	socialService   *social.Service
	workoutService  *workout.Service
	scanService     *scan.Service
	estimateService *estimate.Service

	workoutEvents *events.Bus[events.WorkoutCompleted]
	mealEvents    *events.Bus[events.MealLogged]

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config                  *config.Config
	VersionInfo             string
	RedisPassword           string
	HoneycombTracingEnabled bool
	// Accounts falls back to the demo registry when empty
	Accounts []auth.Account
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	cfg := params.Config

	var dbPool *pgxpool.Pool
	var foodRepo food.Repository
	var socialRepo social.Repository
	var workoutRepo workout.Repository
	if cfg.PostgresHost != "" {
		var err error
		dbPool, err = db.NewDBPool(ctx, db.NewDBPoolParams{
			DBHost:         cfg.PostgresHost,
			DBPort:         cfg.PostgresPort,
			DBName:         cfg.PostgresDBName,
			TracingEnabled: params.HoneycombTracingEnabled,
		})
		if err != nil {
			return nil, fmt.Errorf("new db pool: %w", err)
		}
		if err := dbPool.Ping(ctx); err != nil {
			log.Warnf("failed to ping db: %s", err)
		}
		foodRepo = food.NewRepo(dbPool)
		socialRepo = social.NewRepo(dbPool)
		workoutRepo = workout.NewRepo(dbPool)
	} else {
		log.Warnln("postgres host empty, running on in-memory repos")
		foodRepo = food.NewMemoryRepo()
		socialRepo = social.NewMemoryRepo()
		workoutRepo = workout.NewMemoryRepo()
	}

	var promCollectors []prometheus.Collector
	if dbPool != nil {
		promCollectors = append(promCollectors, pgxpoolprometheus.NewCollector(
			dbPool,
			map[string]string{"db_name": cfg.PostgresDBName},
		))
	}
	promRegistry := metrics.SetupPrometheus(promCollectors...)
	metricsManager := metrics.NewManager("backend", "main", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0)

	var rdb *redis.Client
	var kv kvstore.Store
	var sessions auth.SessionStore
	var rateLimiter middleware.RequestRateLimiter
	if cfg.RedisHost != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
			Password: params.RedisPassword,
			DB:       0, // use default DB
		})
		rdbStatus := rdb.Ping(ctx)
		if err := rdbStatus.Err(); err != nil {
			log.Errorf("--> failed to ping redis: %s", err)
		} else {
			log.Debugf("redis ping: %s", rdbStatus.Val())
		}
		kv = kvstore.NewRedisStore(rdb)
		sessions = auth.NewRedisSessionStore(rdb)
		rateLimiter = redis_rate.NewLimiter(rdb)
	} else {
		log.Warnln("redis host empty, kv store and sessions are in-memory")
		kv = kvstore.NewMemoryStore()
		sessions = auth.NewMemorySessionStore()
		rateLimiter = allowAllRateLimiter{}
	}

	accountList := params.Accounts
	if len(accountList) == 0 {
		accountList = auth.DemoAccounts()
	}
	accounts := auth.NewAccounts(accountList...)
	authService := auth.NewService(accounts, auth.DefaultTTL, sessions)
	go func() {
		for range time.Tick(time.Hour * 8) {
			authService.ScanAndClean(ctx)
		}
	}()

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, "valetudo-backend", rdb)
	if err != nil {
		return nil, err
	}

	tracedHttpClient := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	nutritionApiUrl := cfg.NutritionAPIBaseURL
	if nutritionApiUrl == "" {
		nutritionApiUrl = nutrition.DefaultApiUrl
	}
	nutritionClient := nutrition.NewClient(nutritionApiUrl, tracedHttpClient, kv)

	estimateApiUrl := cfg.EstimateAPIBaseURL
	if estimateApiUrl == "" {
		estimateApiUrl = estimate.DefaultApiUrl
	}
	estimateClient := estimate.NewClient(estimateApiUrl, tracedHttpClient)

	workoutEvents := events.NewBus[events.WorkoutCompleted]()
	mealEvents := events.NewBus[events.MealLogged]()

	foodService := food.NewService(foodRepo, kv, mealEvents)
	socialService := social.NewService(socialRepo, cfg.FeedPostsLimit)
	workoutService := workout.NewService(workoutRepo, kv, workoutEvents)

	// the backend has no frame source of its own, clients scan with
	// their device camera and use the manual lookup path here
	scanService := scan.NewService(
		scan.NoCamera{},
		scan.DetectorPicker(),
		nutritionClient,
		foodService,
		metricsManager,
	)
	estimateService := estimate.NewService(
		estimateClient,
		kv,
		scan.NoCamera{},
		foodService,
		metricsManager,
	)

	go socialService.SubscribeToWorkouts(ctx, workoutEvents)

	if cfg.SeedSocialData {
		seeded, err := socialService.SeedDemoData(ctx)
		if err != nil {
			log.Errorf("failed to seed social feed: %s", err)
		} else if seeded {
			log.Debugln("social feed seeded with demo data")
		}
	}

	return &Server{
		config:      cfg,
		versionInfo: params.VersionInfo,

		dbPool:      dbPool,
		redisClient: rdb,

		accounts:     accounts,
		authService:  authService,
		loginChecker: auth.NewLoginChecker(auth.DefaultTTL, sessions, accounts),
		rateLimiter:  rateLimiter,

		foodService:     foodService,
		socialService:   socialService,
		workoutService:  workoutService,
		scanService:     scanService,
		estimateService: estimateService,

		workoutEvents: workoutEvents,
		mealEvents:    mealEvents,

		// telemetry
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}, nil
}

func (s *Server) routerSetup() (*mux.Router, error) {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("main-router"))

	r.HandleFunc("/", s.handleRoot).Methods("GET", "POST", "OPTIONS").Name("root")
	r.HandleFunc("/version", s.handleVersionInfo).Methods("GET").Name("version")
	r.HandleFunc("/health", s.handleHealth).Methods("GET").Name("health")

	authHandler := auth.NewHandler(s.authService)
	authHandler.SetupRoutes(r, s.rateLimiter, s.metricsManager, s.config.LoginRateLimitAllowedPerMin)

	foodHandler := food.NewHandler(s.foodService, s.loginChecker, s.metricsManager)
	r.HandleFunc("/food/custom", foodHandler.HandleListCustomFoods).Methods("GET", "OPTIONS").Name("list-custom-foods")
	r.HandleFunc("/food/custom", foodHandler.HandleCreateCustomFood).Methods("POST", "OPTIONS").Name("new-custom-food")
	r.HandleFunc("/food/custom/{id}/favorite", foodHandler.HandleSetFavoriteFood).Methods("PUT", "OPTIONS").Name("favorite-custom-food")
	r.HandleFunc("/food/custom/{id}", foodHandler.HandleDeleteCustomFood).Methods("DELETE", "OPTIONS").Name("remove-custom-food")
	r.HandleFunc("/food/common", foodHandler.HandleListCommonMeals).Methods("GET", "OPTIONS").Name("list-common-meals")
	r.HandleFunc("/food/common/{id}/favorite", foodHandler.HandleSetFavoriteCommonMeal).Methods("PUT", "OPTIONS").Name("favorite-common-meal")
	r.HandleFunc("/food/meals", foodHandler.HandleListMealEntries).Methods("GET", "OPTIONS").Name("list-meals")
	r.HandleFunc("/food/meals", foodHandler.HandleAddMealEntry).Methods("POST", "OPTIONS").Name("new-meal")
	r.HandleFunc("/food/meals/{id}", foodHandler.HandleUpdateMealEntry).Methods("PUT", "OPTIONS").Name("update-meal")
	r.HandleFunc("/food/meals/{id}", foodHandler.HandleDeleteMealEntry).Methods("DELETE", "OPTIONS").Name("remove-meal")

	socialHandler := social.NewHandler(s.socialService, s.loginChecker, s.metricsManager)
	r.HandleFunc("/feed/posts", socialHandler.HandleFeed).Methods("GET", "OPTIONS").Name("feed")
	r.HandleFunc("/feed/posts", socialHandler.HandleCreatePost).Methods("POST", "OPTIONS").Name("new-post")
	r.HandleFunc("/feed/posts/{id}/like", socialHandler.HandleSetLike).Methods("PUT", "OPTIONS").Name("like-post")
	r.HandleFunc("/feed/posts/{id}/pin", socialHandler.HandleSetPinned).Methods("PUT", "OPTIONS").Name("pin-post")
	r.HandleFunc("/feed/posts/{id}/comments", socialHandler.HandleAddComment).Methods("POST", "OPTIONS").Name("new-comment")

	workoutHandler := workout.NewHandler(s.workoutService, s.loginChecker, s.metricsManager)
	r.HandleFunc("/workout/routines", workoutHandler.HandleListRoutines).Methods("GET", "OPTIONS").Name("list-routines")
	r.HandleFunc("/workout/routines", workoutHandler.HandleCreateRoutine).Methods("POST", "OPTIONS").Name("new-routine")
	r.HandleFunc("/workout/routines/{id}", workoutHandler.HandleDeleteRoutine).Methods("DELETE", "OPTIONS").Name("remove-routine")
	r.HandleFunc("/workout/sessions", workoutHandler.HandleListSessions).Methods("GET", "OPTIONS").Name("list-sessions")
	r.HandleFunc("/workout/session", workoutHandler.HandleLiveSession).Methods("GET", "OPTIONS").Name("live-session")
	r.HandleFunc("/workout/session", workoutHandler.HandleDiscardSession).Methods("DELETE", "OPTIONS").Name("discard-session")
	r.HandleFunc("/workout/session/start", workoutHandler.HandleStartSession).Methods("POST", "OPTIONS").Name("start-session")
	r.HandleFunc("/workout/session/complete", workoutHandler.HandleCompleteSession).Methods("POST", "OPTIONS").Name("complete-session")
	r.HandleFunc("/workout/session/exercises", workoutHandler.HandleAddExercise).Methods("POST", "OPTIONS").Name("add-exercise")
	r.HandleFunc("/workout/session/exercises/{exerciseIdx}", workoutHandler.HandleRemoveExercise).Methods("DELETE", "OPTIONS").Name("remove-exercise")
	r.HandleFunc("/workout/session/exercises/{exerciseIdx}/sets", workoutHandler.HandleAddSet).Methods("POST", "OPTIONS").Name("add-set")
	r.HandleFunc("/workout/session/exercises/{exerciseIdx}/sets/{setIdx}", workoutHandler.HandleUpdateSet).Methods("PATCH", "OPTIONS").Name("update-set")
	r.HandleFunc("/workout/session/exercises/{exerciseIdx}/sets/{setIdx}", workoutHandler.HandleRemoveSet).Methods("DELETE", "OPTIONS").Name("remove-set")
	r.HandleFunc("/workout/last-sets", workoutHandler.HandleLastSets).Methods("GET", "OPTIONS").Name("last-sets")

	scanHandler := scan.NewHandler(s.scanService, s.loginChecker)
	r.HandleFunc("/scan/lookup", scanHandler.HandleLookup).Methods("POST", "OPTIONS").Name("scan-lookup")
	r.HandleFunc("/scan/commit", scanHandler.HandleCommit).Methods("POST", "OPTIONS").Name("scan-commit")
	r.HandleFunc("/scan/start", scanHandler.HandleStart).Methods("POST", "OPTIONS").Name("scan-start")
	r.HandleFunc("/scan/stop", scanHandler.HandleStop).Methods("POST", "OPTIONS").Name("scan-stop")
	r.HandleFunc("/scan/state", scanHandler.HandleState).Methods("GET", "OPTIONS").Name("scan-state")

	estimateHandler := estimate.NewHandler(s.estimateService, s.loginChecker)
	r.HandleFunc("/estimate", estimateHandler.HandleEstimate).Methods("POST", "OPTIONS").Name("estimate")
	r.HandleFunc("/estimate/key", estimateHandler.HandleSetApiKey).Methods("POST", "OPTIONS").Name("estimate-key")
	r.HandleFunc("/estimate/commit", estimateHandler.HandleCommit).Methods("POST", "OPTIONS").Name("estimate-commit")

	// all the rest - unhandled paths
	r.HandleFunc("/{unknown}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}).Methods("GET", "POST", "PUT", "OPTIONS").Name("unknown")

	authMiddleware := middleware.NewAuthMiddlewareHandler(s.loginChecker)

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors())
	r.Use(authMiddleware.AuthCheck())
	r.Use(middleware.DrainAndCloseRequest())

	return r, nil
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	pkg.WriteTextResponseOK(w, "I'm OK, thanks ;)")
}

func (s *Server) handleVersionInfo(w http.ResponseWriter, _ *http.Request) {
	pkg.WriteTextResponseOK(w, s.versionInfo)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sessionsCount, err := s.workoutService.SessionsCount(r.Context())
	if err != nil {
		log.Errorf("health, sessions count: %s", err)
		http.Error(w, `{"status":"degraded"}`, http.StatusInternalServerError)
		return
	}
	pkg.WriteJSONResponseOK(w, fmt.Sprintf(`{"status":"ok","workoutSessions":%d}`, sessionsCount))
}

func (s *Server) Serve(ctx context.Context, host string, port int) {
	router, err := s.routerSetup()
	if err != nil {
		log.Fatalf("failed to setup router: %s", err)
	}

	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      router,
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(
		s.promRegistry,
		promhttp.HandlerOpts{},
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	s.otelShutdown()
	log.Trace("otel shut down ...")

	// stop running scan pipelines first, their commit path goes
	// through the repos
	s.scanService.Shutdown()

	s.workoutEvents.Close()
	s.mealEvents.Close()

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}

	if s.dbPool != nil {
		log.Debugln("closing db pool ...")
		s.dbPool.Close() // blocking operation
		log.Debugln("db pool closed")
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown http server")
	}
	log.Warnln("server shut down")

	if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown metrics http server")
	}
	log.Warnln("metrics server shut down")
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}

// allowAllRateLimiter replaces the redis backed limiter when redis is
// not configured (local-only mode).
type allowAllRateLimiter struct{}

func (allowAllRateLimiter) Allow(
	_ context.Context, _ string, limit redis_rate.Limit,
) (*redis_rate.Result, error) {
	return &redis_rate.Result{Limit: limit, Allowed: 1}, nil
}
