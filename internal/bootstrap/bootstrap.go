package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"voice-quiz-server/internal/app/services"
	domainauth "voice-quiz-server/internal/domain/auth"
	"voice-quiz-server/internal/domain/evaluation"
	"voice-quiz-server/internal/domain/eventbus"
	domainimage "voice-quiz-server/internal/domain/image"
	"voice-quiz-server/internal/domain/session"
	"voice-quiz-server/internal/domain/transcription"
	platformconfig "voice-quiz-server/internal/platform/config"
	platformerrors "voice-quiz-server/internal/platform/errors"
	platformlogging "voice-quiz-server/internal/platform/logging"
	platformobservability "voice-quiz-server/internal/platform/observability"
	platformstorage "voice-quiz-server/internal/platform/storage"
	httptransport "voice-quiz-server/internal/transport/http"
	"voice-quiz-server/internal/transport/http/answers"
	"voice-quiz-server/internal/transport/http/gamesessions"
	"voice-quiz-server/internal/transport/http/system"
	"voice-quiz-server/internal/transport/ws"
)

const (
	busWorkers   = 2
	busQueueSize = 256
	wsPath       = "/ws/answer"
	wsQuizPath   = "/ws/quiz"
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	configPath            string
	config                *platformconfig.Config
	logger                *platformlogging.Logger
	metrics               *platformobservability.Metrics
	observabilityShutdown platformobservability.ShutdownFunc
	db                    *gorm.DB
	bus                   *eventbus.Bus
	store                 session.Store
	sessions              *session.Service
	transcriber           *transcription.Client
	evaluator             *evaluation.Client
	images                *domainimage.Pipeline
	verifier              *domainauth.Verifier
	quiz                  *services.QuizService
	hub                   *ws.Hub
}

// Run loads configuration, wires every component and serves until SIGINT
// or SIGTERM.
func Run(ctx context.Context) error {
	state := &appState{}
	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		state.close()
		return err
	}
	defer state.close()

	logger := state.logger
	logBootstrapGraph(steps, logger)

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	handler, err := buildHTTPHandler(groupCtx, state)
	if err != nil {
		cancel()
		return err
	}
	startHTTPServer(state, handler, group, groupCtx)

	return waitForShutdown(signalCtx, cancel, logger, group)
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	logger.InfoTag("Bootstrap", "init graph:")
	for _, step := range steps {
		if len(step.DependsOn) == 0 {
			logger.InfoTag("Bootstrap", "  %s (%s)", step.ID, step.Title)
			continue
		}
		logger.InfoTag("Bootstrap", "  %s (%s) <- %s", step.ID, step.Title, strings.Join(step.DependsOn, ", "))
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(platformerrors.KindBootstrap, "execute init steps", "nil bootstrap state")
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(platformerrors.KindBootstrap, step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep))
			}
		}
		if step.Execute == nil {
			return platformerrors.New(platformerrors.KindBootstrap, step.ID, "missing execute function")
		}
		if err := step.Execute(ctx, state); err != nil {
			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

// InitGraph lists the init steps in execution order.
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup metrics and span logging",
			DependsOn: []string{"logging:init-provider"},
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "events:init-bus",
			Title:     "Start event bus",
			DependsOn: []string{"logging:init-provider"},
			Execute:   initEventBusStep,
		},
		{
			ID:        "storage:init-database",
			Title:     "Open session database",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindStorage,
			Execute:   initDatabaseStep,
		},
		{
			ID:        "session:init-service",
			Title:     "Initialise session store and state machine",
			DependsOn: []string{"storage:init-database", "events:init-bus", "observability:setup-hooks"},
			Kind:      platformerrors.KindStorage,
			Execute:   initSessionStep,
		},
		{
			ID:        "providers:init-openai",
			Title:     "Initialise transcription and grading providers",
			DependsOn: []string{"observability:setup-hooks"},
			Kind:      platformerrors.KindConfig,
			Execute:   initProvidersStep,
		},
		{
			ID:        "auth:init-verifier",
			Title:     "Initialise bearer token verifier",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindConfig,
			Execute:   initAuthStep,
		},
		{
			ID:        "quiz:init-service",
			Title:     "Initialise quiz runner service",
			DependsOn: []string{"session:init-service", "providers:init-openai"},
			Execute:   initQuizStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	loader := platformconfig.NewLoader().WithPath(state.configPath)
	cfg, err := loader.Load()
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "config:load", "failed to load config", err)
	}
	state.config = cfg
	state.configPath = loader.Path()
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	cfg := state.config.Log
	logger, err := platformlogging.New(platformlogging.Config{
		Level:      cfg.Level,
		Dir:        cfg.Dir,
		Filename:   cfg.File,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAgeDays: cfg.MaxAgeDays,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}
	state.logger = logger
	logger.InfoTag("Bootstrap", "logging ready [%s] %s", cfg.Level, state.configPath)
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	cfg := platformobservability.Config{
		Enabled: strings.EqualFold(state.config.Log.Level, "debug"),
	}
	shutdown, err := platformobservability.Setup(ctx, cfg, state.logger.Slog())
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown
	state.metrics = platformobservability.NewMetrics()
	return nil
}

func initEventBusStep(_ context.Context, state *appState) error {
	state.bus = eventbus.New(busWorkers, busQueueSize)
	if err := eventbus.SubscribeLogger(state.bus, state.logger); err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "events:init-bus", "failed to subscribe event logger", err)
	}
	return nil
}

func initDatabaseStep(_ context.Context, state *appState) error {
	if state.config.Session.Driver != session.DriverSQLite {
		return nil
	}
	db, err := platformstorage.Open(state.config.Session.SQLite.DSN)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "storage:init-database", "failed to initialize database", err)
	}
	state.db = db
	return nil
}

func initSessionStep(_ context.Context, state *appState) error {
	cfg := state.config.Session
	storeCfg := session.Config{Driver: cfg.Driver}
	if cfg.Driver == session.DriverRedis {
		storeCfg.Redis = &session.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		}
	}
	store, err := session.NewStore(storeCfg, session.Dependencies{SQLiteDB: state.db})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "session:init-service", "failed to create session store", err)
	}
	state.store = store
	state.sessions = session.NewService(store, session.Options{
		Bus:     state.bus,
		Metrics: state.metrics,
		Logger:  state.logger,
	})
	state.logger.InfoTag("Bootstrap", "session store ready [%s]", cfg.Driver)
	return nil
}

func initProvidersStep(_ context.Context, state *appState) error {
	cfg := state.config
	whisper, err := transcription.NewOpenAIProvider(transcription.OpenAIConfig{
		APIKey:        cfg.OpenAI.APIKey,
		BaseURL:       cfg.OpenAI.BaseURL,
		Model:         cfg.Transcription.Model,
		Language:      cfg.Transcription.Language,
		Temperature:   cfg.Transcription.Temperature,
		RatePerMinute: cfg.Transcription.RatePerMinute,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "providers:init-openai", "transcription provider", err)
	}
	grader, err := evaluation.NewOpenAIGrader(evaluation.OpenAIConfig{
		APIKey:        cfg.OpenAI.APIKey,
		BaseURL:       cfg.OpenAI.BaseURL,
		Model:         cfg.Evaluation.Model,
		VisionModel:   cfg.Evaluation.VisionModel,
		Temperature:   cfg.Evaluation.Temperature,
		MaxTokens:     cfg.Evaluation.MaxTokens,
		RatePerMinute: cfg.Evaluation.RatePerMinute,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "providers:init-openai", "grading provider", err)
	}

	state.transcriber = transcription.NewClient(whisper, transcription.Options{
		MaxBytes: cfg.Transcription.MaxBytes,
		MinChars: cfg.Transcription.MinChars,
		Logger:   state.logger,
		Metrics:  state.metrics,
	})
	state.evaluator = evaluation.NewClient(grader, evaluation.Options{
		Logger:  state.logger,
		Metrics: state.metrics,
	})
	state.images = domainimage.NewPipeline(domainimage.NewValidator(cfg.Image, state.logger))
	state.logger.InfoTag("Bootstrap", "providers ready: %s / %s", cfg.Transcription.Model, cfg.Evaluation.Model)
	return nil
}

func initAuthStep(_ context.Context, state *appState) error {
	auth := state.config.Server.Auth
	if !auth.Enabled {
		state.logger.WarnTag("Bootstrap", "bearer auth disabled, learners are identified by %s", httptransport.DevUserHeader)
		return nil
	}
	verifier, err := domainauth.NewVerifier(auth.JWTSecret)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "auth:init-verifier", "failed to create verifier", err)
	}
	state.verifier = verifier
	return nil
}

func initQuizStep(_ context.Context, state *appState) error {
	cfg := state.config
	state.quiz = services.NewQuizService(services.QuizServiceConfig{
		Transcriber:       state.transcriber,
		Evaluator:         state.evaluator,
		Sessions:          state.sessions,
		CaptureMax:        cfg.Capture.MaxDuration,
		CaptureMaxBytes:   cfg.Capture.MaxBytes,
		CaptureMimeType:   cfg.Capture.MimeType,
		EvaluatingTimeout: cfg.Evaluation.EvaluatingTimeout,
		Bus:               state.bus,
		Metrics:           state.metrics,
		Logger:            state.logger,
	})
	state.hub = ws.NewHub(state.logger)
	return nil
}

// buildHTTPHandler mounts every route on one gin engine.
func buildHTTPHandler(ctx context.Context, state *appState) (http.Handler, error) {
	router, err := httptransport.Build(httptransport.Options{
		Config:   state.config,
		Logger:   state.logger,
		Metrics:  state.metrics,
		Verifier: state.verifier,
	})
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "http:build-router", "failed to build router", err)
	}

	router.Engine.NoRoute(func(c *gin.Context) {
		httptransport.RespondError(c, http.StatusNotFound, "api not found", gin.H{})
	})

	answerService, err := answers.NewService(state.logger, state.transcriber, state.evaluator, state.images, state.config.Transcription.MaxBytes)
	if err != nil {
		return nil, err
	}
	sessionService, err := gamesessions.NewService(state.logger, state.sessions)
	if err != nil {
		return nil, err
	}
	systemService := system.NewService(state.logger, state.metrics, healthChecks(state))

	for _, reg := range []struct {
		group    *gin.RouterGroup
		register func(context.Context, *gin.RouterGroup) error
	}{
		{router.API, answerService.Register},
		{router.API, systemService.Register},
		{router.Secured, sessionService.Register},
	} {
		if err := reg.register(ctx, reg.group); err != nil {
			return nil, platformerrors.Wrap(platformerrors.KindTransport, "http:register", "failed to register routes", err)
		}
	}

	wsRouter := ws.NewRouter(state.hub, state.quiz, state.logger, ws.RouterOptions{
		Verifier: state.verifier,
		Runners:  state.quiz,
	})
	router.Engine.GET(wsPath, gin.WrapF(wsRouter.Handle))
	router.Engine.GET(wsQuizPath, gin.WrapF(wsRouter.HandleQuiz))

	return router.Engine, nil
}

func healthChecks(state *appState) map[string]system.Check {
	checks := map[string]system.Check{}
	if state.db != nil {
		checks["database"] = func(ctx context.Context) error {
			sqlDB, err := state.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	return checks
}

func startHTTPServer(state *appState, handler http.Handler, g *errgroup.Group, groupCtx context.Context) {
	cfg := state.config.Server
	logger := state.logger
	addr := net.JoinHostPort(cfg.IP, strconv.Itoa(cfg.Port))
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "listening on http://%s (websocket %s, %s)", addr, wsPath, wsQuizPath)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			state.hub.CloseAll(ws.ErrSessionShutdown)
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "shutdown failed: %v", err)
			} else {
				logger.InfoTag("HTTP", "server stopped")
			}
		}()

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "server failed: %v", err)
			return err
		}
		return nil
	})
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
) error {
	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		// a service exited on its own
		cancel()
		if err != nil {
			logger.ErrorTag("Bootstrap", "service stopped with error: %v", err)
		}
		return err
	case <-ctx.Done():
	}

	logger.InfoTag("Bootstrap", "received %v, shutting down", context.Cause(ctx))
	cancel()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("Bootstrap", "error during shutdown: %v", err)
			return err
		}
		logger.InfoTag("Bootstrap", "all services stopped")
	case <-time.After(15 * time.Second):
		logger.ErrorTag("Bootstrap", "shutdown timed out")
		return errors.New("shutdown timed out")
	}
	return nil
}

// close releases whatever the init steps managed to build.
func (s *appState) close() {
	if s.bus != nil {
		s.bus.Stop()
	}
	if s.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.store.Close(ctx); err != nil {
			s.logger.WarnTag("Bootstrap", "session store close: %v", err)
		}
		cancel()
	}
	if s.db != nil {
		if sqlDB, err := s.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if s.observabilityShutdown != nil {
		_ = s.observabilityShutdown(context.Background())
	}
	if s.logger != nil {
		_ = s.logger.Close()
	}
}
