package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tinfoilhat/hatscore/internal/api"
	"github.com/tinfoilhat/hatscore/internal/api/handlers"
	"github.com/tinfoilhat/hatscore/internal/cache"
	"github.com/tinfoilhat/hatscore/internal/config"
	"github.com/tinfoilhat/hatscore/internal/events"
	"github.com/tinfoilhat/hatscore/internal/metrics"
	"github.com/tinfoilhat/hatscore/internal/recorder"
	"github.com/tinfoilhat/hatscore/internal/repository"
	"github.com/tinfoilhat/hatscore/internal/repository/postgres"
	"github.com/tinfoilhat/hatscore/internal/sampler"
	"github.com/tinfoilhat/hatscore/internal/scan"
	"github.com/tinfoilhat/hatscore/internal/storage"
)

// eventHistorySize is how many events late display clients can replay
const eventHistorySize = 500

func main() {
	// Configure zerolog for structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	configureLogging(cfg.Server)

	ctx := context.Background()

	// Database
	db, err := postgres.Open(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database schema")
	}

	results := postgres.NewPostgresResultRepository(db)
	contestants := postgres.NewPostgresContestantRepository(db)

	// Measurement cache
	var measurementCache repository.MeasurementCache
	var closers []io.Closer
	switch cfg.Cache.Driver {
	case config.CacheDriverSQLite:
		sc := cache.NewSqliteCache(cfg.Cache.SQLitePath)
		if err := sc.Open(ctx); err != nil {
			log.Fatal().Err(err).Str("path", cfg.Cache.SQLitePath).Msg("Failed to open measurement cache")
		}
		closers = append(closers, sc)
		measurementCache = sc
	default:
		measurementCache = postgres.NewPostgresMeasurementCache(db)
	}
	log.Info().Str("driver", cfg.Cache.Driver).Msg("Measurement cache ready")

	// Frequency plan
	p, err := cfg.LoadPlan()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load frequency plan")
	}
	log.Info().Int("frequencies", p.Len()).Str("file", cfg.Plan.File).Msg("Frequency plan loaded")

	// Receiver
	hackrf, err := sampler.NewHackRF(cfg.SamplerConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid receiver configuration")
	}
	if info, err := hackrf.Probe(ctx); err != nil {
		// scoring and the leaderboard still work without a receiver
		log.Warn().Err(err).Msg("Receiver not available at startup")
	} else {
		log.Info().Str("serial", info.Serial).Str("firmware", info.Firmware).Msg("Receiver detected")
	}
	var s sampler.Sampler = hackrf

	// Events
	history := events.NewBuffer(eventHistorySize)
	hub := events.NewHub(history, cfg.Server.AllowedOrigins)
	sink := events.NewFanout(events.NewLogSink(log.Logger), history, hub)

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		m := metrics.New()
		sink.Add(m)
		s = m.InstrumentSampler(s)
		metricsHandler = m.Handler()
	}

	var mqttSink *events.MQTTSink
	if cfg.MQTT.Broker != "" {
		client, err := events.ConnectMQTT(events.MQTTConfig{
			Broker:      cfg.MQTT.Broker,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         byte(cfg.MQTT.QoS),
		})
		if err != nil {
			log.Error().Err(err).Msg("MQTT disabled")
		} else {
			mqttSink = events.NewMQTTSink(client, cfg.MQTT.TopicPrefix, byte(cfg.MQTT.QoS))
			sink.Add(mqttSink)
		}
	}

	// Report archive
	var archive storage.ReportArchive
	if cfg.AWS.ArchiveEnabled {
		archive, err = storage.NewS3Archive(ctx, storage.S3Config{
			Bucket:    cfg.AWS.S3Bucket,
			Endpoint:  cfg.AWS.S3Endpoint,
			Region:    cfg.AWS.Region,
			AccessKey: cfg.AWS.AccessKeyID,
			SecretKey: cfg.AWS.SecretAccessKey,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create report archive")
		}
		if err := storage.EnsureBucket(ctx, archive); err != nil {
			log.Fatal().Err(err).Str("bucket", cfg.AWS.S3Bucket).Msg("Report bucket unavailable")
		}
	}

	// Scan and scoring
	controller := scan.NewController(p, s, measurementCache, sink, scan.Options{
		RetryAttempts: cfg.Scanner.RetryAttempts,
		RetryDelay:    cfg.Scanner.RetryDelay,
	})
	runner := scan.NewRunner(controller)
	rec := recorder.New(results, contestants, measurementCache, controller, sink, archive)

	// Create Chi router
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(zerologLogger())
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	router.Use(middleware.Compress(5))

	// Create Huma API
	humaConfig := huma.DefaultConfig("Hatscore API", handlers.Version)
	humaConfig.DocsPath = "/api/docs"
	humaAPI := humachi.New(router, humaConfig)

	api.RegisterRoutes(router, humaAPI, api.Services{
		Plan:        p,
		Controller:  controller,
		Starter:     runner,
		Recorder:    rec,
		Results:     results,
		Contestants: contestants,
		History:     history,
		Prober:      hackrf,
		Archive:     archive,
		EventStream: hub,
		Metrics:     metricsHandler,
	})

	// Serve OpenAPI spec at /api/openapi.json
	router.Get("/api/openapi.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		spec, err := humaAPI.OpenAPI().MarshalJSON()
		if err != nil {
			http.Error(w, "Failed to generate OpenAPI spec", http.StatusInternalServerError)
			return
		}
		w.Write(spec)
	})

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Server.Env).Msg("Starting Hatscore API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// stop the scan before the stores it writes to
	runner.Close()
	hub.Close()
	if mqttSink != nil {
		mqttSink.Close()
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close resource")
		}
	}

	log.Info().Msg("Server exited")
}

// configureLogging sets the global level and switches to JSON outside dev
func configureLogging(cfg config.ServerConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Env != "dev" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

// zerologLogger returns a Chi middleware that logs HTTP requests using zerolog
func zerologLogger() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				log.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("remote_ip", r.RemoteAddr).
					Int("status", ww.Status()).
					Dur("latency", time.Since(start)).
					Str("user_agent", r.UserAgent()).
					Msg("HTTP request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
