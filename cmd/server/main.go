package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"github.com/haatos/runkeeper/internal"
	"github.com/haatos/runkeeper/internal/artifact"
	"github.com/haatos/runkeeper/internal/build"
	"github.com/haatos/runkeeper/internal/depgraph"
	"github.com/haatos/runkeeper/internal/events"
	"github.com/haatos/runkeeper/internal/handler"
	"github.com/haatos/runkeeper/internal/metrics"
	"github.com/haatos/runkeeper/internal/service"
	"github.com/haatos/runkeeper/internal/settings"
	"github.com/haatos/runkeeper/internal/store"

	_ "modernc.org/sqlite"
)

func main() {
	settings.ReadDotenv(internal.DotEnvPath)
	settings.Settings = settings.NewSettings()
	if err := settings.Settings.ConfigureLogger(log.StandardLogger()); err != nil {
		log.Fatal(err)
	}
	internal.InitializeConfiguration(internal.ConfigurationPath)
	cfg := internal.Config

	rdb := store.InitDatabase(true)
	defer rdb.Close()
	rwdb := store.InitDatabase(false)
	defer rwdb.Close()
	store.RunMigrations(rwdb, settings.Settings.DatabaseDriver)

	runStore := store.NewRunSQLiteStore(rdb, rwdb)
	linkStore := store.NewLinkSQLiteStore(rdb, rwdb)
	storeTimeout := time.Duration(cfg.StoreTimeoutSeconds)

	stores := build.NewStoreRegistry(artifact.NewLocalFactory(settings.Settings.DataDir))
	if settings.Settings.SFTPAddr != "" {
		closeSFTP := registerSFTP(stores, storeTimeout)
		defer closeSFTP()
	}

	graph := depgraph.New()
	bus := build.NewBus()
	bus.Register(graph)
	bus.Register(store.NewRecorder(runStore, linkStore, storeTimeout))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector()
	if err := collector.Register(registry); err != nil {
		log.Fatal(err)
	}
	bus.Register(collector)

	if len(settings.Settings.KafkaBrokers) > 0 {
		publisher, err := events.NewKafkaPublisher(settings.Settings.KafkaBrokers, settings.Settings.KafkaTopic)
		if err != nil {
			log.Fatal(err)
		}
		defer publisher.Close()
		bus.Register(publisher)
	}

	manager := build.NewManager(
		stores,
		bus,
		build.NewGuard(graph),
		build.WithArchiveTimeout(time.Duration(cfg.ArchiveTimeoutSeconds)),
	)
	buildSvc := service.NewBuildService(manager, graph, runStore, linkStore, service.BuildServiceOptions{
		DataDir:      settings.Settings.DataDir,
		QueueSize:    cfg.QueueSize,
		StoreTimeout: storeTimeout,
		StepTimeout:  time.Duration(cfg.DefaultStepTimeout),
	})

	scripts, err := service.LoadJobScripts(settings.Settings.JobsDir)
	if err != nil {
		log.Fatal(err)
	}
	for _, js := range scripts {
		if _, err := buildSvc.AddJob(js); err != nil {
			log.Fatal(err)
		}
	}
	log.WithField("jobs", len(scripts)).Info("loaded job definitions")

	if err := buildSvc.Restore(context.Background()); err != nil {
		log.Fatal(err)
	}

	scheduler, err := service.NewScheduler()
	if err != nil {
		log.Fatal(err)
	}
	sweeper := service.NewRetentionSweeper(buildSvc, time.Duration(cfg.RetentionIntervalHours))
	if _, err := sweeper.Schedule(scheduler, time.Duration(cfg.RetentionIntervalHours)); err != nil {
		log.Fatal(err)
	}
	scheduler.Start()

	e := setupEcho()
	handler.SetupMetricsRoute(e, internal.MetricsPath, registry)
	handler.SetupBuildRoutes(e.Group(""), buildSvc)

	internal.GracefulShutdown(e, settings.Settings.Port,
		func() {
			if err := scheduler.Shutdown(); err != nil {
				log.WithError(err).Error("err shutting down scheduler")
			}
		},
		buildSvc.Shutdown,
	)
}

func registerSFTP(stores *build.StoreRegistry, timeout time.Duration) func() {
	key, err := os.ReadFile(settings.Settings.SFTPKeyPath)
	if err != nil {
		log.Fatal("err reading sftp private key: ", err)
	}
	client, conn, err := artifact.DialSFTP(artifact.SFTPConfig{
		Addr:       settings.Settings.SFTPAddr,
		Username:   settings.Settings.SFTPUser,
		PrivateKey: key,
		Root:       settings.Settings.SFTPRoot,
		Timeout:    timeout,
	})
	if err != nil {
		log.Fatal(err)
	}
	stores.Register(artifact.NewSFTPFactory(client, settings.Settings.SFTPRoot))
	log.WithField("addr", settings.Settings.SFTPAddr).Info("sftp artifact storage enabled")
	return func() {
		client.Close()
		conn.Close()
	}
}

func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handler.ErrorHandler
	e.Use(
		middleware.Recover(),
		handler.RequestLogger(log.StandardLogger()),
		middleware.CORSWithConfig(internal.GetCORSConfig()),
		middleware.RateLimiterWithConfig(internal.GetRateLimiterConfig()),
	)
	e.GET("/favicon.ico", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})
	return e
}
