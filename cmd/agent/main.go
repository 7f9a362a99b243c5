package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bubuagent/bubu-agent/internal/composer"
	"github.com/bubuagent/bubu-agent/internal/config"
	"github.com/bubuagent/bubu-agent/internal/gate"
	gateway "github.com/bubuagent/bubu-agent/internal/gateways"
	"github.com/bubuagent/bubu-agent/internal/generator"
	"github.com/bubuagent/bubu-agent/internal/handlers"
	"github.com/bubuagent/bubu-agent/internal/model"
	"github.com/bubuagent/bubu-agent/internal/repository"
	"github.com/bubuagent/bubu-agent/internal/schedule"
	"github.com/bubuagent/bubu-agent/pkg/db"
	xhttp "github.com/bubuagent/bubu-agent/pkg/http"
	"github.com/bubuagent/bubu-agent/pkg/logger"
	"github.com/bubuagent/bubu-agent/pkg/prom"
	"github.com/bubuagent/bubu-agent/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	defer logger.Sync()

	cfg := config.Get()
	logger.Info("starting bubu agent", "version", version, "commit", commit, "build_date", date)

	location, err := cfg.Location()
	if err != nil {
		logger.Error("failed to resolve timezone", "timezone", cfg.Timezone, "error", err)
		return
	}

	content, err := config.LoadContent(cfg.ContentPath)
	if err != nil {
		logger.Error("failed to load content file", "path", cfg.ContentPath, "error", err)
		return
	}

	dbConf := db.Config{
		Driver:   cfg.DBDriver,
		Path:     cfg.DBPath,
		User:     cfg.PostgresUser,
		Host:     cfg.PostgresHost,
		Port:     cfg.PostgresPort,
		Password: cfg.PostgresPassword,
		Database: cfg.PostgresDatabase,
	}
	database, err := db.New(dbConf, cfg.AppEnv == "dev")
	if err != nil {
		logger.Error("failed connecting to database", "error", err)
		return
	}

	records := repository.NewSentRecordRepository(database)
	if err := records.Migrate(context.Background()); err != nil {
		logger.Error("failed running migrations", "error", err)
		return
	}

	// Redis is optional: without it the gate leans on the database unique
	// constraint alone.
	var redisAdap redis.RedisAdapter
	if cfg.RedisAddr != "" {
		redisAdap, err = redis.NewRedisAdapter("agent", cfg.RedisUniversalKeyPrefix, &redis.Options{
			Addrs:      []string{cfg.RedisAddr},
			ClientName: "agent",
			DB:         cfg.RedisDatabase,
			Username:   cfg.RedisUsername,
			Password:   cfg.RedisPassword,
		})
		if err != nil {
			logger.Error("failed connecting to redis", "error", err)
			return
		}
	}

	idemGate := gate.New(records, redisAdap, gate.DefaultConfig())

	hfConf := generator.DefaultHFConfig()
	hfConf.APIURL = cfg.HFAPIURL
	hfConf.APIKey = cfg.HFAPIKey
	hfConf.ModelID = cfg.HFModelID
	hfConf.Timeout = cfg.GenerationTimeout
	gen := generator.NewHFGenerator(hfConf)

	comp := composer.New(content, gen, idemGate, cfg.RecipientName, cfg.DailyFlirtyTone, cfg.GenerationTimeout)

	messenger, err := gateway.NewMessenger(cfg)
	if err != nil {
		logger.Error("failed creating whatsapp provider", "provider", cfg.WhatsappProvider, "error", err)
		return
	}

	windows := make(map[model.MessageType]model.ScheduleWindow)
	for _, t := range model.AllTypes() {
		windows[t] = content.Window(t)
	}
	sched := schedule.New(schedule.Config{
		Windows:   windows,
		Dnd:       content.Dnd(),
		SkipDates: cfg.SkipDatesSet(),
		Location:  location,
		Recipient: cfg.RecipientNumber,
	}, comp, idemGate, messenger, records)

	if cfg.Enabled {
		sched.Start()
	} else {
		logger.Warn("agent is disabled, scheduler not started")
	}

	err = prom.Create(cfg.AppName, cfg.AppEnv, cfg.PromNamespace)
	if err != nil {
		logger.Error("failed creating metrics", "error", err)
		return
	}
	if cfg.AppDebugMetricsAddr != "" {
		go prom.ListenAndServer(cfg.AppDebugMetricsAddr, cfg.AppDebugMetricsURI)
	}

	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Use(xhttp.TimeoutMiddleware(time.Second * 10))
	s.Use(xhttp.BearerAuthMiddleware(cfg.APIBearerToken, "/api/v1/plan/today", "/api/v1/dry-run"))
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.RecoverMiddleware)
	s.Router = xhttp.CreateDefaultRouter()

	agentHandler := handlers.NewAgentHandler(sched, records)
	healthHandler := handlers.NewHealthHandler(messenger, sched)

	g := s.Router.Group("/api/v1")
	handlers.RegisterAgentRoutes(g, agentHandler)
	handlers.RegisterHealthRoutes(s.Router, healthHandler)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		var err = s.ListenAndServe(cfg.HTTPListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	<-c
	logger.Info("shutting down")
	sched.Stop()
	s.Shutdown()
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
