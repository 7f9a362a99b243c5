package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bubuagent/bubu-agent/internal/config"
	"github.com/bubuagent/bubu-agent/internal/model"
	"github.com/bubuagent/bubu-agent/internal/schedule"
	"github.com/bubuagent/bubu-agent/pkg/db"
	"github.com/bubuagent/bubu-agent/pkg/logger"
)

func main() {
	err := config.Load(getEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
	}
	cfg := config.Get()

	// main.go plan | main.go --dir=./migrations
	for _, v := range os.Args[1:] {
		if v == "plan" {
			printPlan(cfg)
			return
		}
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
	err = db.Migrate(dbConf, getMigrationPath())
	if err != nil {
		logger.Error("migration: error running migrations", "error", err)
	}
}

// printPlan writes today's and tomorrow's computed slots to stdout.
func printPlan(cfg *config.Config) {
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

	skipDates := cfg.SkipDatesSet()
	now := time.Now().In(location)
	for _, offset := range []int{0, 1} {
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, location).AddDate(0, 0, offset)
		fmt.Printf("%s:\n", model.DateKey(day))
		for _, t := range model.AllTypes() {
			planned := schedule.ComputeSlot(day, t, content.Window(t), location)
			decision := schedule.Admit(planned, t, content.Dnd(), skipDates, day)
			fmt.Printf("  %-8s %s  %s\n", t, planned.Format("15:04"), decision)
		}
	}
}

func getEnvPath() string {
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
	if _, err := os.Open(".env"); err != nil {
		logger.Error("failed to open the passed env file, got error" + err.Error())
		return ""
	}
	return ".env"
}

func getMigrationPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--dir=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed migrations dir, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	if _, err := os.Open("./migrations"); err != nil {
		logger.Error("failed to open the default migrations dir, got error" + err.Error())
		return ""
	}
	return "./migrations"
}
