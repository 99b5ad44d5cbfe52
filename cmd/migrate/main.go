package main

import (
	"flag"
	"os"

	"github.com/joripage/bookfeed/config"
	"github.com/joripage/bookfeed/pkg/infra"
	"github.com/joripage/bookfeed/pkg/logging"
	"go.uber.org/zap"
)

func main() {
	var configFile, source string
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.StringVar(&source, "source", "file://migration/sql", "Migration source URL")
	flag.Parse()

	logging.NewLogger(logging.INFO).ReplaceGlobals()

	cfg, err := config.Load(configFile)
	if err != nil {
		zap.S().Fatalf("load config: %v", err)
	}

	connURL := cfg.Sinks.Postgres.DB.MigrationConnURL
	if connURL == "" {
		zap.S().Error("sinks.postgres.db.migration_conn_url is not set")
		os.Exit(1)
	}

	if err := infra.GetMigrateTool().Migrate(source, connURL); err != nil {
		zap.S().Fatalf("migrate: %v", err)
	}
}
