package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"ms-boxoffice/internal/config"
	"ms-boxoffice/internal/database/migrations"
)

func main() {
	var (
		dir  = flag.String("dir", "./migrations", "directory containing migration files")
		down = flag.Bool("down", false, "roll back all migrations instead of applying them")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println(".env file not found, using environment variables")
	}
	cfg := config.Load()

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN)))
	if err := sqldb.Ping(); err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{
		MigrationsDir: *dir,
	})
	defer runner.Close()

	if *down {
		if err := runner.MigrateDown(); err != nil {
			log.Fatalf("migrate down failed: %v", err)
		}
		fmt.Println("migrations rolled back")
		return
	}

	if err := runner.MigrateUp(); err != nil {
		log.Fatalf("migrate up failed: %v", err)
	}
	version, dirty, err := runner.Version()
	if err != nil {
		log.Fatalf("failed to read schema version: %v", err)
	}
	fmt.Printf("schema at version %d (dirty=%v)\n", version, dirty)
}
