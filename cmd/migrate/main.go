package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"nostrgate.org/internal/migrate"
)

func main() {
	var (
		dir   = flag.String("dir", "ops/migrations/sql", "directory holding *.up.sql / *.down.sql files")
		table = flag.String("table", "schema_migrations", "bookkeeping table name")
	)
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "up"
	}

	dsn := strings.TrimSpace(os.Getenv("NOSTRGATE_PG_DSN"))
	if dsn == "" {
		fatal("NOSTRGATE_PG_DSN must be set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		fatal("open: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		fatal("ping: %v", err)
	}

	mgr := migrate.NewManager(db, *dir, migrate.WithMigrationsTable(*table))

	switch cmd {
	case "up":
		if err := mgr.Up(ctx); err != nil {
			fatal("up: %v", err)
		}
		fmt.Println("migrations applied")
	case "down":
		if err := mgr.Down(ctx); err != nil {
			fatal("down: %v", err)
		}
		fmt.Println("last migration rolled back")
	case "status":
		applied, err := mgr.Status(ctx)
		if err != nil {
			fatal("status: %v", err)
		}
		if len(applied) == 0 {
			fmt.Println("no migrations applied")
			return
		}
		for _, name := range applied {
			fmt.Println(name)
		}
	default:
		fatal("unknown command %q (want up, down or status)", cmd)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
