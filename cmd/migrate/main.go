package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"reqsphere.io/internal/config"
	"reqsphere.io/internal/migrate"
	"reqsphere.io/internal/store/pg"
	"reqsphere.io/migrations"
)

func main() {
	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := pg.Open(ctx, cfg.PostgresDSN())
	if err != nil {
		fatal("open postgres: %v", err)
	}
	defer pool.Close()

	mgr := migrate.NewManager(pool, migrations.FS)

	switch cmd {
	case "up":
		if err := mgr.Up(ctx); err != nil {
			fatal("migrate up: %v", err)
		}
		fmt.Println("migrations applied")
	case "down":
		if err := mgr.Down(ctx); err != nil {
			fatal("migrate down: %v", err)
		}
		fmt.Println("last migration rolled back")
	case "status":
		applied, err := mgr.Status(ctx)
		if err != nil {
			fatal("migrate status: %v", err)
		}
		if len(applied) == 0 {
			fmt.Println("no migrations applied")
			return
		}
		for _, name := range applied {
			fmt.Println(name)
		}
	default:
		fatal("unknown command %q (want up, down, or status)", cmd)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
