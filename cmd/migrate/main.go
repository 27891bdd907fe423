package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"digestbot/internal/config"
	"digestbot/migrations"
)

type command struct {
	name string
	args string
	help string
	run  func(db *sql.DB, args []string) error
}

var commands = []command{
	{name: "up", help: "apply every pending digest migration", run: func(db *sql.DB, _ []string) error {
		return goose.Up(db, ".")
	}},
	{name: "up-one", help: "apply the next pending migration", run: func(db *sql.DB, _ []string) error {
		return goose.UpByOne(db, ".")
	}},
	{name: "up-to", args: "VERSION", help: "apply migrations up to and including VERSION", run: func(db *sql.DB, args []string) error {
		v, err := versionArg(args)
		if err != nil {
			return err
		}
		return goose.UpTo(db, ".", v)
	}},
	{name: "down", help: "roll back the latest migration", run: func(db *sql.DB, _ []string) error {
		return goose.Down(db, ".")
	}},
	{name: "down-to", args: "VERSION", help: "roll back to VERSION, keeping it applied", run: func(db *sql.DB, args []string) error {
		v, err := versionArg(args)
		if err != nil {
			return err
		}
		return goose.DownTo(db, ".", v)
	}},
	{name: "status", help: "list applied and pending migrations", run: func(db *sql.DB, _ []string) error {
		return goose.Status(db, ".")
	}},
	{name: "version", help: "print the current schema version", run: func(db *sql.DB, _ []string) error {
		return goose.Version(db, ".")
	}},
	{name: "reset", help: "roll back every migration, dropping all digest data", run: func(db *sql.DB, _ []string) error {
		return goose.Reset(db, ".")
	}},
}

func main() {
	os.Exit(run())
}

func run() int {
	defaultPath := os.Getenv(config.EnvDatabasePath)
	if defaultPath == "" {
		defaultPath = "./data/digest.db"
	}
	dbPath := flag.String("db", defaultPath, "digest SQLite file (default $"+config.EnvDatabasePath+" or ./data/digest.db)")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		return 2
	}
	cmd, ok := lookup(args[0])
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		usage()
		return 2
	}

	if dir := filepath.Dir(*dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			slog.Error("create data directory", "path", dir, "error", err)
			return 1
		}
	}
	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		slog.Error("open database", "path", *dbPath, "error", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	if err := migrations.Setup(); err != nil {
		slog.Error("setup migrations", "error", err)
		return 1
	}
	if err := cmd.run(db, args[1:]); err != nil {
		slog.Error("migration command failed", "command", cmd.name, "path", *dbPath, "error", err)
		return 1
	}
	return 0
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func versionArg(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one VERSION argument, got %d", len(args))
	}
	v, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("version %q: %w", args[0], err)
	}
	return v, nil
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintln(out, "Usage: migrate [-db path] <command> [args]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Manages the digest schema. cmd/digest applies pending migrations on start.")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(out, "  %-18s %s\n", c.name+" "+c.args, c.help)
	}
	fmt.Fprintln(out)
	flag.PrintDefaults()
}
