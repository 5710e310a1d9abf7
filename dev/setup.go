package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"transitperf/internal/db"
)

const devDBPath = "dev/.state/transitperf.db"

func cmd(name string, args ...string) {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	fullCmd := name
	for _, a := range args {
		fullCmd += " "
		fullCmd += a
	}

	fmt.Printf("$ %s\n", fullCmd)
	err := cmd.Run()
	if err != nil {
		os.Exit(1)
	}
}

func CreateLocalStack() error {
	err := os.Chdir("dev/local_stack")
	if err != nil {
		return err
	}
	cmd("docker", "compose", "up", "-d")
	return os.Chdir("../..")
}

// CreateDevDB creates the sqlite database used when no postgres is running.
func CreateDevDB() error {
	_, err := os.Stat(devDBPath)
	if err == nil {
		fmt.Println("database already created at", devDBPath)
		return nil
	}

	fmt.Println("creating database at", devDBPath)
	database, err := db.Open(db.DriverSQLite, devDBPath)
	if err != nil {
		return err
	}
	defer database.Close()
	return db.New(database, db.DefaultTable).CreateTable(context.Background())
}

// WriteLocalConfig points transitperf.local.json5 at the dev database unless
// one already exists.
func WriteLocalConfig(withPostgres bool) error {
	path := "transitperf.local.json5"
	_, err := os.Stat(path)
	if err == nil {
		slog.Info("leaving existing local config alone", "path", path)
		return nil
	}

	database := fmt.Sprintf(`{ driver: "sqlite", file: %q }`, filepath.ToSlash(devDBPath))
	if withPostgres {
		database = `{ driver: "postgres", host: "localhost", port: 5432, name: "transitperf", user: "transitperf", password: "transitperf" }`
	}
	content := fmt.Sprintf(`// generated by go run ./dev
{
	database: %s,
}
`, database)
	return os.WriteFile(path, []byte(content), 0666)
}
