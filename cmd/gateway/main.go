package main

import (
	"flag"
	"log/slog"
	"os"

	"gateway/internal/app"
)

func main() {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	application, err := app.NewApplication(*configPath)
	if err != nil {
		slog.Error("failed to initialize gateway", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("gateway error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
