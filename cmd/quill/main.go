package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/quillnotes/quill/internal/buildinfo"
	"github.com/quillnotes/quill/internal/client/cli"
	"github.com/quillnotes/quill/internal/client/config"
	"github.com/quillnotes/quill/internal/logging"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()

	// logs go to a rotated file so they never interleave with the REPL
	logWriter := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(logWriter, nil)))

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	app.Run(ctx)
}
