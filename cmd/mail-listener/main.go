package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"mailtriage/internal/config"
	"mailtriage/internal/listener"
	"mailtriage/internal/llm"
	"mailtriage/internal/ocr"
	"mailtriage/internal/pipeline"
	"mailtriage/internal/rules"
	"mailtriage/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	log, err := zap.NewProduction()
	must(err)
	defer func() { _ = log.Sync() }()

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	r, err := rules.Load(cfg.RulesPath)
	must(err)

	atts := pipeline.NewAttachmentExtractor(ocr.NewTesseract(cfg.TesseractPath))
	processor := pipeline.NewService(db, cfg, r, llm.NewClient(cfg), atts, log)

	svc := listener.NewService(db, cfg, processor, log)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
