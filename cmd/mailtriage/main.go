package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"mailtriage/internal/config"
	"mailtriage/internal/connectors"
	gmailconnector "mailtriage/internal/connectors/gmail"
	imapconnector "mailtriage/internal/connectors/imap"
	"mailtriage/internal/listener"
	"mailtriage/internal/llm"
	"mailtriage/internal/ocr"
	"mailtriage/internal/pipeline"
	"mailtriage/internal/rules"
	"mailtriage/internal/server"
	"mailtriage/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	log, err := zap.NewProduction()
	must(err)
	defer func() { _ = log.Sync() }()

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	switch cmd {
	case "serve":
		processor, err := makeProcessor(db, cfg, log)
		must(err)
		srv := server.New(cfg.HTTPAddr, processor, log)
		must(srv.Run(ctx))
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "imap", "gmail|imap")
		label := fs.String("label", "INBOX", "mailbox/label")
		max := fs.Int("max", 50, "max messages")
		_ = fs.Parse(os.Args[2:])
		conn, err := makeConnector(ctx, cfg, *provider)
		must(err)
		fetch := connectors.NewFetchService(db, cfg.RawMailDir, conn)
		result, err := fetch.FetchAndStore(ctx, *label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d\n", *provider, result.Fetched, result.Stored)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "", "gmail|imap|upload (empty for all)")
		messageID := fs.String("messageId", "", "specific message-id")
		batch := fs.Int("batch", 20, "batch size")
		_ = fs.Parse(os.Args[2:])
		processor, err := makeProcessor(db, cfg, log)
		must(err)
		if strings.TrimSpace(*messageID) != "" {
			outcome, err := processor.ProcessByProviderMessageID(ctx, *provider, *messageID)
			must(err)
			fmt.Println(pipeline.ResultJSON(outcome.Result))
			return
		}
		processed, err := processor.ProcessPending(ctx, *batch, *provider)
		must(err)
		fmt.Printf("processed pending emails=%d\n", processed)
	case "mail:listen":
		processor, err := makeProcessor(db, cfg, log)
		must(err)
		svc := listener.NewService(db, cfg, processor, log)
		must(svc.Run(ctx))
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--out is required"))
		}
		rows, err := db.GetExportRows()
		must(err)
		if len(rows) == 0 {
			must(fmt.Errorf("no results to export"))
		}
		must(pipeline.ExportResultsToXLSX(rows, *out))
		fmt.Printf("exported %d rows to %s\n", len(rows), *out)
	case "run":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "path to .eml file")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*file) == "" {
			must(fmt.Errorf("--file is required"))
		}
		raw, err := os.ReadFile(*file)
		must(err)
		processor, err := makeProcessor(db, cfg, log)
		must(err)
		outcome, err := processor.ProcessUpload(ctx, raw, *file)
		must(err)
		fmt.Println(pipeline.ResultJSON(outcome.Result))
	default:
		usage()
		os.Exit(1)
	}
}

func makeProcessor(db *storage.DB, cfg config.Config, log *zap.Logger) (*pipeline.Service, error) {
	r, err := rules.Load(cfg.RulesPath)
	if err != nil {
		return nil, err
	}
	atts := pipeline.NewAttachmentExtractor(ocr.NewTesseract(cfg.TesseractPath))
	return pipeline.NewService(db, cfg, r, llm.NewClient(cfg), atts, log), nil
}

func makeConnector(ctx context.Context, cfg config.Config, provider string) (connectors.MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(ctx, cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func usage() {
	fmt.Println("usage: mailtriage <command>")
	fmt.Println("commands:")
	fmt.Println("  serve")
	fmt.Println("  mail:fetch --provider=gmail|imap --label=INBOX --max=50")
	fmt.Println("  mail:process [--provider=gmail|imap|upload] [--messageId=...] [--batch=20]")
	fmt.Println("  mail:listen")
	fmt.Println("  export:xlsx --out=./out/results.xlsx")
	fmt.Println("  run --file=./email.eml")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
