package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailtriage/internal"
	"mailtriage/internal/config"
	"mailtriage/internal/llm"
	"mailtriage/internal/rules"
	"mailtriage/internal/storage"
)

type Service struct {
	db    *storage.DB
	cfg   config.Config
	rules *rules.Rules
	model llm.Completer
	atts  *AttachmentExtractor
	log   *zap.Logger
}

func NewService(db *storage.DB, cfg config.Config, r *rules.Rules, model llm.Completer, atts *AttachmentExtractor, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: db, cfg: cfg, rules: r, model: model, atts: atts, log: log}
}

// Outcome is what one email yields end to end. Cached marks results served
// from the seen-hash store without a model call.
type Outcome struct {
	EmailID     int
	Subject     string
	Result      internal.ClassificationResult
	Cached      bool
	ProcessedAt time.Time
}

// Classify runs the full extract-prompt-model-normalize chain on one raw
// message. It never panics past this boundary: a panic anywhere in the chain
// comes back as a generic processing error.
func (s *Service) Classify(ctx context.Context, raw []byte) (outcome Outcome, rawModel string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newError(ErrGenericProcessing, "classification panic: %v", r)
		}
	}()

	start := time.Now()
	email := ExtractEmail(raw)

	texts := s.atts.ExtractAll(ctx, email.Attachments)
	attachmentText := CombineAttachmentText(texts)
	extractMs := float64(time.Since(start).Milliseconds())

	req := BuildClassificationRequest(email.Subject, email.Body, attachmentText, s.rules)

	modelStart := time.Now()
	rawModel, err = s.model.Complete(ctx, req.System, req.Prompt)
	if err != nil {
		return Outcome{}, "", newError(ErrModelUnavailable, "model completion: %v", err)
	}
	modelMs := float64(time.Since(modelStart).Milliseconds())

	result, err := NormalizeModelResponse(rawModel, req.Duplicate, s.rules.Routing)
	if err != nil {
		return Outcome{}, rawModel, err
	}

	s.log.Info("email classified",
		zap.String("request_type", result.RequestType),
		zap.String("sub_request_type", result.SubRequestType),
		zap.Bool("duplicate", result.Duplicate),
		zap.Float64("extract_ms", extractMs),
		zap.Float64("model_ms", modelMs),
	)

	return Outcome{
		Subject:     email.Subject,
		Result:      result,
		ProcessedAt: time.Now().UTC(),
	}, rawModel, nil
}

// ProcessUpload handles a directly submitted .eml payload: dedupe by content
// hash, classify, persist.
func (s *Service) ProcessUpload(ctx context.Context, raw []byte, sourceName string) (Outcome, error) {
	hash := contentHash(raw)

	if cached, err := s.db.ResultByHash(hash); err != nil {
		return Outcome{}, err
	} else if cached != nil {
		email := ExtractEmail(raw)
		s.log.Info("serving cached result", zap.String("hash", hash[:12]), zap.String("source", sourceName))
		return Outcome{Subject: email.Subject, Result: *cached, Cached: true, ProcessedAt: time.Now().UTC()}, nil
	}

	rawRef, err := s.storeRawUpload(raw, hash)
	if err != nil {
		return Outcome{}, err
	}

	email := ExtractEmail(raw)
	row, err := s.db.UpsertEmail("upload", hash, email.Subject, sourceName, time.Now().UTC().Format(time.RFC3339), hash, rawRef, "fetched")
	if err != nil {
		return Outcome{}, err
	}

	return s.ProcessEmail(ctx, row)
}

func (s *Service) ProcessByProviderMessageID(ctx context.Context, provider, messageID string) (Outcome, error) {
	email, err := s.db.MustEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return Outcome{}, err
	}
	return s.ProcessEmail(ctx, email)
}

func (s *Service) ProcessPending(ctx context.Context, limit int, provider string) (int, error) {
	pending, err := s.db.ListEmailsByStatus("fetched", limit)
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, email := range pending {
		if provider != "" && email.Provider != provider {
			continue
		}
		if _, err := s.ProcessEmail(ctx, email); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

func (s *Service) ProcessEmail(ctx context.Context, email internal.EmailRow) (Outcome, error) {
	start := time.Now()

	raw, err := os.ReadFile(email.RawRef)
	if err != nil {
		return Outcome{}, fmt.Errorf("read raw email %s: %w", email.RawRef, err)
	}

	if cached, err := s.db.ResultByHash(email.Hash); err != nil {
		return Outcome{}, err
	} else if cached != nil {
		_ = s.db.UpdateEmailStatus(email.ID, "processed")
		s.log.Info("serving cached result",
			zap.Int("email_id", email.ID),
			zap.String("hash", email.Hash[:min(12, len(email.Hash))]),
		)
		return Outcome{EmailID: email.ID, Subject: email.Subject, Result: *cached, Cached: true, ProcessedAt: time.Now().UTC()}, nil
	}

	outcome, rawModel, err := s.Classify(ctx, raw)
	if err != nil {
		_ = s.db.UpdateEmailStatus(email.ID, "error")
		return Outcome{}, err
	}
	outcome.EmailID = email.ID
	if strings.TrimSpace(outcome.Subject) == "" {
		outcome.Subject = email.Subject
	}

	if err := s.saveAttachments(email.ID, raw); err != nil {
		s.log.Warn("persist attachments", zap.Int("email_id", email.ID), zap.Error(err))
	}
	if err := s.db.InsertResult(email.ID, outcome.Result, rawModel); err != nil {
		return Outcome{}, err
	}
	if err := s.db.UpdateEmailStatus(email.ID, "processed"); err != nil {
		return Outcome{}, err
	}
	_ = s.db.InsertRun(uuid.NewString(), email.ID, map[string]float64{
		"totalMs": float64(time.Since(start).Milliseconds()),
	})

	return outcome, nil
}

// ResultJSON renders a result in the canonical field order for CLI output.
func ResultJSON(result internal.ClassificationResult) string {
	blob, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(blob)
}

func (s *Service) storeRawUpload(raw []byte, hash string) (string, error) {
	if err := os.MkdirAll(s.cfg.RawMailDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.cfg.RawMailDir, hash+".eml")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Service) saveAttachments(emailID int, raw []byte) error {
	email := ExtractEmail(raw)
	if len(email.Attachments) == 0 {
		return nil
	}
	dir := filepath.Join(s.cfg.AttachmentDir, fmt.Sprintf("email-%d", emailID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for i, att := range email.Attachments {
		name := filepath.Base(att.Filename)
		if name == "" || name == "." {
			name = fmt.Sprintf("attachment-%d", i+1)
		}
		if err := os.WriteFile(filepath.Join(dir, name), att.Content, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func contentHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
