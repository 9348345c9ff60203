package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/rxverify/internal/audit"
	"github.com/joseph-ayodele/rxverify/internal/common"
	"github.com/joseph-ayodele/rxverify/internal/core/ocr"
	"github.com/joseph-ayodele/rxverify/internal/core/pipeline"
	"github.com/joseph-ayodele/rxverify/internal/registry"
	"github.com/joseph-ayodele/rxverify/internal/server"
)

// app carries what every subcommand needs after configuration is loaded.
type app struct {
	cfg    *common.Config
	logger *slog.Logger
	format string
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "rxverify",
		Short:         "Prescription registration and verification",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := common.LoadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if a.format != formatJSON && a.format != formatYAML {
				return fmt.Errorf("unknown --format %q (json|yaml)", a.format)
			}
			a.cfg = cfg
			a.logger = common.NewLogger(cfg.Log, os.Stderr)
			slog.SetDefault(a.logger)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.format, "format", formatJSON, "output format: json|yaml")

	root.AddCommand(
		serveCmd(a),
		verifyCmd(a),
		registerCmd(a),
		extractCmd(a),
		issueCmd(a),
		batchCmd(a),
		watchCmd(a),
		exportCmd(a),
		ledgerCmd(a),
		ocrInfoCmd(a),
		tokenCmd(a),
	)
	return root
}

func (a *app) ocrExtractor() *ocr.Extractor {
	c := a.cfg.OCR
	return ocr.NewExtractor(ocr.Config{
		Tesseract:           c.Tesseract,
		TesseractLang:       c.TesseractLang,
		TessdataDir:         c.TessdataDir,
		HeicConverter:       c.HeicConverter,
		ArtifactCacheDir:    c.ArtifactCacheDir,
		PSM:                 c.PSM,
		OEM:                 c.OEM,
		DPI:                 c.DPI,
		MaxPages:            c.MaxPages,
		EnableTSVConfidence: c.EnableTSVConfidence,
	}, a.logger.With("component", "ocr"))
}

func (a *app) openStore(ctx context.Context) (registry.Store, error) {
	return registry.Open(ctx, a.cfg, a.logger.With("component", "registry"))
}

func (a *app) publisher() audit.Publisher {
	if len(a.cfg.Kafka.Brokers) == 0 {
		return audit.NopPublisher{}
	}
	a.logger.Info("audit events enabled", "brokers", a.cfg.Kafka.Brokers, "topic", a.cfg.Kafka.Topic)
	return audit.NewKafkaPublisher(a.cfg.Kafka.Brokers, a.cfg.Kafka.Topic, a.logger.With("component", "audit"))
}

func (a *app) authConfig() server.AuthConfig {
	return server.AuthConfig{Secret: []byte(a.cfg.Auth.JWTSecret), Issuer: a.cfg.Auth.Issuer}
}

// env is a fully wired pipeline plus the resources to release afterwards.
type env struct {
	proc      *pipeline.Processor
	store     registry.Store
	publisher audit.Publisher
	engine    *ocr.Extractor
}

func (a *app) wire(ctx context.Context) (*env, error) {
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	pub := a.publisher()
	engine := a.ocrExtractor()
	proc := pipeline.NewProcessor(
		ocr.Bounded(engine, a.cfg.OCR.Timeout),
		store,
		a.logger.With("component", "pipeline"),
		pipeline.WithPublisher(pub),
		pipeline.WithAuditTimeout(a.cfg.Kafka.PublishTimeout),
	)
	return &env{proc: proc, store: store, publisher: pub, engine: engine}, nil
}

func (e *env) Close(logger *slog.Logger) {
	if err := e.publisher.Close(); err != nil {
		logger.Warn("failed to close audit publisher", "error", err)
	}
	if err := e.store.Close(); err != nil {
		logger.Warn("failed to close registry", "error", err)
	}
}
