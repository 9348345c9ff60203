// Package server exposes the verification pipeline over HTTP (echo) and gRPC.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/joseph-ayodele/rxverify/constants"
	"github.com/joseph-ayodele/rxverify/internal/core/ocr"
	"github.com/joseph-ayodele/rxverify/internal/entity"
)

// Pipeline is what the handlers need from pipeline.Processor.
type Pipeline interface {
	Verify(ctx context.Context, image []byte) entity.VerificationVerdict
	Register(ctx context.Context, image []byte) (entity.RegistrationResult, error)
	RegisterRecord(ctx context.Context, rec entity.PrescriptionRecord) (entity.RegistrationResult, error)
	Extract(ctx context.Context, image []byte) entity.PrescriptionRecord
	Lookup(ctx context.Context, fingerprint string) (bool, error)
}

type EngineInspector interface {
	Info(ctx context.Context) ocr.EngineInfo
}

type Exporter interface {
	ExportRegistryXLSX(ctx context.Context, from, to *time.Time) ([]byte, error)
}

type HTTPConfig struct {
	MaxUploadBytes int64
	Auth           AuthConfig
}

type HTTPServer struct {
	pipeline Pipeline
	engine   EngineInspector
	exporter Exporter
	cfg      HTTPConfig
	logger   *slog.Logger
	issuance *issuanceValidator
}

func NewHTTPServer(p Pipeline, engine EngineInspector, exporter Exporter, cfg HTTPConfig, logger *slog.Logger) (*HTTPServer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	v, err := newIssuanceValidator()
	if err != nil {
		return nil, err
	}
	return &HTTPServer{
		pipeline: p,
		engine:   engine,
		exporter: exporter,
		cfg:      cfg,
		logger:   logger,
		issuance: v,
	}, nil
}

// Handler builds the echo instance with every route registered.
func (s *HTTPServer) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(s.logger)

	e.Use(RequestID())
	e.Use(Logger(s.logger))
	e.Use(Recovery(s.logger))
	if s.cfg.MaxUploadBytes > 0 {
		e.Use(echomw.BodyLimit(strconv.FormatInt(s.cfg.MaxUploadBytes, 10)))
	}

	e.GET("/", s.index)
	e.GET("/test", s.alive)
	e.GET("/health", s.health)
	e.GET("/ocr/info", s.ocrInfo)

	auth := s.cfg.Auth
	api := e.Group("", JWTMiddleware(auth))
	either := RequireRole(auth, constants.RoleIssuer, constants.RoleVerifier)
	issuer := RequireRole(auth, constants.RoleIssuer)

	api.POST("/verify", s.verify, either)
	api.POST("/extract", s.extract, either)
	api.GET("/registry/:fingerprint", s.lookup, either)
	api.POST("/register", s.register, issuer)
	api.POST("/prescriptions", s.createPrescription, issuer)
	api.GET("/registry/export", s.exportRegistry, issuer)
	return e
}

func (s *HTTPServer) index(c echo.Context) error {
	return c.String(http.StatusOK, "Prescription verification service is running")
}

func (s *HTTPServer) alive(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": "API alive"})
}

func (s *HTTPServer) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) ocrInfo(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.Info(c.Request().Context()))
}
