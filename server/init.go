package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/krau/cropdoctor/config"
	"github.com/krau/cropdoctor/model"
	"github.com/krau/cropdoctor/onnx"
	"github.com/krau/cropdoctor/service"
	"github.com/krau/cropdoctor/store"
	"github.com/krau/cropdoctor/tflite"
	"github.com/krau/cropdoctor/translate"
)

// Diagnoser is the part of service.Identifier the handlers need.
type Diagnoser interface {
	Identify(ctx context.Context, imagePath string) (*service.Diagnosis, error)
	Diagnose(ctx context.Context, imagePath, crop string) (*service.Diagnosis, error)
	Registry() service.Registry
}

type Server struct {
	token      string
	uploadDir  string
	maxUpload  int64
	diagnoser  Diagnoser
	history    *store.History
	translator *translate.Service
	models     *model.Cache
}

func New(cfg config.Config, d Diagnoser, history *store.History, tr *translate.Service) *Server {
	return &Server{
		token:      cfg.Token,
		uploadDir:  cfg.UploadDir,
		maxUpload:  cfg.MaxUploadMB << 20,
		diagnoser:  d,
		history:    history,
		translator: tr,
	}
}

// BuildRegistry turns the configured crops into a registry, reading label
// files where labels are not inline.
func BuildRegistry(crops []config.Crop) (service.Registry, error) {
	ds := make([]service.Descriptor, 0, len(crops))
	for _, c := range crops {
		labels := c.Labels
		if len(labels) == 0 && c.LabelsFile != "" {
			var err error
			labels, err = service.ReadLines(c.LabelsFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read labels of %s: %w", c.Name, err)
			}
		}
		ds = append(ds, service.Descriptor{
			Crop:         c.Name,
			ModelPath:    c.Model,
			Labels:       labels,
			Scaling:      service.Scaling(c.Scaling),
			ChannelOrder: service.ChannelOrder(c.ChannelOrder),
			Logits:       c.Logits,
		})
	}
	return service.NewRegistry(ds...)
}

// Init wires the server from the global configuration. The ONNX Runtime
// environment must already be initialized.
func Init(ctx context.Context) (*Server, error) {
	cfg := config.C()

	registry, err := BuildRegistry(cfg.Crops)
	if err != nil {
		return nil, err
	}
	for _, d := range registry {
		if _, err := os.Stat(d.ModelPath); err != nil {
			slog.Warn("Model file missing, crop will be skipped",
				slog.String("crop", d.Crop), slog.String("path", d.ModelPath))
		}
	}

	models := model.NewCache(model.ExtLoader{
		".onnx":   onnx.NewLoader(cfg.IntraOpThreads),
		".tflite": tflite.NewLoader(cfg.IntraOpThreads),
	}.Load)
	identifier := service.NewIdentifier(registry, service.NewPredictor(models),
		service.WithStageClassifier(service.Thresholds{
			EarlyBelow:  cfg.Severity.EarlyBelow,
			MediumBelow: cfg.Severity.MediumBelow,
		}),
	)

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	history, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	tr := translate.New(newTranslator(cfg.Translate), cfg.Translate.Workers)
	if err := tr.LoadUI(cfg.TranslationsFile); err != nil {
		history.Close()
		return nil, err
	}

	s := New(cfg, identifier, history, tr)
	s.models = models
	slog.Info("Server initialized",
		slog.Any("crops", registry.Crops()), slog.String("db", cfg.DBPath))
	return s, nil
}

func newTranslator(cfg config.Translate) translate.Translator {
	if cfg.Endpoint == "" {
		slog.Info("No translation endpoint configured, responses stay in English")
		return nil
	}
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		slog.Warn("Invalid translate timeout, using 10s", slog.String("timeout", cfg.Timeout))
		timeout = 10 * time.Second
	}
	return translate.NewHTTPTranslator(cfg.Endpoint, cfg.APIKey, timeout, cfg.Retries)
}

func (s *Server) Close() error {
	var errs []error
	if s.models != nil {
		errs = append(errs, s.models.Close())
	}
	if s.history != nil {
		errs = append(errs, s.history.Close())
	}
	return errors.Join(errs...)
}
