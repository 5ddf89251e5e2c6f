package ocr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/joseph-ayodele/creditreport-extractor/constants"
	"github.com/joseph-ayodele/creditreport-extractor/internal/common"
)

// Config carries the per-variant settings the method set is built from.
type Config struct {
	DocumentAI   DocumentAIConfig
	Vision       VisionConfig
	Managed      ManagedOCRConfig
	Local        LocalConfig
	LocalEnabled bool
	HTTPClient   *http.Client
}

// Unavailable records a variant that was not built and why.
type Unavailable struct {
	Method constants.Method
	Reason string
}

func (u Unavailable) Err() error {
	return fmt.Errorf("%w: %s: %s", common.ErrMethodUnavailable, u.Method, u.Reason)
}

// MethodSet is the fixed list of enabled methods, decided once at startup.
type MethodSet struct {
	methods     []Method
	unavailable []Unavailable
	closers     []io.Closer
}

// NewMethodSet evaluates every variant's enabled predicate against cfg.
// Missing credentials disable a variant silently apart from a log line.
func NewMethodSet(ctx context.Context, cfg Config, logger *slog.Logger) *MethodSet {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MethodSet{}
	skip := func(m constants.Method, reason string) {
		s.unavailable = append(s.unavailable, Unavailable{Method: m, Reason: reason})
		logger.Info("ocr.method.unavailable", "method", m, "reason", reason)
	}

	if cfg.DocumentAI.Enabled() {
		m, err := NewDocumentAIMethod(ctx, cfg.DocumentAI, logger)
		if err != nil {
			skip(constants.MethodDocumentAI, err.Error())
		} else {
			s.add(m, m)
		}
	} else {
		skip(constants.MethodDocumentAI, "project, location or processor not configured")
	}

	if cfg.Vision.Enabled() {
		m, err := NewVisionMethod(ctx, cfg.Vision, logger)
		if err != nil {
			skip(constants.MethodVision, err.Error())
		} else {
			s.add(m, m)
		}
	} else {
		skip(constants.MethodVision, "vertex project not configured")
	}

	if cfg.Managed.Enabled() {
		m, err := NewManagedOCRMethod(cfg.Managed, cfg.HTTPClient, logger)
		if err != nil {
			skip(constants.MethodManagedOCR, err.Error())
		} else {
			s.add(m, nil)
		}
	} else {
		skip(constants.MethodManagedOCR, "api key not configured")
	}

	switch {
	case cfg.LocalEnabled:
		s.add(NewLocalMethod(cfg.Local, logger), nil)
	case len(s.methods) == 0:
		logger.Warn("ocr.method.local_forced", "reason", "no other method enabled")
		s.add(NewLocalMethod(cfg.Local, logger), nil)
	default:
		skip(constants.MethodLocal, "disabled by configuration")
	}

	names := make([]constants.Method, 0, len(s.methods))
	for _, m := range s.methods {
		names = append(names, m.Name())
	}
	logger.Info("ocr.method.set", "enabled", names, "unavailable", len(s.unavailable))
	return s
}

// NewStaticSet wraps already-built methods.
func NewStaticSet(methods ...Method) *MethodSet {
	return &MethodSet{methods: methods}
}

func (s *MethodSet) add(m Method, c io.Closer) {
	s.methods = append(s.methods, m)
	if c != nil {
		s.closers = append(s.closers, c)
	}
}

func (s *MethodSet) Methods() []Method {
	out := make([]Method, len(s.methods))
	copy(out, s.methods)
	return out
}

func (s *MethodSet) Unavailable() []Unavailable {
	out := make([]Unavailable, len(s.unavailable))
	copy(out, s.unavailable)
	return out
}

// Close releases client connections held by remote methods.
func (s *MethodSet) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
