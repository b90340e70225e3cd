package clients

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"rentflow-system/config"
	"rentflow-system/internal/apperr"
	"rentflow-system/internal/logger"
	"rentflow-system/internal/scanner"
)

var knownEngines = []string{scanner.EngineGemini, scanner.EngineOpenAI, scanner.EngineOCR}

// ScannerEngines holds the extraction engines that could be configured. Missing
// engines are remembered with the reason so health checks can report them.
type ScannerEngines struct {
	engines     map[string]scanner.Extractor
	unavailable map[string]string
	log         zerolog.Logger
}

func NewScannerEngines() *ScannerEngines {
	e := &ScannerEngines{
		engines:     make(map[string]scanner.Extractor),
		unavailable: make(map[string]string),
		log:         logger.WithComponent("engines"),
	}
	for _, name := range knownEngines {
		e.unavailable[name] = "not configured"
	}
	return e
}

// Register makes an extractor available under its own name.
func (e *ScannerEngines) Register(ex scanner.Extractor) {
	e.engines[ex.Name()] = ex
	delete(e.unavailable, ex.Name())
}

func (e *ScannerEngines) markUnavailable(name string, err error) {
	e.unavailable[name] = err.Error()
	e.log.Warn().Err(err).Str("engine", name).Msg("scanner engine unavailable")
}

// NewScannerEnginesWithFallback builds every engine the configuration allows. Engines
// that fail to start are left out; the registry is always usable.
func NewScannerEnginesWithFallback(ctx context.Context, ai config.AIConfig, ocr config.OCRConfig) (*ScannerEngines, error) {
	e := NewScannerEngines()
	var errs []string

	if ai.GeminiAPIKey != "" {
		g, err := scanner.NewGeminiExtractor(ctx, ai.GeminiAPIKey, ai.GeminiModel)
		if err != nil {
			e.markUnavailable(scanner.EngineGemini, err)
			errs = append(errs, fmt.Sprintf("gemini: %v", err))
		} else {
			e.Register(g)
		}
	}

	if ai.OpenAIAPIKey != "" {
		e.Register(scanner.NewOpenAIExtractor(ai.OpenAIAPIKey, ai.OpenAIModel))
	}

	if ocr.Enabled {
		detector, err := scanner.NewVisionDetector(ctx, ocr.CredentialsFile)
		if err != nil {
			e.markUnavailable(scanner.EngineOCR, err)
			errs = append(errs, fmt.Sprintf("ocr: %v", err))
		} else {
			e.Register(scanner.NewOCRExtractor(detector))
		}
	}

	if len(e.engines) == 0 {
		e.log.Warn().Msg("no scanner engine configured, scanning is disabled")
	} else {
		e.log.Info().Strs("engines", e.Available()).Msg("scanner engines ready")
	}
	if len(errs) > 0 {
		return e, fmt.Errorf("some scanner engines failed to start: %s", strings.Join(errs, "; "))
	}
	return e, nil
}

// Engine returns the named extractor. Unknown names are invalid input; known but
// unconfigured engines are unavailable.
func (e *ScannerEngines) Engine(name string) (scanner.Extractor, error) {
	if ex, ok := e.engines[name]; ok {
		return ex, nil
	}
	if reason, ok := e.unavailable[name]; ok {
		return nil, fmt.Errorf("%w: engine %s: %s", apperr.ErrUnavailable, name, reason)
	}
	return nil, (&apperr.ValidationError{}).Add("engine", "must be one of %s", strings.Join(knownEngines, ", "))
}

func (e *ScannerEngines) Available() []string {
	names := make([]string, 0, len(e.engines))
	for name := range e.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *ScannerEngines) IsAvailable(name string) bool {
	_, ok := e.engines[name]
	return ok
}

// Unavailable maps each missing engine to the reason it is missing.
func (e *ScannerEngines) Unavailable() map[string]string {
	out := make(map[string]string, len(e.unavailable))
	for k, v := range e.unavailable {
		out[k] = v
	}
	return out
}

func (e *ScannerEngines) Close() {
	for name, ex := range e.engines {
		if c, ok := ex.(io.Closer); ok {
			if err := c.Close(); err != nil {
				e.log.Warn().Err(err).Str("engine", name).Msg("failed to close engine")
			}
		}
	}
}
