// Package ocr turns screenshots of the multiplier history into raw text.
package ocr

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/multiplier-cli/internal/config"
	"github.com/sells-group/multiplier-cli/internal/resilience"
)

// Extractor extracts text content from image files.
type Extractor interface {
	ExtractText(ctx context.Context, imagePath string) (string, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.OCRConfig) (Extractor, error) {
	switch cfg.Provider {
	case "tesseract", "":
		return NewTesseract(TesseractOptions{
			BinPath: cfg.TesseractPath,
			Lang:    cfg.Lang,
			PSM:     cfg.PSM,
			Timeout: time.Duration(cfg.TimeoutSecs) * time.Second,
		}), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires mistral_api_key")
		}
		return NewMistralOCR(cfg.MistralKey, cfg.MistralModel,
			resilience.NewGuard("mistral", config.RetryConfig{}, config.CircuitConfig{})), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
