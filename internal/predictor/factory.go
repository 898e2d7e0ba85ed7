package predictor

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/multiplier-cli/internal/config"
	"github.com/sells-group/multiplier-cli/internal/resilience"
)

// NewModel builds the backend selected by cfg.Provider.
func NewModel(cfg config.ModelConfig) (Model, error) {
	switch cfg.Provider {
	case "onnx", "":
		return NewONNXModel(ONNXOptions{
			Path:        cfg.ONNXPath,
			LibraryPath: cfg.ORTLibrary,
			InputName:   cfg.InputName,
			OutputName:  cfg.OutputName,
		})
	case "tfserving":
		if cfg.TFServingURL == "" {
			return nil, eris.New("predictor: tfserving_url is required")
		}
		opts := []TFServingOption{
			WithGuard(resilience.NewGuard("tfserving", cfg.Retry, cfg.Circuit)),
			WithRateLimit(cfg.RatePerSec),
		}
		if cfg.TimeoutSecs > 0 {
			opts = append(opts, WithHTTPClient(newHTTPClient(time.Duration(cfg.TimeoutSecs)*time.Second)))
		}
		return NewTFServingModel(cfg.TFServingURL, cfg.TFServingModel, opts...), nil
	default:
		return nil, eris.Errorf("predictor: unknown provider %q", cfg.Provider)
	}
}

// NewAdapterFromConfig loads the configured model and applies its length limits.
func NewAdapterFromConfig(cfg config.ModelConfig) (*Adapter, error) {
	m, err := NewModel(cfg)
	if err != nil {
		return nil, err
	}
	return NewAdapter(m, Limits{MinLength: cfg.MinLength, MaxLength: cfg.MaxLength}), nil
}
