package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	OCR       OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	Model     ModelConfig     `yaml:"model" mapstructure:"model"`
	Artifacts ArtifactsConfig `yaml:"artifacts" mapstructure:"artifacts"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port" validate:"gt=0,lt=65536"`
	UploadDir      string   `yaml:"upload_dir" mapstructure:"upload_dir" validate:"required"`
	RatePerSec     float64  `yaml:"rate_per_sec" mapstructure:"rate_per_sec" validate:"gte=0"`
	Burst          int      `yaml:"burst" mapstructure:"burst" validate:"gte=0"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StoreConfig configures the history database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns" validate:"gte=0"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns" validate:"gte=0"`
}

// OCRConfig configures image text extraction.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider" validate:"oneof=tesseract mistral"`
	TesseractPath string `yaml:"tesseract_path" mapstructure:"tesseract_path"`
	PSM           int    `yaml:"psm" mapstructure:"psm" validate:"gte=0,lte=13"`
	Lang          string `yaml:"lang" mapstructure:"lang"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gte=0"`
	MistralKey    string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel  string `yaml:"mistral_model" mapstructure:"mistral_model"`
}

// ModelConfig configures the frozen sequence model backend.
type ModelConfig struct {
	Provider       string        `yaml:"provider" mapstructure:"provider" validate:"oneof=onnx tfserving"`
	ONNXPath       string        `yaml:"onnx_path" mapstructure:"onnx_path"`
	ORTLibrary     string        `yaml:"ort_library" mapstructure:"ort_library"`
	InputName      string        `yaml:"input_name" mapstructure:"input_name"`
	OutputName     string        `yaml:"output_name" mapstructure:"output_name"`
	MinLength      int           `yaml:"min_length" mapstructure:"min_length" validate:"gte=0"`
	MaxLength      int           `yaml:"max_length" mapstructure:"max_length" validate:"gte=0"`
	TFServingURL   string        `yaml:"tfserving_url" mapstructure:"tfserving_url"`
	TFServingModel string        `yaml:"tfserving_model" mapstructure:"tfserving_model"`
	TimeoutSecs    int           `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gte=0"`
	RatePerSec     float64       `yaml:"rate_per_sec" mapstructure:"rate_per_sec" validate:"gte=0"`
	Retry          RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Circuit        CircuitConfig `yaml:"circuit" mapstructure:"circuit"`
}

// RetryConfig configures retries against a remote model server.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig configures the circuit breaker around a remote model server.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ArtifactsConfig configures where diagnostic plots are written.
type ArtifactsConfig struct {
	GraphDir string `yaml:"graph_dir" mapstructure:"graph_dir" validate:"required"`
	Disabled bool   `yaml:"disabled" mapstructure:"disabled"`
}

// PipelineConfig configures request-level behavior of the prediction pipeline.
type PipelineConfig struct {
	InferenceTimeoutSecs int `yaml:"inference_timeout_secs" mapstructure:"inference_timeout_secs" validate:"gte=0"`
}

// Load reads configuration from file and environment. A .env file in the
// working directory is loaded into the environment first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MULTIPLIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", 5000)
	v.SetDefault("server.upload_dir", "uploads")
	v.SetDefault("server.rate_per_sec", 5.0)
	v.SetDefault("server.burst", 10)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5000"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "multiplier.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("ocr.provider", "tesseract")
	v.SetDefault("ocr.tesseract_path", "tesseract")
	v.SetDefault("ocr.psm", 6)
	v.SetDefault("ocr.lang", "eng")
	v.SetDefault("ocr.timeout_secs", 20)
	v.SetDefault("ocr.mistral_model", "mistral-ocr-latest")
	v.SetDefault("model.provider", "onnx")
	v.SetDefault("model.onnx_path", "model/lstm_v2.onnx")
	v.SetDefault("model.input_name", "input")
	v.SetDefault("model.output_name", "output")
	v.SetDefault("model.min_length", 1)
	v.SetDefault("model.max_length", 0)
	v.SetDefault("model.tfserving_model", "lstm")
	v.SetDefault("model.timeout_secs", 10)
	v.SetDefault("model.rate_per_sec", 20.0)
	v.SetDefault("model.retry.max_attempts", 3)
	v.SetDefault("model.retry.initial_backoff_ms", 200)
	v.SetDefault("model.retry.max_backoff_ms", 2000)
	v.SetDefault("model.retry.multiplier", 2.0)
	v.SetDefault("model.retry.jitter_fraction", 0.25)
	v.SetDefault("model.circuit.failure_threshold", 5)
	v.SetDefault("model.circuit.reset_timeout_secs", 30)
	v.SetDefault("artifacts.graph_dir", "static/graphs")
	v.SetDefault("pipeline.inference_timeout_secs", 30)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the sections required by the given command mode.
// Modes: "serve", "predict", "history", "parse".
func (c *Config) Validate(mode string) error {
	all := map[string]any{
		"server":    c.Server,
		"store":     c.Store,
		"ocr":       c.OCR,
		"model":     c.Model,
		"artifacts": c.Artifacts,
		"pipeline":  c.Pipeline,
	}
	var names []string
	switch mode {
	case "serve":
		names = []string{"server", "store", "ocr", "model", "artifacts", "pipeline"}
	case "predict":
		names = []string{"store", "ocr", "model", "artifacts", "pipeline"}
	case "history":
		names = []string{"store"}
	case "parse":
		return nil
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("mapstructure")
	})

	var problems []string
	for _, name := range names {
		if err := validate.Struct(all[name]); err != nil {
			var verrs validator.ValidationErrors
			if !eris.As(err, &verrs) {
				return eris.Wrap(err, "config: validate")
			}
			for _, fe := range verrs {
				problems = append(problems, describe(name, fe))
			}
		}
	}

	problems = append(problems, c.crossChecks(mode)...)
	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) crossChecks(mode string) []string {
	var problems []string
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required for postgres")
	}
	if c.Store.MaxConns > 0 && c.Store.MinConns > c.Store.MaxConns {
		problems = append(problems, "store.min_conns must be <= store.max_conns")
	}
	if mode == "history" {
		return problems
	}
	if c.Model.MaxLength > 0 && c.Model.MinLength > c.Model.MaxLength {
		problems = append(problems, "model.min_length must be <= model.max_length")
	}
	switch c.Model.Provider {
	case "onnx":
		if c.Model.ONNXPath == "" {
			problems = append(problems, "model.onnx_path is required for onnx")
		}
	case "tfserving":
		if c.Model.TFServingURL == "" {
			problems = append(problems, "model.tfserving_url is required for tfserving")
		}
	}
	if c.OCR.Provider == "mistral" && c.OCR.MistralKey == "" {
		problems = append(problems, "ocr.mistral_api_key is required for mistral")
	}
	return problems
}

func describe(section string, fe validator.FieldError) string {
	field := section + "." + fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be > %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "lt":
		return fmt.Sprintf("%s must be < %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param())
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
