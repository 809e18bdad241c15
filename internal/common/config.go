package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Server     ServerConfig     `yaml:"server"`
	Extraction ExtractionConfig `yaml:"extraction"`
	OCR        OCRConfig        `yaml:"ocr"`
	LLM        LLMConfig        `yaml:"llm"`
	Batch      BatchConfig      `yaml:"batch"`
	Watch      WatchConfig      `yaml:"watch"`
}

// DatabaseConfig holds record store configuration.
// DSN is either a postgres:// URL or a sqlite file path (":memory:" for tests).
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr       string        `yaml:"http_addr"`
	GRPCAddr       string        `yaml:"grpc_addr"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ExtractionConfig holds cascade thresholds and the readability gate.
type ExtractionConfig struct {
	TextLayerMaxPages    int     `yaml:"text_layer_max_pages"`
	TextLayerMinChars    int     `yaml:"text_layer_min_chars"`
	TextLayerOnScanned   bool    `yaml:"text_layer_on_scanned"`
	OCRMinChars          int     `yaml:"ocr_min_chars"`
	HeuristicMinChars    int     `yaml:"heuristic_min_chars"`
	ReadabilityThreshold float64 `yaml:"readability_threshold"`
	PromptMaxChars       int     `yaml:"prompt_max_chars"`
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Provider          string        `yaml:"provider"` // vision | tesseract | none
	VisionEndpoint    string        `yaml:"vision_endpoint"`
	VisionAPIKey      string        `yaml:"-"`
	LanguageHints     []string      `yaml:"language_hints"`
	MaxPages          int           `yaml:"max_pages"`
	DPI               int           `yaml:"dpi"`
	MaxImageDimension int           `yaml:"max_image_dimension"`
	Timeout           time.Duration `yaml:"timeout"`
	Pdftoppm          string        `yaml:"pdftoppm"`
	Tesseract         string        `yaml:"tesseract"`
	TessdataDir       string        `yaml:"tessdata_dir"`
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	APIKey         string        `yaml:"-"`
	Temperature    float32       `yaml:"temperature"`
	Timeout        time.Duration `yaml:"timeout"`
	JSONMode       bool          `yaml:"json_mode"`
	VisionFallback bool          `yaml:"vision_fallback"`
}

// BatchConfig bounds the per-batch fan-out.
type BatchConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	DocumentTimeout time.Duration `yaml:"document_timeout"`
	QueueWorkers    int           `yaml:"queue_workers"`
	QueueSize       int           `yaml:"queue_size"`
}

// WatchConfig holds the optional watch-folder settings for the daemon.
type WatchConfig struct {
	Directories []string      `yaml:"directories"`
	Debounce    time.Duration `yaml:"debounce"`
}

// Defaults returns the configuration used when neither a file nor the environment sets a value.
func Defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:             "committee.db",
			MaxConns:        10,
			MinConns:        1,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		Server: ServerConfig{
			HTTPAddr:       ":8080",
			GRPCAddr:       ":9090",
			MaxUploadBytes: 64 << 20,
			RequestTimeout: 10 * time.Minute,
		},
		Extraction: ExtractionConfig{
			TextLayerMaxPages:    20,
			TextLayerMinChars:    100,
			OCRMinChars:          20,
			HeuristicMinChars:    50,
			ReadabilityThreshold: 30,
			PromptMaxChars:       20000,
		},
		OCR: OCRConfig{
			Provider:          "vision",
			VisionEndpoint:    "https://vision.googleapis.com/v1/images:annotate",
			LanguageHints:     []string{"he", "en"},
			MaxPages:          5,
			DPI:               200,
			MaxImageDimension: 2000,
			Timeout:           30 * time.Second,
			Pdftoppm:          "pdftoppm",
			Tesseract:         "tesseract",
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			Temperature: 0,
			Timeout:     90 * time.Second,
			JSONMode:    true,
		},
		Batch: BatchConfig{
			Concurrency:     4,
			DocumentTimeout: 5 * time.Minute,
			QueueWorkers:    2,
			QueueSize:       256,
		},
		Watch: WatchConfig{
			Debounce: 2 * time.Second,
		},
	}
}

// LoadConfig loads configuration from environment variables on top of Defaults.
func LoadConfig() *Config {
	cfg := Defaults()
	cfg.applyEnv()
	cfg.clamp()
	return cfg
}

// Load reads an optional YAML file, then applies environment overrides.
// Secrets are never read from the file.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.clamp()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Database.DSN = getEnv("DB_URL", c.Database.DSN)
	c.Database.MaxConns = getEnvAsInt32("DB_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getEnvAsInt32("DB_MIN_CONNS", c.Database.MinConns)
	c.Database.MaxConnLifetime = getEnvAsDuration("DB_MAX_CONN_LIFETIME", c.Database.MaxConnLifetime)
	c.Database.MaxConnIdleTime = getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", c.Database.MaxConnIdleTime)
	c.Database.DialTimeout = getEnvAsDuration("DB_DIAL_TIMEOUT", c.Database.DialTimeout)

	c.Server.HTTPAddr = getEnv("HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.GRPCAddr = getEnv("GRPC_ADDR", c.Server.GRPCAddr)

	c.Extraction.TextLayerMaxPages = getEnvAsInt("TEXT_LAYER_MAX_PAGES", c.Extraction.TextLayerMaxPages)
	c.Extraction.TextLayerOnScanned = getEnvAsBool("TEXT_LAYER_ON_SCANNED", c.Extraction.TextLayerOnScanned)
	c.Extraction.ReadabilityThreshold = getEnvAsFloat64("READABILITY_THRESHOLD", c.Extraction.ReadabilityThreshold)
	c.Extraction.PromptMaxChars = getEnvAsInt("PROMPT_MAX_CHARS", c.Extraction.PromptMaxChars)

	c.OCR.Provider = strings.ToLower(getEnv("OCR_PROVIDER", c.OCR.Provider))
	c.OCR.VisionEndpoint = getEnv("VISION_ENDPOINT", c.OCR.VisionEndpoint)
	c.OCR.VisionAPIKey = getEnv("VISION_API_KEY", c.OCR.VisionAPIKey)
	if v := getEnv("OCR_LANGUAGE_HINTS", ""); v != "" {
		c.OCR.LanguageHints = splitList(v)
	}
	c.OCR.MaxPages = getEnvAsInt("OCR_MAX_PAGES", c.OCR.MaxPages)
	c.OCR.DPI = getEnvAsInt("OCR_DPI", c.OCR.DPI)
	c.OCR.Timeout = getEnvAsDuration("OCR_TIMEOUT", c.OCR.Timeout)
	c.OCR.TessdataDir = getEnv("TESSDATA_PREFIX", c.OCR.TessdataDir)

	c.LLM.BaseURL = getEnv("OPENAI_BASE_URL", c.LLM.BaseURL)
	c.LLM.Model = getEnv("OPENAI_MODEL", c.LLM.Model)
	c.LLM.APIKey = getEnv("OPENAI_API_KEY", c.LLM.APIKey)
	c.LLM.Temperature = getEnvAsFloat32("OPENAI_TEMPERATURE", c.LLM.Temperature)
	c.LLM.Timeout = getEnvAsDuration("OPENAI_TIMEOUT", c.LLM.Timeout)
	c.LLM.VisionFallback = getEnvAsBool("LLM_VISION_FALLBACK", c.LLM.VisionFallback)

	c.Batch.Concurrency = getEnvAsInt("BATCH_CONCURRENCY", c.Batch.Concurrency)
	c.Batch.DocumentTimeout = getEnvAsDuration("DOCUMENT_TIMEOUT", c.Batch.DocumentTimeout)

	if v := getEnv("WATCH_DIRS", ""); v != "" {
		c.Watch.Directories = splitList(v)
	}
}

// clamp keeps the OCR page cap within 1..10 and fills zero values.
func (c *Config) clamp() {
	d := Defaults()
	if c.OCR.MaxPages < 1 {
		c.OCR.MaxPages = 1
	}
	if c.OCR.MaxPages > 10 {
		c.OCR.MaxPages = 10
	}
	if c.Extraction.TextLayerMaxPages <= 0 {
		c.Extraction.TextLayerMaxPages = d.Extraction.TextLayerMaxPages
	}
	if c.Extraction.PromptMaxChars <= 0 {
		c.Extraction.PromptMaxChars = d.Extraction.PromptMaxChars
	}
	if c.Batch.Concurrency <= 0 {
		c.Batch.Concurrency = d.Batch.Concurrency
	}
	if len(c.OCR.LanguageHints) == 0 {
		c.OCR.LanguageHints = d.OCR.LanguageHints
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return NewAppError(CodeConfig, "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	switch c.OCR.Provider {
	case "vision":
		if c.OCR.VisionAPIKey == "" {
			return NewAppError(CodeConfig, "VISION_API_KEY is required when OCR_PROVIDER=vision", ErrInvalidInput)
		}
	case "tesseract", "none":
	default:
		return NewAppError(CodeConfig, fmt.Sprintf("unknown OCR_PROVIDER %q", c.OCR.Provider), ErrInvalidInput)
	}
	if c.Extraction.ReadabilityThreshold < 0 || c.Extraction.ReadabilityThreshold > 100 {
		return NewAppError(CodeConfig, "READABILITY_THRESHOLD must be within 0..100", ErrInvalidInput)
	}
	return nil
}

// ValidateServer additionally checks the settings only the daemon needs.
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Database.DSN == "" {
		return NewAppError(CodeConfig, "DB_URL is required", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError(CodeConfig, "HTTP_ADDR is required", ErrInvalidInput)
	}
	return nil
}
