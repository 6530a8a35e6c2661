package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "FINES"

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Log      LogConfig      `mapstructure:"log"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Camera   CameraConfig   `mapstructure:"camera"`
	Zone     ZoneConfig     `mapstructure:"zone"`
	Detector DetectorConfig `mapstructure:"detector"`
	OCR      OCRConfig      `mapstructure:"ocr"`
	Trigger  TriggerConfig  `mapstructure:"trigger"`
	Auth     AuthConfig     `mapstructure:"auth"`
	CORS     CORSConfig     `mapstructure:"cors"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Key    string `mapstructure:"key"`
}

type CameraConfig struct {
	ID        string `mapstructure:"id"`
	FramesDir string `mapstructure:"frames_dir"`
}

type ZoneConfig struct {
	File    string `mapstructure:"file"`
	Persist bool   `mapstructure:"persist"`
}

type DetectorConfig struct {
	Command  string   `mapstructure:"command"`
	Args     []string `mapstructure:"args"`
	MinScore float64  `mapstructure:"min_score"`
}

type OCRConfig struct {
	Language       string `mapstructure:"language"`
	Preprocess     bool   `mapstructure:"preprocess"`
	TessdataPrefix string `mapstructure:"tessdata_prefix"`
	PageSegMode    int    `mapstructure:"page_seg_mode"`
}

type TriggerConfig struct {
	Cooldown        time.Duration `mapstructure:"cooldown"`
	EvidenceQuality int           `mapstructure:"evidence_quality"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "parking-fines-service")
	v.SetDefault("app.env", "development")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.max_upload_bytes", int64(20<<20))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "")

	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.dsn", "data/fines.db")
	v.SetDefault("storage.key", "auto-fines-v1")

	v.SetDefault("camera.id", "camera-1")
	v.SetDefault("camera.frames_dir", "")

	v.SetDefault("zone.file", "")
	v.SetDefault("zone.persist", false)

	v.SetDefault("detector.command", "")
	v.SetDefault("detector.args", []string{})
	v.SetDefault("detector.min_score", 0.5)

	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.preprocess", true)
	v.SetDefault("ocr.tessdata_prefix", "")
	v.SetDefault("ocr.page_seg_mode", 0)

	v.SetDefault("trigger.cooldown", 1500*time.Millisecond)
	v.SetDefault("trigger.evidence_quality", 80)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 12*time.Hour)

	v.SetDefault("cors.allowed_origins", []string{"*"})
}

// Load reads configuration from defaults, the optional YAML file at path and
// FINES_* environment variables, in increasing precedence. Nested keys map to
// variables with dots replaced by underscores, e.g. FINES_STORAGE_DRIVER.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for driver %q", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Storage.Key == "" {
		return errors.New("storage.key must not be empty")
	}
	if c.Trigger.Cooldown < 0 {
		return errors.New("trigger.cooldown must not be negative")
	}
	if c.Trigger.EvidenceQuality < 1 || c.Trigger.EvidenceQuality > 100 {
		return fmt.Errorf("trigger.evidence_quality must be within 1..100, got %d", c.Trigger.EvidenceQuality)
	}
	if c.OCR.PageSegMode < 0 || c.OCR.PageSegMode > 13 {
		return fmt.Errorf("ocr.page_seg_mode must be within 0..13, got %d", c.OCR.PageSegMode)
	}
	if c.Detector.MinScore < 0 || c.Detector.MinScore > 1 {
		return fmt.Errorf("detector.min_score must be within 0..1, got %v", c.Detector.MinScore)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}
