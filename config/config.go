package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Detector DetectorConfig `mapstructure:"detector"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type UploadConfig struct {
	MaxSize      int64    `mapstructure:"max_size"`
	AllowedTypes []string `mapstructure:"allowed_types"`
}

// DetectorConfig describes one loaded model. Primary locates riders and
// motorcycles on the full frame, Helmet inspects rider crops.
type DetectorConfig struct {
	Primary ModelConfig `mapstructure:"primary"`
	Helmet  ModelConfig `mapstructure:"helmet"`
}

type ModelConfig struct {
	ModelPath    string   `mapstructure:"model_path"`
	FallbackPath string   `mapstructure:"fallback_path"`
	NamesFile    string   `mapstructure:"names_file"`
	Names        []string `mapstructure:"names"`
	InputSize    int      `mapstructure:"input_size"`
	NMSThreshold float64  `mapstructure:"nms_threshold"`
}

// PipelineConfig is the full tuning surface of the detection-fusion core.
// Nothing in the service packages hard-codes these values.
type PipelineConfig struct {
	// ConfidenceThreshold drops raw detections at or below this score.
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	// SmallRelaxFactor scales the confidence threshold down for boxes whose
	// longer side is under DistantSizeCutoff pixels.
	SmallRelaxFactor float64 `mapstructure:"small_relax_factor"`
	// DistantSizeCutoff is the longer-side size, in pixels, below which a
	// subject is treated as distant.
	DistantSizeCutoff float64 `mapstructure:"distant_size_cutoff"`
	// PairingRatio scales the vehicle's longer side into the maximum
	// rider-to-vehicle center distance.
	PairingRatio float64 `mapstructure:"pairing_ratio"`
	// DistantPairingScale widens the pairing threshold for distant vehicles.
	DistantPairingScale float64 `mapstructure:"distant_pairing_scale"`
	// AssociationPolicy selects the pairing strategy: "greedy" or "nearest".
	AssociationPolicy string `mapstructure:"association_policy"`
	// AggregationThreshold is the minimum confidence for helmet/no_helmet
	// evidence to decide a verdict on its own.
	AggregationThreshold float64 `mapstructure:"aggregation_threshold"`
	// PaddingRatio pads the rider crop on each side, relative to box size.
	PaddingRatio float64 `mapstructure:"padding_ratio"`
	// UnknownAsUnsafe controls the unresolved-evidence default: true yields
	// no_helmet, false yields unknown.
	UnknownAsUnsafe bool `mapstructure:"unknown_as_unsafe"`
	// ItemReclassify enables the shape heuristic that promotes ambiguous
	// headwear-shaped detections to worn helmets. When off, unlabeled
	// evidence classifies straight to no_helmet.
	ItemReclassify bool `mapstructure:"item_reclassify"`
	// MaxConcurrent bounds in-flight frames; detector models are shared
	// mutable state, so inference is serialized behind this limit.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	QueueTimeout  int `mapstructure:"queue_timeout"`
	// Colors maps class names and verdict statuses to "#RRGGBB" render
	// colors for the overlay.
	Colors map[string]string `mapstructure:"colors"`
}

// Load reads the YAML config at configPath, applying defaults for anything
// not set.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// New returns a config built purely from defaults, for running without a
// config file.
func New() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("default config is invalid: %v", err))
	}
	return &cfg
}

func (c *Config) Validate() error {
	if c.Pipeline.ConfidenceThreshold < 0 || c.Pipeline.ConfidenceThreshold > 1 {
		return fmt.Errorf("pipeline.confidence_threshold must be in [0,1], got %v", c.Pipeline.ConfidenceThreshold)
	}
	if c.Pipeline.AggregationThreshold < 0 || c.Pipeline.AggregationThreshold > 1 {
		return fmt.Errorf("pipeline.aggregation_threshold must be in [0,1], got %v", c.Pipeline.AggregationThreshold)
	}
	if c.Pipeline.PaddingRatio < 0 {
		return fmt.Errorf("pipeline.padding_ratio must be >= 0, got %v", c.Pipeline.PaddingRatio)
	}
	if c.Pipeline.PairingRatio <= 0 {
		return fmt.Errorf("pipeline.pairing_ratio must be > 0, got %v", c.Pipeline.PairingRatio)
	}
	switch c.Pipeline.AssociationPolicy {
	case "greedy", "nearest":
	default:
		return fmt.Errorf("pipeline.association_policy must be greedy or nearest, got %q", c.Pipeline.AssociationPolicy)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8000")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "24h")

	v.SetDefault("upload.max_size", 10*1024*1024)
	v.SetDefault("upload.allowed_types", []string{"image/jpeg", "image/png"})

	v.SetDefault("detector.primary.model_path", "models/yolo11n.onnx")
	v.SetDefault("detector.primary.fallback_path", "")
	v.SetDefault("detector.primary.input_size", 640)
	v.SetDefault("detector.primary.nms_threshold", 0.45)
	v.SetDefault("detector.helmet.model_path", "models/helmet_detection.onnx")
	v.SetDefault("detector.helmet.fallback_path", "")
	v.SetDefault("detector.helmet.input_size", 640)
	v.SetDefault("detector.helmet.nms_threshold", 0.45)
	v.SetDefault("detector.helmet.names", []string{"motorcycle", "person", "helmet", "no_helmet"})

	v.SetDefault("pipeline.confidence_threshold", 0.5)
	v.SetDefault("pipeline.small_relax_factor", 0.8)
	v.SetDefault("pipeline.distant_size_cutoff", 100.0)
	v.SetDefault("pipeline.pairing_ratio", 1.0)
	v.SetDefault("pipeline.distant_pairing_scale", 1.5)
	v.SetDefault("pipeline.association_policy", "greedy")
	v.SetDefault("pipeline.aggregation_threshold", 0.5)
	v.SetDefault("pipeline.padding_ratio", 0.2)
	v.SetDefault("pipeline.unknown_as_unsafe", true)
	v.SetDefault("pipeline.item_reclassify", true)
	v.SetDefault("pipeline.max_concurrent", 2)
	v.SetDefault("pipeline.queue_timeout", 30)
	v.SetDefault("pipeline.colors", map[string]string{
		"person":          "#00A5FF",
		"motorcycle":      "#FFB400",
		"helmet":          "#00C800",
		"no_helmet":       "#FF3232",
		"helmet_not_worn": "#FF8C00",
		"unknown":         "#969696",
	})
}
