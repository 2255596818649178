package config

import (
	"os"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Token          string `toml:"token" mapstructure:"token"`
	Host           string `toml:"host" mapstructure:"host"`
	Port           string `toml:"port" mapstructure:"port"`
	Libonnx        string `toml:"libonnx" mapstructure:"libonnx"`
	IntraOpThreads int    `toml:"intra_op_threads" mapstructure:"intra_op_threads"`

	UploadDir        string `toml:"upload_dir" mapstructure:"upload_dir"`
	MaxUploadMB      int64  `toml:"max_upload_mb" mapstructure:"max_upload_mb"`
	DBPath           string `toml:"db_path" mapstructure:"db_path"`
	TranslationsFile string `toml:"translations_file" mapstructure:"translations_file"`

	Severity  Severity  `toml:"severity" mapstructure:"severity"`
	Translate Translate `toml:"translate" mapstructure:"translate"`
	Crops     []Crop    `toml:"crops" mapstructure:"crops"`
}

// Severity holds the stage bucket upper bounds, in percent.
type Severity struct {
	EarlyBelow  float64 `toml:"early_below" mapstructure:"early_below"`
	MediumBelow float64 `toml:"medium_below" mapstructure:"medium_below"`
}

type Translate struct {
	Endpoint string `toml:"endpoint" mapstructure:"endpoint"`
	APIKey   string `toml:"api_key" mapstructure:"api_key"`
	Workers  int    `toml:"workers" mapstructure:"workers"`
	Timeout  string `toml:"timeout" mapstructure:"timeout"`
	Retries  uint64 `toml:"retries" mapstructure:"retries"`
}

// Crop describes one per-crop classifier. Registration order is the order of
// the [[crops]] tables.
type Crop struct {
	Name         string   `toml:"name" mapstructure:"name"`
	Model        string   `toml:"model" mapstructure:"model"`
	Labels       []string `toml:"labels" mapstructure:"labels"`
	LabelsFile   string   `toml:"labels_file" mapstructure:"labels_file"`
	Scaling      string   `toml:"scaling" mapstructure:"scaling"`
	ChannelOrder string   `toml:"channel_order" mapstructure:"channel_order"`
	Logits       bool     `toml:"logits" mapstructure:"logits"`
}

var (
	cfg      = Default()
	loadOnce sync.Once
)

func Default() Config {
	return Config{
		Token:            "",
		Host:             "0.0.0.0",
		Port:             "8000",
		UploadDir:        "uploads",
		MaxUploadMB:      16,
		DBPath:           "cropdoctor.db",
		TranslationsFile: "translations.json",
		Severity: Severity{
			EarlyBelow:  30,
			MediumBelow: 60,
		},
		Translate: Translate{
			Workers: 10,
			Timeout: "10s",
			Retries: 3,
		},
		Crops: DefaultCrops(),
	}
}

func DefaultCrops() []Crop {
	return []Crop{
		{
			Name:   "grape",
			Model:  "models/grape_disease_model.onnx",
			Labels: []string{"Black Rot", "ESCA", "Healthy", "Leaf Blight"},
		},
		{
			Name:   "maize",
			Model:  "models/maize_disease_model.onnx",
			Labels: []string{"Blight", "Common_Rust", "Gray_Leaf_Spot", "Healthy"},
		},
		{
			Name:   "potato",
			Model:  "models/potato_disease_model.onnx",
			Labels: []string{"Early Blight", "Late Blight", "Healthy"},
		},
		{
			Name:   "rice",
			Model:  "models/rice_disease_model.onnx",
			Labels: []string{"Bacterial leaf blight", "Brown spot", "Leaf smut"},
		},
		{
			Name:  "tomato",
			Model: "models/tomato_disease_model.onnx",
			Labels: []string{
				"Healthy",
				"Bacterial spot",
				"Early blight",
				"Late blight",
				"Leaf Mold",
				"Septoria leaf spot",
				"Spider mites Two-spotted spider mite",
				"Target Spot",
				"Tomato Yellow Leaf Curl Virus",
				"Tomato mosaic virus",
			},
		},
	}
}

func C() Config {
	loadOnce.Do(func() {
		_ = godotenv.Load()
		if _, err := os.Stat("config.toml"); err == nil {
			loaded, err := Load("config.toml")
			if err != nil {
				panic(err)
			}
			cfg = loaded
		}
		applyEnv(&cfg)
	})
	return cfg
}

// Load reads a TOML file over the defaults. A file that declares [[crops]]
// replaces the default registry entirely.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	c := Default()
	c.Crops = nil
	if err := toml.Unmarshal(data, &c); err != nil {
		return Config{}, err
	}
	if len(c.Crops) == 0 {
		c.Crops = DefaultCrops()
	}
	return c, nil
}

func applyEnv(c *Config) {
	if v := os.Getenv("CROPDOC_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("CROPDOC_LIBONNX"); v != "" {
		c.Libonnx = v
	}
	if v := os.Getenv("CROPDOC_TRANSLATE_KEY"); v != "" {
		c.Translate.APIKey = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if _, err := strconv.Atoi(v); err == nil {
			c.Port = v
		}
	}
}
