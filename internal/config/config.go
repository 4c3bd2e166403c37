package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env         string            `yaml:"env" env-default:"local"`
	DSN         string            `yaml:"dsn" env:"DSN" env-required:"true"`
	HTTP        HTTPConfig        `yaml:"http"`
	FileStorage FileStorageConfig `yaml:"file_storage"`
	Redis       RedisConf         `yaml:"redis"`
	Derive      DeriveConfig      `yaml:"derive"`
	Reconcile   ReconcileConfig   `yaml:"reconcile"`
	Auth        AuthConfig        `yaml:"auth"`
}

type HTTPConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port" env-default:"8080"`
}

type FileStorageConfig struct {
	BaseDir string `yaml:"base_dir" env-default:"./uploads"`
	BaseURL string `yaml:"base_url"`
	MaxSize int64  `yaml:"max_size" env-default:"31457280"`
}

// RedisConf is optional: with an empty address the sweep lock falls back to
// an in-process cache.
type RedisConf struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redispassword"`
	RedisDB       int    `yaml:"redis_db"`
}

type DeriveConfig struct {
	// Mode is "inproc" (goroutine pool) or "exec" (one derive_worker process per task).
	Mode        string        `yaml:"mode" env-default:"inproc"`
	WorkerPath  string        `yaml:"worker_path" env-default:"derive_worker"`
	Workers     int           `yaml:"workers" env-default:"4"`
	Timeout     time.Duration `yaml:"timeout" env-default:"30s"`
	ThumbWidth  int           `yaml:"thumb_width" env-default:"400"`
	ThumbHeight int           `yaml:"thumb_height" env-default:"400"`
	JPEGQuality int           `yaml:"jpeg_quality" env-default:"85"`
	WebpQuality float32       `yaml:"webp_quality" env-default:"80"`
	// MaxPixels отсекает изображения, чей заголовок обещает слишком большой холст.
	MaxPixels int64 `yaml:"max_pixels" env-default:"50000000"`
}

type ReconcileConfig struct {
	Schedule     string        `yaml:"schedule" env-default:"@every 1h"`
	SweepTimeout time.Duration `yaml:"sweep_timeout" env-default:"5m"`
	LockTTL      time.Duration `yaml:"lock_ttl" env-default:"10m"`
	LockRetry    time.Duration `yaml:"lock_retry" env-default:"1s"`
}

type AuthConfig struct {
	TokenSecret string        `yaml:"token_secret" env:"TOKEN_SECRET" env-required:"true"`
	TokenTTL    time.Duration `yaml:"token_ttl" env-default:"1h"`
}

func MustLoad() *Config {
	path := fetchConfigPath()
	if path == "" {
		panic("config path is empty")
	}

	return MustLoadPath(path)
}

func MustLoadPath(configPath string) *Config {
	// check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	return &cfg
}

func fetchConfigPath() string {
	var res string

	// --config="path/to/config.yaml"
	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
