package config

import (
	"errors"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode      Mode   `mapstructure:"mode"`
	HTTPAddr  string `mapstructure:"http_addr"`
	PublicURL string `mapstructure:"public_url"`
	SiteID    string `mapstructure:"site_id"` // tags event_log rows

	DBDriver string `mapstructure:"db_driver"`
	DBDSN    string `mapstructure:"db_dsn"`

	BlobDriver   string      `mapstructure:"blob_driver"` // fs|minio
	BlobBasePath string      `mapstructure:"blob_base_path"`
	Minio        MinioConfig `mapstructure:"minio"`

	Redis RedisConfig `mapstructure:"redis"`

	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTTTL    time.Duration `mapstructure:"jwt_ttl"`

	EnableLocalAuth    bool   `mapstructure:"enable_local_auth"`
	EnableRegistration bool   `mapstructure:"enable_registration"`
	AdminUser          string `mapstructure:"admin_user"`
	AdminPassHash      string `mapstructure:"admin_pass_hash"` // bcrypt

	CORSOrigins []string `mapstructure:"cors_origins"`

	Log       LogConfig       `mapstructure:"log"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Grading   GradingConfig   `mapstructure:"grading"`
}

type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// RedisConfig enables the question-set cache when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"` // empty: console only
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type RateLimitConfig struct {
	AuthPerMinute   int `mapstructure:"auth_per_minute"`
	SubmitPerMinute int `mapstructure:"submit_per_minute"`
	Burst           int `mapstructure:"burst"`
}

type GradingConfig struct {
	StrictTFNG            bool `mapstructure:"strict_tfng"`
	PositionalGapFallback bool `mapstructure:"positional_gap_fallback"`
	Workers               int  `mapstructure:"workers"`
}

const EnvPrefix = "IELTS"

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", string(ModeOffline))
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("public_url", "")
	v.SetDefault("site_id", "local")
	v.SetDefault("db_driver", "sqlite")
	v.SetDefault("db_dsn", "")
	v.SetDefault("blob_driver", "fs")
	v.SetDefault("blob_base_path", "./data")
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.bucket", "ielts-assets")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 10*time.Minute)
	v.SetDefault("jwt_secret", "dev-secret-change-me")
	v.SetDefault("jwt_ttl", 12*time.Hour)
	v.SetDefault("enable_local_auth", true)
	v.SetDefault("enable_registration", true)
	v.SetDefault("admin_user", "admin@example.com")
	v.SetDefault("admin_pass_hash", "$2y$12$pyZAiWaTfVtM7UElIRStvOC3gNbnp70nmQU4eYopLGBfCJr1DOvji")
	v.SetDefault("cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("rate_limit.auth_per_minute", 10)
	v.SetDefault("rate_limit.submit_per_minute", 30)
	v.SetDefault("rate_limit.burst", 5)
	v.SetDefault("grading.strict_tfng", false)
	v.SetDefault("grading.positional_gap_fallback", true)
	v.SetDefault("grading.workers", 1)
}

// New returns a viper instance with defaults, IELTS_* env overrides and, if
// path is set, the config file at path. A missing file is not an error.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}
	return v, nil
}

// Load decodes v into a Config.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeOffline
	}
	cfg.CORSOrigins = trimAll(cfg.CORSOrigins)
	return cfg, nil
}

// FromEnv loads defaults, ./config.yaml if present and the environment.
func FromEnv() (Config, error) {
	v, err := New("")
	if err != nil {
		return Config{}, err
	}
	return Load(v)
}

// Watch reloads the config file on change and hands the result to fn.
func Watch(v *viper.Viper, fn func(Config, error)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		fn(Load(v))
	})
	v.WatchConfig()
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		for _, s := range strings.Split(p, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
