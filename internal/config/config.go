// backend-go/internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Drive    DriveConfig
	Auth     AuthConfig
	Store    StoreConfig
	Cache    CacheConfig
	Analyzer AnalyzerConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DriveConfig struct {
	RootFolderID    string
	CredentialsJSON string
	ClientID        string
	ClientSecret    string
	RedirectURL     string
	RefreshToken    string
	RequestTimeout  time.Duration
	DownloadTimeout time.Duration
	ListConcurrency int
	MaxDepth        int
}

type AuthConfig struct {
	Username  string
	Password  string
	JWTSecret string
	TokenTTL  time.Duration
}

type StoreConfig struct {
	Backend   string
	JSONPath  string
	KeyPrefix string
}

type CacheConfig struct {
	RedisURL      string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
}

type AnalyzerConfig struct {
	Python        string
	Script        string
	TempDir       string
	Timeout       time.Duration
	MaxConcurrent int
}

type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		setDefaults(viper.GetViper())

		// Read from environment variables
		viper.AutomaticEnv()

		instance = fromViper(viper.GetViper())

		// Ensure the analyzer scratch directory exists
		ensureDir(instance.Analyzer.TempDir)
	})

	return instance
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "5000")
	v.SetDefault("SERVER_MODE", "debug")
	v.SetDefault("SERVER_READ_TIMEOUT", 30)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 0)
	v.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})

	v.SetDefault("FOLDER_ID", "")
	v.SetDefault("GOOGLE_DRIVE_CREDENTIALS_JSON", "")
	v.SetDefault("CLIENT_ID", "")
	v.SetDefault("CLIENT_SECRET", "")
	v.SetDefault("REDIRECT_URI", "http://localhost:5000/oauth2callback")
	v.SetDefault("REFRESH_TOKEN", "")
	v.SetDefault("DRIVE_REQUEST_TIMEOUT_SECONDS", 30)
	v.SetDefault("DRIVE_DOWNLOAD_TIMEOUT_SECONDS", 600)
	v.SetDefault("DRIVE_LIST_CONCURRENCY", 4)
	v.SetDefault("DRIVE_MAX_DEPTH", 64)

	v.SetDefault("AUTH_USERNAME", "")
	v.SetDefault("AUTH_PASSWORD", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("AUTH_TOKEN_TTL_MINUTES", 60)

	v.SetDefault("STORE_BACKEND", "json")
	v.SetDefault("STORE_JSON_PATH", "./data/db.json")
	v.SetDefault("STORE_KEY_PREFIX", "audiodrive")

	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ANALYZER_PYTHON", "python3")
	v.SetDefault("ANALYZER_SCRIPT", "analyze_audio.py")
	v.SetDefault("ANALYZER_TEMP_DIR", "./temp")
	v.SetDefault("ANALYZER_TIMEOUT_SECONDS", 300)
	v.SetDefault("ANALYZER_MAX_CONCURRENT", 1)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("LOG_FILE_MAX_SIZE_MB", 10)
	v.SetDefault("LOG_FILE_MAX_BACKUPS", 3)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:           v.GetString("PORT"),
			Mode:           v.GetString("SERVER_MODE"),
			ReadTimeout:    v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetInt("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: v.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
		},
		Drive: DriveConfig{
			RootFolderID:    v.GetString("FOLDER_ID"),
			CredentialsJSON: v.GetString("GOOGLE_DRIVE_CREDENTIALS_JSON"),
			ClientID:        v.GetString("CLIENT_ID"),
			ClientSecret:    v.GetString("CLIENT_SECRET"),
			RedirectURL:     v.GetString("REDIRECT_URI"),
			RefreshToken:    v.GetString("REFRESH_TOKEN"),
			RequestTimeout:  seconds(v, "DRIVE_REQUEST_TIMEOUT_SECONDS"),
			DownloadTimeout: seconds(v, "DRIVE_DOWNLOAD_TIMEOUT_SECONDS"),
			ListConcurrency: v.GetInt("DRIVE_LIST_CONCURRENCY"),
			MaxDepth:        v.GetInt("DRIVE_MAX_DEPTH"),
		},
		Auth: AuthConfig{
			Username:  v.GetString("AUTH_USERNAME"),
			Password:  v.GetString("AUTH_PASSWORD"),
			JWTSecret: v.GetString("JWT_SECRET"),
			TokenTTL:  time.Duration(v.GetInt("AUTH_TOKEN_TTL_MINUTES")) * time.Minute,
		},
		Store: StoreConfig{
			Backend:   strings.ToLower(v.GetString("STORE_BACKEND")),
			JSONPath:  v.GetString("STORE_JSON_PATH"),
			KeyPrefix: v.GetString("STORE_KEY_PREFIX"),
		},
		Cache: CacheConfig{
			RedisURL:      v.GetString("REDIS_URL"),
			RedisHost:     v.GetString("REDIS_HOST"),
			RedisPort:     v.GetString("REDIS_PORT"),
			RedisPassword: v.GetString("REDIS_PASSWORD"),
			RedisDB:       v.GetInt("REDIS_DB"),
		},
		Analyzer: AnalyzerConfig{
			Python:        v.GetString("ANALYZER_PYTHON"),
			Script:        v.GetString("ANALYZER_SCRIPT"),
			TempDir:       v.GetString("ANALYZER_TEMP_DIR"),
			Timeout:       seconds(v, "ANALYZER_TIMEOUT_SECONDS"),
			MaxConcurrent: v.GetInt("ANALYZER_MAX_CONCURRENT"),
		},
		Log: LogConfig{
			Level:      v.GetString("LOG_LEVEL"),
			File:       v.GetString("LOG_FILE"),
			MaxSizeMB:  v.GetInt("LOG_FILE_MAX_SIZE_MB"),
			MaxBackups: v.GetInt("LOG_FILE_MAX_BACKUPS"),
		},
	}
}

func seconds(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt(key)) * time.Second
}

// Validate reports every required value that is missing for serving requests.
func (c *Config) Validate() error {
	errs := []error{c.ValidateDrive()}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.Username == "" || c.Auth.Password == "" {
		errs = append(errs, errors.New("AUTH_USERNAME and AUTH_PASSWORD are required"))
	}
	switch c.Store.Backend {
	case "json", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend))
	}
	return errors.Join(errs...)
}

// ValidateDrive checks only what talking to Drive needs.
func (c *Config) ValidateDrive() error {
	var errs []error
	if c.Drive.RootFolderID == "" {
		errs = append(errs, errors.New("FOLDER_ID is required"))
	}
	if c.Drive.CredentialsJSON == "" && (c.Drive.ClientID == "" || c.Drive.ClientSecret == "") {
		errs = append(errs, errors.New("either GOOGLE_DRIVE_CREDENTIALS_JSON or CLIENT_ID/CLIENT_SECRET must be set"))
	}
	return errors.Join(errs...)
}

func ensureDir(dir string) {
	if dir == "" {
		return
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}
}
