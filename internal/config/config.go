// internal/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	App      AppConfig
	Cache    CacheConfig
	Storage  StorageConfig
	Forecast ForecastConfig
	Engine   EngineConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Driver   string // "postgres" or "memory"
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN is the key/value connection string understood by lib/pq and pgx.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type AppConfig struct {
	DataDir  string
	LogLevel string
	LogJSON  bool
}

type CacheConfig struct {
	Enabled             bool
	RedisURL            string
	RedisHost           string
	RedisPort           string
	RedisPassword       string
	RedisDB             int
	AnalysisTTLSeconds  int
	LastAlertTTLSeconds int
}

// StorageConfig selects where compressed analysis documents live. With
// Driver "inline" they are kept in the database row itself.
type StorageConfig struct {
	Driver    string // "inline", "minio" or "memory"
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	Prefix    string
}

// ForecastConfig describes how to run the upstream forecasting process.
// When DriveFolder is set the input workbook is downloaded from Google
// Drive first and passed to the process with InputFlag.
type ForecastConfig struct {
	Command              string
	Args                 []string
	OutputPath           string
	TimeoutSeconds       int
	InputFlag            string
	DriveCredentialsJSON string
	DriveFolder          string
	DriveFileName        string
}

// Timeout is the hard limit of one forecast run.
func (c ForecastConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type EngineConfig struct {
	DefaultLeadTimeDays int
	DefaultServiceLevel float64
	MinUnitsPerBox      float64
	Workers             int
	SaveRetries         int
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		// Set default values
		viper.SetDefault("SERVER_PORT", "8080")
		viper.SetDefault("SERVER_MODE", "debug")
		viper.SetDefault("SERVER_READ_TIMEOUT", 15)
		viper.SetDefault("SERVER_WRITE_TIMEOUT", 30)
		viper.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
		viper.SetDefault("DB_DRIVER", "postgres")
		viper.SetDefault("DB_HOST", "localhost")
		viper.SetDefault("DB_PORT", "5432")
		viper.SetDefault("DB_USER", "postgres")
		viper.SetDefault("DB_PASSWORD", "postgres")
		viper.SetDefault("DB_NAME", "stockcast")
		viper.SetDefault("DB_SSLMODE", "disable")
		viper.SetDefault("APP_DATA_DIR", "./data/output")
		viper.SetDefault("APP_LOG_LEVEL", "")
		viper.SetDefault("APP_LOG_JSON", false)
		viper.SetDefault("CACHE_ENABLED", false)
		viper.SetDefault("REDIS_URL", "")
		viper.SetDefault("REDIS_HOST", "127.0.0.1")
		viper.SetDefault("REDIS_PORT", "6379")
		viper.SetDefault("REDIS_PASSWORD", "")
		viper.SetDefault("REDIS_DB", 0)
		viper.SetDefault("CACHE_ANALYSIS_TTL_SECONDS", 300)
		viper.SetDefault("CACHE_LAST_ALERT_TTL_SECONDS", 0)
		viper.SetDefault("STORAGE_DRIVER", "inline")
		viper.SetDefault("STORAGE_ENDPOINT", "")
		viper.SetDefault("STORAGE_ACCESS_KEY", "")
		viper.SetDefault("STORAGE_SECRET_KEY", "")
		viper.SetDefault("STORAGE_BUCKET", "stockcast")
		viper.SetDefault("STORAGE_REGION", "us-east-1")
		viper.SetDefault("STORAGE_USE_SSL", true)
		viper.SetDefault("STORAGE_PREFIX", "analyses")
		viper.SetDefault("FORECAST_COMMAND", "python3")
		viper.SetDefault("FORECAST_ARGS", []string{"ai_model/src/predict.py"})
		viper.SetDefault("FORECAST_OUTPUT_PATH", "ai_model/data/predicciones_completas.json")
		viper.SetDefault("FORECAST_TIMEOUT_SECONDS", 600)
		viper.SetDefault("FORECAST_INPUT_FLAG", "--excel")
		viper.SetDefault("GOOGLE_DRIVE_CREDENTIALS_JSON", "")
		viper.SetDefault("FORECAST_DRIVE_FOLDER", "")
		viper.SetDefault("FORECAST_DRIVE_FILE", "")
		viper.SetDefault("ENGINE_DEFAULT_LEAD_TIME_DAYS", 20)
		viper.SetDefault("ENGINE_DEFAULT_SERVICE_LEVEL", 99.99)
		viper.SetDefault("ENGINE_WORKERS", 4)
		viper.SetDefault("ENGINE_SAVE_RETRIES", 3)
		viper.SetDefault("ENGINE_MIN_UNITS_PER_BOX", 1.0)

		// Read from environment variables
		viper.AutomaticEnv()

		ensureDir(viper.GetString("APP_DATA_DIR"))

		instance = &Config{
			Server: ServerConfig{
				Port:           viper.GetString("SERVER_PORT"),
				Mode:           viper.GetString("SERVER_MODE"),
				ReadTimeout:    viper.GetInt("SERVER_READ_TIMEOUT"),
				WriteTimeout:   viper.GetInt("SERVER_WRITE_TIMEOUT"),
				AllowedOrigins: viper.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
			},
			Database: DatabaseConfig{
				Driver:   viper.GetString("DB_DRIVER"),
				Host:     viper.GetString("DB_HOST"),
				Port:     viper.GetString("DB_PORT"),
				User:     viper.GetString("DB_USER"),
				Password: viper.GetString("DB_PASSWORD"),
				DBName:   viper.GetString("DB_NAME"),
				SSLMode:  viper.GetString("DB_SSLMODE"),
			},
			App: AppConfig{
				DataDir:  viper.GetString("APP_DATA_DIR"),
				LogLevel: viper.GetString("APP_LOG_LEVEL"),
				LogJSON:  viper.GetBool("APP_LOG_JSON"),
			},
			Cache: CacheConfig{
				Enabled:             viper.GetBool("CACHE_ENABLED"),
				RedisURL:            viper.GetString("REDIS_URL"),
				RedisHost:           viper.GetString("REDIS_HOST"),
				RedisPort:           viper.GetString("REDIS_PORT"),
				RedisPassword:       viper.GetString("REDIS_PASSWORD"),
				RedisDB:             viper.GetInt("REDIS_DB"),
				AnalysisTTLSeconds:  viper.GetInt("CACHE_ANALYSIS_TTL_SECONDS"),
				LastAlertTTLSeconds: viper.GetInt("CACHE_LAST_ALERT_TTL_SECONDS"),
			},
			Storage: StorageConfig{
				Driver:    viper.GetString("STORAGE_DRIVER"),
				Endpoint:  viper.GetString("STORAGE_ENDPOINT"),
				AccessKey: viper.GetString("STORAGE_ACCESS_KEY"),
				SecretKey: viper.GetString("STORAGE_SECRET_KEY"),
				Bucket:    viper.GetString("STORAGE_BUCKET"),
				Region:    viper.GetString("STORAGE_REGION"),
				UseSSL:    viper.GetBool("STORAGE_USE_SSL"),
				Prefix:    viper.GetString("STORAGE_PREFIX"),
			},
			Forecast: ForecastConfig{
				Command:              viper.GetString("FORECAST_COMMAND"),
				Args:                 viper.GetStringSlice("FORECAST_ARGS"),
				OutputPath:           viper.GetString("FORECAST_OUTPUT_PATH"),
				TimeoutSeconds:       viper.GetInt("FORECAST_TIMEOUT_SECONDS"),
				InputFlag:            viper.GetString("FORECAST_INPUT_FLAG"),
				DriveCredentialsJSON: viper.GetString("GOOGLE_DRIVE_CREDENTIALS_JSON"),
				DriveFolder:          viper.GetString("FORECAST_DRIVE_FOLDER"),
				DriveFileName:        viper.GetString("FORECAST_DRIVE_FILE"),
			},
			Engine: EngineConfig{
				DefaultLeadTimeDays: viper.GetInt("ENGINE_DEFAULT_LEAD_TIME_DAYS"),
				DefaultServiceLevel: viper.GetFloat64("ENGINE_DEFAULT_SERVICE_LEVEL"),
				MinUnitsPerBox:      viper.GetFloat64("ENGINE_MIN_UNITS_PER_BOX"),
				Workers:             viper.GetInt("ENGINE_WORKERS"),
				SaveRetries:         viper.GetInt("ENGINE_SAVE_RETRIES"),
			},
		}
	})

	return instance
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
