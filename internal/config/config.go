package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/mvilar/thermolog/internal/db"
)

// Config is the full server configuration, assembled from config.yaml with
// environment overrides (prefix THERMOLOG, e.g. THERMOLOG_DATABASE_HOST).
type Config struct {
	Server   ServerConfig
	Database db.Config
	Import   ImportConfig
	Fallback FallbackConfig
	Jobs     JobsConfig
	Log      LogConfig
}

type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// ImportConfig tunes the ingestion pipeline.
type ImportConfig struct {
	ChunkSize    int
	MaxFileBytes int64
	ProgressTTL  time.Duration
	TempDir      string
}

// FallbackConfig locates the legacy parser helper. An empty Script disables
// the fallback path.
type FallbackConfig struct {
	Runtime string
	Script  string
	Timeout time.Duration
}

// JobsConfig controls registry housekeeping.
type JobsConfig struct {
	MaxAge        time.Duration
	SweepSchedule string
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads config.yaml from configPath, applying defaults and environment
// overrides. A missing file is not an error.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.SetEnvPrefix("THERMOLOG")
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("import.chunk_size", 1000)
	v.SetDefault("import.max_file_bytes", 50<<20)
	v.SetDefault("import.progress_ttl", "1h")
	v.SetDefault("import.temp_dir", "")
	v.SetDefault("fallback.runtime", "python3")
	v.SetDefault("fallback.script", "")
	v.SetDefault("fallback.timeout", "20s")
	v.SetDefault("jobs.max_age", "24h")
	v.SetDefault("jobs.sweep_schedule", "@hourly")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	dbDefaults := db.DefaultConfig()
	v.SetDefault("database.host", dbDefaults.Host)
	v.SetDefault("database.port", dbDefaults.Port)
	v.SetDefault("database.user", dbDefaults.User)
	v.SetDefault("database.password", dbDefaults.Password)
	v.SetDefault("database.dbname", dbDefaults.DBName)
	v.SetDefault("database.sslmode", dbDefaults.SSLMode)

	// Map nested keys to flat env vars.
	for _, key := range []string{
		"server.addr",
		"database.host", "database.port", "database.user",
		"database.password", "database.dbname", "database.sslmode",
		"import.chunk_size", "import.max_file_bytes",
		"import.progress_ttl", "import.temp_dir",
		"fallback.runtime", "fallback.script", "fallback.timeout",
		"jobs.max_age", "jobs.sweep_schedule",
		"log.level", "log.format",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	}

	return Config{
		Server: ServerConfig{
			Addr:           v.GetString("server.addr"),
			AllowedOrigins: v.GetStringSlice("server.allowed_origins"),
		},
		Database: db.Config{
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			DBName:   v.GetString("database.dbname"),
			SSLMode:  v.GetString("database.sslmode"),
		},
		Import: ImportConfig{
			ChunkSize:    v.GetInt("import.chunk_size"),
			MaxFileBytes: v.GetInt64("import.max_file_bytes"),
			ProgressTTL:  v.GetDuration("import.progress_ttl"),
			TempDir:      v.GetString("import.temp_dir"),
		},
		Fallback: FallbackConfig{
			Runtime: v.GetString("fallback.runtime"),
			Script:  v.GetString("fallback.script"),
			Timeout: v.GetDuration("fallback.timeout"),
		},
		Jobs: JobsConfig{
			MaxAge:        v.GetDuration("jobs.max_age"),
			SweepSchedule: v.GetString("jobs.sweep_schedule"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}, nil
}
