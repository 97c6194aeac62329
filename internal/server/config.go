// Package server provides configuration helpers that define runtime defaults,
// validation, and environment overrides for the roomchat service.
package server

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Tyrowin/roomchat/internal/store"
	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// StoreConfig selects and configures the room directory backend.
type StoreConfig struct {
	Backend       string
	RoomsFile     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string
	Async         bool
}

// Config holds the server configuration settings.
type Config struct {
	Port            string
	AllowedOrigins  []string
	MaxMessageSize  int64
	SendBufferSize  int
	StaticDir       string
	AutoCreateRooms bool
	ShutdownTimeout time.Duration
	LogLevel        string
	LogDevelopment  bool
	Store           StoreConfig
}

func defaultConfig() Config {
	return Config{
		Port: ":3000",
		AllowedOrigins: []string{
			"http://localhost:3000",
		},
		MaxMessageSize:  4096,
		SendBufferSize:  256,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
		Store: StoreConfig{
			Backend:   BackendFile,
			RoomsFile: store.DefaultPath,
			RedisAddr: "localhost:6379",
			RedisKey:  store.DefaultRedisKey,
		},
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// LoadConfig reads configuration from an optional file and the environment.
// Environment variables win over the file; unset or invalid values fall back
// to defaults.
func LoadConfig(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := Config{
		Port:            v.GetString("port"),
		AllowedOrigins:  stringList(v, "allowed_origins"),
		MaxMessageSize:  v.GetInt64("max_message_size"),
		SendBufferSize:  v.GetInt("send_buffer_size"),
		StaticDir:       v.GetString("static_dir"),
		AutoCreateRooms: v.GetBool("auto_create_rooms"),
		ShutdownTimeout: durationValue(v, "shutdown_timeout"),
		LogLevel:        v.GetString("log_level"),
		LogDevelopment:  v.GetBool("log_development"),
		Store: StoreConfig{
			Backend:       v.GetString("store_backend"),
			RoomsFile:     v.GetString("rooms_file"),
			RedisAddr:     v.GetString("redis_addr"),
			RedisPassword: v.GetString("redis_password"),
			RedisDB:       v.GetInt("redis_db"),
			RedisKey:      v.GetString("redis_key"),
			Async:         v.GetBool("persist_async"),
		},
	}

	sanitized := sanitizeConfig(cfg)
	return &sanitized, nil
}

func setDefaults(v *viper.Viper) {
	d := defaultConfig()
	v.SetDefault("port", d.Port)
	v.SetDefault("allowed_origins", d.AllowedOrigins)
	v.SetDefault("max_message_size", d.MaxMessageSize)
	v.SetDefault("send_buffer_size", d.SendBufferSize)
	v.SetDefault("static_dir", d.StaticDir)
	v.SetDefault("auto_create_rooms", d.AutoCreateRooms)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_development", d.LogDevelopment)
	v.SetDefault("store_backend", d.Store.Backend)
	v.SetDefault("rooms_file", d.Store.RoomsFile)
	v.SetDefault("redis_addr", d.Store.RedisAddr)
	v.SetDefault("redis_password", d.Store.RedisPassword)
	v.SetDefault("redis_db", d.Store.RedisDB)
	v.SetDefault("redis_key", d.Store.RedisKey)
	v.SetDefault("persist_async", d.Store.Async)
}

// stringList accepts either a list or a comma separated string, which is how
// lists arrive from the environment.
func stringList(v *viper.Viper, key string) []string {
	if raw, ok := v.Get(key).(string); ok {
		return parseOrigins(raw)
	}
	return v.GetStringSlice(key)
}

// durationValue reads a duration; a bare integer counts seconds.
func durationValue(v *viper.Viper, key string) time.Duration {
	if raw, ok := v.Get(key).(string); ok {
		if seconds, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return v.GetDuration(key)
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func sanitizeConfig(cfg Config) Config {
	d := defaultConfig()

	if cfg.Port == "" {
		cfg.Port = d.Port
	}
	if !strings.Contains(cfg.Port, ":") {
		cfg.Port = ":" + cfg.Port
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = d.MaxMessageSize
	}

	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = d.SendBufferSize
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = d.ShutdownTimeout
	}

	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	if cfg.Store.Backend != BackendRedis {
		cfg.Store.Backend = BackendFile
	}
	if cfg.Store.RoomsFile == "" {
		cfg.Store.RoomsFile = d.Store.RoomsFile
	}
	if cfg.Store.RedisAddr == "" {
		cfg.Store.RedisAddr = d.Store.RedisAddr
	}
	if cfg.Store.RedisKey == "" {
		cfg.Store.RedisKey = d.Store.RedisKey
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}
