package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server ServerConfig
	DB     DBConfig
	Redis  RedisConfig
	Ollama OllamaConfig
	RAG    RAGConfig
	Line   LineConfig
	NATS   NATSConfig
	CORS   CORSConfig
	Log    LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type OllamaConfig struct {
	BaseURL      string
	DefaultModel string
	EmbedModel   string
	EmbedDims    int
}

type RAGConfig struct {
	HistoryEnabled   bool
	SummaryThreshold int
	TopK             int
	ChunkSize        int
	ChunkOverlap     int
	UploadDir        string
}

// LineConfig holds the Messaging API credentials. The webhook endpoint is
// only mounted when ChannelSecret is set.
type LineConfig struct {
	ChannelID      string
	ChannelSecret  string
	KeyID          string
	PrivateKeyPath string
}

func (c LineConfig) Enabled() bool {
	return c.ChannelSecret != ""
}

// NATSConfig configures the optional event publisher. Empty URL disables it.
type NATSConfig struct {
	URL string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		Ollama: OllamaConfig{
			BaseURL:      k.String("ollama.base.url"),
			DefaultModel: k.String("ollama.default.model"),
			EmbedModel:   k.String("ollama.embed.model"),
			EmbedDims:    k.Int("ollama.embed.dims"),
		},
		RAG: RAGConfig{
			HistoryEnabled:   !k.Exists("rag.history.enabled") || k.Bool("rag.history.enabled"),
			SummaryThreshold: k.Int("rag.summary.threshold"),
			TopK:             k.Int("rag.top.k"),
			ChunkSize:        k.Int("rag.chunk.size"),
			ChunkOverlap:     k.Int("rag.chunk.overlap"),
			UploadDir:        k.String("rag.upload.dir"),
		},
		Line: LineConfig{
			ChannelID:      k.String("line.channel.id"),
			ChannelSecret:  k.String("line.channel.secret"),
			KeyID:          k.String("line.key.id"),
			PrivateKeyPath: k.String("line.private.key.path"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		CORS: CORSConfig{
			AllowedOrigins: k.Strings("cors.allowed.origins"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "ragline"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "ragline"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Ollama.BaseURL == "" {
		cfg.Ollama.BaseURL = "http://localhost:11434"
	}
	if cfg.Ollama.DefaultModel == "" {
		cfg.Ollama.DefaultModel = "llama3"
	}
	if cfg.Ollama.EmbedModel == "" {
		cfg.Ollama.EmbedModel = "nomic-embed-text"
	}
	if cfg.Ollama.EmbedDims == 0 {
		cfg.Ollama.EmbedDims = 768
	}
	if cfg.RAG.SummaryThreshold == 0 {
		cfg.RAG.SummaryThreshold = 2000
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = 3
	}
	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = 1000
	}
	if cfg.RAG.ChunkOverlap == 0 {
		cfg.RAG.ChunkOverlap = 200
	}
	if cfg.RAG.UploadDir == "" {
		cfg.RAG.UploadDir = "uploads"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "debug"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	return cfg, nil
}
