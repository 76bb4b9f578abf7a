package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be between 1 and 65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be between 1 and 65535, got %d", c.Redis.Port))
	}

	// Ollama
	if !strings.HasPrefix(c.Ollama.BaseURL, "http://") && !strings.HasPrefix(c.Ollama.BaseURL, "https://") {
		errs = append(errs, "OLLAMA_BASE_URL must be an http(s) URL")
	}
	if c.Ollama.EmbedDims < 1 {
		errs = append(errs, fmt.Sprintf("OLLAMA_EMBED_DIMS must be positive, got %d", c.Ollama.EmbedDims))
	}

	// RAG knobs
	if c.RAG.SummaryThreshold < 1 {
		errs = append(errs, fmt.Sprintf("RAG_SUMMARY_THRESHOLD must be positive, got %d", c.RAG.SummaryThreshold))
	}
	if c.RAG.TopK < 1 {
		errs = append(errs, fmt.Sprintf("RAG_TOP_K must be positive, got %d", c.RAG.TopK))
	}
	if c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		errs = append(errs, fmt.Sprintf("RAG_CHUNK_OVERLAP (%d) must be smaller than RAG_CHUNK_SIZE (%d)",
			c.RAG.ChunkOverlap, c.RAG.ChunkSize))
	}

	// LINE credentials must come as a complete set
	if c.Line.Enabled() {
		if c.Line.ChannelID == "" {
			errs = append(errs, "LINE_CHANNEL_ID is required when LINE_CHANNEL_SECRET is set")
		}
		if c.Line.KeyID == "" {
			errs = append(errs, "LINE_KEY_ID is required when LINE_CHANNEL_SECRET is set")
		}
		if c.Line.PrivateKeyPath == "" {
			errs = append(errs, "LINE_PRIVATE_KEY_PATH is required when LINE_CHANNEL_SECRET is set")
		}
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
