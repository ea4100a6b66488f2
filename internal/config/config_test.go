package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080},
		Database: DatabaseConfig{URL: "postgres://localhost/vizflow", MinConnections: 5, MaxConnections: 20},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
		Auth:     AuthConfig{JWTSecret: strings.Repeat("a", 32)},
	}
}

func TestValidate_AcceptsWellFormedConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_RejectsOutOfRangePort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 70000
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsEmptyDatabaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.Database.URL = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsMinConnectionsAboveMax(t *testing.T) {
	cfg := validConfig()
	cfg.Database.MinConnections = 30
	cfg.Database.MaxConnections = 20
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnknownLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnknownLogFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsMissingJWTSecret(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.JWTSecret = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsShortJWTSecret(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.JWTSecret = "too-short"
	assert.Error(t, cfg.Validate())
}
