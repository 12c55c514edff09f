package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Env holds process settings read from GOVPULSE_* variables.
type Env struct {
	Workspace string `envconfig:"WORKSPACE" default:"."`
	Addr      string `envconfig:"ADDR" default:"127.0.0.1:8080"`
	BasePath  string `envconfig:"BASE_PATH" default:"/v0"`
	JWTSecret string `envconfig:"JWT_SECRET"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"`
	DBDriver  string `envconfig:"DB_DRIVER" default:"sqlite"`
	DBDSN     string `envconfig:"DB_DSN"`
}

// EnvPrefix is the prefix shared by env vars and viper bindings.
const EnvPrefix = "GOVPULSE"

// LoadEnv reads configuration from environment variables.
func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return nil, fmt.Errorf("loading env: %w", err)
	}
	return &env, nil
}
