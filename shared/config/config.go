package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// ConfigurationError is returned at startup when required environment
// configuration is missing or malformed.
type ConfigurationError struct {
	Missing []string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("missing required configuration: %s", strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("invalid configuration: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

type Config struct {
	Server Server
	Log    Log
	Store  Store
	Auth   Auth
	Cache  Cache
}

type Server struct {
	Port           int      `env:"PORT" envDefault:"8080"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`
	SiteURL        string   `env:"SITE_URL" envDefault:"http://localhost:8080"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Pretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// Store holds the DynamoDB connection settings.
type Store struct {
	Region          string `env:"AWS_REGION,required,notEmpty"`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID,required,notEmpty"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY,required,notEmpty"`
	PostsTable      string `env:"POSTS_TABLE_NAME,required,notEmpty"`
	SettingsTable   string `env:"SETTINGS_TABLE_NAME" envDefault:"settings"`
	// Endpoint overrides the AWS endpoint, e.g. for DynamoDB Local.
	Endpoint     string `env:"DYNAMODB_ENDPOINT"`
	CreateTables bool   `env:"DYNAMODB_CREATE_TABLES" envDefault:"false"`
}

type Auth struct {
	AdminToken string `env:"ADMIN_API_TOKEN,required,notEmpty"`
}

type Cache struct {
	TTL  time.Duration `env:"POST_CACHE_TTL" envDefault:"1h"`
	Size int           `env:"POST_CACHE_SIZE" envDefault:"16"`
}

// Load reads the full application configuration from the environment.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, toConfigurationError(err)
	}
	return &cfg, nil
}

func toConfigurationError(err error) error {
	var aggErr env.AggregateError
	if !errors.As(err, &aggErr) {
		return &ConfigurationError{Err: err}
	}

	missing := make([]string, 0, len(aggErr.Errors))
	for _, e := range aggErr.Errors {
		var unset env.VarIsNotSetError
		var empty env.EmptyVarError
		switch {
		case errors.As(e, &unset):
			missing = append(missing, unset.Key)
		case errors.As(e, &empty):
			missing = append(missing, empty.Key)
		default:
			return &ConfigurationError{Err: err}
		}
	}

	return &ConfigurationError{Missing: missing, Err: err}
}
