package config

import (
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type key string

const (
	KeyLogger  = key("logger")
	KeyMetrics = key("metrics")
)

const (
	defaultPollingInterval = 5000 * time.Millisecond
	defaultCurrentUser     = "Anonymous"
)

type Config struct {
	Service    Service
	Postgres   ReadEnvDB
	Logger     Logger
	Metrics    Metrics
	Platform   Platform
	Centrifuge Centrifuge
	Kafka      Kafka
	Backend    Backend
	Chat       Chat
	Workspace  Workspace
}

type Service struct {
	Port string `env:"SERVICE_PORT" env-default:"8080"`
	Name string `env:"SERVICE_NAME" env-default:"ticketchat-service"`
}

type ReadEnvDB struct {
	User     string `env:"TICKETCHAT_SERVICE_POSTGRES_USER" env-required:"true"`
	Password string `env:"TICKETCHAT_SERVICE_POSTGRES_PASSWORD" env-required:"true"`
	Database string `env:"TICKETCHAT_SERVICE_POSTGRES_DB" env-required:"true"`
	Host     string `env:"TICKETCHAT_SERVICE_POSTGRES_HOST" env-required:"true"`
	Port     string `env:"TICKETCHAT_SERVICE_POSTGRES_PORT" env-default:"5432"`
}

type Logger struct {
	Host string `env:"LOGGER_SERVICE_HOST"`
	Port string `env:"LOGGER_SERVICE_PORT"`
}

type Metrics struct {
	Host string `env:"GRAFANA_HOST"`
	Port int    `env:"GRAFANA_PORT"`
}

type Platform struct {
	Env string `env:"ENV" env-default:"dev"`
}

type Centrifuge struct {
	BaseURL   string        `env:"CENTRIFUGO_BASE_URL"`
	APIKey    string        `env:"CENTRIFUGO_API_KEY"`
	JWTSecret string        `env:"CENTRIFUGO_JWT_SECRET"`
	Timeout   time.Duration `env:"CENTRIFUGO_TIMEOUT" env-default:"5s"`
}

type Kafka struct {
	Host        string `env:"KAFKA_HOST"`
	Port        string `env:"KAFKA_PORT"`
	TicketTopic string `env:"TRACKER_TICKET_TOPIC" env-default:"tracker-ticket-updates"`
}

type Backend struct {
	BaseURL string `env:"COMMAND_BACKEND_URL" env-required:"true"`
}

// Chat holds the settings of the conversation view. PollingIntervalMS is kept
// as a raw string so that garbage falls back to the default instead of
// failing the whole load.
type Chat struct {
	PollingIntervalMS string `env:"POLLING_INTERVAL_MS"`
	CurrentUser       string `env:"CURRENT_USER_NAME" env-default:"Anonymous"`
}

type Workspace struct {
	Root       string `env:"TICKETS_ROOT" env-default:"./tickets"`
	CLIPath    string `env:"LLM_CLI_PATH" env-default:"gemini"`
	BaseBranch string `env:"PR_BASE_BRANCH" env-default:"main"`
	Port       string `env:"BACKEND_PORT" env-default:"8000"`
}

func MustLoad() *Config {
	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		log.Fatalf("failed to read env variables: %s", err)
	}
	return cfg
}

// MustLoadBackend reads only the sections the command backend needs.
func MustLoadBackend() *Config {
	cfg := &Config{}
	for _, section := range []interface{}{&cfg.Service, &cfg.Logger, &cfg.Platform, &cfg.Workspace} {
		if err := cleanenv.ReadEnv(section); err != nil {
			log.Fatalf("failed to read env variables: %s", err)
		}
	}
	return cfg
}

func (c Chat) PollingInterval() time.Duration {
	ms, err := strconv.Atoi(strings.TrimSpace(c.PollingIntervalMS))
	if err != nil || ms <= 0 {
		return defaultPollingInterval
	}
	return time.Duration(ms) * time.Millisecond
}

func (c Chat) User() string {
	if strings.TrimSpace(c.CurrentUser) == "" {
		return defaultCurrentUser
	}
	return c.CurrentUser
}
