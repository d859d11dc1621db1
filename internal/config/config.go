package config

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mytimetablemaker/transit-sync/internal/models"
)

// Source selects where an operator's lines and timetables come from
type Source string

const (
	SourceODPT Source = "odpt"
	SourceGTFS Source = "gtfs"
)

// Operator describes one transit operator to ingest
type Operator struct {
	Code string      `yaml:"code" validate:"required"`
	Name string      `yaml:"name"`
	Kind models.Kind `yaml:"kind" validate:"required,oneof=railway bus"`
	// Source is "odpt" for the JSON API, "gtfs" for a GTFS feed
	Source Source `yaml:"source" validate:"required,oneof=odpt gtfs"`

	// GTFS feed settings
	GTFSURL string `yaml:"gtfsURL" validate:"required_if=Source gtfs,omitempty,url"`
	// GTFSVersion pins a publish date / version token; a new value means a
	// new cache key. When empty, an 8-digit date in GTFSURL is used.
	GTFSVersion string `yaml:"gtfsVersion"`
	// Conditional enables ETag / Last-Modified checks for the GTFS feed
	Conditional bool `yaml:"conditional"`
	// FeedLanguage is the native language of the feed (e.g. "ja")
	FeedLanguage string `yaml:"feedLanguage"`
	// RequiresAuth sends the consumer token with GTFS downloads
	RequiresAuth bool `yaml:"requiresAuth"`
}

var dateToken = regexp.MustCompile(`(20\d{6})`)

// VersionToken returns the GTFS version embedded in the cache key, or ""
// when the operator relies on conditional GET instead
func (o Operator) VersionToken() string {
	if o.GTFSVersion != "" {
		return o.GTFSVersion
	}
	return dateToken.FindString(o.GTFSURL)
}

// Config holds all configuration for the syncer
type Config struct {
	// Storage
	DatabasePath string
	DatabaseURL  string // Postgres; takes precedence over DatabasePath when set
	CacheDir     string
	SnapshotDir  string

	// Static data refresh
	StaticRefreshDays int
	RefreshInterval   time.Duration
	RetentionDuration time.Duration

	// ODPT API
	APIBaseURL    string
	ConsumerToken string

	// Localization: the device locale used to resolve GTFS translations
	Locale string

	// Concurrency of per-calendar fetches during synthesis
	FetchConcurrency int

	// HTTP surface
	ListenAddr string

	OperatorsFile string
	Operators     []Operator
}

type operatorsFile struct {
	Operators []Operator `yaml:"operators" validate:"dive"`
}

// Load reads configuration from .env, environment variables and the
// operators YAML file
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		DatabasePath: getEnv("SQLITE_DATABASE", "/data/transit.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		CacheDir:     getEnv("CACHE_DIR", "/data/cache"),
		SnapshotDir:  getEnv("SNAPSHOT_DIR", "/data/snapshots"),

		StaticRefreshDays: getEnvInt("STATIC_REFRESH_DAYS", 7),
		RefreshInterval:   time.Duration(getEnvInt("REFRESH_INTERVAL_HOURS", 24)) * time.Hour,
		RetentionDuration: time.Duration(getEnvInt("RETENTION_DAYS", 30)) * 24 * time.Hour,

		APIBaseURL:    getEnv("ODPT_API_URL", "https://api.odpt.org/api/v4"),
		ConsumerToken: getEnv("ODPT_CONSUMER_TOKEN", ""),

		Locale:           getEnv("LOCALE", "ja"),
		FetchConcurrency: getEnvInt("FETCH_CONCURRENCY", 4),
		ListenAddr:       getEnv("LISTEN_ADDR", ":8080"),

		OperatorsFile: getEnv("OPERATORS_FILE", "operators.yml"),
	}

	operators, err := LoadOperators(cfg.OperatorsFile)
	if err != nil {
		return nil, err
	}
	cfg.Operators = operators
	return cfg, nil
}

// LoadOperators reads and validates the operators YAML file
func LoadOperators(path string) ([]Operator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read operators file: %w", err)
	}
	return ParseOperators(data)
}

// ParseOperators decodes and validates operator definitions
func ParseOperators(data []byte) ([]Operator, error) {
	var file operatorsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse operators file: %w", err)
	}

	v := validator.New()
	if err := v.Struct(file); err != nil {
		return nil, fmt.Errorf("invalid operators file: %w", err)
	}

	seen := make(map[string]bool)
	for _, op := range file.Operators {
		key := string(op.Kind) + "/" + op.Code
		if seen[key] {
			return nil, fmt.Errorf("invalid operators file: duplicate operator %s", key)
		}
		seen[key] = true
	}
	return file.Operators, nil
}

// FindOperator returns the operator with the given code
func (c *Config) FindOperator(code string) (Operator, bool) {
	for _, op := range c.Operators {
		if op.Code == code {
			return op, true
		}
	}
	return Operator{}, false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Printf("Warning: %s=%q is not an integer, using %d", key, value, defaultValue)
	}
	return defaultValue
}
