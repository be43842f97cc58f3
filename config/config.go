package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"housing-scraper/models"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DBDriver string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	SQLitePath string

	ThrottleMs        int
	MaxRetries        int
	RequestTimeoutSec int
	MaxPages          int

	Source    string
	Fetcher   string
	UserAgent string
	ChromeBin string

	Cities     []models.City
	CitiesFile string

	CSVExportPath string

	AMQPURL          string
	AMQPQueue        string
	AMQPRequestQueue string

	APIAddr  string
	LogLevel string
}

// Load reads the .env file and returns a populated Config struct.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	cfg := &Config{
		DBDriver: getEnv("DB_DRIVER", "postgres"),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "scraper"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "scraper123"),
		PostgresDB:       getEnv("POSTGRES_DB", "housing_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		SQLitePath: getEnv("SQLITE_PATH", "./data/pararius_scrape.db"),

		ThrottleMs:        getEnvInt("THROTTLE_MS", 2000),
		MaxRetries:        getEnvInt("MAX_RETRIES", 3),
		RequestTimeoutSec: getEnvInt("REQUEST_TIMEOUT_SEC", 30),
		MaxPages:          getEnvInt("MAX_PAGES", 0),

		Source:    getEnv("SOURCE", "pararius"),
		Fetcher:   getEnv("FETCHER", "http"),
		UserAgent: getEnv("USER_AGENT", "Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0"),
		ChromeBin: getEnv("CHROME_BIN", ""),

		CitiesFile: getEnv("CITIES_FILE", ""),

		CSVExportPath: getEnv("CSV_EXPORT_PATH", ""),

		AMQPURL:          getEnv("AMQP_URL", ""),
		AMQPQueue:        getEnv("AMQP_QUEUE", "scraper.events"),
		AMQPRequestQueue: getEnv("AMQP_REQUEST_QUEUE", "scraper.requests"),

		APIAddr:  getEnv("API_ADDR", ":8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	cities, err := loadCities(cfg.CitiesFile, getEnv("CITIES", "Amsterdam"))
	if err != nil {
		return nil, err
	}
	cfg.Cities = cities

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the scraper cannot run without.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "pgx", "sqlite3":
	default:
		return fmt.Errorf("config: unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch c.Fetcher {
	case "http", "browser":
	default:
		return fmt.Errorf("config: unsupported FETCHER %q", c.Fetcher)
	}
	if c.ThrottleMs < 0 {
		return fmt.Errorf("config: THROTTLE_MS must not be negative")
	}
	if len(c.Cities) == 0 {
		return fmt.Errorf("config: no enabled cities configured")
	}
	return nil
}

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.DBDriver == "sqlite3" {
		return c.SQLitePath
	}
	if c.DBDriver == "pgx" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresSSLMode)
	}
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// Throttle returns the minimum interval between outbound page fetches.
func (c *Config) Throttle() time.Duration {
	return time.Duration(c.ThrottleMs) * time.Millisecond
}

// RequestTimeout returns the per-request timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

type citiesFile struct {
	Cities []models.City `yaml:"cities"`
}

// loadCities reads the enabled cities from a YAML file when path is set,
// otherwise from a comma-separated list.
func loadCities(path, list string) ([]models.City, error) {
	if path == "" {
		return ParseCityList(list), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read cities file %q: %w", path, err)
	}
	return ParseCitiesYAML(data)
}

// ParseCitiesYAML decodes a cities document and keeps the enabled entries.
// Entries without an enabled flag are enabled.
func ParseCitiesYAML(data []byte) ([]models.City, error) {
	var doc citiesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse cities: %w", err)
	}

	seen := make(map[string]struct{})
	var cities []models.City
	for _, c := range doc.Cities {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			continue
		}
		if c.Enabled != nil && !*c.Enabled {
			continue
		}
		key := strings.ToLower(c.Name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		cities = append(cities, c)
	}
	return cities, nil
}

// ParseCityList splits a comma-separated city list, preserving order and
// dropping blanks and case-insensitive duplicates.
func ParseCityList(list string) []models.City {
	seen := make(map[string]struct{})
	var cities []models.City
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		cities = append(cities, models.City{Name: name})
	}
	return cities
}

// ResolveCities maps requested city names onto the configured cities,
// matching case-insensitively and dropping duplicates. The configured City
// values are returned so their base URL is kept. A name that is not among
// the enabled cities is an error. No names resolves to nil.
func (c *Config) ResolveCities(names []string) ([]models.City, error) {
	configured := make(map[string]models.City, len(c.Cities))
	for _, city := range c.Cities {
		configured[strings.ToLower(city.Name)] = city
	}

	seen := make(map[string]struct{})
	var cities []models.City
	var unknown []string
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		city, ok := configured[key]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		cities = append(cities, city)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("config: cities not configured or disabled: %s", strings.Join(unknown, ", "))
	}
	return cities, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}
