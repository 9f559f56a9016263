package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Chrome   ChromeConfig
	Executor ExecutorConfig
	Recorder RecorderConfig
	NATS     NATSConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Mode         string
	ReadTimeout  int
	WriteTimeout int
}

type DatabaseConfig struct {
	Driver   string // mysql or sqlite
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Charset  string
	Path     string // sqlite file, ":memory:" for a throwaway database
}

type JWTConfig struct {
	Secret     string
	ExpireTime int
	// APIKeyHash is the bcrypt hash of the key exchanged for tokens.
	APIKeyHash string
}

type ChromeConfig struct {
	HeadlessMode bool
	MaxInstances int
	ExecPath     string
	Backend      string // chromedp or rod
	Device       string
	Width        int
	Height       int
	UserAgent    string
}

type ExecutorConfig struct {
	Timeout           time.Duration
	RetryCount        int
	BackoffBase       time.Duration
	DelayBetweenSteps time.Duration
	PollInterval      time.Duration
	SettleDelay       time.Duration
	TypeDelay         time.Duration
	ContinueOnError   bool
	AllowCustomCode   bool
	MaxWorkers        int
}

type RecorderConfig struct {
	DebounceWindow  time.Duration
	VolatileClasses []string
}

type NATSConfig struct {
	Enabled bool
	URL     string
}

func LoadConfig() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Mode:         getEnv("SERVER_MODE", "debug"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 30),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "mysql"),
			Host:     getEnv("DB_HOST", "127.0.0.1"),
			Port:     getEnv("DB_PORT", "3306"),
			Username: getEnv("DB_USERNAME", "root"),
			Password: getEnv("DB_PASSWORD", "root"),
			Database: getEnv("DB_NAME", "webflow"),
			Charset:  getEnv("DB_CHARSET", "utf8mb4"),
			Path:     getEnv("DB_PATH", "webflow.db"),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", "webflow-engine-secret-key"),
			ExpireTime: getEnvAsInt("JWT_EXPIRE_TIME", 24*3600),
			APIKeyHash: getEnv("API_KEY_HASH", ""),
		},
		Chrome: ChromeConfig{
			HeadlessMode: getEnvAsBool("CHROME_HEADLESS", true),
			MaxInstances: getEnvAsInt("CHROME_MAX_INSTANCES", 20),
			ExecPath:     getEnv("CHROME_PATH", ""),
			Backend:      getEnv("CHROME_BACKEND", "chromedp"),
			Device:       getEnv("CHROME_DEVICE", ""),
			Width:        getEnvAsInt("CHROME_WIDTH", 1280),
			Height:       getEnvAsInt("CHROME_HEIGHT", 800),
			UserAgent:    getEnv("CHROME_USER_AGENT", ""),
		},
		Executor: ExecutorConfig{
			Timeout:           getEnvAsDuration("EXECUTOR_TIMEOUT", 30*time.Second),
			RetryCount:        getEnvAsInt("EXECUTOR_RETRY_COUNT", 3),
			BackoffBase:       getEnvAsDuration("EXECUTOR_BACKOFF_BASE", time.Second),
			DelayBetweenSteps: getEnvAsDuration("EXECUTOR_STEP_DELAY", time.Second),
			PollInterval:      getEnvAsDuration("EXECUTOR_POLL_INTERVAL", 100*time.Millisecond),
			SettleDelay:       getEnvAsDuration("EXECUTOR_SETTLE_DELAY", 300*time.Millisecond),
			TypeDelay:         getEnvAsDuration("EXECUTOR_TYPE_DELAY", 50*time.Millisecond),
			ContinueOnError:   getEnvAsBool("EXECUTOR_CONTINUE_ON_ERROR", false),
			AllowCustomCode:   getEnvAsBool("EXECUTOR_ALLOW_CUSTOM_CODE", true),
			MaxWorkers:        getEnvAsInt("EXECUTOR_MAX_WORKERS", 3),
		},
		Recorder: RecorderConfig{
			DebounceWindow:  getEnvAsDuration("RECORDER_DEBOUNCE", 500*time.Millisecond),
			VolatileClasses: getEnvAsList("RECORDER_VOLATILE_CLASSES"),
		},
		NATS: NATSConfig{
			Enabled: getEnvAsBool("NATS_ENABLED", false),
			URL:     getEnv("NATS_URL", "nats://127.0.0.1:4222"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	switch c.Chrome.Backend {
	case "chromedp", "rod":
	default:
		return fmt.Errorf("unsupported CHROME_BACKEND %q", c.Chrome.Backend)
	}
	if c.Executor.RetryCount < 1 {
		return fmt.Errorf("EXECUTOR_RETRY_COUNT must be at least 1")
	}
	return nil
}

func (c *Config) GetDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.Path
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=%s&parseTime=True&loc=Local",
		c.Database.Username,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.Charset,
	)
}

func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("1.5s") or plain milliseconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
