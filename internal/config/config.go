package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/subosito/gotenv"

	"github.com/bobmcallan/powerstore-mcp/internal/common"
)

// Config represents the application configuration.
type Config struct {
	PowerStore PowerStoreConfig `toml:"powerstore"`
	Server     ServerConfig     `toml:"server"`
	Client     ClientConfig     `toml:"client"`
	Logging    LoggingConfig    `toml:"logging"`
}

// PowerStoreConfig contains array connection settings. Host and credentials
// are optional defaults; every tool call may supply its own.
type PowerStoreConfig struct {
	Host          string `toml:"host"`
	Username      string `toml:"username"`
	Password      string `toml:"password"`
	APIVersion    string `toml:"api_version" validate:"required"`
	APIBasePath   string `toml:"api_base_path" validate:"required,startswith=/"`
	OpenAPIPath   string `toml:"openapi_path"`
	LocalSpecPath string `toml:"local_spec_path" validate:"required"`
	TLSVerify     bool   `toml:"tls_verify"`
}

// ServerConfig contains MCP front-end settings.
type ServerConfig struct {
	Name      string `toml:"name" validate:"required"`
	Host      string `toml:"host"`
	Port      int    `toml:"port" validate:"min=1,max=65535"`
	Transport string `toml:"transport" validate:"oneof=stdio http"`
}

// ClientConfig contains outbound REST client tunables.
type ClientConfig struct {
	MaxRetries     int    `toml:"max_retries" validate:"min=0,max=10"`
	RetryDelay     string `toml:"retry_delay"`
	RequestTimeout string `toml:"request_timeout"`
}

// GetRetryDelay parses and returns the fixed delay between retries.
func (c *ClientConfig) GetRetryDelay() time.Duration {
	d, err := time.ParseDuration(c.RetryDelay)
	if err != nil || d < 0 {
		return time.Second
	}
	return d
}

// GetRequestTimeout parses and returns the per-attempt request timeout.
func (c *ClientConfig) GetRequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level      string   `toml:"level"`
	Format     string   `toml:"format"`
	Outputs    []string `toml:"outputs"`
	FilePath   string   `toml:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups"`
}

// HasDefaultCredentials reports whether a username and password are configured.
func (c *Config) HasDefaultCredentials() bool {
	return c.PowerStore.Username != "" && c.PowerStore.Password != ""
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// LoadFromFile loads configuration with priority: defaults -> file -> env.
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadDotEnv loads KEY=VALUE pairs from a .env file into the process
// environment without overriding variables that are already set.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(config *Config) {
	if host := os.Getenv("POWERSTORE_HOST"); host != "" {
		config.PowerStore.Host = host
	}
	if user := os.Getenv("POWERSTORE_USERNAME"); user != "" {
		config.PowerStore.Username = user
	}
	if pass := os.Getenv("POWERSTORE_PASSWORD"); pass != "" {
		config.PowerStore.Password = pass
	}
	if v := os.Getenv("POWERSTORE_API_VERSION"); v != "" {
		config.PowerStore.APIVersion = v
	}
	if p := os.Getenv("POWERSTORE_API_BASE_PATH"); p != "" {
		config.PowerStore.APIBasePath = p
	}
	if p := os.Getenv("POWERSTORE_OPENAPI_PATH"); p != "" {
		config.PowerStore.OpenAPIPath = p
	}
	if p := os.Getenv("LOCAL_OPENAPI_SPEC_PATH"); p != "" {
		config.PowerStore.LocalSpecPath = p
	}
	if v, ok := os.LookupEnv("NODE_TLS_REJECT_UNAUTHORIZED"); ok && v != "" {
		config.PowerStore.TLSVerify = v != "0"
	}

	if port := os.Getenv("HTTP_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("HTTP_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if t := os.Getenv("MCP_TRANSPORT"); t != "" {
		config.Server.Transport = strings.ToLower(t)
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if v := os.Getenv("LOG_JSON"); v != "" {
		if strings.EqualFold(v, "true") {
			config.Logging.Format = "json"
		} else {
			config.Logging.Format = "text"
		}
	}
	if file := os.Getenv("LOG_FILE"); file != "" {
		config.Logging.FilePath = file
		if !contains(config.Logging.Outputs, "file") {
			config.Logging.Outputs = append(config.Logging.Outputs, "file")
		}
	}

	if v := os.Getenv("MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Client.MaxRetries = n
		}
	}
	if v := os.Getenv("RETRY_DELAY"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			config.Client.RetryDelay = fmt.Sprintf("%dms", ms)
		}
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			config.Client.RequestTimeout = fmt.Sprintf("%dms", ms)
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config.
func ApplyFlagOverrides(config *Config, port int, host, specPath string, stdio bool) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
	if specPath != "" {
		config.PowerStore.LocalSpecPath = specPath
	}
	if stdio {
		config.Server.Transport = "stdio"
	}
}

// Validate checks mandatory fields and ranges and returns one message per problem.
// An empty result means the configuration is usable.
func (c *Config) Validate() []string {
	var issues []string

	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("toml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				issues = append(issues, describeFieldError(fe))
			}
		} else {
			issues = append(issues, err.Error())
		}
	}

	if c.PowerStore.LocalSpecPath != "" {
		if _, err := os.Stat(c.PowerStore.LocalSpecPath); err != nil {
			issues = append(issues, fmt.Sprintf("powerstore.local_spec_path: OpenAPI spec file not found: %s", c.PowerStore.LocalSpecPath))
		}
	}

	if c.Client.RetryDelay != "" {
		if d, err := time.ParseDuration(c.Client.RetryDelay); err != nil || d < 0 {
			issues = append(issues, fmt.Sprintf("client.retry_delay: invalid duration %q", c.Client.RetryDelay))
		}
	}
	if c.Client.RequestTimeout != "" {
		d, err := time.ParseDuration(c.Client.RequestTimeout)
		if err != nil {
			issues = append(issues, fmt.Sprintf("client.request_timeout: invalid duration %q", c.Client.RequestTimeout))
		} else if d < time.Second {
			issues = append(issues, fmt.Sprintf("client.request_timeout: must be at least 1s, got %s", d))
		}
	}

	if !common.ValidLevel(c.Logging.Level) {
		issues = append(issues, fmt.Sprintf("logging.level: invalid log level %q (use DEBUG, INFO, WARNING, ERROR or CRITICAL)", c.Logging.Level))
	}

	return issues
}

// describeFieldError renders a validator failure using the TOML key path.
func describeFieldError(fe validator.FieldError) string {
	key := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		if key == "powerstore.local_spec_path" {
			return key + ": OpenAPI specification path is required (set LOCAL_OPENAPI_SPEC_PATH)"
		}
		return key + ": is required"
	case "min", "max":
		return fmt.Sprintf("%s: value %v out of range (%s %s)", key, fe.Value(), fe.Tag(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s: %q must be one of [%s]", key, fe.Value(), fe.Param())
	case "startswith":
		return fmt.Sprintf("%s: %q must start with %q", key, fe.Value(), fe.Param())
	}
	return fmt.Sprintf("%s: failed %s validation", key, fe.Tag())
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
