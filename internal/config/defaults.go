package config

// NewDefaultConfig creates a configuration with default values.
func NewDefaultConfig() *Config {
	return &Config{
		PowerStore: PowerStoreConfig{
			APIVersion:  "v1",
			APIBasePath: "/api/rest",
			OpenAPIPath: "/api/rest/swagger.yaml",
			TLSVerify:   false,
		},
		Server: ServerConfig{
			Name:      "powerstore-mcp",
			Host:      "0.0.0.0",
			Port:      3000,
			Transport: "http",
		},
		Client: ClientConfig{
			MaxRetries:     3,
			RetryDelay:     "1s",
			RequestTimeout: "30s",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Format:  "text",
			Outputs: []string{"console"},
		},
	}
}
