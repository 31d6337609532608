package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" validate:"required"`
	Backend BackendConfig `mapstructure:"backend" validate:"required"`
	Polling PollingConfig `mapstructure:"polling" validate:"required"`
	LLM     LLMConfig     `mapstructure:"llm"`
}

// ServerConfig contains settings for the reference backend server.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`

	// PhaseDelayMS is how long the simulated backend spends in each
	// non-terminal task phase.
	PhaseDelayMS int `mapstructure:"phase_delay_ms" validate:"gte=0"`
}

// BackendConfig tells the client side where the task-generation service lives.
type BackendConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// PollingConfig contains status-polling settings.
type PollingConfig struct {
	IntervalMS int `mapstructure:"interval_ms" validate:"required,gt=0"`
}

// LLMConfig contains optional LLM integration settings for the reference
// backend's SQL generator. When the API key is empty the canned generator is
// used instead.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	ModelName    string `mapstructure:"model_name"`
}
