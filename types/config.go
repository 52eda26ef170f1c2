package types

import "time"

// AppConfig represents the complete application configuration.
type AppConfig struct {
	Verbose      bool               `mapstructure:"verbose"`
	Config       string             `mapstructure:"config"`
	LLM          LLMConfig          `mapstructure:"llm" validate:"required"`
	Batch        BatchConfig        `mapstructure:"batch" validate:"required"`
	EntityStore  EntityStoreConfig  `mapstructure:"entity_store"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Server       ServerConfig       `mapstructure:"server"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
}

// LLMConfig holds configuration for the chat-completions provider.
type LLMConfig struct {
	Model   string `mapstructure:"model" validate:"required,min=1"`
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
	APIKey  string `mapstructure:"api_key"`
	// MaxTokens is the provider context window (input + output).
	MaxTokens int `mapstructure:"max_tokens" validate:"required,min=1"`
	// BudgetPercentage is the fraction of MaxTokens reserved for the prompt.
	BudgetPercentage float64 `mapstructure:"budget_percentage" validate:"required,gt=0,lte=1"`
	Temperature      float32 `mapstructure:"temperature" validate:"omitempty,min=0,max=2"`
	// Prices are per 1M tokens in USD; zero means cost is reported as 0.
	InputPricePer1M  float64 `mapstructure:"input_price_per_1m" validate:"omitempty,min=0"`
	OutputPricePer1M float64 `mapstructure:"output_price_per_1m" validate:"omitempty,min=0"`
	TimeoutSeconds   int     `mapstructure:"timeout_seconds" validate:"omitempty,min=5,max=600"`
	// MaxAttempts bounds retries on transient provider failures.
	MaxAttempts int `mapstructure:"max_attempts" validate:"omitempty,min=1,max=10"`
}

// BatchConfig holds batch processor knobs.
type BatchConfig struct {
	MaxRetriesPerItem  int `mapstructure:"max_retries_per_item" validate:"omitempty,min=1,max=10"`
	MaxCallbackRetries int `mapstructure:"max_callback_retries" validate:"omitempty,min=1,max=10"`
	AlarmIntervalMS    int `mapstructure:"alarm_interval_ms" validate:"omitempty,min=10"`
	// MinFiles is the threshold below which a directory is not worth
	// organizing; such items complete immediately.
	MinFiles int `mapstructure:"min_files" validate:"omitempty,min=1"`
	// DataDir holds the sqlite batch state database.
	DataDir string `mapstructure:"data_dir"`
}

// AlarmInterval returns the scheduler re-entry delay.
func (b BatchConfig) AlarmInterval() time.Duration {
	if b.AlarmIntervalMS <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(b.AlarmIntervalMS) * time.Millisecond
}

// EntityStoreConfig points at the content-addressed entity store.
type EntityStoreConfig struct {
	BaseURL        string `mapstructure:"base_url" validate:"omitempty,url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"omitempty,min=1,max=600"`
}

// OrchestratorConfig points at the upstream callback receiver.
type OrchestratorConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
}

// ServerConfig holds HTTP surface settings.
type ServerConfig struct {
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
}

// TelemetryConfig holds anonymous usage telemetry settings.
type TelemetryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}
