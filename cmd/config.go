package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/pinaxlabs/organizer/types"
)

const (
	configName = ".organizer"
	envPrefix  = "ORGANIZER"
)

// GlobalAppConfig holds the global application configuration instance.
var GlobalAppConfig types.AppConfig

var validate = validator.New()

// InitConfig reads in config file and ENV variables if set. Precedence:
// flags > environment > config file > defaults.
func InitConfig() {
	// A .env file is optional; ignore its absence.
	_ = godotenv.Load()

	viper.SetEnvPrefix(envPrefix) // e.g. ORGANIZER_LLM_API_KEY
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if cfgFileFlag := viper.GetString("config"); cfgFileFlag != "" {
		viper.SetConfigFile(cfgFileFlag)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(configName)
	}

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	} else if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
		fmt.Fprintln(os.Stderr, "Error reading config file:", viper.ConfigFileUsed(), "-", err)
		os.Exit(1)
	}

	setDefaults()

	if err := viper.Unmarshal(&GlobalAppConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Error unmarshaling config: %s\n", err)
		os.Exit(1)
	}

	if err := validate.Struct(&GlobalAppConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration validation error: %s\n", err)
		os.Exit(1)
	}
}

func setDefaults() {
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.api_key", "")
	viper.SetDefault("llm.base_url", "")
	viper.SetDefault("llm.max_tokens", 128000)
	viper.SetDefault("llm.budget_percentage", 0.7)
	viper.SetDefault("llm.temperature", 0.3)
	viper.SetDefault("llm.timeout_seconds", 120)
	viper.SetDefault("llm.max_attempts", 3)
	viper.SetDefault("llm.input_price_per_1m", 0.0)
	viper.SetDefault("llm.output_price_per_1m", 0.0)

	viper.SetDefault("batch.max_retries_per_item", 3)
	viper.SetDefault("batch.max_callback_retries", 3)
	viper.SetDefault("batch.alarm_interval_ms", 100)
	viper.SetDefault("batch.min_files", 3)
	viper.SetDefault("batch.data_dir", ".organizer")

	viper.SetDefault("entity_store.base_url", "http://localhost:9000")
	viper.SetDefault("entity_store.timeout_seconds", 30)

	viper.SetDefault("orchestrator.base_url", "http://localhost:9100")

	viper.SetDefault("server.port", 8080)

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.api_key", "")
}

// GetConfig returns a pointer to the global types.AppConfig instance.
func GetConfig() *types.AppConfig {
	return &GlobalAppConfig
}
