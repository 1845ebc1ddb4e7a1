// internal/config/config.go
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/senushidinara/DreamStruct/internal/utils"
)

const (
	DefaultProvider = "google"
	DefaultModel    = "gemini-2.5-pro"
)

// LLM settings that may be changed at runtime and saved. Anything that
// decides where the credential is sent (base_url) comes from the environment.
const (
	LLMKeyAPIKey       = "api_key"
	LLMKeyDefaultModel = "default_model"
)

var ErrUnsupportedLLMSetting = errors.New("unsupported llm setting")

var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
)

// AppConfig is the persisted, runtime-updatable configuration.
type AppConfig struct {
	Port         string `json:"port"`
	DataDir      string `json:"data_dir"`
	StaticDir    string `json:"static_dir"`
	TemplatesDir string `json:"templates_dir"`
	LogDir       string `json:"log_dir"`
	DebugMode    bool   `json:"debug_mode"`

	LLMProvider string            `json:"llm_provider"`
	LLMConfig   map[string]string `json:"llm_config"`
	LLMBaseURL  string            `json:"-"`

	LLMTimeout         time.Duration `json:"llm_timeout"`
	RateLimitPerMinute int           `json:"rate_limit_per_minute"`
}

// Config holds the values read from the environment.
type Config struct {
	Port               string
	APIKey             string
	DataDir            string
	StaticDir          string
	TemplatesDir       string
	LogDir             string
	DebugMode          bool
	LLMProvider        string
	LLMModel           string
	LLMBaseURL         string
	LLMTimeout         time.Duration
	RateLimitPerMinute int
	ConfigSecret       string
}

// Load reads configuration from the environment and an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	timeout, err := getEnvDuration("LLM_TIMEOUT", 0)
	if err != nil {
		return nil, err
	}

	rateLimit, err := getEnvInt("RATE_LIMIT_PER_MINUTE", 30)
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:               getEnv("PORT", "8080"),
		APIKey:             EnvAPIKey(),
		DataDir:            getEnvPath("DATA_DIR", "data"),
		StaticDir:          getEnvPath("STATIC_DIR", "static"),
		TemplatesDir:       getEnv("TEMPLATES_DIR", "web/templates"),
		LogDir:             getEnvPath("LOG_DIR", "logs"),
		DebugMode:          getEnvBool("DEBUG_MODE", false),
		LLMProvider:        getEnv("LLM_PROVIDER", DefaultProvider),
		LLMModel:           getEnv("LLM_MODEL", DefaultModel),
		LLMBaseURL:         os.Getenv("LLM_BASE_URL"),
		LLMTimeout:         timeout,
		RateLimitPerMinute: rateLimit,
		ConfigSecret:       os.Getenv("CONFIG_SECRET"),
	}, nil
}

// EnvAPIKey returns the credential from the process environment.
func EnvAPIKey() string {
	if key := os.Getenv("API_KEY"); key != "" {
		return key
	}
	return os.Getenv("GEMINI_API_KEY")
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath returns a directory path from the environment, creating it if needed.
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			utils.GetLogger().Warnf("create directory %s: %v", path, err)
		}
	}

	return path
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// InitConfig sets up the config manager, merging a saved config.json in dataDir.
func InitConfig(dataDir string) error {
	configFile = filepath.Join(dataDir, "config.json")

	baseConfig, err := Load()
	if err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	currentConfig = fromBase(baseConfig)

	if data, err := os.ReadFile(configFile); err == nil {
		var savedConfig AppConfig
		if json.Unmarshal(data, &savedConfig) == nil {
			// environment wins for paths and runtime knobs; saved file keeps the LLM choice
			savedConfig.Port = baseConfig.Port
			savedConfig.DataDir = baseConfig.DataDir
			savedConfig.StaticDir = baseConfig.StaticDir
			savedConfig.TemplatesDir = baseConfig.TemplatesDir
			savedConfig.LogDir = baseConfig.LogDir
			savedConfig.DebugMode = baseConfig.DebugMode
			savedConfig.LLMTimeout = baseConfig.LLMTimeout
			savedConfig.RateLimitPerMinute = baseConfig.RateLimitPerMinute

			savedConfig.LLMBaseURL = baseConfig.LLMBaseURL
			savedConfig.LLMConfig = allowedLLMSettings(savedConfig.LLMConfig)
			if key := savedConfig.LLMConfig["api_key"]; utils.IsSealed(key) {
				// a key sealed under another secret is unusable
				plain, err := utils.OpenCredential(key, baseConfig.ConfigSecret)
				if err != nil {
					plain = ""
				}
				savedConfig.LLMConfig["api_key"] = plain
			}
			if savedConfig.LLMConfig["api_key"] == "" {
				savedConfig.LLMConfig["api_key"] = baseConfig.APIKey
			}
			if savedConfig.LLMProvider == "" {
				savedConfig.LLMProvider = baseConfig.LLMProvider
			}

			currentConfig = &savedConfig
		}
	}

	return saveLocked(baseConfig.ConfigSecret)
}

func fromBase(baseConfig *Config) *AppConfig {
	return &AppConfig{
		Port:         baseConfig.Port,
		DataDir:      baseConfig.DataDir,
		StaticDir:    baseConfig.StaticDir,
		TemplatesDir: baseConfig.TemplatesDir,
		LogDir:       baseConfig.LogDir,
		DebugMode:    baseConfig.DebugMode,
		LLMProvider:  baseConfig.LLMProvider,
		LLMBaseURL:   baseConfig.LLMBaseURL,
		LLMConfig: map[string]string{
			"api_key":       baseConfig.APIKey,
			"default_model": baseConfig.LLMModel,
		},
		LLMTimeout:         baseConfig.LLMTimeout,
		RateLimitPerMinute: baseConfig.RateLimitPerMinute,
	}
}

// GetCurrentConfig returns a copy of the current configuration.
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		baseConfig, err := Load()
		if err != nil {
			baseConfig = &Config{Port: "8080", LLMProvider: DefaultProvider, LLMModel: DefaultModel}
		}
		return fromBase(baseConfig)
	}

	configCopy := *currentConfig
	configCopy.LLMConfig = make(map[string]string, len(currentConfig.LLMConfig))
	for k, v := range currentConfig.LLMConfig {
		configCopy.LLMConfig[k] = v
	}
	return &configCopy
}

// ResolveAPIKey returns the credential at call time: environment first, then saved config.
func ResolveAPIKey() string {
	if key := EnvAPIKey(); key != "" {
		return key
	}
	return GetCurrentConfig().LLMConfig["api_key"]
}

// UpdateLLMConfig replaces the provider settings and persists them. Only
// api_key and default_model are accepted.
func UpdateLLMConfig(provider string, llmConfig map[string]string) error {
	for k := range llmConfig {
		if k != LLMKeyAPIKey && k != LLMKeyDefaultModel {
			return fmt.Errorf("%w: %s", ErrUnsupportedLLMSetting, k)
		}
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("config not initialised")
	}

	currentConfig.LLMProvider = provider
	currentConfig.LLMConfig = allowedLLMSettings(llmConfig)

	return saveLocked(os.Getenv("CONFIG_SECRET"))
}

// allowedLLMSettings copies the runtime-updatable keys of in, dropping the rest.
func allowedLLMSettings(in map[string]string) map[string]string {
	out := make(map[string]string, 2)
	for _, k := range []string{LLMKeyAPIKey, LLMKeyDefaultModel} {
		if v, ok := in[k]; ok {
			out[k] = v
		}
	}
	return out
}

// saveLocked writes the config file; configMutex must be held.
func saveLocked(secret string) error {
	if currentConfig == nil {
		return fmt.Errorf("no config to save")
	}
	if configFile == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	onDisk := *currentConfig
	onDisk.LLMConfig = make(map[string]string, len(currentConfig.LLMConfig))
	for k, v := range currentConfig.LLMConfig {
		onDisk.LLMConfig[k] = v
	}
	if key := onDisk.LLMConfig["api_key"]; key != "" {
		if secret == "" {
			// never write a plaintext credential
			delete(onDisk.LLMConfig, "api_key")
		} else {
			enc, err := utils.SealCredential(key, secret)
			if err != nil {
				return fmt.Errorf("encrypt api key: %w", err)
			}
			onDisk.LLMConfig["api_key"] = enc
		}
	}

	data, err := json.MarshalIndent(&onDisk, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(configFile, data, 0600)
}
