package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for ragchat.
type Config struct {
	Server      ServerConfig      `json:"server" yaml:"server"`
	General     GeneralConfig     `json:"general" yaml:"general"`
	Credentials CredentialsConfig `json:"credentials" yaml:"credentials"`
	Chat        ChatConfig        `json:"chat" yaml:"chat"`
	Attachments AttachmentsConfig `json:"attachments" yaml:"attachments"`
	Metrics     MetricsConfig     `json:"metrics" yaml:"metrics"`
}

// ServerConfig points the client at the chat service.
type ServerConfig struct {
	BaseURL        string  `json:"baseURL" yaml:"baseURL"`
	TimeoutSeconds int     `json:"timeoutSeconds" yaml:"timeoutSeconds"` // control-plane calls; streams are not bounded
	RatePerMinute  float64 `json:"ratePerMinute" yaml:"ratePerMinute"`   // 0 = unlimited
	RateBurst      int     `json:"rateBurst" yaml:"rateBurst"`
	// Token is a fixed bearer token, e.g. "${RAGCHAT_TOKEN}". When set it
	// is used instead of the credential store.
	Token string `json:"token,omitempty" yaml:"token,omitempty"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel" yaml:"logLevel"`
	LogFile  string `json:"logFile,omitempty" yaml:"logFile,omitempty"` // optional log file path
	DataDir  string `json:"dataDir" yaml:"dataDir"`
}

type CredentialsConfig struct {
	DBPath string `json:"dbPath,omitempty" yaml:"dbPath,omitempty"` // default <dataDir>/credentials.db
}

// ChatConfig tunes the chat session.
type ChatConfig struct {
	SummaryLength      int    `json:"summaryLength" yaml:"summaryLength"`
	PlaceholderMessage string `json:"placeholderMessage" yaml:"placeholderMessage"`
	EmptyLabel         string `json:"emptyLabel" yaml:"emptyLabel"`
	RAG                string `json:"rag" yaml:"rag"` // "auto" | "always" | "never"
}

type AttachmentsConfig struct {
	MaxSizeBytes int64 `json:"maxSizeBytes" yaml:"maxSizeBytes"`
}

type MetricsConfig struct {
	Addr       string `json:"addr,omitempty" yaml:"addr,omitempty"` // serve /metrics here during chat
	DumpOnExit bool   `json:"dumpOnExit" yaml:"dumpOnExit"`
}

// CredentialsPath returns the credential database path.
func (c *Config) CredentialsPath() string {
	if c.Credentials.DBPath != "" {
		return c.Credentials.DBPath
	}
	return filepath.Join(c.General.DataDir, "credentials.db")
}

// DefaultConfigDir returns the default config directory (~/.ragchat).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ragchat"
	}
	return filepath.Join(home, ".ragchat")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load reads a JSON or YAML config file on top of Defaults and validates
// the result.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Resolve()
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Resolve expands ~/ in every path setting.
func (c *Config) Resolve() {
	c.General.DataDir = ExpandPath(c.General.DataDir)
	c.General.LogFile = ExpandPath(c.General.LogFile)
	c.Credentials.DBPath = ExpandPath(c.Credentials.DBPath)
	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")
	// An unset ${VAR} survives expansion verbatim; never send it as a token.
	if envVarPattern.MatchString(c.Server.Token) {
		c.Server.Token = ""
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty; an unset
// variable without a default is left as written.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

// Save writes cfg as JSON or YAML depending on the file extension. The
// file may hold a token, so it is written 0600.
func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values and reports every
// problem at once.
func Validate(cfg *Config) error {
	var errs []string

	if u, err := url.Parse(cfg.Server.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, "server.baseURL must be an absolute http(s) URL")
	}
	if cfg.Server.TimeoutSeconds < 1 {
		errs = append(errs, "server.timeoutSeconds must be >= 1")
	}
	if cfg.Server.RatePerMinute < 0 {
		errs = append(errs, "server.ratePerMinute must be >= 0")
	}
	if cfg.Server.RateBurst < 0 {
		errs = append(errs, "server.rateBurst must be >= 0")
	}

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.DataDir == "" {
		errs = append(errs, "general.dataDir is required")
	}

	if cfg.Chat.SummaryLength < 1 {
		errs = append(errs, "chat.summaryLength must be >= 1")
	}
	if strings.TrimSpace(cfg.Chat.PlaceholderMessage) == "" {
		errs = append(errs, "chat.placeholderMessage is required")
	}
	switch cfg.Chat.RAG {
	case "auto", "always", "never":
		// valid
	default:
		errs = append(errs, "chat.rag must be one of: auto, always, never")
	}

	if cfg.Attachments.MaxSizeBytes <= 0 {
		errs = append(errs, "attachments.maxSizeBytes must be > 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
