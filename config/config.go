package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config.yml"

// ConfigError reports missing or mistyped settings. It is fatal at startup.
type ConfigError struct {
	Key string
	Msg string
}

func (e *ConfigError) Error() string {
	if e.Key == "" {
		return "config: " + e.Msg
	}
	return fmt.Sprintf("config key '%s': %s", e.Key, e.Msg)
}

func Errorf(key, format string, args ...any) error {
	return &ConfigError{Key: key, Msg: fmt.Sprintf(format, args...)}
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type TelegramConfig struct {
	Token      string `yaml:"token"`
	WebhookURL string `yaml:"webhook_url"`
	ServerPort string `yaml:"server_port"`

	// WebhookSecret is the last path element of the webhook. A random one
	// is used when empty.
	WebhookSecret string `yaml:"webhook_secret"`
}

type BossConfig struct {
	Name       string `yaml:"name"`
	TelegramID int64  `yaml:"telegram_id"`
}

// Plugin is the raw section of a single configured plugin. Each plugin
// decodes its own settings.
type Plugin struct {
	Name string
	Node yaml.Node
}

// Decode fills v from the plugin section. An empty section leaves v as is.
func (p Plugin) Decode(v any) error {
	if p.Node.Kind == 0 || p.Node.ShortTag() == "!!null" {
		return nil
	}
	if err := p.Node.Decode(v); err != nil {
		return &ConfigError{Key: "plugins." + p.Name, Msg: err.Error()}
	}
	return nil
}

type Config struct {
	Name         string         `yaml:"name"`
	TimezoneName string         `yaml:"timezone"`
	Log          LogConfig      `yaml:"log"`
	Telegram     TelegramConfig `yaml:"telegram"`
	Boss         BossConfig     `yaml:"boss"`
	PluginsNode  yaml.Node      `yaml:"plugins"`

	Timezone *time.Location `yaml:"-"`
	Plugins  []Plugin       `yaml:"-"`
}

// Load reads a .env file when present, the YAML file at path and then the
// environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("read %s: %v", path, err)}
	}
	return Parse(data)
}

// Parse decodes YAML data, applies environment overrides and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{Msg: err.Error()}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("OWNER_TELEGRAM_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Errorf("OWNER_TELEGRAM_ID", "must be a number")
		}
		c.Boss.TelegramID = id
	}
	if v := os.Getenv("TIMEZONE"); v != "" {
		c.TimezoneName = v
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		c.Telegram.WebhookURL = v
	}
	if v := os.Getenv("WEBHOOK_SECRET"); v != "" {
		c.Telegram.WebhookSecret = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		c.Telegram.ServerPort = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

func (c *Config) normalize() error {
	if c.Name == "" {
		c.Name = "assistant"
	}
	if c.Boss.Name == "" {
		c.Boss.Name = "boss"
	}
	if c.Log.Level == "" {
		c.Log.Level = "INFO"
	}
	if c.Telegram.ServerPort == "" {
		c.Telegram.ServerPort = "8080"
	}

	if c.TimezoneName == "" {
		c.TimezoneName = "UTC"
	}
	tz, err := time.LoadLocation(c.TimezoneName)
	if err != nil {
		return Errorf("timezone", "invalid: %v", err)
	}
	c.Timezone = tz

	plugins, err := pluginSections(&c.PluginsNode)
	if err != nil {
		return err
	}
	c.Plugins = plugins
	return nil
}

// pluginSections keeps the order in which plugins appear in the file.
func pluginSections(node *yaml.Node) ([]Plugin, error) {
	if node.Kind == 0 {
		return nil, Errorf("plugins", "required key not found")
	}
	if node.Kind != yaml.MappingNode {
		return nil, Errorf("plugins", "must be a mapping of plugin name to settings")
	}
	plugins := make([]Plugin, 0, len(node.Content)/2)
	seen := make(map[string]bool)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := strings.TrimSpace(node.Content[i].Value)
		if seen[name] {
			return nil, Errorf("plugins."+name, "configured twice")
		}
		seen[name] = true
		plugins = append(plugins, Plugin{Name: name, Node: *node.Content[i+1]})
	}
	return plugins, nil
}

// RequireTelegram checks the settings needed to talk to the boss.
func (c *Config) RequireTelegram() error {
	if c.Telegram.Token == "" {
		return Errorf("telegram.token", "required (or TELEGRAM_BOT_TOKEN)")
	}
	if c.Boss.TelegramID == 0 {
		return Errorf("boss.telegram_id", "required (or OWNER_TELEGRAM_ID)")
	}
	return nil
}

func (c *Config) IsBoss(telegramID int64) bool {
	return telegramID == c.Boss.TelegramID
}

// ExpandPath expands a leading ~ and environment variables in path.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return os.ExpandEnv(path)
}
