// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Server        ServerConfig       `mapstructure:"server"`
	Topics        TopicsConfig       `mapstructure:"topics"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Workflow      WorkflowConfig     `mapstructure:"workflow"`
	Retrieval     RetrievalConfig    `mapstructure:"retrieval"`
	Guardrail     GuardrailConfig    `mapstructure:"guardrail"`
	APIs          APIsConfig         `mapstructure:"apis"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	Notifications NotificationConfig `mapstructure:"notifications"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	TracingURL  string `mapstructure:"tracing_url"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// TopicsConfig points at the topic registry, the only behavioral configuration
// surface: adding a topic never requires a code change.
type TopicsConfig struct {
	RegistryPath string `mapstructure:"registry_path"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	URL        string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address    string `mapstructure:"address"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	SessionTTL int    `mapstructure:"session_ttl"` // minutes, 0 means no expiry
}

// WorkflowConfig holds settings for dispatching complex procedures to the
// external agent workflow engine.
type WorkflowConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	BrokerAddress string `mapstructure:"broker_address"`
	ProcessID     string `mapstructure:"process_id"`
	Timeout       int    `mapstructure:"timeout"` // milliseconds
}

// RetrievalConfig holds settings for the legal text retrieval collaborator.
type RetrievalConfig struct {
	Index   string `mapstructure:"index"`
	TopK    int    `mapstructure:"top_k"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

// GuardrailConfig tunes the guardrail decision engine.
type GuardrailConfig struct {
	ContinuationMode     string `mapstructure:"continuation_mode"` // heuristic | model
	ContinuationMaxWords int    `mapstructure:"continuation_max_words"`
	InjectionEnabled     bool   `mapstructure:"injection_enabled"`
	GroundednessEnabled  bool   `mapstructure:"groundedness_enabled"`
}

// APIsConfig holds settings for external API integrations.
type APIsConfig struct {
	OpenAI struct {
		BaseURL    string `mapstructure:"base_url"`
		APIKey     string `mapstructure:"api_key"`
		ChatModel  string `mapstructure:"chat_model"`
		GuardModel string `mapstructure:"guard_model"`
		Timeout    int    `mapstructure:"timeout"` // milliseconds
		MaxRetries int    `mapstructure:"max_retries"`
	} `mapstructure:"openai"`
}

// NotificationConfig holds settings for operator escalation.
type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
		ToEmail   string `mapstructure:"to_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled bool   `mapstructure:"enabled"`
		ToPhone string `mapstructure:"to_phone"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
	InjectionThreshold int `mapstructure:"injection_threshold"` // rejections per session before escalation
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
