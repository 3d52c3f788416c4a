package config

import "time"

// SystemConfig groups system-wide infrastructure settings.
type SystemConfig struct {
	HTTPPort     string          `yaml:"http_port"`
	DashboardDir string          `yaml:"dashboard_dir,omitempty"`
	Auth         *AuthConfig     `yaml:"auth,omitempty"`
	Store        *StoreConfig    `yaml:"store"`
	ChatNotify   *ChatNotifyConfig `yaml:"chat_notify,omitempty"`
	Webhooks     *WebhooksConfig `yaml:"webhooks,omitempty"`
	Metrics      *MetricsConfig  `yaml:"metrics,omitempty"`
}

// AuthConfig controls optional bearer authentication on the HTTP surface.
type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	TokenEnv string `yaml:"token_env,omitempty"`
}

// StoreConfig selects and configures the Persistence backend.
type StoreConfig struct {
	// Driver is "postgres" (default, production) or "sqlite" (local/dev,
	// single-node deployments — source tag "local").
	Driver string `yaml:"driver"`

	// DSN for postgres: host/port/user/password/dbname/sslmode assembled by
	// the caller from env vars.
	Postgres *PostgresConfig `yaml:"postgres,omitempty"`

	// SQLitePath is the database file path when Driver is "sqlite".
	SQLitePath string `yaml:"sqlite_path,omitempty"`
}

// PostgresConfig holds the connection settings for the postgres driver.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// ChatNotifyConfig configures the corporate chat notifier.
type ChatNotifyConfig struct {
	Enabled  bool   `yaml:"enabled"`
	TokenEnv string `yaml:"token_env,omitempty"`
	Channel  string `yaml:"channel,omitempty"`
	// DashboardURL is the external base URL linked from notification
	// messages (e.g. "https://triage.example.com"); issue/task links are
	// built as DashboardURL + "/issues/{id}".
	DashboardURL string `yaml:"dashboard_url,omitempty"`
}

// WebhooksConfig configures inbound tracker webhook verification and the
// outbound follow-up comment the ingestor posts back to the tracker.
type WebhooksConfig struct {
	// TrackerSecretEnv names the env var holding the shared HMAC secret
	// used to verify X-Tracker-Signature on inbound events. Signature
	// verification is skipped (and a warning logged once) when unset.
	TrackerSecretEnv string `yaml:"tracker_secret_env,omitempty"`

	// MentionToken is the literal substring (e.g. "@triage-bot") whose
	// presence in an inbound event's text triggers Issue/Task creation.
	MentionToken string `yaml:"mention_token,omitempty"`

	// TrackerAPIURL is the base URL the ingestor posts follow-up comments
	// to; empty disables posting (events are still ingested).
	TrackerAPIURL string `yaml:"tracker_api_url,omitempty"`

	// TrackerTokenEnv names the env var holding the tracker API's bearer
	// token for posting follow-up comments.
	TrackerTokenEnv string `yaml:"tracker_token_env,omitempty"`
}

// MetricsConfig controls the /metrics Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultSystemConfig returns the built-in system defaults.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		HTTPPort: "8080",
		Store: &StoreConfig{
			Driver: "postgres",
			Postgres: &PostgresConfig{
				Host:            "localhost",
				Port:            5432,
				User:            "triage",
				Database:        "triage",
				SSLMode:         "disable",
				MaxOpenConns:    20,
				MaxIdleConns:    5,
				ConnMaxLifetime: time.Hour,
				ConnMaxIdleTime: 10 * time.Minute,
			},
		},
		Metrics: &MetricsConfig{Enabled: true},
	}
}
