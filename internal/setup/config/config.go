package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound = errors.New("could not find config file in any config path")
	ErrMissingBotToken    = errors.New("bot config is missing discord token")
	ErrMissingSheets      = errors.New("google config is missing sheet_ids")
	ErrMissingOwnerEmail  = errors.New("google config is missing owner_email")
	ErrMissingCredentials = errors.New("google config is missing client_id or client_secret")
	ErrMissingPublicURL   = errors.New("oauth server config is missing public_url")
)

// Config represents the entire application configuration.
type Config struct {
	Debug       Debug       `koanf:"debug"`
	PostgreSQL  PostgreSQL  `koanf:"postgresql"`
	Redis       Redis       `koanf:"redis"`
	Bot         Bot         `koanf:"bot"`
	Google      Google      `koanf:"google"`
	OAuthServer OAuthServer `koanf:"oauth_server"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Write JSON logs instead of console output.
	JSONLogs bool `koanf:"json_logs"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	// Database hostname.
	Host string `koanf:"host"`
	// Database port.
	Port int `koanf:"port"`
	// Database username.
	User string `koanf:"user"`
	// Database password.
	Password string `koanf:"password"`
	// Database name.
	DBName string `koanf:"db_name"`
	// Maximum open connections.
	MaxOpenConns int `koanf:"max_open_conns"`
	// Maximum idle connections.
	MaxIdleConns int `koanf:"max_idle_conns"`
	// Connection lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
	// Idle timeout in minutes.
	MaxIdleTime int `koanf:"max_idle_time"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	// Redis hostname.
	Host string `koanf:"host"`
	// Redis port.
	Port int `koanf:"port"`
	// Redis username.
	Username string `koanf:"username"`
	// Redis password.
	Password string `koanf:"password"`
}

// Bot contains Discord bot configuration.
type Bot struct {
	// Discord bot token for authentication.
	Token string `koanf:"token"`
	// Hours a non-compliant member has before removal.
	KickWindowHours int `koanf:"kick_window_hours"`
	// Delay between direct messages during a sweep, in milliseconds.
	SweepDMDelay int `koanf:"sweep_dm_delay"`
	// Delay between guilds during the startup sweep, in milliseconds.
	SweepGuildDelay int `koanf:"sweep_guild_delay"`
	// Run the retroactive sweep over all guilds at startup.
	SweepOnStartup bool `koanf:"sweep_on_startup"`
}

// Google contains OAuth client and sheet configuration.
type Google struct {
	// OAuth client ID from the Google Cloud console.
	ClientID string `koanf:"client_id"`
	// OAuth client secret.
	ClientSecret string `koanf:"client_secret"`
	// Spreadsheet file IDs users are granted editor access to.
	SheetIDs []string `koanf:"sheet_ids"`
	// Google account that owns the sheets and performs the grants.
	OwnerEmail string `koanf:"owner_email"`
	// Send the Drive share notification email on grant.
	NotifyOnShare bool `koanf:"notify_on_share"`
	// Roster sheet holding the expected member list. Optional; the roster
	// check command reports it as unconfigured when sheet_id is empty.
	Roster Roster `koanf:"roster"`
}

// Roster locates the member name column inside a spreadsheet tab.
type Roster struct {
	// Spreadsheet file ID of the roster sheet.
	SheetID string `koanf:"sheet_id"`
	// Numeric GID of the tab inside the spreadsheet.
	TabGID int64 `koanf:"tab_gid"`
	// Column letter holding the member names.
	Column string `koanf:"column"`
	// First data row, 1-based. Rows above it are headers.
	StartRow int `koanf:"start_row"`
}

// OAuthServer contains the consent callback server configuration.
type OAuthServer struct {
	// Listen port for the HTTPS callback server.
	Port int `koanf:"port"`
	// Externally reachable base URL, used to build consent links.
	PublicURL string `koanf:"public_url"`
	// Shared key required by the initiate endpoints.
	APIKey string `koanf:"api_key"`
	// TLS certificate path.
	CertFile string `koanf:"cert_file"`
	// TLS private key path.
	KeyFile string `koanf:"key_file"`
}

// LoadConfig loads the configuration from the first sheetgate.toml found in the
// search paths. Returns the config along with the used config directory.
func LoadConfig() (*Config, string, error) {
	k := koanf.New(".")

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	configPaths := []string{
		".sheetgate",
		homeDir + "/.sheetgate/config",
		"/etc/sheetgate/config",
		"/app/config",
		"config",
		".",
	}

	var usedConfigPath string

	for _, path := range configPaths {
		configPath := fmt.Sprintf("%s/sheetgate.toml", path)
		if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
			usedConfigPath = path
			break
		}
	}

	if usedConfigPath == "" {
		return nil, "", fmt.Errorf("%w: sheetgate.toml", ErrConfigFileNotFound)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, "", err
	}

	return &config, usedConfigPath, nil
}

func (c *Config) applyDefaults() {
	if c.Bot.KickWindowHours == 0 {
		c.Bot.KickWindowHours = 72
	}

	if c.Bot.SweepDMDelay == 0 {
		c.Bot.SweepDMDelay = 100
	}

	if c.Bot.SweepGuildDelay == 0 {
		c.Bot.SweepGuildDelay = 1000
	}

	if c.Google.Roster.Column == "" {
		c.Google.Roster.Column = "A"
	}

	if c.Google.Roster.StartRow == 0 {
		c.Google.Roster.StartRow = 1
	}

	if c.OAuthServer.Port == 0 {
		c.OAuthServer.Port = 5948
	}
}

// Validate checks that every field required at runtime is present. Missing
// sheet or credential configuration fails startup instead of surfacing at
// first use.
func (c *Config) Validate() error {
	if c.Bot.Token == "" {
		return ErrMissingBotToken
	}

	if c.Google.ClientID == "" || c.Google.ClientSecret == "" {
		return ErrMissingCredentials
	}

	if len(c.Google.SheetIDs) == 0 {
		return ErrMissingSheets
	}

	if c.Google.OwnerEmail == "" {
		return ErrMissingOwnerEmail
	}

	if c.OAuthServer.PublicURL == "" {
		return ErrMissingPublicURL
	}

	return nil
}
