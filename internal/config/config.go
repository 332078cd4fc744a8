// Package config loads server configuration from command-line flags,
// environment variables, a .env file and an optional YAML file.
package config

import (
	"bufio"
	"cmp"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	App           AppConfig
	Logger        LoggerConfig
	Server        ServerConfig
	Storage       StorageConfig
	Auth          AuthConfig
	Events        EventsConfig
	Import        ImportConfig
	Notifications NotificationsConfig
	Backup        BackupConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string
	CORSOrigins     []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Storage backends.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// StorageConfig selects and locates the event store.
type StorageConfig struct {
	DataPath string
	Backend  string
}

// AuthConfig holds authentication configuration. The token key itself is
// loaded from the data directory by auth.LoadOrGenerateKey.
type AuthConfig struct {
	AdminEmails         []string
	AccessTokenDuration time.Duration
}

// EventsConfig holds calendar display defaults.
type EventsConfig struct {
	Location      *time.Location
	Timezone      string
	UpcomingLimit int
	DayCellCap    int
	WeekStart     time.Weekday
}

// ImportConfig holds bulk import settings. An empty InboxDir disables the
// inbox watcher.
type ImportConfig struct {
	InboxDir    string
	SystemEmail string
	Concurrency int
}

// NotificationsConfig holds broadcast retention settings.
type NotificationsConfig struct {
	PurgeSchedule string
	Retention     time.Duration
}

// BackupConfig holds archive settings. An empty Schedule disables
// scheduled backups; Keep bounds how many scheduled archives are retained.
// A non-empty S3Bucket copies every new archive to object storage.
type BackupConfig struct {
	Dir      string
	Schedule string
	Keep     int

	S3Bucket   string
	S3Region   string
	S3Endpoint string
	S3Prefix   string
}

// fileConfig is the YAML file layout. Every value is a string so it
// passes through the same parsing as flags and environment variables.
type fileConfig struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
	Server   struct {
		Port            string `yaml:"port"`
		ReadTimeout     string `yaml:"read_timeout"`
		WriteTimeout    string `yaml:"write_timeout"`
		IdleTimeout     string `yaml:"idle_timeout"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
		CORSOrigins     string `yaml:"cors_origins"`
	} `yaml:"server"`
	Storage struct {
		DataPath string `yaml:"data_path"`
		Backend  string `yaml:"backend"`
	} `yaml:"storage"`
	Auth struct {
		AccessTokenDuration string `yaml:"access_token_duration"`
		AdminEmails         string `yaml:"admin_emails"`
	} `yaml:"auth"`
	Events struct {
		Timezone      string `yaml:"timezone"`
		UpcomingLimit string `yaml:"upcoming_limit"`
		DayCellCap    string `yaml:"day_cell_cap"`
		WeekStart     string `yaml:"week_start"`
	} `yaml:"events"`
	Import struct {
		Concurrency string `yaml:"concurrency"`
		InboxDir    string `yaml:"inbox_dir"`
		SystemEmail string `yaml:"system_email"`
	} `yaml:"import"`
	Notifications struct {
		Retention     string `yaml:"retention"`
		PurgeSchedule string `yaml:"purge_schedule"`
	} `yaml:"notifications"`
	Backup struct {
		Dir        string `yaml:"dir"`
		Schedule   string `yaml:"schedule"`
		Keep       string `yaml:"keep"`
		S3Bucket   string `yaml:"s3_bucket"`
		S3Region   string `yaml:"s3_region"`
		S3Endpoint string `yaml:"s3_endpoint"`
		S3Prefix   string `yaml:"s3_prefix"`
	} `yaml:"backup"`
}

// LoadConfig loads configuration from os.Args.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load resolves each value with this precedence:
//  1. Command-line flags (highest priority).
//  2. Environment variables.
//  3. .env file.
//  4. YAML config file (-config or CONFIG_FILE).
//  5. Default values (lowest priority).
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("calendard", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	envFile := fs.String("env-file", ".env", "Path to .env file")
	configFile := fs.String("config", "", "Path to YAML config file")

	port := fs.String("port", "", "Server port (default: 8080)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	shutdownTimeout := fs.String("shutdown-timeout", "", "Graceful shutdown timeout (default: 30s)")
	corsOrigins := fs.String("cors-origins", "", "Comma-separated allowed CORS origins (default: *)")

	dataPath := fs.String("data-path", "", "Directory for the database, search index and keys")
	backend := fs.String("storage-backend", "", "Event store backend: badger or sqlite (default: badger)")

	accessTokenDuration := fs.String("access-token-duration", "", "Access token lifetime (default: 24h)")
	adminEmails := fs.String("admin-emails", "", "Comma-separated emails that register as admins")

	timezone := fs.String("timezone", "", "Calendar time zone (default: Local)")
	upcomingLimit := fs.String("upcoming-limit", "", "Default number of upcoming events (default: 5)")
	dayCellCap := fs.String("day-cell-cap", "", "Events shown per calendar day cell (default: 3)")
	weekStart := fs.String("week-start", "", "First day of the week (default: sunday)")

	importConcurrency := fs.String("import-concurrency", "", "Concurrent writes per import (default: 4)")
	inboxDir := fs.String("import-inbox", "", "Directory watched for CSV/ICS files to import")
	systemEmail := fs.String("import-system-email", "", "Identity recorded on inbox imports")

	retention := fs.String("notification-retention", "", "How long notifications are kept (default: 720h)")
	purgeSchedule := fs.String("notification-purge-schedule", "", "Cron schedule for purging notifications")

	backupDir := fs.String("backup-dir", "", "Directory for backup archives (default: <data-path>/backups)")
	backupSchedule := fs.String("backup-schedule", "", "Cron schedule for automatic backups (default: disabled)")
	backupKeep := fs.String("backup-keep", "", "Scheduled backups to keep (default: 7)")
	s3Bucket := fs.String("backup-s3-bucket", "", "S3 bucket receiving a copy of each backup (default: disabled)")
	s3Region := fs.String("backup-s3-region", "", "S3 region (default: from the AWS environment)")
	s3Endpoint := fs.String("backup-s3-endpoint", "", "Custom S3 endpoint, e.g. MinIO; enables path-style addressing")
	s3Prefix := fs.String("backup-s3-prefix", "", "Key prefix for uploaded backups (default: backups/)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	var file fileConfig
	if path := getConfigValue(*configFile, "CONFIG_FILE", ""); path != "" {
		loaded, err := loadYAMLFile(path)
		if err != nil {
			return nil, err
		}
		file = *loaded
	}

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", cmp.Or(file.Env, "development")),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", cmp.Or(file.LogLevel, "info")),
		},
		Server: ServerConfig{
			Port:        getConfigValue(*port, "SERVER_PORT", cmp.Or(file.Server.Port, "8080")),
			CORSOrigins: splitList(getConfigValue(*corsOrigins, "CORS_ORIGINS", cmp.Or(file.Server.CORSOrigins, "*"))),
		},
		Storage: StorageConfig{
			DataPath: getConfigValue(*dataPath, "DATA_PATH", file.Storage.DataPath),
			Backend:  strings.ToLower(getConfigValue(*backend, "STORAGE_BACKEND", cmp.Or(file.Storage.Backend, BackendBadger))),
		},
		Auth: AuthConfig{
			AdminEmails: splitList(getConfigValue(*adminEmails, "ADMIN_EMAILS", file.Auth.AdminEmails)),
		},
		Events: EventsConfig{
			Timezone:      getConfigValue(*timezone, "TIMEZONE", cmp.Or(file.Events.Timezone, "Local")),
			UpcomingLimit: getIntConfigValue(*upcomingLimit, "UPCOMING_LIMIT", file.Events.UpcomingLimit, 5),
			DayCellCap:    getIntConfigValue(*dayCellCap, "DAY_CELL_CAP", file.Events.DayCellCap, 3),
		},
		Import: ImportConfig{
			Concurrency: getIntConfigValue(*importConcurrency, "IMPORT_CONCURRENCY", file.Import.Concurrency, 4),
			InboxDir:    getConfigValue(*inboxDir, "IMPORT_INBOX_DIR", file.Import.InboxDir),
			SystemEmail: getConfigValue(*systemEmail, "IMPORT_SYSTEM_EMAIL", cmp.Or(file.Import.SystemEmail, "importer@localhost")),
		},
		Notifications: NotificationsConfig{
			PurgeSchedule: getConfigValue(*purgeSchedule, "NOTIFICATION_PURGE_SCHEDULE", cmp.Or(file.Notifications.PurgeSchedule, "0 3 * * *")),
		},
		Backup: BackupConfig{
			Dir:      getConfigValue(*backupDir, "BACKUP_DIR", file.Backup.Dir),
			Schedule: getConfigValue(*backupSchedule, "BACKUP_SCHEDULE", file.Backup.Schedule),
			Keep:     getIntConfigValue(*backupKeep, "BACKUP_KEEP", file.Backup.Keep, 7),

			S3Bucket:   getConfigValue(*s3Bucket, "BACKUP_S3_BUCKET", file.Backup.S3Bucket),
			S3Region:   getConfigValue(*s3Region, "BACKUP_S3_REGION", file.Backup.S3Region),
			S3Endpoint: getConfigValue(*s3Endpoint, "BACKUP_S3_ENDPOINT", file.Backup.S3Endpoint),
			S3Prefix:   getConfigValue(*s3Prefix, "BACKUP_S3_PREFIX", cmp.Or(file.Backup.S3Prefix, "backups/")),
		},
	}

	durations := []struct {
		dst      *time.Duration
		flag     string
		env      string
		file     string
		fallback string
	}{
		{&cfg.Server.ReadTimeout, *readTimeout, "SERVER_READ_TIMEOUT", file.Server.ReadTimeout, "15s"},
		{&cfg.Server.WriteTimeout, *writeTimeout, "SERVER_WRITE_TIMEOUT", file.Server.WriteTimeout, "15s"},
		{&cfg.Server.IdleTimeout, *idleTimeout, "SERVER_IDLE_TIMEOUT", file.Server.IdleTimeout, "60s"},
		{&cfg.Server.ShutdownTimeout, *shutdownTimeout, "SERVER_SHUTDOWN_TIMEOUT", file.Server.ShutdownTimeout, "30s"},
		{&cfg.Auth.AccessTokenDuration, *accessTokenDuration, "ACCESS_TOKEN_DURATION", file.Auth.AccessTokenDuration, "24h"},
		{&cfg.Notifications.Retention, *retention, "NOTIFICATION_RETENTION", file.Notifications.Retention, "720h"},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flag, d.env, cmp.Or(d.file, d.fallback))
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.env, raw, err)
		}
		*d.dst = parsed
	}

	wsRaw := getConfigValue(*weekStart, "WEEK_START", cmp.Or(file.Events.WeekStart, "sunday"))
	ws, err := ParseWeekday(wsRaw)
	if err != nil {
		return nil, err
	}
	cfg.Events.WeekStart = ws

	loc, err := time.LoadLocation(cfg.Events.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Events.Timezone, err)
	}
	cfg.Events.Location = loc

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}
	validEnvs := map[string]bool{"development": true, "staging": true, "production": true}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Storage.DataPath == "" {
		return errors.New("data path cannot be empty after expansion")
	}
	if c.Storage.Backend != BackendBadger && c.Storage.Backend != BackendSQLite {
		return fmt.Errorf("invalid storage backend: %s (must be badger or sqlite)", c.Storage.Backend)
	}

	if c.Auth.AccessTokenDuration <= 0 {
		return errors.New("access token duration must be positive")
	}
	if c.Events.UpcomingLimit <= 0 || c.Events.DayCellCap <= 0 {
		return errors.New("upcoming limit and day cell cap must be positive")
	}
	if c.Import.Concurrency <= 0 {
		return errors.New("import concurrency must be positive")
	}
	if c.Notifications.Retention < 0 {
		return errors.New("notification retention cannot be negative")
	}
	if c.Backup.Keep < 0 {
		return errors.New("backup keep cannot be negative")
	}
	return nil
}

// IsProduction reports whether the server runs in production.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// ParseWeekday parses an English weekday name or its three-letter
// abbreviation, ignoring case.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid week start %q", s)
}

func (c *Config) expandPaths() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	c.Storage.DataPath, err = expandPath(c.Storage.DataPath, filepath.Join(homeDir, ".calendar-server"))
	if err != nil {
		return fmt.Errorf("invalid data path: %w", err)
	}
	c.Backup.Dir, err = expandPath(c.Backup.Dir, filepath.Join(c.Storage.DataPath, "backups"))
	if err != nil {
		return fmt.Errorf("invalid backup path: %w", err)
	}
	if c.Import.InboxDir != "" {
		c.Import.InboxDir, err = expandPath(c.Import.InboxDir, "")
		if err != nil {
			return fmt.Errorf("invalid inbox path: %w", err)
		}
	}
	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty, defaultPath is returned unchanged.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}
	if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = abs
	}
	return filepath.Clean(path), nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getIntConfigValue returns an int from flag, env var, file value, or
// default. Unparseable values fall back to the default.
func getIntConfigValue(flagValue, envKey, fileValue string, defaultValue int) int {
	raw := getConfigValue(flagValue, envKey, fileValue)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return defaultValue
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func loadYAMLFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- config path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return &fc, nil
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Real environment variables win over the file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}
