package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvKeys = []string{
	"ENV", "LOG_LEVEL", "CONFIG_FILE",
	"SERVER_PORT", "SERVER_READ_TIMEOUT", "SERVER_WRITE_TIMEOUT", "SERVER_IDLE_TIMEOUT", "SERVER_SHUTDOWN_TIMEOUT", "CORS_ORIGINS",
	"DATA_PATH", "STORAGE_BACKEND",
	"ACCESS_TOKEN_DURATION", "ADMIN_EMAILS",
	"TIMEZONE", "UPCOMING_LIMIT", "DAY_CELL_CAP", "WEEK_START",
	"IMPORT_CONCURRENCY", "IMPORT_INBOX_DIR", "IMPORT_SYSTEM_EMAIL",
	"NOTIFICATION_RETENTION", "NOTIFICATION_PURGE_SCHEDULE",
	"BACKUP_DIR", "BACKUP_SCHEDULE", "BACKUP_KEEP",
	"BACKUP_S3_BUCKET", "BACKUP_S3_REGION", "BACKUP_S3_ENDPOINT", "BACKUP_S3_PREFIX",
}

// clearEnv blanks every variable Load reads; t.Setenv restores them.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnvKeys {
		t.Setenv(key, "")
	}
}

func noEnvFile(t *testing.T) string {
	return "-env-file=" + filepath.Join(t.TempDir(), "missing.env")
}

func validConfig() *Config {
	return &Config{
		App:     AppConfig{Environment: "development"},
		Logger:  LoggerConfig{Level: "info"},
		Storage: StorageConfig{DataPath: "/some/path", Backend: BackendBadger},
		Auth:    AuthConfig{AccessTokenDuration: time.Hour},
		Events:  EventsConfig{UpcomingLimit: 5, DayCellCap: 3},
		Import:  ImportConfig{Concurrency: 1},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_AllEnvironments(t *testing.T) {
	tests := []struct {
		env   string
		valid bool
	}{
		{"development", true},
		{"staging", true},
		{"production", true},
		{"test", false},
		{"", false},
		{"DEVELOPMENT", false}, // case sensitive
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := validConfig()
			cfg.App.Environment = tt.env

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_AllLogLevels(t *testing.T) {
	tests := []struct {
		level string
		valid bool
	}{
		{"debug", true},
		{"info", true},
		{"warn", true},
		{"error", true},
		{"WARN", true},
		{"trace", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := validConfig()
			cfg.Logger.Level = tt.level

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := map[string]func(*Config){
		"empty data path":     func(c *Config) { c.Storage.DataPath = "" },
		"unknown backend":     func(c *Config) { c.Storage.Backend = "postgres" },
		"zero token lifetime": func(c *Config) { c.Auth.AccessTokenDuration = 0 },
		"zero upcoming limit": func(c *Config) { c.Events.UpcomingLimit = 0 },
		"zero concurrency":    func(c *Config) { c.Import.Concurrency = 0 },
		"negative retention":  func(c *Config) { c.Notifications.Retention = -time.Hour },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load([]string{noEnvFile(t)})
	require.NoError(t, err)

	homeDir, _ := os.UserHomeDir() //nolint:errcheck // Test setup
	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, filepath.Join(homeDir, ".calendar-server"), cfg.Storage.DataPath)
	assert.Equal(t, BackendBadger, cfg.Storage.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Auth.AccessTokenDuration)
	assert.Empty(t, cfg.Auth.AdminEmails)
	assert.Equal(t, time.Local, cfg.Events.Location)
	assert.Equal(t, 5, cfg.Events.UpcomingLimit)
	assert.Equal(t, 3, cfg.Events.DayCellCap)
	assert.Equal(t, time.Sunday, cfg.Events.WeekStart)
	assert.Equal(t, 4, cfg.Import.Concurrency)
	assert.Empty(t, cfg.Import.InboxDir)
	assert.Equal(t, 720*time.Hour, cfg.Notifications.Retention)
	assert.Equal(t, "0 3 * * *", cfg.Notifications.PurgeSchedule)
	assert.Equal(t, filepath.Join(homeDir, ".calendar-server", "backups"), cfg.Backup.Dir)
	assert.Empty(t, cfg.Backup.Schedule)
	assert.Equal(t, 7, cfg.Backup.Keep)
	assert.Empty(t, cfg.Backup.S3Bucket)
	assert.Equal(t, "backups/", cfg.Backup.S3Prefix)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Precedence(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	yamlFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(yamlFile, []byte(`
env: staging
log_level: warn
server:
  port: "9000"
  cors_origins: https://a.example, https://b.example
storage:
  backend: sqlite
  data_path: `+dir+`
events:
  timezone: Asia/Kolkata
  upcoming_limit: "7"
  week_start: monday
auth:
  admin_emails: root@example.com
`), 0o600))

	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("LOG_LEVEL=debug\nSERVER_PORT=7000\n"), 0o600))
	t.Setenv("SERVER_PORT", "6000")

	cfg, err := Load([]string{"-config", yamlFile, "-env-file", envFile, "-upcoming-limit", "9"})
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.App.Environment, "yaml over default")
	assert.Equal(t, "debug", cfg.Logger.Level, ".env over yaml")
	assert.Equal(t, "6000", cfg.Server.Port, "env over .env")
	assert.Equal(t, 9, cfg.Events.UpcomingLimit, "flag over yaml")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, dir, cfg.Storage.DataPath)
	assert.Equal(t, "Asia/Kolkata", cfg.Events.Location.String())
	assert.Equal(t, time.Monday, cfg.Events.WeekStart)
	assert.Equal(t, []string{"root@example.com"}, cfg.Auth.AdminEmails)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := map[string][]string{
		"timezone":   {"-timezone", "Mars/Olympus"},
		"week start": {"-week-start", "someday"},
		"duration":   {"-access-token-duration", "forever"},
		"backend":    {"-storage-backend", "postgres"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			_, err := Load(append(args, noEnvFile(t)))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	clearEnv(t)
	_, err := Load([]string{noEnvFile(t), "-config", filepath.Join(t.TempDir(), "nope.yaml")})
	assert.Error(t, err)
}

func TestParseWeekday(t *testing.T) {
	for in, want := range map[string]time.Weekday{
		"sunday": time.Sunday, "Mon": time.Monday, " SATURDAY ": time.Saturday, "wed": time.Wednesday,
	} {
		got, err := ParseWeekday(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseWeekday("funday")
	assert.Error(t, err)
}

func TestExpandPath(t *testing.T) {
	homeDir, _ := os.UserHomeDir() //nolint:errcheck // Test setup

	got, err := expandPath("", "/default")
	require.NoError(t, err)
	assert.Equal(t, "/default", got)

	got, err = expandPath("~/my-data", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(homeDir, "my-data"), got)

	got, err = expandPath("/absolute/path/to/data", "")
	require.NoError(t, err)
	assert.Equal(t, "/absolute/path/to/data", got)

	// Should be converted to absolute path.
	got, err = expandPath("relative/path", "")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
	assert.Contains(t, got, "relative/path")
}

func TestGetConfigValue_Precedence(t *testing.T) {
	assert.Equal(t, "flag-value", getConfigValue("flag-value", "TEST_ENV_KEY", "default-value"))

	t.Setenv("TEST_ENV_KEY", "env-value")
	assert.Equal(t, "env-value", getConfigValue("", "TEST_ENV_KEY", "default-value"))

	assert.Equal(t, "default-value", getConfigValue("", "NONEXISTENT_KEY", "default-value"))
}

func TestGetIntConfigValue(t *testing.T) {
	t.Setenv("TEST_INT_KEY", "")
	assert.Equal(t, 3, getIntConfigValue("3", "TEST_INT_KEY", "8", 1))
	assert.Equal(t, 8, getIntConfigValue("", "TEST_INT_KEY", "8", 1))
	assert.Equal(t, 1, getIntConfigValue("", "TEST_INT_KEY", "", 1))
	assert.Equal(t, 1, getIntConfigValue("many", "TEST_INT_KEY", "", 1))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b ,"))
	assert.Nil(t, splitList(""))
}

func TestLoadEnvFile_ValidFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	content := `# Test env file
ENV=staging
LOG_LEVEL=debug
# Comment line

QUOTED_VALUE="some value"
SINGLE_QUOTED='another value'
  KEY_WITH_SPACES  =  value with spaces  
`
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o644))

	for _, key := range []string{"ENV", "LOG_LEVEL", "QUOTED_VALUE", "SINGLE_QUOTED", "KEY_WITH_SPACES"} {
		t.Setenv(key, "")
	}

	require.NoError(t, loadEnvFile(envFile))

	assert.Equal(t, "staging", os.Getenv("ENV"))
	assert.Equal(t, "debug", os.Getenv("LOG_LEVEL"))
	assert.Equal(t, "some value", os.Getenv("QUOTED_VALUE"))
	assert.Equal(t, "another value", os.Getenv("SINGLE_QUOTED"))
	assert.Equal(t, "value with spaces", os.Getenv("KEY_WITH_SPACES"))
}

func TestLoadEnvFile_InvalidFormat(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	content := `VALID_KEY=valid_value
INVALID LINE WITHOUT EQUALS
`
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o644))
	t.Setenv("VALID_KEY", "")

	err := loadEnvFile(envFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestLoadEnvFile_NonExistentFile(t *testing.T) {
	assert.Error(t, loadEnvFile("/nonexistent/file/.env"))
}

func TestLoadEnvFile_ExistingEnvVarsNotOverwritten(t *testing.T) {
	t.Setenv("TEST_VAR", "original-value")

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(`TEST_VAR=new-value`), 0o644))

	require.NoError(t, loadEnvFile(envFile))
	assert.Equal(t, "original-value", os.Getenv("TEST_VAR"))
}
