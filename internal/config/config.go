package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by BOTDESK_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("BOTDESK_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Missing files are fine; the process environment still applies.
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func getInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func getDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func ServerPort() int {
	return getInt("SERVER_PORT", 8080)
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// DatabaseMaxConns returns the pgx pool size. Defaults to 20.
func DatabaseMaxConns() int32 {
	return int32(getInt("DATABASE_MAX_CONNS", 20))
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	return getString("LOG_LEVEL", "info")
}

// RateLimitRPS returns per-IP requests per second. Defaults to 100.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the per-IP burst size. Defaults to 20.
func RateLimitBurst() int {
	return getInt("RATE_LIMIT_BURST", 20)
}

// TenantRateLimitRPS returns per-tenant requests per second. Defaults to 20.
func TenantRateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("TENANT_RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 20
	}
	return rps
}

func TenantRateLimitBurst() int {
	return getInt("TENANT_RATE_LIMIT_BURST", 40)
}

// MaxRequestBytes caps request bodies. Defaults to 10 MiB.
func MaxRequestBytes() int64 {
	return int64(getInt("MAX_REQUEST_BYTES", 10<<20))
}

// CORSAllowedOrigins returns the allowed origins. Defaults to "*".
func CORSAllowedOrigins() []string {
	raw := getString("CORS_ALLOWED_ORIGINS", "*")
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// JWTSecret returns the HMAC key for dashboard tokens. Empty disables JWT login.
func JWTSecret() string {
	return os.Getenv("JWT_SECRET")
}

func JWTTTL() time.Duration {
	return getDuration("JWT_TTL", 24*time.Hour)
}

// AdminName and AdminPassword bootstrap an admin tenant at startup when both are set.
func AdminName() string {
	return os.Getenv("ADMIN_NAME")
}

func AdminPassword() string {
	return os.Getenv("ADMIN_PASSWORD")
}

func DefaultDailyLimit() int64 {
	return int64(getInt("DEFAULT_DAILY_LIMIT", 200))
}

func DefaultMonthlyLimit() int64 {
	return int64(getInt("DEFAULT_MONTHLY_LIMIT", 5000))
}

// QuotaLocation returns the zone that defines quota day and month boundaries.
// Defaults to the process local zone.
func QuotaLocation() *time.Location {
	name := os.Getenv("QUOTA_TIMEZONE")
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}

func QuotaRolloverInterval() time.Duration {
	return getDuration("QUOTA_ROLLOVER_INTERVAL", time.Minute)
}

// PairingTTL bounds how long a QR pairing code is served. Defaults to 60s.
func PairingTTL() time.Duration {
	return getDuration("PAIRING_TTL", 60*time.Second)
}

func ConnectMaxRetries() int {
	return getInt("CONNECT_MAX_RETRIES", 3)
}

func ConnectBackoffInitial() time.Duration {
	return getDuration("CONNECT_BACKOFF_INITIAL", time.Second)
}

func ConnectBackoffMax() time.Duration {
	return getDuration("CONNECT_BACKOFF_MAX", 15*time.Second)
}

func SessionStopTimeout() time.Duration {
	return getDuration("SESSION_STOP_TIMEOUT", 5*time.Second)
}

// SessionResumeOnStart restarts sessions that were connected before shutdown.
// Defaults to true.
func SessionResumeOnStart() bool {
	return getBool("SESSION_RESUME_ON_START", true)
}

// ViewTableRowCap limits rows rendered by a view_table reply. Defaults to 10.
func ViewTableRowCap() int {
	n := getInt("VIEW_TABLE_ROW_CAP", 10)
	if n == 0 {
		return 10
	}
	return n
}

func SearchResultCap() int {
	n := getInt("SEARCH_RESULT_CAP", 5)
	if n == 0 {
		return 5
	}
	return n
}

func MenuCacheTTL() time.Duration {
	return getDuration("MENU_CACHE_TTL", 5*time.Minute)
}

// ImportMaxBytes caps uploaded CSV files. Defaults to 10 MiB.
func ImportMaxBytes() int64 {
	return int64(getInt("IMPORT_MAX_BYTES", 10<<20))
}

// WhatsAppEnabled turns on the WhatsApp channel. Its device store lives in
// the same database. Defaults to true.
func WhatsAppEnabled() bool {
	return getBool("WHATSAPP_ENABLED", true)
}

func TelegramEnabled() bool {
	return getBool("TELEGRAM_ENABLED", true)
}

// TelegramAPIURL overrides the Bot API endpoint, e.g. for a local bot server.
func TelegramAPIURL() string {
	return os.Getenv("TELEGRAM_API_URL")
}

func getBool(key string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}
