package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration, read once at startup and
// shared read-only afterwards.
type Config struct {
	APIHost    string
	APIPort    int
	StaticHost string
	StaticPort int

	Domain     string
	Production bool

	Invite       string
	CookieName   string
	CookieSecret []byte // exactly 64 bytes: 32 for signing, 32 for encryption

	PgHost     string
	PgPort     int
	PgUser     string
	PgPass     string
	PgDatabase string

	RedisHost string
	RedisPort int
	RedisPass string
	RedisDB   int

	EmailHost    string
	EmailPort    int
	EmailName    string
	EmailAddress string
	EmailPass    string

	LocationLogs           string
	LocationPublic         string
	LocationPhotoOriginal  string
	LocationPhotoConverted string
	LocationWatermark      string
	LocationBackup         string
	LocationRedis          string
	LocationStatic         string
	LocationTemp           string

	BackupPass string
}

// Load reads configuration from environment variables. Every variable is
// mandatory; the first missing or malformed one aborts the load.
func Load() (*Config, error) {
	c := &Config{}
	var err error

	str := func(key string, dst *string) {
		if err != nil {
			return
		}
		v := os.Getenv(key)
		if v == "" {
			err = fmt.Errorf("config: missing env %s", key)
			return
		}
		*dst = v
	}
	num := func(key string, dst *int) {
		if err != nil {
			return
		}
		var raw string
		str(key, &raw)
		if err != nil {
			return
		}
		n, convErr := strconv.Atoi(raw)
		if convErr != nil {
			err = fmt.Errorf("config: env %s is not a number: %q", key, raw)
			return
		}
		*dst = n
	}

	str("API_HOST", &c.APIHost)
	num("API_PORT", &c.APIPort)
	str("STATIC_HOST", &c.StaticHost)
	num("STATIC_PORT", &c.StaticPort)
	str("DOMAIN", &c.Domain)
	str("INVITE", &c.Invite)
	str("COOKIE_NAME", &c.CookieName)

	var cookieSecret string
	str("COOKIE_SECRET", &cookieSecret)
	if err == nil {
		if len(cookieSecret) != 64 {
			return nil, fmt.Errorf("config: COOKIE_SECRET must be exactly 64 bytes, got %d", len(cookieSecret))
		}
		c.CookieSecret = []byte(cookieSecret)
	}

	str("PG_HOST", &c.PgHost)
	num("PG_PORT", &c.PgPort)
	str("PG_USER", &c.PgUser)
	str("PG_PASS", &c.PgPass)
	str("PG_DATABASE", &c.PgDatabase)

	str("REDIS_HOST", &c.RedisHost)
	num("REDIS_PORT", &c.RedisPort)
	num("REDIS_DB", &c.RedisDB)
	// Redis password may legitimately be empty in dev.
	if err == nil {
		c.RedisPass = os.Getenv("REDIS_PASS")
	}

	str("EMAIL_HOST", &c.EmailHost)
	num("EMAIL_PORT", &c.EmailPort)
	str("EMAIL_NAME", &c.EmailName)
	str("EMAIL_ADDRESS", &c.EmailAddress)
	str("EMAIL_PASS", &c.EmailPass)

	str("LOCATION_LOGS", &c.LocationLogs)
	str("LOCATION_PUBLIC", &c.LocationPublic)
	str("LOCATION_PHOTO_ORIGINAL", &c.LocationPhotoOriginal)
	str("LOCATION_PHOTO_CONVERTED", &c.LocationPhotoConverted)
	str("LOCATION_WATERMARK", &c.LocationWatermark)
	str("LOCATION_BACKUP", &c.LocationBackup)
	str("LOCATION_REDIS", &c.LocationRedis)
	str("LOCATION_STATIC", &c.LocationStatic)
	str("LOCATION_TEMP", &c.LocationTemp)

	str("BACKUP_GPG", &c.BackupPass)

	var production string
	str("PRODUCTION", &production)

	if err != nil {
		return nil, err
	}

	b, convErr := strconv.ParseBool(production)
	if convErr != nil {
		return nil, fmt.Errorf("config: env PRODUCTION is not a boolean: %q", production)
	}
	c.Production = b

	return c, nil
}

// PostgresDSN renders the pgx connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		c.PgUser, c.PgPass, c.PgHost, c.PgPort, c.PgDatabase)
}

// RedisAddr renders the host:port pair for go-redis.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}
