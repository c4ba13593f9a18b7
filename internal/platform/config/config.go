package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full process configuration, read once at startup and treated
// as immutable afterwards.
type Config struct {
	Server    Server
	Log       Log
	Smartcard Smartcard
	Directory Directory
	Redis     RedisConfig
	Postgres  Postgres
	Audit     Audit
	RateLimit RateLimit
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr        string
	Environment string
	// TrustedProxies are the addresses or CIDR ranges whose X-Forwarded-For
	// and X-Real-IP headers name the client. Empty trusts nobody.
	TrustedProxies []string
}

// Log controls the slog handler built in platform/logger.
type Log struct {
	Level  string // debug, info, warn, error
	Format string // json or text
}

// Smartcard configures the PKCS#11 command line tool used to talk to the reader.
type Smartcard struct {
	Tool           string
	Module         string // optional PKCS#11 module passed as --module
	CommandTimeout time.Duration
	MaxOutput      int64
	MaxConcurrent  int64
}

// Directory holds the service account used for rank lookups. All four of URL,
// BaseDN, Username and Password must be set or the directory client is disabled.
type Directory struct {
	URL                string
	BaseDN             string
	Username           string
	Password           string
	Timeout            time.Duration
	InsecureSkipVerify bool
	// BreakerThreshold consecutive unreachable lookups open the circuit;
	// while open, one trial lookup is let through per BreakerCooldown.
	BreakerThreshold   int
	BreakerCooldown    time.Duration
}

// Configured reports whether every required directory value is present.
func (d Directory) Configured() bool {
	return d.URL != "" && d.BaseDN != "" && d.Username != "" && d.Password != ""
}

// RedisConfig configures the optional audit stream sink.
type RedisConfig struct {
	URL          string
	Stream       string
	MaxLen       int64
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Postgres configures the optional audit table sink. When set it takes
// precedence over Redis.
type Postgres struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// Audit controls the resolution audit trail.
type Audit struct {
	// HashKey keys the BLAKE2b digest that replaces the card UID in events.
	HashKey   string
	QueueSize int
}

// RateLimit bounds how often a single client may trigger a card read.
type RateLimit struct {
	RequestsPerSecond float64
	Burst             int
	Disabled          bool
}

const (
	DefaultAddr           = ":3001"
	DefaultTool           = "pkcs11-tool"
	DefaultCommandTimeout = 15 * time.Second
	DefaultMaxOutput      = 10 * 1024 * 1024
	DefaultMaxConcurrent  = 2
	DefaultDirTimeout     = 5 * time.Second
	DefaultDirBreaker     = 3
	DefaultDirCooldown    = 30 * time.Second
	DefaultAuditStream    = "mfr:audit"
	DefaultAuditMaxLen    = 10000
	DefaultAuditQueue     = 256
)

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:           serverAddr(),
			Environment:    getEnvString("MFR_ENV", "development"),
			TrustedProxies: getEnvList("TRUSTED_PROXIES"),
		},
		Log: Log{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
		},
		Smartcard: Smartcard{
			Tool:           getEnvString("SMARTCARD_TOOL", DefaultTool),
			Module:         os.Getenv("SMARTCARD_PKCS11_MODULE"),
			CommandTimeout: getEnvDuration("SMARTCARD_COMMAND_TIMEOUT", DefaultCommandTimeout),
			MaxOutput:      getEnvInt64("SMARTCARD_MAX_OUTPUT", DefaultMaxOutput),
			MaxConcurrent:  getEnvInt64("SMARTCARD_MAX_CONCURRENT", DefaultMaxConcurrent),
		},
		Directory: Directory{
			URL:                firstEnv("DIRECTORY_URL", "AD_URL"),
			BaseDN:             firstEnv("DIRECTORY_BASE_DN", "AD_BASE_DN"),
			Username:           firstEnv("DIRECTORY_USERNAME", "AD_USERNAME"),
			Password:           firstEnv("DIRECTORY_PASSWORD", "AD_PASSWORD"),
			Timeout:            getEnvDuration("DIRECTORY_TIMEOUT", DefaultDirTimeout),
			InsecureSkipVerify: getEnvBool("DIRECTORY_INSECURE_SKIP_VERIFY", false),
			BreakerThreshold:   int(getEnvInt64("DIRECTORY_BREAKER_THRESHOLD", DefaultDirBreaker)),
			BreakerCooldown:    getEnvDuration("DIRECTORY_BREAKER_COOLDOWN", DefaultDirCooldown),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			Stream:       getEnvString("AUDIT_STREAM", DefaultAuditStream),
			MaxLen:       getEnvInt64("AUDIT_STREAM_MAXLEN", DefaultAuditMaxLen),
			PoolSize:     int(getEnvInt64("REDIS_POOL_SIZE", 10)),
			MinIdleConns: int(getEnvInt64("REDIS_MIN_IDLE_CONNS", 1)),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: Postgres{
			URL:             os.Getenv("AUDIT_DATABASE_URL"),
			MaxOpenConns:    int(getEnvInt64("AUDIT_DB_MAX_OPEN_CONNS", 4)),
			MaxIdleConns:    int(getEnvInt64("AUDIT_DB_MAX_IDLE_CONNS", 2)),
			ConnMaxLifetime: getEnvDuration("AUDIT_DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnectTimeout:  getEnvDuration("AUDIT_DB_CONNECT_TIMEOUT", 5*time.Second),
		},
		Audit: Audit{
			HashKey:   os.Getenv("AUDIT_HASH_KEY"),
			QueueSize: int(getEnvInt64("AUDIT_QUEUE_SIZE", DefaultAuditQueue)),
		},
		RateLimit: RateLimit{
			RequestsPerSecond: getEnvFloat("RATE_LIMIT_RPS", 1),
			Burst:             int(getEnvInt64("RATE_LIMIT_BURST", 5)),
			Disabled:          getEnvBool("DISABLE_RATE_LIMITING", false),
		},
	}
}

// serverAddr prefers MFR_ADDR and falls back to the bare PORT variable the
// frontend proxy has always set.
func serverAddr() string {
	if addr := os.Getenv("MFR_ADDR"); addr != "" {
		return addr
	}
	if port := os.Getenv("PORT"); port != "" {
		return ":" + strings.TrimPrefix(port, ":")
	}
	return DefaultAddr
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}
