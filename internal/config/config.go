package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	pkgcfg "github.com/Skotchmaster/notes_service/pkg/config"
	pkgdb "github.com/Skotchmaster/notes_service/pkg/db"
)

const DefaultGoogleCertsURL = "https://www.googleapis.com/oauth2/v3/certs"

type Config struct {
	ServiceName string
	Env         string
	LogLevel    string

	Port int

	DatabaseURL  string
	Pool         pkgdb.PoolOptions
	QueryTimeout time.Duration

	JWTAccessSecret  []byte
	JWTRefreshSecret []byte

	GoogleClientID string
	GoogleCertsURL string

	FrontendURL string
	// TrustProxy keys clients by X-Forwarded-For when the peer is a private
	// or loopback address.
	TrustProxy  bool

	KafkaBrokers []string
}

func (c Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// Load reads the process environment. DATABASE_URL may replace the PG_* set.
// The returned error lists every required variable that was not set.
func Load() (Config, error) {
	var req pkgcfg.Required

	cfg := Config{
		ServiceName:    pkgcfg.EnvDefault("SERVICE_NAME", "notes"),
		Env:            pkgcfg.EnvDefault("APP_ENV", pkgcfg.EnvDefault("NODE_ENV", "development")),
		LogLevel:       pkgcfg.EnvDefault("LOG_LEVEL", "info"),
		Pool:           pkgdb.DefaultPool(),
		QueryTimeout:   pkgcfg.EnvDurationDefault("DB_QUERY_TIMEOUT", 5*time.Second),
		KafkaBrokers:   pkgcfg.CSV(os.Getenv("KAFKA_BROKERS")),
		GoogleCertsURL: pkgcfg.EnvDefault("GOOGLE_CERTS_URL", DefaultGoogleCertsURL),
		TrustProxy:     pkgcfg.EnvBool("TRUST_PROXY"),
	}
	cfg.Pool.MaxOpenConns = pkgcfg.EnvIntDefault("DB_MAX_OPEN_CONNS", cfg.Pool.MaxOpenConns)
	cfg.Pool.MaxIdleConns = pkgcfg.EnvIntDefault("DB_MAX_IDLE_CONNS", cfg.Pool.MaxIdleConns)

	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		cfg.DatabaseURL = dsn
	} else {
		user := req.Get("PG_USER")
		host := req.Get("PG_HOST")
		name := req.Get("PG_DATABASE")
		password := req.Get("PG_PASSWORD")
		port := req.Get("PG_PORT")
		cfg.DatabaseURL = buildDSN(user, password, host, port, name)
	}

	portStr := req.Get("PORT")
	cfg.JWTAccessSecret = []byte(req.Get("JWT_SECRET"))
	cfg.JWTRefreshSecret = []byte(req.Get("REFRESH_TOKEN_SECRET"))
	cfg.GoogleClientID = req.Get("CLIENT_ID")
	cfg.FrontendURL = req.Get("FRONTEND_URL")

	if err := req.Err(); err != nil {
		return Config{}, err
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Config{}, fmt.Errorf("invalid PORT %q", portStr)
	}
	cfg.Port = port

	return cfg, nil
}

func buildDSN(user, password, host, port, name string) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, password),
		Host:     host + ":" + port,
		Path:     "/" + name,
		RawQuery: "sslmode=" + pkgcfg.EnvDefault("PG_SSLMODE", "disable"),
	}
	return u.String()
}
