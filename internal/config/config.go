package config

import (
	"context"
	"fmt"
	"net"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Server    ServerConfig    `env:",prefix=SERVER_"`
	Postgres  PostgresConfig  `env:",prefix=POSTGRES_"`
	Redis     RedisConfig     `env:",prefix=REDIS_"`
	JWT       JWTConfig       `env:",prefix=JWT_"`
	Security  SecurityConfig  `env:",prefix="`
	CORS      CORSConfig      `env:",prefix=CORS_"`
	Cookie    CookieConfig    `env:",prefix=COOKIE_"`
	OAuth     OAuthConfig     `env:",prefix=OAUTH_"`
	Bootstrap BootstrapConfig `env:",prefix=BOOTSTRAP_"`
	Env       string          `env:"ENV,default=development"`

	// FrontendURL is the base for links sent by email (reset, verification).
	FrontendURL string `env:"FRONTEND_URL,default=http://localhost:3000"`
}

type ServerConfig struct {
	Port         string   `env:"PORT,default=8080"`
	Host         string   `env:"HOST,default=0.0.0.0"`
	ReadTimeout  Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout Duration `env:"WRITE_TIMEOUT,default=15s"`
	// TrustedProxies are the only peers whose X-Forwarded-For is honoured
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

type PostgresConfig struct {
	Host           string `env:"HOST,default=localhost"`
	Port           string `env:"PORT,default=5432"`
	User           string `env:"USER,default=interview_auth"`
	Password       string `env:"PASSWORD,default=interview_auth_password"`
	DBName         string `env:"DB,default=interview_prep"`
	SSLMode        string `env:"SSLMODE,default=disable"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START,default=true"`
}

type RedisConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=6379"`
	Password string `env:"PASSWORD,default="`
	DB       int    `env:"DB,default=0"`
}

type JWTConfig struct {
	Secret             string   `env:"SECRET,required"`
	AccessTokenExpiry  Duration `env:"ACCESS_TOKEN_EXPIRY,default=30m"`
	RefreshTokenExpiry Duration `env:"REFRESH_TOKEN_EXPIRY,default=30d"`
}

type SecurityConfig struct {
	BCryptCost        int      `env:"BCRYPT_COST,default=12"`
	RateLimitRequests int      `env:"RATE_LIMIT_REQUESTS,default=10"`
	RateLimitWindow   Duration `env:"RATE_LIMIT_WINDOW,default=1m"`

	LoginRateLimit  int      `env:"LOGIN_RATE_LIMIT,default=5"`
	LoginRateWindow Duration `env:"LOGIN_RATE_WINDOW,default=1m"`

	MaxFailedLogins   int      `env:"MAX_FAILED_LOGINS,default=5"`
	LockoutDuration   Duration `env:"LOCKOUT_DURATION,default=30m"`
	FailedLoginWindow Duration `env:"FAILED_LOGIN_WINDOW,default=1h"`

	PasswordResetTTL     Duration `env:"PASSWORD_RESET_TTL,default=1h"`
	EmailVerificationTTL Duration `env:"EMAIL_VERIFICATION_TTL,default=48h"`
	OAuthStateTTL        Duration `env:"OAUTH_STATE_TTL,default=10m"`

	ThrottleRPS   float64 `env:"THROTTLE_RPS,default=20"`
	ThrottleBurst int     `env:"THROTTLE_BURST,default=40"`

	// FallbackCapacity bounds the in-process store used while Redis is unreachable.
	FallbackCapacity int `env:"KV_FALLBACK_CAPACITY,default=100000"`
}

type CORSConfig struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`
	AllowedMethods []string `env:"ALLOWED_METHODS,default=GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders []string `env:"ALLOWED_HEADERS,default=Content-Type,Authorization,X-CSRF-Token"`
}

type CookieConfig struct {
	Secure bool   `env:"SECURE,default=true"`
	Domain string `env:"DOMAIN,default="`
}

// BootstrapConfig names the super admin created on a deployment without one
type BootstrapConfig struct {
	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
}

type OAuthConfig struct {
	Google      OAuthProviderConfig `env:",prefix=GOOGLE_"`
	Facebook    OAuthProviderConfig `env:",prefix=FACEBOOK_"`
	GitHub      OAuthProviderConfig `env:",prefix=GITHUB_"`
	HTTPTimeout Duration            `env:"HTTP_TIMEOUT,default=10s"`
}

type OAuthProviderConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"`
}

// Enabled reports whether the provider has credentials configured
func (o OAuthProviderConfig) Enabled() bool {
	return o.ClientID != "" && o.ClientSecret != ""
}

// DSN returns PostgreSQL connection string
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

// Address returns Redis connection address
func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	var config Config

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadWithDefaults loads configuration with default context
func LoadWithDefaults() (*Config, error) {
	return Load(context.Background())
}

func (c *Config) validate() error {
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}

	if c.Security.LoginRateLimit <= 0 || c.Security.MaxFailedLogins <= 0 {
		return fmt.Errorf("LOGIN_RATE_LIMIT and MAX_FAILED_LOGINS must be positive")
	}

	if c.Security.FallbackCapacity <= 0 {
		return fmt.Errorf("KV_FALLBACK_CAPACITY must be positive")
	}

	if c.JWT.AccessTokenExpiry.Duration <= 0 || c.JWT.RefreshTokenExpiry.Duration <= 0 {
		return fmt.Errorf("token expiries must be positive")
	}

	if (c.Bootstrap.AdminEmail == "") != (c.Bootstrap.AdminPassword == "") {
		return fmt.Errorf("BOOTSTRAP_ADMIN_EMAIL and BOOTSTRAP_ADMIN_PASSWORD must be set together")
	}

	for _, proxy := range c.Server.TrustedProxies {
		if net.ParseIP(proxy) == nil {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return fmt.Errorf("SERVER_TRUSTED_PROXIES: %q is neither an IP nor a CIDR", proxy)
			}
		}
	}

	return nil
}
