package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values come from env (optionally pre-seeded from a .env file by main).
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Upstream UpstreamConfig
	Pipeline PipelineConfig
	AMQP     AMQPConfig
}

type AppConfig struct {
	Env  string
	Port int

	// UploadDir is where multipart audio uploads are written. The
	// transcription service must see the same directory.
	UploadDir      string
	UploadMaxBytes int64
	CORSOrigins    []string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string

	// ConnectWindow bounds startup retries while the database comes up.
	ConnectWindow time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

// AuthConfig enables bearer auth on /v1 when JWTSecret is set.
type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type UpstreamConfig struct {
	TranscriptionURL     string
	ScoringURL           string
	TranscriptionTimeout time.Duration
	ScoringTimeout       time.Duration
}

type PipelineConfig struct {
	MaxInFlight int
	InFlightTTL time.Duration
}

// AMQPConfig is optional; outcome events are dropped when URL is empty.
type AMQPConfig struct {
	URL      string
	Exchange string
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.UploadDir = strings.TrimSpace(os.Getenv("UPLOAD_DIR"))
	{
		n, err := optionalInt("UPLOAD_MAX_BYTES")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.UploadMaxBytes = int64(n)
	}
	c.App.CORSOrigins = splitList(os.Getenv("CORS_ORIGINS"))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	c.DB.ConnectWindow, parseErrs = durationInto(parseErrs, "DB_CONNECT_WINDOW")

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL, parseErrs = durationInto(parseErrs, "JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL, parseErrs = durationInto(parseErrs, "JWT_REFRESH_TTL")

	c.Upstream.TranscriptionURL = strings.TrimRight(strings.TrimSpace(os.Getenv("STT_SERVICE_URL")), "/")
	c.Upstream.ScoringURL = strings.TrimRight(strings.TrimSpace(os.Getenv("QA_SERVICE_URL")), "/")
	c.Upstream.TranscriptionTimeout, parseErrs = durationInto(parseErrs, "STT_TIMEOUT")
	c.Upstream.ScoringTimeout, parseErrs = durationInto(parseErrs, "QA_TIMEOUT")

	{
		n, err := optionalInt("PIPELINE_MAX_IN_FLIGHT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Pipeline.MaxInFlight = n
	}
	c.Pipeline.InFlightTTL, parseErrs = durationInto(parseErrs, "PIPELINE_IN_FLIGHT_TTL")

	c.AMQP.URL = strings.TrimSpace(os.Getenv("AMQP_URL"))
	c.AMQP.Exchange = strings.TrimSpace(os.Getenv("AMQP_EXCHANGE"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate fills defaults in place and reports every remaining problem.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.UploadDir == "" {
		c.App.UploadDir = "uploads"
	}
	if c.App.UploadMaxBytes < 0 {
		errs = append(errs, fmt.Errorf("UPLOAD_MAX_BYTES must not be negative, got %d", c.App.UploadMaxBytes))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	if c.DB.ConnectWindow <= 0 {
		c.DB.ConnectWindow = 30 * time.Second
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.IsProduction() {
		if c.Auth.JWTSecret == "" {
			errs = append(errs, errors.New("JWT_SECRET is required in production"))
		}
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Upstream.TranscriptionURL == "" {
		errs = append(errs, errors.New("STT_SERVICE_URL is required"))
	}
	if c.Upstream.ScoringURL == "" {
		errs = append(errs, errors.New("QA_SERVICE_URL is required"))
	}
	if c.Upstream.TranscriptionTimeout <= 0 {
		c.Upstream.TranscriptionTimeout = 5 * time.Minute
	}
	if c.Upstream.ScoringTimeout <= 0 {
		c.Upstream.ScoringTimeout = 30 * time.Second
	}
	if c.Upstream.TranscriptionTimeout <= c.Upstream.ScoringTimeout {
		errs = append(errs, errors.New("STT_TIMEOUT must be greater than QA_TIMEOUT"))
	}

	if c.Pipeline.MaxInFlight < 0 {
		errs = append(errs, fmt.Errorf("PIPELINE_MAX_IN_FLIGHT must not be negative, got %d", c.Pipeline.MaxInFlight))
	} else if c.Pipeline.MaxInFlight == 0 {
		c.Pipeline.MaxInFlight = 4
	}
	if c.Pipeline.InFlightTTL <= 0 {
		c.Pipeline.InFlightTTL = 10 * time.Minute
	}
	// The cap counter must outlive a full run or it undercounts in-flight work.
	if c.Pipeline.InFlightTTL <= c.Upstream.TranscriptionTimeout+c.Upstream.ScoringTimeout {
		errs = append(errs, errors.New("PIPELINE_IN_FLIGHT_TTL must be greater than STT_TIMEOUT plus QA_TIMEOUT"))
	}

	if c.AMQP.URL != "" && c.AMQP.Exchange == "" {
		c.AMQP.Exchange = "callqa.events"
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) AuthEnabled() bool {
	return c.Auth.JWTSecret != ""
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// WriteTimeout for the HTTP server. A synchronous upload holds its response
// for both upstream calls.
func (c Config) WriteTimeout() time.Duration {
	return c.Upstream.TranscriptionTimeout + c.Upstream.ScoringTimeout + 30*time.Second
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) (int, error) {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return 0, nil
	}
	return mustInt(key)
}

// durationInto parses an optional duration; zero means "use the default".
func durationInto(errs []error, key string) (time.Duration, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be a duration, got %q", key, v))
	}
	return d, errs
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
