// Package config loads and validates gateway configuration. It is the
// only place configuration-file parsing happens; every other package
// consumes a fully-resolved Config value.
package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

const (
	DefaultHTTPThreads        = 4
	DefaultPoolSizePerThread  = 10
	DefaultHTTPMaxRequestSize = 128 * 1024 * 1024
	DefaultVerbosity          = 4
	DefaultDatabase           = 0
)

// Config is the complete gateway configuration, mirroring the option set
// an operator would put in a JSON/YAML config file plus the ambient
// server/logging knobs every deployment needs.
type Config struct {
	RedisHost string `yaml:"redis_host" envconfig:"REDIS_HOST" default:"127.0.0.1"`
	RedisPort int    `yaml:"redis_port" envconfig:"REDIS_PORT" default:"6379"`

	HTTPHost string `yaml:"http_host" envconfig:"HTTP_HOST" default:"0.0.0.0"`
	HTTPPort int    `yaml:"http_port" envconfig:"HTTP_PORT" default:"7379" validate:"min=1,max=65535"`

	HTTPThreads       int `yaml:"http_threads" envconfig:"HTTP_THREADS" validate:"min=0"`
	LegacyThreads     int `yaml:"threads" envconfig:"THREADS" validate:"min=0"`
	Database          int `yaml:"database" envconfig:"DATABASE"`
	PoolSizePerThread int `yaml:"pool_size_per_thread" envconfig:"POOL_SIZE_PER_THREAD" validate:"min=0"`
	LegacyPoolSize    int `yaml:"pool_size" envconfig:"POOL_SIZE" validate:"min=0"`

	Websockets bool `yaml:"websockets" envconfig:"WEBSOCKETS"`

	SSL *SSLConfig `yaml:"ssl" envconfig:"-"`

	ACL []ACLConfig `yaml:"acl" envconfig:"-"`

	RedisAuth *RedisAuthConfig `yaml:"redis_auth" envconfig:"-"`

	HTTPMaxRequestSize int    `yaml:"http_max_request_size" envconfig:"HTTP_MAX_REQUEST_SIZE"`
	DefaultRoot        string `yaml:"default_root" envconfig:"DEFAULT_ROOT"`

	Verbosity int    `yaml:"verbosity" envconfig:"VERBOSITY"`
	Logfile   string `yaml:"logfile" envconfig:"LOGFILE"`
	// LogFsync is accepted for compatibility with the backend's own
	// config file shape but has no effect on this gateway's own logger:
	// it governs the backend's log fsync policy, not ours.
	LogFsync interface{} `yaml:"log_fsync" envconfig:"-"`

	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig bounds per-IP request throughput ahead of the
// command dispatch pipeline (ambient hardening; spec.md's Non-goals
// name neither rate limiting nor general hardening). RPS <= 0 disables
// the limiter entirely.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" envconfig:"RPS"`
	Burst int     `yaml:"burst" envconfig:"BURST" default:"20"`
}

// ServerConfig carries ambient HTTP server tuning that has no backend-
// protocol meaning (spec.md §5 Timeouts: "the HTTP layer may impose idle
// and header-read timeouts >= 30s").
type ServerConfig struct {
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
}

// LoggingConfig controls the slog handler (see internal/infrastructure).
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"stdout"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/gateway.log"`
}

// SSLConfig describes the backend TLS material. Loading the certificate
// bundle itself is an external collaborator's job (spec.md §1); the
// gateway reads only Enabled (to pick the scheme) and ServerNameOverride
// (as the TLS server name). The certificate and key fields are not read.
type SSLConfig struct {
	Enabled            bool   `yaml:"enabled"`
	CACertBundle       string `yaml:"ca_cert_bundle"`
	PathToCerts        string `yaml:"path_to_certs"`
	ClientCert         string `yaml:"client_cert"`
	ClientKey          string `yaml:"client_key"`
	ServerNameOverride string `yaml:"server_name_override"`
}

// ACLConfig is one ordered rule as described in spec.md §3/§4.3.
type ACLConfig struct {
	IP            string   `yaml:"ip"`
	HTTPBasicAuth string   `yaml:"http_basic_auth"`
	Enabled       []string `yaml:"enabled"`
	Disabled      []string `yaml:"disabled"`
}

// RedisAuthConfig accepts either a legacy single password or a
// two-element [user, password] ACL-style pair, matching spec.md §4.4.
type RedisAuthConfig struct {
	Legacy string
	User   string
	Pass   string
}

// UnmarshalYAML implements the untagged-union shape from the original
// source config: either a bare string (legacy password) or a two-item
// list ([user, password]).
func (r *RedisAuthConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		r.Legacy = s
		return nil
	}
	var pair []string
	if err := unmarshal(&pair); err != nil {
		return fmt.Errorf("redis_auth must be a string or a two-element list: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("redis_auth list must have exactly 2 elements, got %d", len(pair))
	}
	r.User, r.Pass = pair[0], pair[1]
	return nil
}

// Load builds a Config from defaults, then environment variables
// (prefix GATEWAY_), then an optional YAML file at path, validates it,
// and applies the documented legacy key aliases.
func Load(path string) (*Config, error) {
	cfg := Default()
	// The canonical thread/pool keys start unset so applyLegacyAliases can
	// tell whether env or file gave them; it fills in the defaults after.
	cfg.HTTPThreads, cfg.PoolSizePerThread = 0, 0

	if err := envconfig.Process("GATEWAY", &cfg); err != nil {
		return nil, fmt.Errorf("load config from environment: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			fileCfg, err := loadFromFile(path)
			if err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
			cfg = mergeConfigs(*fileCfg, cfg)
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config file %s: %w", path, err)
		}
	}

	cfg.applyLegacyAliases()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a Config populated with spec-documented defaults.
func Default() Config {
	return Config{
		RedisHost:          "127.0.0.1",
		RedisPort:          6379,
		HTTPHost:           "0.0.0.0",
		HTTPPort:           7379,
		HTTPThreads:        DefaultHTTPThreads,
		PoolSizePerThread:  DefaultPoolSizePerThread,
		HTTPMaxRequestSize: DefaultHTTPMaxRequestSize,
		Verbosity:          DefaultVerbosity,
		Database:           DefaultDatabase,
		Server: ServerConfig{
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "stdout",
			FilePath: "logs/gateway.log",
		},
	}
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeConfigs overlays fileConfig onto envConfig: every field the file
// sets to a non-zero value replaces the env/default value, so the file
// wins when both are set. Database is always taken from the file, and
// Websockets is enabled if either side enables it. The server, logging
// and rate_limit sections and log_fsync are not taken from the file.
func mergeConfigs(fileConfig, envConfig Config) Config {
	if fileConfig.RedisHost != "" {
		envConfig.RedisHost = fileConfig.RedisHost
	}
	if fileConfig.RedisPort != 0 {
		envConfig.RedisPort = fileConfig.RedisPort
	}
	if fileConfig.HTTPHost != "" {
		envConfig.HTTPHost = fileConfig.HTTPHost
	}
	if fileConfig.HTTPPort != 0 {
		envConfig.HTTPPort = fileConfig.HTTPPort
	}
	if fileConfig.HTTPThreads != 0 {
		envConfig.HTTPThreads = fileConfig.HTTPThreads
	}
	if fileConfig.LegacyThreads != 0 {
		envConfig.LegacyThreads = fileConfig.LegacyThreads
	}
	envConfig.Database = fileConfig.Database
	if fileConfig.PoolSizePerThread != 0 {
		envConfig.PoolSizePerThread = fileConfig.PoolSizePerThread
	}
	if fileConfig.LegacyPoolSize != 0 {
		envConfig.LegacyPoolSize = fileConfig.LegacyPoolSize
	}
	envConfig.Websockets = envConfig.Websockets || fileConfig.Websockets
	if fileConfig.SSL != nil {
		envConfig.SSL = fileConfig.SSL
	}
	if len(fileConfig.ACL) > 0 {
		envConfig.ACL = fileConfig.ACL
	}
	if fileConfig.RedisAuth != nil {
		envConfig.RedisAuth = fileConfig.RedisAuth
	}
	if fileConfig.HTTPMaxRequestSize != 0 {
		envConfig.HTTPMaxRequestSize = fileConfig.HTTPMaxRequestSize
	}
	if fileConfig.DefaultRoot != "" {
		envConfig.DefaultRoot = fileConfig.DefaultRoot
	}
	if fileConfig.Verbosity != 0 {
		envConfig.Verbosity = fileConfig.Verbosity
	}
	if fileConfig.Logfile != "" {
		envConfig.Logfile = fileConfig.Logfile
	}
	return envConfig
}

// applyLegacyAliases honors threads->http_threads and
// pool_size->pool_size_per_thread only when the canonical key is absent,
// per spec.md §6.
func (c *Config) applyLegacyAliases() {
	if c.HTTPThreads == 0 && c.LegacyThreads != 0 {
		c.HTTPThreads = c.LegacyThreads
	}
	if c.HTTPThreads == 0 {
		c.HTTPThreads = DefaultHTTPThreads
	}
	if c.PoolSizePerThread == 0 && c.LegacyPoolSize != 0 {
		c.PoolSizePerThread = c.LegacyPoolSize
	}
	if c.PoolSizePerThread == 0 {
		c.PoolSizePerThread = DefaultPoolSizePerThread
	}
}

// PoolCapacity returns the configured connection pool capacity, as
// described in spec.md §3 Connection pool.
func (c *Config) PoolCapacity() int {
	return c.PoolSizePerThread * c.HTTPThreads
}

// RedisURL builds the backend connection URL per spec.md §4.4: scheme
// reflects TLS, credentials are either the legacy password or a
// user:password pair, path carries the numeric database index.
func (c *Config) RedisURL() string {
	scheme := "redis"
	if c.SSL != nil && c.SSL.Enabled {
		scheme = "rediss"
	}

	auth := ""
	if c.RedisAuth != nil {
		if c.RedisAuth.Legacy != "" {
			auth = fmt.Sprintf(":%s@", c.RedisAuth.Legacy)
		} else if c.RedisAuth.User != "" {
			auth = fmt.Sprintf("%s:%s@", c.RedisAuth.User, c.RedisAuth.Pass)
		}
	}

	return fmt.Sprintf("%s://%s%s:%d/%d", scheme, auth, c.RedisHost, c.RedisPort, c.Database)
}

var validate = validator.New()

func (c *Config) validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.PoolCapacity() <= 0 {
		return fmt.Errorf("pool capacity must be positive (http_threads=%d, pool_size_per_thread=%d)",
			c.HTTPThreads, c.PoolSizePerThread)
	}
	for i, rule := range c.ACL {
		if rule.IP == "" {
			continue
		}
		cidr := rule.IP
		if !strings.Contains(cidr, "/") {
			if strings.Contains(cidr, ":") {
				cidr += "/128"
			} else {
				cidr += "/32"
			}
		}
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("acl[%d]: invalid ip/cidr %q: %w", i, rule.IP, err)
		}
	}
	return nil
}
