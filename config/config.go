package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cwrk-planet/comms-service/internal/postgres"
)

type HTTP struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	CORSOrigins     []string      `yaml:"corsOrigins"`
}

type GRPC struct {
	Addr        string        `yaml:"addr"`
	HealthEvery time.Duration `yaml:"healthEvery"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // comms-service
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Postgres struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns"`
	MinConns          int32         `yaml:"minConns"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
	ApplicationName   string        `yaml:"applicationName"`
	ConnectAttempts   int           `yaml:"connectAttempts"`
	ConnectDelay      time.Duration `yaml:"connectDelay"`
	EnsureSchema      bool          `yaml:"ensureSchema"`
}

func (p Postgres) ToPoolConfig() postgres.PoolConfig {
	return postgres.PoolConfig{
		DSN:               p.DSN,
		MaxConns:          p.MaxConns,
		MinConns:          p.MinConns,
		MaxConnLifetime:   p.MaxConnLifetime,
		MaxConnIdleTime:   p.MaxConnIdleTime,
		HealthCheckPeriod: p.HealthCheckPeriod,
		ApplicationName:   p.ApplicationName,
		ConnectAttempts:   p.ConnectAttempts,
		ConnectDelay:      p.ConnectDelay,
	}
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SeedUser struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Role string `yaml:"role"`
}

// Storage selects the backend per collaborator.
type Storage struct {
	Messages  string     `yaml:"messages"` // postgres|memory
	Tokens    string     `yaml:"tokens"`   // postgres|redis|memory
	Users     string     `yaml:"users"`    // postgres|memory
	SeedUsers []SeedUser `yaml:"seedUsers"`
}

type Auth struct {
	PublicKeyPath string        `yaml:"publicKeyPath"` // обязательно
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	ClockSkew     time.Duration `yaml:"clockSkew"`
}

type AMQP struct {
	URL           string        `yaml:"url"`
	Exchange      string        `yaml:"exchange"`
	RoutingKey    string        `yaml:"routingKey"`
	RetryAttempts int           `yaml:"retryAttempts"`
	RetryDelay    time.Duration `yaml:"retryDelay"`
}

type Push struct {
	Backend               string        `yaml:"backend"` // fcm|amqp|log
	CredentialsFile       string        `yaml:"credentialsFile"`
	AMQP                  AMQP          `yaml:"amqp"`
	EvictOnPermanentError *bool         `yaml:"evictOnPermanentError"`
	CallTTL               time.Duration `yaml:"callTTL"`
}

func (p Push) Evict() bool {
	return p.EvictOnPermanentError == nil || *p.EvictOnPermanentError
}

type WS struct {
	PingEvery    time.Duration `yaml:"pingEvery"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	SendBuffer   int           `yaml:"sendBuffer"`
	ReadLimit    int64         `yaml:"readLimit"`
}

type Chat struct {
	MaxBodyLength int `yaml:"maxBodyLength"`
}

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	GRPC     GRPC     `yaml:"grpc"`
	Logging  Logging  `yaml:"logging"`
	Postgres Postgres `yaml:"postgres"`
	Redis    Redis    `yaml:"redis"`
	Storage  Storage  `yaml:"storage"`
	Auth     Auth     `yaml:"auth"`
	Push     Push     `yaml:"push"`
	WS       WS       `yaml:"ws"`
	Chat     Chat     `yaml:"chat"`
}

func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UsesPostgres reports whether any collaborator is backed by postgres.
func (c *Config) UsesPostgres() bool {
	return c.Storage.Messages == "postgres" || c.Storage.Tokens == "postgres" || c.Storage.Users == "postgres"
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.GRPC.Addr == "" {
		return errors.New("grpc.addr is required")
	}
	if c.Auth.PublicKeyPath == "" {
		return errors.New("auth.publicKeyPath is required")
	}

	// установка дефолтов, если значения не указаны
	c.Storage.Messages = orDefault(strings.ToLower(c.Storage.Messages), "postgres")
	c.Storage.Tokens = orDefault(strings.ToLower(c.Storage.Tokens), "postgres")
	c.Storage.Users = orDefault(strings.ToLower(c.Storage.Users), "postgres")
	if err := oneOf("storage.messages", c.Storage.Messages, "postgres", "memory"); err != nil {
		return err
	}
	if err := oneOf("storage.tokens", c.Storage.Tokens, "postgres", "redis", "memory"); err != nil {
		return err
	}
	if err := oneOf("storage.users", c.Storage.Users, "postgres", "memory"); err != nil {
		return err
	}
	if c.UsesPostgres() && c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if c.Storage.Tokens == "redis" && c.Redis.Addr == "" {
		return errors.New("redis.addr is required for storage.tokens=redis")
	}

	c.Push.Backend = orDefault(strings.ToLower(c.Push.Backend), "log")
	if err := oneOf("push.backend", c.Push.Backend, "fcm", "amqp", "log"); err != nil {
		return err
	}
	if c.Push.Backend == "amqp" {
		if c.Push.AMQP.URL == "" {
			return errors.New("push.amqp.url is required for push.backend=amqp")
		}
		c.Push.AMQP.Exchange = orDefault(c.Push.AMQP.Exchange, "vetclinic.push")
		c.Push.AMQP.RoutingKey = orDefault(c.Push.AMQP.RoutingKey, "push")
		if c.Push.AMQP.RetryAttempts <= 0 {
			c.Push.AMQP.RetryAttempts = 5
		}
		if c.Push.AMQP.RetryDelay <= 0 {
			c.Push.AMQP.RetryDelay = time.Second
		}
	}
	if c.Push.CallTTL <= 0 {
		c.Push.CallTTL = 30 * time.Second
	}

	c.Logging.Service = orDefault(c.Logging.Service, "comms-service")
	c.Logging.Env = orDefault(c.Logging.Env, "dev")
	c.Logging.Version = orDefault(c.Logging.Version, "v0.1.0")
	c.Logging.Backend = orDefault(c.Logging.Backend, "std")

	c.HTTP.ReadTimeout = durationOr(c.HTTP.ReadTimeout, 10*time.Second)
	c.HTTP.WriteTimeout = durationOr(c.HTTP.WriteTimeout, 15*time.Second)
	c.HTTP.IdleTimeout = durationOr(c.HTTP.IdleTimeout, 60*time.Second)
	c.HTTP.RequestTimeout = durationOr(c.HTTP.RequestTimeout, 30*time.Second)
	c.HTTP.ShutdownTimeout = durationOr(c.HTTP.ShutdownTimeout, 10*time.Second)
	c.GRPC.HealthEvery = durationOr(c.GRPC.HealthEvery, 15*time.Second)
	c.Auth.ClockSkew = durationOr(c.Auth.ClockSkew, 30*time.Second)

	c.WS.PingEvery = durationOr(c.WS.PingEvery, 15*time.Second)
	c.WS.WriteTimeout = durationOr(c.WS.WriteTimeout, 5*time.Second)
	if c.WS.SendBuffer <= 0 {
		c.WS.SendBuffer = 64
	}
	if c.WS.ReadLimit <= 0 {
		c.WS.ReadLimit = 1 << 20
	}
	if c.Chat.MaxBodyLength <= 0 {
		c.Chat.MaxBodyLength = 4000
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func durationOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

func oneOf(field, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", field, strings.Join(allowed, "|"), v)
}
