// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jason-s-yu/sudokuduel/internal/models"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. SUDOKUDUEL_ADDR.
const EnvPrefix = "SUDOKUDUEL"

// Config holds everything the server and historian read at startup.
type Config struct {
	Addr        string
	DatabaseURL string
	RedisAddr   string
	RedisDB     int
	QueueName   string
	Channel     string
	TokenExpire time.Duration
	// PrivateKeyFile and PublicKeyFile hold raw ed25519 keys. When either is
	// empty a fresh pair is generated at startup.
	PrivateKeyFile string
	PublicKeyFile  string
	// PublicURL prefixes invite links encoded in room QR codes.
	PublicURL string
	LogLevel  string

	BatchSize     int
	FlushInterval time.Duration
	SweepInterval time.Duration

	Rules models.Rules
}

// RegisterFlags declares every setting on fs with its default.
func RegisterFlags(fs *pflag.FlagSet) {
	def := models.DefaultRules()

	fs.String("addr", ":8080", "address to listen on")
	fs.String("database-url", "", "postgres connection string; empty keeps state in memory")
	fs.String("redis-addr", "", "redis address for the event queue; empty uses an in-process bus")
	fs.Int("redis-db", 0, "redis database index")
	fs.String("queue-name", "sudokuduel_events", "redis list the historian drains")
	fs.String("channel", "sudokuduel_rooms", "redis pub/sub channel prefix for room changes")
	fs.Duration("token-expire", 72*time.Hour, "identity token lifetime, 0 for no expiry")
	fs.String("private-key-file", "", "ed25519 private key used to sign identity tokens")
	fs.String("public-key-file", "", "ed25519 public key used to verify identity tokens")
	fs.String("public-url", "http://localhost:8080", "base URL used in invite links")
	fs.String("log-level", "info", "logrus level")

	fs.Int("batch-size", 20, "historian batch size")
	fs.Duration("flush-interval", 500*time.Millisecond, "historian flush interval")
	fs.Duration("sweep-interval", time.Minute, "interval between expired room sweeps")

	fs.Int("max-lives", def.MaxLives, "lives per player")
	fs.Int("min-players", def.MinPlayers, "players required to start")
	fs.Int("max-players", def.MaxPlayers, "room capacity")
	fs.Int("room-quota", def.RoomQuota, "live rooms a single host may own")
	fs.Duration("room-ttl", def.RoomTTL, "expiry of a newly created room")
	fs.Duration("finished-retention", def.FinishedRetention, "expiry of a finished room")
	fs.Bool("skip-exhausted-numbers", def.SkipExhaustedNumbers, "only draw numerals that still have a blank target cell")
}

// Load binds fs to environment variables under EnvPrefix and returns the
// merged configuration. Explicit flags win over the environment.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	cfg := &Config{
		Addr:           v.GetString("addr"),
		DatabaseURL:    v.GetString("database-url"),
		RedisAddr:      v.GetString("redis-addr"),
		RedisDB:        v.GetInt("redis-db"),
		QueueName:      v.GetString("queue-name"),
		Channel:        v.GetString("channel"),
		TokenExpire:    v.GetDuration("token-expire"),
		PrivateKeyFile: v.GetString("private-key-file"),
		PublicKeyFile:  v.GetString("public-key-file"),
		PublicURL:      strings.TrimRight(v.GetString("public-url"), "/"),
		LogLevel:       v.GetString("log-level"),
		BatchSize:      v.GetInt("batch-size"),
		FlushInterval:  v.GetDuration("flush-interval"),
		SweepInterval:  v.GetDuration("sweep-interval"),
		Rules: models.Rules{
			MaxLives:             v.GetInt("max-lives"),
			MinPlayers:           v.GetInt("min-players"),
			MaxPlayers:           v.GetInt("max-players"),
			RoomQuota:            v.GetInt("room-quota"),
			RoomTTL:              v.GetDuration("room-ttl"),
			FinishedRetention:    v.GetDuration("finished-retention"),
			SkipExhaustedNumbers: v.GetBool("skip-exhausted-numbers"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects rule combinations the game cannot run with.
func (c *Config) Validate() error {
	r := c.Rules
	if r.MinPlayers < 2 {
		return fmt.Errorf("min-players must be at least 2, got %d", r.MinPlayers)
	}
	if r.MaxPlayers > 3 {
		return fmt.Errorf("max-players must be at most 3, got %d", r.MaxPlayers)
	}
	if r.MinPlayers > r.MaxPlayers {
		return fmt.Errorf("min-players (%d) exceeds max-players (%d)", r.MinPlayers, r.MaxPlayers)
	}
	if r.MaxLives < 1 {
		return errors.New("max-lives must be positive")
	}
	if r.RoomQuota < 1 {
		return errors.New("room-quota must be positive")
	}
	if r.RoomTTL <= 0 || r.FinishedRetention <= 0 {
		return errors.New("room-ttl and finished-retention must be positive")
	}
	if c.BatchSize < 1 {
		return errors.New("batch-size must be positive")
	}
	return nil
}
