package internal

import (
	"chat-relay/errors"
	"chat-relay/runtime"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

const (
	PresenceMemory = "memory"
	PresenceRedis  = "redis"
)

type Config struct {
	Host       string `env:"HOST,default=0.0.0.0"`
	Port       int    `env:"PORT,default=8080"`
	HealthPort int    `env:"HEALTH_PORT,default=8081"`
	LogLevel   string `env:"LOG_LEVEL,default=INFO"`

	BadgerFilepath  string `env:"BADGER_FILEPATH,required=true"`
	LimitMessages   *int   `env:"LIMIT_MESSAGES"`
	PresenceBackend string `env:"PRESENCE_BACKEND,default=memory"`
	RedisURL        string `env:"REDIS_URL"`
	RoomStrategy    string `env:"ROOM_STRATEGY,default=address"`

	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	MaxMessageLength     int           `env:"MAX_MESSAGE_LENGTH,default=2000"`
	ReadTimeout          time.Duration `env:"READ_TIMEOUT,default=60s"`
	PingInterval         time.Duration `env:"PING_INTERVAL,default=30s"`
	OperationTimeout     time.Duration `env:"OPERATION_TIMEOUT,default=5s"`
	CleanupTimeout       time.Duration `env:"CLEANUP_TIMEOUT,default=5s"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s"`
	HealthInterval       time.Duration `env:"HEALTH_INTERVAL,default=5s"`

	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	JWTIssuer         string        `env:"JWT_ISSUER,default=chat-relay"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	ModerationEnabled bool          `env:"MODERATION_ENABLED,default=true"`
	CharReplacement   string        `env:"CHARACTER_REPLACEMENT,default=*"`
	AllowedOrigins    string        `env:"ALLOWED_ORIGINS,default=*"`
}

// Validate catches what the env tags cannot express.
func (c Config) Validate() error {
	var errs []error
	if !lo.Contains([]string{PresenceMemory, PresenceRedis}, c.PresenceBackend) {
		errs = append(errs, fmt.Errorf("PRESENCE_BACKEND must be %q or %q, got %q", PresenceMemory, PresenceRedis, c.PresenceBackend))
	}
	if c.PresenceBackend == PresenceRedis && c.RedisURL == "" {
		errs = append(errs, fmt.Errorf("REDIS_URL is required with the redis backend"))
	}
	if !lo.Contains([]string{runtime.StrategyAddress, runtime.StrategyCounter}, c.RoomStrategy) {
		errs = append(errs, fmt.Errorf("ROOM_STRATEGY must be %q or %q, got %q", runtime.StrategyAddress, runtime.StrategyCounter, c.RoomStrategy))
	}
	if _, err := CharacterRune(c.CharReplacement); err != nil {
		errs = append(errs, err)
	}
	if c.ConnectionBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("CONNECTION_BUFFER_SIZE must be positive, got %d", c.ConnectionBufferSize))
	}
	if c.MaxMessageLength <= 0 {
		errs = append(errs, fmt.Errorf("MAX_MESSAGE_LENGTH must be positive, got %d", c.MaxMessageLength))
	}
	if c.LimitMessages != nil && *c.LimitMessages <= 0 {
		errs = append(errs, fmt.Errorf("LIMIT_MESSAGES must be positive, got %d", *c.LimitMessages))
	}
	if c.OperationTimeout <= 0 || c.CleanupTimeout <= 0 {
		errs = append(errs, fmt.Errorf("OPERATION_TIMEOUT and CLEANUP_TIMEOUT must be positive"))
	}
	if c.PingInterval > 0 && c.ReadTimeout > 0 && c.PingInterval >= c.ReadTimeout {
		errs = append(errs, fmt.Errorf("PING_INTERVAL (%s) must be shorter than READ_TIMEOUT (%s)", c.PingInterval, c.ReadTimeout))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", errors.ErrInvalidConfig, errors.Join(errs...))
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c Config) Origins() []string {
	origins := lo.Map(strings.Split(c.AllowedOrigins, ","), func(o string, _ int) string {
		return strings.TrimSpace(o)
	})
	return lo.Compact(origins)
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
