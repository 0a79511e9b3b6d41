package main

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/infrastructure/healthcheck"
	"chat-relay/infrastructure/registry"
	"chat-relay/infrastructure/storage"
	"chat-relay/infrastructure/ws"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal arrives.
// Deferred closes run before main exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()
	store := storage.NewMessageRepository(db, logger, config.LimitMessages)

	// 3. Presence registry & fanout
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	local := runtime.NewRegistry(logger)
	var presence contract.IPresence
	var fanout contract.IFanout

	switch config.PresenceBackend {
	case internal.PresenceRedis:
		client, err := registry.NewClient(ctx, config.RedisURL)
		if err != nil {
			return exitRuntime, fmt.Errorf("registry connection failed: %w", err)
		}
		defer func() {
			logger.Info("Closing registry client...")
			_ = client.Close()
		}()
		presence = registry.NewPresence(client)
		fanout = registry.NewFanout(client, local, logger)
		sup.Add(registry.NewPump(client, local, logger))
	default:
		presence = runtime.NewPresence(local)
		fanout = local
	}

	rooms, err := runtime.NewRoomStrategy(config.RoomStrategy, presence)
	if err != nil {
		return exitConfig, err
	}

	// 4. Moderation & message pipeline
	censor, err := newCensor(config, charReplacement, logger)
	if err != nil {
		return exitRuntime, err
	}

	pipeline := services.NewMessagePipeline(logger, presence, fanout, store, censor)
	dispatcher := runtime.NewDispatcher(logger, pipeline, config.MaxMessageLength, config.OperationTimeout)
	hub := runtime.NewHub(logger, presence, fanout, auth.NewRoleAuthorizer(auth.ModeratorRole),
		rooms, dispatcher, config.OperationTimeout, config.CleanupTimeout)
	tokens := auth.NewTokenService(config.JWTSecret, config.JWTIssuer, config.AuthTokenDuration)
	probe := services.NewHealthProbe(presence, store, local.Count, config.OperationTimeout)

	// 5. Listeners
	server := ws.NewServer(logger, hub, tokens, probe, ws.ServerConfig{
		Host:            config.Host,
		Port:            config.Port,
		BufferSize:      config.ConnectionBufferSize,
		ReadTimeout:     config.ReadTimeout,
		PingInterval:    config.PingInterval,
		ShutdownTimeout: config.ShutdownTimeout,
		AllowedOrigins:  config.Origins(),
	})
	sup.Add(
		server,
		healthcheck.NewHealthServer(logger, probe, config.Host, config.HealthPort, config.HealthInterval),
	)

	// 6. Run until a signal cancels ctx
	logger.Info("Starting relay",
		"backend", config.PresenceBackend,
		"room_strategy", config.RoomStrategy,
		"port", config.Port,
		"health_port", config.HealthPort)
	sup.Run(ctx)
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}

	return options
}

// newCensor returns nil when moderation is switched off: the pipeline then
// stores and fans out message text untouched.
func newCensor(config internal.Config, replacement rune, logger *slog.Logger) (contract.ICensor, error) {
	if !config.ModerationEnabled {
		logger.Info("Moderation disabled")
		return nil, nil
	}
	dictionary, err := moderation.LoadDictionary(moderation.Dictionaries, moderation.DictionariesDir)
	if err != nil {
		return nil, fmt.Errorf("censored dictionary loading failed: %w", err)
	}
	moderator, err := moderation.NewModerator(dictionary.Words, replacement, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Moderation ready", "languages", dictionary.Languages, "words", len(dictionary.Words))
	return moderator, nil
}
