package main

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/speakuphq/gdhub/internal/gateway"
	"github.com/speakuphq/gdhub/internal/leaderboard"
	"github.com/speakuphq/gdhub/internal/matchqueue"
	"github.com/speakuphq/gdhub/internal/outbox"
	"github.com/speakuphq/gdhub/internal/room"
)

type Services struct {
	Queue       *matchqueue.App
	Rooms       *room.App
	Leaderboard *leaderboard.App
	Gateway     *gateway.Service
	Relay       *outbox.Listener
}

func setupServices(pool *pgxpool.Pool, dsn string, config *Config) (*Services, error) {
	// Wire up dependency injection chain
	// Database layer → Repository layer → App layer → Gateway layer
	clock := clockwork.NewRealClock()
	natsURL := getEnv("NATS_URL", "nats://localhost:4222")

	// Outbox: repository, typed inserts, bus publisher, relay
	outboxRepo := outbox.NewPgRepository(pool)
	outboxApp := outbox.NewApp(outboxRepo)

	publisherCfg := outbox.DefaultJetStreamConfig()
	publisherCfg.URL = natsURL
	publisher, err := outbox.NewJetStreamPublisher(publisherCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create publisher: %w", err)
	}

	listenerCfg := outbox.DefaultListenerConfig()
	listenerCfg.DatabaseURL = dsn
	relay, err := outbox.NewListener(outboxRepo, publisher, listenerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create outbox relay: %w", err)
	}

	// Leaderboard
	rdb := redis.NewClient(&redis.Options{
		Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvAsInt("REDIS_DB", 0),
	})
	board := leaderboard.NewApp(rdb)

	// Rooms
	roomRepo := room.NewPgRepository(pool)
	roomApp := room.NewApp(roomRepo, outboxApp, board, clock)

	// Queue
	queueCfg, err := queueConfig(config)
	if err != nil {
		return nil, err
	}
	queueRepo := matchqueue.NewPgRepository(pool)
	queueApp := matchqueue.NewApp(queueCfg, queueRepo, roomApp, outboxApp, clock)

	// Gateway
	auth := gateway.NewAuthenticator(
		[]byte(getEnv("JWT_SECRET", "")),
		getEnvAsBool("ALLOW_INSECURE_AUTH", false),
	)
	gatewayCfg := gateway.DefaultConfig()
	gatewayCfg.JetStreamConfig.URL = natsURL
	gatewaySvc, err := gateway.NewService(gatewayCfg, queueApp, roomApp, board, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	return &Services{
		Queue:       queueApp,
		Rooms:       roomApp,
		Leaderboard: board,
		Gateway:     gatewaySvc,
		Relay:       relay,
	}, nil
}
