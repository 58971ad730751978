package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/speakuphq/gdhub/internal/events"
)

// Service is the client-facing gateway. It serves the REST API, holds the
// WebSocket connections, and forwards bus events to the addressed users.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	eventConsumer     *EventConsumer
	apiHandler        *APIHandler
}

// Config holds configuration for the gateway service.
type Config struct {
	ConnectionConfig ConnectionConfig
	JetStreamConfig  JetStreamConsumerConfig
}

// DefaultConfig returns default configuration for the gateway.
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		JetStreamConfig:  DefaultJetStreamConsumerConfig(),
	}
}

// NewService creates a new gateway service.
func NewService(config Config, queue QueueApp, rooms RoomApp, board LeaderboardApp, auth *Authenticator) (*Service, error) {
	connectionManager := NewConnectionManager(config.ConnectionConfig)
	wsHandler := NewWebSocketHandler(connectionManager, auth)

	eventConsumer, err := NewEventConsumer(connectionManager, config.JetStreamConfig)
	if err != nil {
		return nil, fmt.Errorf("create event consumer: %w", err)
	}

	apiHandler := NewAPIHandler(queue, rooms, board, auth)

	return &Service{
		connectionManager: connectionManager,
		wsHandler:         wsHandler,
		eventConsumer:     eventConsumer,
		apiHandler:        apiHandler,
	}, nil
}

// Start runs the gateway until the context is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting gateway service")

	go s.connectionManager.Start(ctx)

	go func() {
		if err := s.eventConsumer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("event consumer failed")
		}
	}()

	<-ctx.Done()

	log.Info().Msg("gateway service shutting down")
	return s.Stop()
}

// Stop gracefully shuts down the gateway service.
func (s *Service) Stop() error {
	if err := s.eventConsumer.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to stop event consumer")
	}
	log.Info().Msg("gateway service stopped")
	return nil
}

// RegisterRoutes registers the REST and WebSocket routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.apiHandler.RegisterRoutes(mux)
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("gateway routes registered")
}

// GetStats returns statistics about the gateway service.
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "gateway"
	stats["status"] = "running"
	return stats
}

// BroadcastEvent pushes an envelope to a user's connections directly,
// bypassing the bus. Useful for testing.
func (s *Service) BroadcastEvent(userID string, event *events.Envelope) {
	s.connectionManager.BroadcastToUser(userID, event)
}
