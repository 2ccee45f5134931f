// Package gateway is the realtime edge of the game: it keeps player connections,
// routes AUTH and BET messages, and pushes round state to every client.
package gateway

import (
	"context"
	"net/http"

	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/game/events"
	"github.com/rs/zerolog/log"
)

// Service is the game gateway that handles WebSocket connections and round broadcasts
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates a new gateway service
func NewService(config Config, dispatcher *Dispatcher, state StateProvider) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig, dispatcher, state)

	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
		stateHandler:      NewStateHandler(state),
	}
}

// Start runs the broadcast loop until ctx is done, then closes every connection
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting game gateway service")

	s.connectionManager.Start(ctx)

	log.Info().Msg("game gateway service shutting down")
	return s.Stop()
}

// Stop closes every connection
func (s *Service) Stop() error {
	s.connectionManager.CloseAll()
	log.Info().Msg("game gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and round state HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("game gateway routes registered")
}

// Events returns the sink that pushes round events to clients
func (s *Service) Events() events.Sink {
	return s.connectionManager
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
