package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionManager keeps the registry of live connections and fans messages out to them
type ConnectionManager struct {
	connections map[*Connection]struct{}
	// byAccount indexes authenticated connections for targeted sends
	byAccount map[uuid.UUID]map[*Connection]struct{}
	mu        sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	dispatcher *Dispatcher
	state      StateProvider

	broadcastCh chan BroadcastMessage

	ctxMu sync.RWMutex
	ctx   context.Context
}

// Connection is one live socket. It is bound to an account after a successful AUTH.
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Manager *ConnectionManager

	send chan []byte

	mu        sync.Mutex
	accountID uuid.UUID
	bound     bool
	closed    bool

	// rate limiting, touched only by readPump
	windowStart  time.Time
	messageCount int

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout         time.Duration
	ReadTimeout          time.Duration
	PingInterval         time.Duration
	MaxMessageSize       int64
	ReadBufferSize       int
	WriteBufferSize      int
	SendBufferSize       int
	MaxMessagesPerSecond int
	CheckOrigin          func(r *http.Request) bool
}

// BroadcastMessage is a message queued for fan-out.
// A zero AccountID sends to every connection.
type BroadcastMessage struct {
	Message   ServerMessage
	AccountID uuid.UUID
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:         10 * time.Second,
		ReadTimeout:          60 * time.Second,
		PingInterval:         30 * time.Second,
		MaxMessageSize:       4096,
		ReadBufferSize:       1024,
		WriteBufferSize:      1024,
		SendBufferSize:       256,
		MaxMessagesPerSecond: 20,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, dispatcher *Dispatcher, state StateProvider) *ConnectionManager {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = DefaultConnectionConfig().SendBufferSize
	}
	return &ConnectionManager{
		connections: make(map[*Connection]struct{}),
		byAccount:   make(map[uuid.UUID]map[*Connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		dispatcher:  dispatcher,
		state:       state,
		broadcastCh: make(chan BroadcastMessage, 1000),
		ctx:         context.Background(),
	}
}

// Start processes broadcast messages until ctx is done
func (cm *ConnectionManager) Start(ctx context.Context) {
	cm.ctxMu.Lock()
	cm.ctx = ctx
	cm.ctxMu.Unlock()

	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

func (cm *ConnectionManager) baseContext() context.Context {
	cm.ctxMu.RLock()
	defer cm.ctxMu.RUnlock()
	return cm.ctx
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and sends the current round state
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Manager:     cm,
		send:        make(chan []byte, cm.config.SendBufferSize),
		ConnectedAt: time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	cm.sendSnapshot(connection)

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")

	return nil
}

// sendSnapshot sends one GAME_STATE per active round to a new connection.
func (cm *ConnectionManager) sendSnapshot(conn *Connection) {
	if cm.state == nil {
		return
	}
	rounds, err := cm.state.ActiveRounds(cm.baseContext())
	if err != nil {
		log.Error().Err(err).Str("connection_id", conn.ID).Msg("failed to load round state for new connection")
		return
	}
	for _, state := range rounds {
		conn.reply(gameState(state))
	}
}

// registerConnection adds a connection to the manager
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connections[conn] = struct{}{}

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

// bindConnection indexes conn under accountID, moving it off any previous account.
func (cm *ConnectionManager) bindConnection(conn *Connection, accountID uuid.UUID) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, live := cm.connections[conn]; !live {
		return
	}
	if previous, ok := conn.AccountID(); ok {
		cm.unindex(conn, previous)
	}
	conn.setAccount(accountID)

	if cm.byAccount[accountID] == nil {
		cm.byAccount[accountID] = make(map[*Connection]struct{})
	}
	cm.byAccount[accountID][conn] = struct{}{}
}

func (cm *ConnectionManager) unindex(conn *Connection, accountID uuid.UUID) {
	if conns, ok := cm.byAccount[accountID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(cm.byAccount, accountID)
		}
	}
}

// unregisterConnection removes a connection from the manager and closes its send buffer
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.connections[conn]; !exists {
		return
	}
	delete(cm.connections, conn)
	if accountID, ok := conn.AccountID(); ok {
		cm.unindex(conn, accountID)
	}
	conn.closeSend()

	log.Info().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.connections)).
		Msg("connection unregistered")
}

// Broadcast queues a message for every connection
func (cm *ConnectionManager) Broadcast(message ServerMessage) {
	select {
	case cm.broadcastCh <- BroadcastMessage{Message: message}:
	default:
		log.Warn().Str("type", string(message.Type)).Msg("broadcast channel full, dropping message")
	}
}

// SendToAccount queues a message for the connections bound to one account
func (cm *ConnectionManager) SendToAccount(accountID uuid.UUID, message ServerMessage) {
	select {
	case cm.broadcastCh <- BroadcastMessage{Message: message, AccountID: accountID}:
	default:
		log.Warn().
			Str("type", string(message.Type)).
			Str("account_id", accountID.String()).
			Msg("broadcast channel full, dropping account message")
	}
}

// handleBroadcast delivers a message without letting a slow connection hold up the rest
func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	cm.mu.RLock()
	var targets []*Connection
	if message.AccountID == uuid.Nil {
		targets = make([]*Connection, 0, len(cm.connections))
		for conn := range cm.connections {
			targets = append(targets, conn)
		}
	} else {
		for conn := range cm.byAccount[message.AccountID] {
			targets = append(targets, conn)
		}
	}
	cm.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(message.Message)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal message for broadcast")
		return
	}

	for _, conn := range targets {
		if !conn.trySend(data) {
			cm.drop(conn, "connection send buffer full, closing connection")
		}
	}

	log.Debug().
		Str("type", string(message.Message.Type)).
		Int("connections", len(targets)).
		Msg("message broadcasted")
}

// drop closes a connection that cannot keep up
func (cm *ConnectionManager) drop(conn *Connection, reason string) {
	log.Warn().
		Str("connection_id", conn.ID).
		Msg(reason)
	cm.unregisterConnection(conn)
	conn.Conn.Close()
}

// CloseAll disconnects every connection
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range conns {
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}
	log.Info().Int("connections", len(conns)).Msg("closed all connections")
}

// ConnectionStats summarizes the registry
type ConnectionStats struct {
	TotalConnections  int `json:"total_connections"`
	AuthenticatedConn int `json:"authenticated_connections"`
	Accounts          int `json:"accounts"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	authenticated := 0
	for _, conns := range cm.byAccount {
		authenticated += len(conns)
	}
	return ConnectionStats{
		TotalConnections:  len(cm.connections),
		AuthenticatedConn: authenticated,
		Accounts:          len(cm.byAccount),
	}
}

// AccountID implements Session.
func (c *Connection) AccountID() (uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accountID, c.bound
}

// Bind implements Session.
func (c *Connection) Bind(accountID uuid.UUID) {
	c.Manager.bindConnection(c, accountID)
}

func (c *Connection) setAccount(accountID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accountID = accountID
	c.bound = true
}

// trySend queues data without blocking. It reports false if the buffer is full or closed.
func (c *Connection) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Connection) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Connection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// reply sends a direct response to this connection
func (c *Connection) reply(message ServerMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to marshal reply")
		return
	}
	if !c.trySend(data) && !c.isClosed() {
		c.Manager.drop(c, "connection send buffer full, closing connection")
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump reads client messages and replies to each one in order
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))

		if !c.allowMessage() {
			c.reply(ServerMessage{Type: MessageError, Message: "Rate limit exceeded. Please slow down."})
			continue
		}
		if c.Manager.dispatcher == nil {
			continue
		}
		c.reply(c.Manager.dispatcher.Dispatch(c.Manager.baseContext(), c, message))
	}
}

func (c *Connection) allowMessage() bool {
	limit := c.Manager.config.MaxMessagesPerSecond
	if limit <= 0 {
		return true
	}
	now := time.Now()
	if now.Sub(c.windowStart) > time.Second {
		c.windowStart = now
		c.messageCount = 0
	}
	c.messageCount++
	return c.messageCount <= limit
}
