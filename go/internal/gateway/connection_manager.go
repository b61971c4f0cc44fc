package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/battletimer/go/internal/broadcast"
	"github.com/mcdev12/battletimer/go/internal/clock"
	"github.com/mcdev12/battletimer/go/internal/schedule"
	"github.com/mcdev12/battletimer/go/internal/timer"
	"github.com/mcdev12/battletimer/go/internal/timerstore"
	"github.com/rs/zerolog/log"
)

// TimerControl is the part of the timer controller the gateway drives. A local
// *timer.Controller and a remote rpc.TimerClient both satisfy it.
type TimerControl interface {
	Control(ctx context.Context, actorID string, cmd timer.Command) (clock.State, error)
	Snapshot(ctx context.Context, token string) (timer.Snapshot, error)
}

// ScheduleControl is the part of the schedule service the gateway drives.
type ScheduleControl interface {
	SetTimeSlot(ctx context.Context, actorID string, cmd schedule.SlotCommand) (schedule.Schedule, error)
	SetDateRange(ctx context.Context, actorID string, cmd schedule.RangeCommand) (schedule.Schedule, error)
	View(ctx context.Context, guildID string) (schedule.View, error)
}

// ConnectionManager manages websocket connections and the broadcast rooms they
// have joined.
type ConnectionManager struct {
	connections map[*Connection]struct{}
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	subscriber broadcast.Subscriber
	timers     TimerControl
	schedules  ScheduleControl

	ctx    context.Context
	cancel context.CancelFunc
}

// Connection is one websocket client. It may join any number of rooms up to
// ConnectionConfig.MaxRooms.
type Connection struct {
	ID          string
	ActorID     string
	ConnectedAt time.Time

	conn    *websocket.Conn
	manager *ConnectionManager
	send    chan []byte

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu    sync.Mutex
	rooms map[string]*broadcast.Subscription
}

// ConnectionConfig holds configuration for websocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	RequestTimeout  time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	MaxRooms        int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default websocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		RequestTimeout:  10 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		MaxRooms:        64,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a connection manager. Rooms are subscribed on
// subscriber; commands go to timers and schedules.
func NewConnectionManager(config ConnectionConfig, subscriber broadcast.Subscriber, timers TimerControl, schedules ScheduleControl) *ConnectionManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &ConnectionManager{
		connections: make(map[*Connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:     config,
		subscriber: subscriber,
		timers:     timers,
		schedules:  schedules,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start blocks until ctx ends, then closes every connection.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")
	<-ctx.Done()
	log.Info().Msg("connection manager shutting down")
	cm.Close()
}

// Close disconnects every client.
func (cm *ConnectionManager) Close() {
	cm.cancel()

	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for c := range cm.connections {
		conns = append(conns, c)
	}
	cm.mu.RUnlock()

	for _, c := range conns {
		c.close()
	}
}

// UpgradeConnection upgrades an HTTP request to a websocket and joins rooms.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, actorID string, rooms []string) error {
	if cm.ctx.Err() != nil {
		return errors.New("connection manager closed")
	}
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	ctx, cancel := context.WithCancel(cm.ctx)
	connection := &Connection{
		ID:          uuid.New().String(),
		ActorID:     actorID,
		ConnectedAt: time.Now(),
		conn:        conn,
		manager:     cm,
		send:        make(chan []byte, cm.config.SendBufferSize),
		ctx:         ctx,
		cancel:      cancel,
		rooms:       make(map[string]*broadcast.Subscription),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	for _, room := range rooms {
		connection.join(room, "")
	}

	log.Info().
		Str("connection_id", connection.ID).
		Str("actor_id", actorID).
		Strs("rooms", rooms).
		Msg("websocket connection established")
	return nil
}

func (cm *ConnectionManager) registerConnection(c *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.connections[c] = struct{}{}
}

func (cm *ConnectionManager) unregisterConnection(c *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if _, ok := cm.connections[c]; ok {
		delete(cm.connections, c)
		log.Info().
			Str("connection_id", c.ID).
			Str("actor_id", c.ActorID).
			Dur("connected_for", time.Since(c.ConnectedAt)).
			Msg("connection unregistered")
	}
}

// Stats describes the connections currently open.
type Stats struct {
	TotalConnections int            `json:"total_connections"`
	Rooms            map[string]int `json:"rooms"`
}

// GetConnectionStats returns statistics about active connections.
func (cm *ConnectionManager) GetConnectionStats() Stats {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for c := range cm.connections {
		conns = append(conns, c)
	}
	cm.mu.RUnlock()

	stats := Stats{TotalConnections: len(conns), Rooms: make(map[string]int)}
	for _, c := range conns {
		c.mu.Lock()
		for room := range c.rooms {
			stats.Rooms[room]++
		}
		c.mu.Unlock()
	}
	return stats
}

// parseRoom checks that room names a timer or a guild.
func parseRoom(room string) (kind, id string, err error) {
	switch {
	case strings.HasPrefix(room, "room:"):
		id = strings.TrimPrefix(room, "room:")
		if !timerstore.ValidToken(id) {
			return "", "", fmt.Errorf("%w: bad timer room %q", errBadMessage, room)
		}
		return "room", id, nil
	case strings.HasPrefix(room, "guild:"):
		id = strings.TrimPrefix(room, "guild:")
		if id == "" {
			return "", "", fmt.Errorf("%w: bad guild room %q", errBadMessage, room)
		}
		return "guild", id, nil
	}
	return "", "", fmt.Errorf("%w: unknown room %q", errBadMessage, room)
}

// join subscribes first and then sends the current state, so a change
// published in between reaches the client at least once. Clients drop the
// older of two states by revision.
func (c *Connection) join(room, requestID string) {
	kind, id, err := parseRoom(room)
	if err != nil {
		c.reply(errorReply(requestID, err))
		return
	}

	c.mu.Lock()
	previous, rejoin := c.rooms[room]
	if !rejoin && len(c.rooms) >= c.manager.config.MaxRooms {
		c.mu.Unlock()
		c.reply(errorReply(requestID, fmt.Errorf("%w: too many rooms", errBadMessage)))
		return
	}
	c.mu.Unlock()
	if rejoin {
		previous.Close()
	}

	sub, err := c.manager.subscriber.Subscribe(c.ctx, room)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Str("room", room).Msg("failed to subscribe")
		c.reply(errorReply(requestID, fmt.Errorf("%w: %v", timer.ErrUnavailable, err)))
		return
	}
	c.mu.Lock()
	c.rooms[room] = sub
	c.mu.Unlock()
	go c.forward(sub)

	ctx, cancel := context.WithTimeout(c.ctx, c.manager.config.RequestTimeout)
	defer cancel()

	var (
		event   string
		payload any
	)
	switch kind {
	case "room":
		snap, err := c.manager.timers.Snapshot(ctx, id)
		if err != nil {
			// Stay subscribed: the timer may be provisioned later.
			c.reply(errorReply(requestID, err))
			return
		}
		event, payload = broadcast.TimerUpdateEvent(id), snap.State
	case "guild":
		view, err := c.manager.schedules.View(ctx, id)
		if err != nil {
			c.reply(errorReply(requestID, err))
			return
		}
		event, payload = broadcast.GuildUpdateEvent, view
	}

	data, err := json.Marshal(payload)
	if err != nil {
		c.reply(errorReply(requestID, err))
		return
	}
	c.reply(ServerMessage{Type: TypeSnapshot, RequestID: requestID, Room: room, Event: event, Data: data})
}

func (c *Connection) leave(room string) {
	c.mu.Lock()
	sub, ok := c.rooms[room]
	delete(c.rooms, room)
	c.mu.Unlock()
	if ok {
		sub.Close()
	}
}

// forward relays one subscription. If the broadcaster drops the subscription
// while the client is still in the room, the room is joined again so the
// client gets a fresh snapshot instead of silently missing updates.
func (c *Connection) forward(sub *broadcast.Subscription) {
	for msg := range sub.C {
		c.reply(ServerMessage{Type: TypeEvent, Room: msg.Room, Event: msg.Event, Data: msg.Data})
	}

	c.mu.Lock()
	current := c.rooms[sub.Room] == sub
	c.mu.Unlock()
	if current && c.ctx.Err() == nil {
		log.Warn().Str("connection_id", c.ID).Str("room", sub.Room).Msg("subscription dropped, rejoining")
		c.join(sub.Room, "")
	}
}

// reply queues msg for the write pump. A client whose queue is full is
// disconnected.
func (c *Connection) reply(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to marshal websocket message")
		return
	}
	select {
	case <-c.ctx.Done():
	case c.send <- data:
	default:
		log.Warn().
			Str("connection_id", c.ID).
			Str("actor_id", c.ActorID).
			Msg("connection send buffer full, closing connection")
		c.close()
	}
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		subs := c.rooms
		c.rooms = make(map[string]*broadcast.Subscription)
		c.mu.Unlock()
		for _, sub := range subs {
			sub.Close()
		}

		c.conn.Close()
		c.manager.unregisterConnection(c)
	})
}

// writePump sends queued messages and pings to the websocket.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.manager.config.WriteTimeout))
			return

		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to websocket")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump reads client messages until the websocket closes.
func (c *Connection) readPump() {
	defer c.close()

	c.conn.SetReadLimit(c.manager.config.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected websocket close error")
			}
			return
		}

		c.handleClientMessage(message)
		_ = c.conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	}
}

// handleClientMessage processes one message received from the client. Replies
// go to this connection only; state changes reach everyone through the rooms.
func (c *Connection) handleClientMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.reply(errorReply("", fmt.Errorf("%w: %v", errBadMessage, err)))
		return
	}

	log.Debug().
		Str("connection_id", c.ID).
		Str("actor_id", c.ActorID).
		Str("type", string(msg.Type)).
		Msg("received client message")

	switch msg.Type {
	case TypeJoin:
		c.join(msg.Room, msg.RequestID)
	case TypeLeave:
		c.leave(msg.Room)
		c.reply(ServerMessage{Type: TypeAck, RequestID: msg.RequestID, Room: msg.Room})
	case TypeTimerControl:
		c.handleTimerControl(msg)
	case TypeSetTimeSlot, TypeSetDateRange:
		c.handleScheduleChange(msg)
	default:
		c.reply(errorReply(msg.RequestID, fmt.Errorf("%w: unknown type %q", errBadMessage, msg.Type)))
	}
}

func (c *Connection) handleTimerControl(msg ClientMessage) {
	cmd, err := timer.ParseCommand(msg.Data)
	if err != nil {
		c.reply(errorReply(msg.RequestID, err))
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.manager.config.RequestTimeout)
	defer cancel()

	state, err := c.manager.timers.Control(ctx, c.ActorID, cmd)
	if err != nil {
		c.reply(errorReply(msg.RequestID, err))
		return
	}
	c.ack(msg.RequestID, broadcast.TimerRoom(cmd.Token), state)
}

func (c *Connection) handleScheduleChange(msg ClientMessage) {
	ctx, cancel := context.WithTimeout(c.ctx, c.manager.config.RequestTimeout)
	defer cancel()

	var (
		sched schedule.Schedule
		err   error
	)
	if msg.Type == TypeSetTimeSlot {
		var cmd schedule.SlotCommand
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			c.reply(errorReply(msg.RequestID, fmt.Errorf("%w: %v", schedule.ErrInvalidSlot, err)))
			return
		}
		sched, err = c.manager.schedules.SetTimeSlot(ctx, c.ActorID, cmd)
	} else {
		var cmd schedule.RangeCommand
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			c.reply(errorReply(msg.RequestID, fmt.Errorf("%w: %v", schedule.ErrInvalidRange, err)))
			return
		}
		sched, err = c.manager.schedules.SetDateRange(ctx, c.ActorID, cmd)
	}
	if err != nil {
		c.reply(errorReply(msg.RequestID, err))
		return
	}
	c.ack(msg.RequestID, broadcast.GuildRoom(sched.GuildID), sched)
}

func (c *Connection) ack(requestID, room string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.reply(errorReply(requestID, err))
		return
	}
	c.reply(ServerMessage{Type: TypeAck, RequestID: requestID, Room: room, Data: data})
}
