package chathub

import (
	"context"
	"log/slog"

	apperrors "strangerchat/backend/internal/errors"
	"strangerchat/backend/internal/logger"
	"strangerchat/backend/internal/models"
)

// MessageSender is the part of the message channel the hub forwards
// socket commands to.
type MessageSender interface {
	Send(ctx context.Context, roomID string, sender models.Participant, content string, replyTo *uint, dedupeKey string) (*models.Message, error)
}

// ActiveRooms lists a participant's open rooms for session restore.
type ActiveRooms interface {
	GetActiveRoomsFor(ctx context.Context, p models.Participant) ([]models.ChatRoom, error)
}

// Inbound is a command read from a client's socket.
type Inbound struct {
	Client  Client
	Command models.Command
}

const commandQueueSize = 32

// commandQueue runs one participant's commands in arrival order. pending
// counts commands handed to the worker and not yet settled.
type commandQueue struct {
	cmds    chan models.Command
	pending int
}

// ManagerService is the realtime hub of one server instance. It keeps the
// locally connected clients and routes every participant-channel event
// published by any instance to the matching client.
type ManagerService struct {
	Clients map[string]Client

	RegisterCh   chan Client
	UnregisterCh chan Client
	IncomingCh   chan Inbound

	Bus      EventBus
	Messages MessageSender
	Rooms    ActiveRooms

	queues  map[string]*commandQueue
	settled chan string

	done chan struct{}
	log  *slog.Logger
}

func NewManagerService(bus EventBus, messages MessageSender, rooms ActiveRooms) *ManagerService {
	return &ManagerService{
		Clients:      make(map[string]Client),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		IncomingCh:   make(chan Inbound, 64),
		Bus:          bus,
		Messages:     messages,
		Rooms:        rooms,
		queues:       make(map[string]*commandQueue),
		settled:      make(chan string),
		done:         make(chan struct{}),
		log:          logger.With("svc", "hub"),
	}
}

// Run owns the client map. It returns when ctx is done or the event
// subscription cannot be established.
func (m *ManagerService) Run(ctx context.Context) error {
	defer close(m.done)
	sub, err := m.Bus.PSubscribe(ctx, participantChannelPrefix+"*")
	if err != nil {
		return err
	}
	defer sub.Close()
	deliveries := sub.Deliveries()

	m.log.Info("hub started")
	for {
		select {
		case <-ctx.Done():
			for key, c := range m.Clients {
				delete(m.Clients, key)
				c.Close()
			}
			for key, q := range m.queues {
				delete(m.queues, key)
				close(q.cmds)
			}
			return nil

		case c := <-m.RegisterCh:
			m.register(ctx, c)

		case c := <-m.UnregisterCh:
			key := c.GetParticipant().Key()
			if cur, ok := m.Clients[key]; ok && cur == c {
				delete(m.Clients, key)
				c.Close()
				m.log.Debug("client unregistered", "participant", key)
			}

		case in := <-m.IncomingCh:
			m.enqueue(ctx, in)

		case key := <-m.settled:
			m.settle(key)

		case d, ok := <-deliveries:
			if !ok {
				m.log.Warn("event subscription closed")
				return apperrors.New(apperrors.KindTransient, "event subscription closed")
			}
			m.route(d)
		}
	}
}

// Done is closed once Run has returned.
func (m *ManagerService) Done() <-chan struct{} { return m.done }

// register replaces any previous connection of the same participant and
// tells the client which rooms it is still in.
func (m *ManagerService) register(ctx context.Context, c Client) {
	key := c.GetParticipant().Key()
	if old, ok := m.Clients[key]; ok && old != c {
		old.Close()
	}
	m.Clients[key] = c
	m.log.Debug("client registered", "participant", key)

	if m.Rooms == nil {
		return
	}
	rooms, err := m.Rooms.GetActiveRoomsFor(ctx, c.GetParticipant())
	if err != nil {
		m.log.Warn("session restore failed", "participant", key, "err", err)
		return
	}
	for i := range rooms {
		m.deliver(key, c, models.Event{Type: models.EventSessionRestored, RoomID: rooms[i].ID, Room: &rooms[i]})
	}
}

func (m *ManagerService) route(d Delivery) {
	p, ok := d.Recipient()
	if !ok {
		return
	}
	key := p.Key()
	if c, ok := m.Clients[key]; ok {
		m.deliver(key, c, d.Event)
	}
}

// deliver never blocks the hub; a client that cannot keep up is dropped.
func (m *ManagerService) deliver(key string, c Client, ev models.Event) {
	select {
	case c.GetSendChannel() <- ev:
	default:
		m.log.Warn("client too slow, dropping connection", "participant", key)
		delete(m.Clients, key)
		c.Close()
	}
}

// enqueue hands a command to its sender's worker, starting one if the
// sender has nothing in flight. Commands of one sender never run
// concurrently, so their messages commit in the order they were sent.
func (m *ManagerService) enqueue(ctx context.Context, in Inbound) {
	sender := in.Client.GetParticipant()
	key := sender.Key()
	q, ok := m.queues[key]
	if !ok {
		q = &commandQueue{cmds: make(chan models.Command, commandQueueSize)}
		m.queues[key] = q
		go m.drain(ctx, sender, q.cmds)
	}
	select {
	case q.cmds <- in.Command:
		q.pending++
	default:
		go m.replyError(ctx, sender, in.Command, apperrors.New(apperrors.KindTransient, "too many pending commands"))
	}
}

func (m *ManagerService) drain(ctx context.Context, sender models.Participant, cmds <-chan models.Command) {
	for cmd := range cmds {
		m.handleCommand(ctx, sender, cmd)
		select {
		case m.settled <- sender.Key():
		case <-ctx.Done():
		}
	}
}

// settle retires a worker once its queue is empty. Only the hub sends on
// q.cmds, so closing it here is safe.
func (m *ManagerService) settle(key string) {
	q, ok := m.queues[key]
	if !ok {
		return
	}
	q.pending--
	if q.pending == 0 {
		delete(m.queues, key)
		close(q.cmds)
	}
}

func (m *ManagerService) handleCommand(ctx context.Context, sender models.Participant, cmd models.Command) {
	if cmd.Type != models.CommandSend {
		m.replyError(ctx, sender, cmd, apperrors.Newf(apperrors.KindInvalidArgument, "unknown command %q", cmd.Type))
		return
	}
	if _, err := m.Messages.Send(ctx, cmd.RoomID, sender, cmd.Content, cmd.ReplyToID, cmd.ClientID); err != nil {
		m.replyError(ctx, sender, cmd, err)
	}
}

// replyError goes through the bus like every other event, so the hub's
// goroutine stays the only writer of client channels.
func (m *ManagerService) replyError(ctx context.Context, to models.Participant, cmd models.Command, err error) {
	ev := models.Event{
		Type:   models.EventCommandError,
		RoomID: cmd.RoomID,
		Error: &models.EventError{
			Kind:     string(apperrors.KindOf(err)),
			Message:  err.Error(),
			ClientID: cmd.ClientID,
		},
	}
	if perr := m.Bus.PublishTo(ctx, ev, to); perr != nil {
		m.log.Warn("failed to report command error", "participant", to.Key(), "err", perr)
	}
}
