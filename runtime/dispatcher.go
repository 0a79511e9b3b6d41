package runtime

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/services"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
)

// Pipeline is the part of the message pipeline the dispatcher calls into.
type Pipeline interface {
	HandleNewMessage(ctx context.Context, msg services.NewMessage) (any, error)
	FetchMessages(ctx context.Context, room domain.RoomID) ([]domain.ChatMessage, error)
}

type handlerFunc func(ctx context.Context, s *Session, cmd domain.Command) error

// Dispatcher parses inbound frames and routes them to the handler registered
// for the session's role. Garbage in is dropped without a reply.
type Dispatcher struct {
	log              *slog.Logger
	pipeline         Pipeline
	validate         *validator.Validate
	messageRule      string
	operationTimeout time.Duration
	tables           map[domain.Role]map[domain.CommandKind]handlerFunc
}

func NewDispatcher(log *slog.Logger, pipeline Pipeline, maxMessageLength int, operationTimeout time.Duration) *Dispatcher {
	d := &Dispatcher{
		log:              log,
		pipeline:         pipeline,
		validate:         validator.New(),
		messageRule:      fmt.Sprintf("required,max=%d", maxMessageLength),
		operationTimeout: operationTimeout,
	}
	d.tables = map[domain.Role]map[domain.CommandKind]handlerFunc{
		domain.RoleVisitor: {
			domain.CommandFetchMessages: d.fetchMessages,
			domain.CommandNewMessage:    d.newMessage,
		},
		domain.RoleModerator: {
			domain.CommandFetchMessages: d.fetchMessages,
			domain.CommandNewMessage:    d.newMessage,
		},
	}
	return d
}

// Parse turns a raw frame into a Command.
func (d *Dispatcher) Parse(data []byte) (domain.Command, error) {
	var frame domain.InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return domain.Command{}, fmt.Errorf("%w: %w", errors.ErrMalformedFrame, err)
	}
	kind := domain.ParseCommandKind(frame.Command)
	if kind == domain.CommandUnknown {
		return domain.Command{}, fmt.Errorf("%w: %q", errors.ErrUnknownCommand, frame.Command)
	}
	if kind == domain.CommandNewMessage {
		if err := d.validate.Var(frame.Message, d.messageRule); err != nil {
			return domain.Command{}, fmt.Errorf("%w: %w", errors.ErrMalformedFrame, err)
		}
	}
	return domain.Command{
		Kind:     kind,
		Message:  frame.Message,
		Email:    frame.Email,
		RoomName: domain.RoomID(frame.RoomName),
	}, nil
}

// Dispatch handles one frame of s. Only ErrSessionClosed is returned to the
// caller: every other failure has been answered or deliberately ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, s *Session, data []byte) error {
	if s.closed() {
		return errors.ErrSessionClosed
	}
	cmd, err := d.Parse(data)
	if err != nil {
		d.log.Debug("Frame ignored", "handle", s.Handle(), "error", err)
		return nil
	}
	handler, ok := d.tables[s.Role()][cmd.Kind]
	if !ok {
		d.log.Debug("Command not allowed for role", "handle", s.Handle(), "command", cmd.Kind)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, d.operationTimeout)
	defer cancel()
	if err = handler(ctx, s, cmd); err != nil {
		if errors.Is(err, errors.ErrSessionClosed) {
			return err
		}
		d.log.Debug("Command failed", "handle", s.Handle(), "command", cmd.Kind, "error", err)
	}
	return nil
}

func (d *Dispatcher) fetchMessages(ctx context.Context, s *Session, cmd domain.Command) error {
	room, err := s.policy.target(ctx, s, cmd)
	if err != nil {
		return err
	}
	messages, err := d.pipeline.FetchMessages(ctx, room)
	if err != nil {
		if replyErr := s.reply(ctx, domain.ErrorFrame{Error: errors.Code(err)}); replyErr != nil {
			return replyErr
		}
		return err
	}
	frame := domain.HistoryFrame{Messages: messages}
	if s.Role() == domain.RoleModerator {
		frame.RoomName = room
	}
	return s.reply(ctx, frame)
}

func (d *Dispatcher) newMessage(ctx context.Context, s *Session, cmd domain.Command) error {
	room, err := s.policy.target(ctx, s, cmd)
	if err != nil {
		return err
	}
	reply, err := d.pipeline.HandleNewMessage(ctx, services.NewMessage{
		Room:      room,
		Principal: s.principal,
		Text:      cmd.Message,
		Email:     cmd.Email,
	})
	if reply != nil {
		if replyErr := s.reply(ctx, reply); replyErr != nil {
			return replyErr
		}
	}
	return err
}
