package service

import (
	"context"
	"time"

	"github.com/mahammadbbyv/mirgos/pkg/protocol"
	"github.com/mahammadbbyv/mirgos/svc/coordinator/clients"
	"github.com/mahammadbbyv/mirgos/svc/coordinator/config"
	"github.com/mahammadbbyv/mirgos/svc/coordinator/game"
	"github.com/mahammadbbyv/mirgos/svc/coordinator/lobby"

	"github.com/repeale/fp-go/option"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Coordinator ties the pieces together: it drains client connections,
// dispatches their messages to the lobby and game layers, and fans state
// changes back out over the connection manager.
type Coordinator struct {
	settings config.Settings

	Clients *clients.Manager
	Lobbies *lobby.Store
}

func NewCoordinator(ctx context.Context, settings config.Settings) *Coordinator {
	return &Coordinator{
		settings: settings,
		Clients:  clients.NewManager(),
		Lobbies:  lobby.NewStore(ctx),
	}
}

func (c *Coordinator) gameOptions() game.Options {
	return game.Options{
		CountdownSeconds: c.settings.Game.CountdownSeconds,
		RoundSeconds:     c.settings.Game.RoundSeconds,
		GraceSeconds:     c.settings.Game.GraceSeconds,
		StartingBudget:   c.settings.Game.StartingBudget,
	}
}

// PollClients accepts new connections for the lifetime of the service.
func (c *Coordinator) PollClients(ctx context.Context) {
	for {
		select {
		case client := <-c.Clients.ReceiveClients():
			go c.pollClient(ctx, client)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Coordinator) pollClient(ctx context.Context, client clients.Client) {
	logger := log.With().Uint16("clientId", client.Id()).Logger()

	// Chat is the only client-driven fan-out, so it is the only thing
	// worth rate limiting.
	chatLimiter := rate.NewLimiter(
		rate.Limit(c.settings.Chat.MessagesPerSecond),
		c.settings.Chat.Burst,
	)

	events := client.ReceiveEvents()
	for {
		select {
		case <-ctx.Done():
			return
		case <-client.SessionContext().Done():
			c.handleDisconnect(client, logger)
			return
		case <-client.ReceiveDisconnect():
			c.handleDisconnect(client, logger)
			return
		case event := <-events:
			c.handleEvent(client, chatLimiter, event, logger)
		}
	}
}

func (c *Coordinator) handleEvent(
	client clients.Client,
	chatLimiter *rate.Limiter,
	event clients.Event,
	logger zerolog.Logger,
) {
	var err error

	switch event.Op {
	case protocol.JoinOp:
		err = c.handleJoin(client, event.Data)
	case protocol.LeaveOp:
		err = c.handleLeave(client, event.Data)
	case protocol.SetCountryOp:
		err = c.handleSetCountry(client, event.Data)
	case protocol.StartGameOp:
		err = c.handleStartGame(client, event.Data)
	case protocol.SubmitActionOp:
		err = c.handleSubmitAction(client, event.Data)
	case protocol.FinishTurnOp, protocol.UndoFinishOp:
		err = c.handleTurn(client, event.Op, event.Data)
	case protocol.RequestGameStateOp:
		err = c.handleRequestGameState(client, event.Data)
	case protocol.RequestRoundStartOp:
		err = c.handleRequestRoundStart(client, event.Data)
	case protocol.RoomMessageOp, protocol.PrivateMessageOp:
		err = c.handleChatMessage(client, chatLimiter, event.Op, event.Data)
	case protocol.RequestChatHistoryOp:
		err = c.handleChatHistory(client, event.Data)
	case protocol.MarkReadOp:
		err = c.handleMarkRead(client, event.Data)
	case protocol.RequestUnreadOp:
		err = c.handleRequestUnread(client, event.Data)
	case protocol.TypingOp:
		err = c.handleTyping(client, event.Data)
	case protocol.PingOp:
		err = c.handlePing(client, event.Data)
	case protocol.ReportPingOp:
		err = c.handleReportPing(client, event.Data)
	default:
		logger.Debug().Int("op", event.Op).Msg("unknown op")
	}

	if err != nil {
		logger.Debug().Err(err).Int("op", event.Op).Msg("failed to handle event")
	}
}

// where reports the lobby and player a connection is bound to; every
// operation past join starts here.
func (c *Coordinator) where(client clients.Client) (clients.Target, bool) {
	found := c.Clients.GetTarget(client)
	if opt.IsNone(found) {
		return clients.Target{}, false
	}
	return found.Value, true
}

// broadcast fans a message out to every connection bound to a lobby. Slow
// clients fail their own Send; one of them cannot stall the rest.
func (c *Coordinator) broadcast(lobbyID string, message interface{}) {
	for _, client := range c.Clients.ForLobby(lobbyID) {
		if err := client.Send(message); err != nil {
			log.Debug().
				Err(err).
				Uint16("clientId", client.Id()).
				Msg("failed to send broadcast")
		}
	}
}

// sendTo delivers a message to one player's live connection. It reports
// false when the player has no connection in the lobby right now.
func (c *Coordinator) sendTo(lobbyID string, player string, message interface{}) bool {
	found := c.Clients.Lookup(lobbyID, player)
	if opt.IsNone(found) {
		return false
	}
	return found.Value.Send(message) == nil
}

// announce appends a system line to the lobby's room chat and fans it out.
func (c *Coordinator) announce(l *lobby.Lobby, body string) {
	stored, ok := l.Chat().Append(protocol.ChatMessage{
		From:    "system",
		Channel: protocol.RoomChannel(),
		Body:    body,
		Lobby:   l.ID,
		Time:    time.Now().UnixMilli(),
	})
	if !ok {
		return
	}

	c.broadcast(l.ID, protocol.ChatPacket{
		Op:      protocol.RoomMessageOp,
		Lobby:   l.ID,
		Message: stored,
	})
}

// pollRound forwards one round engine's events to the lobby until the lobby
// is deleted.
func (c *Coordinator) pollRound(l *lobby.Lobby, round *game.Round) {
	for {
		select {
		case <-l.Context().Done():
			return
		case event := <-round.Events():
			c.handleRoundEvent(l, round, event)
		}
	}
}

func (c *Coordinator) handleRoundEvent(l *lobby.Lobby, round *game.Round, event game.Event) {
	switch event.Kind {
	case game.EventCountdown:
		c.broadcast(l.ID, protocol.CountdownMessage{
			Op:      protocol.StartCountdownOp,
			Seconds: event.Seconds,
		})

	case game.EventBegin:
		c.broadcast(l.ID, protocol.GenericMessage{Op: protocol.MoveToGameOp})
		c.broadcastGameState(l, round)

	case game.EventRoundStart:
		c.broadcast(l.ID, protocol.RoundStartMessage{
			Op:        protocol.RoundStartOp,
			Round:     event.Round,
			StartedAt: event.StartedAt,
		})

	case game.EventWaiting:
		c.broadcast(l.ID, protocol.WaitingMessage{
			Op:      protocol.WaitingPlayersOp,
			Players: event.Waiting,
		})

	case game.EventResolved:
		c.broadcast(l.ID, protocol.AllFinishedMessage{
			Op:       protocol.AllFinishedOp,
			Finished: true,
		})
		c.broadcast(l.ID, protocol.RoundActionsMessage{
			Op:      protocol.RoundActionsOp,
			Round:   event.Summary.Round,
			Actions: event.Summary.Actions,
			State:   event.Summary.State,
		})

	case game.EventNewRound:
		c.broadcast(l.ID, protocol.AllFinishedMessage{
			Op:       protocol.AllFinishedOp,
			Finished: false,
		})
		c.broadcastGameState(l, round)
	}
}

func (c *Coordinator) broadcastGameState(l *lobby.Lobby, round *game.Round) {
	snapshot := round.Snapshot()
	if opt.IsNone(snapshot) {
		return
	}
	c.broadcast(l.ID, protocol.GameStateMessage{
		Op:     protocol.GameStateOp,
		Active: true,
		State:  snapshot.Value,
	})
}
