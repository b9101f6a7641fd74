package service

import (
	"errors"
	"fmt"

	"github.com/mahammadbbyv/mirgos/pkg/protocol"
	"github.com/mahammadbbyv/mirgos/svc/coordinator/clients"
	"github.com/mahammadbbyv/mirgos/svc/coordinator/lobby"

	"github.com/fxamacker/cbor/v2"
	"github.com/repeale/fp-go/option"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var errNotInLobby = errors.New("client is not in a lobby")

// lobbyFor resolves the client's current lobby. Most handlers refuse to do
// anything for unassociated connections.
func (c *Coordinator) lobbyFor(client clients.Client) (*lobby.Lobby, clients.Target, error) {
	target, ok := c.where(client)
	if !ok {
		return nil, clients.Target{}, errNotInLobby
	}

	found := c.Lobbies.Get(target.Lobby)
	if opt.IsNone(found) {
		return nil, clients.Target{}, errNotInLobby
	}
	return found.Value, target, nil
}

func (c *Coordinator) handleJoin(client clients.Client, data []byte) error {
	var message protocol.JoinMessage
	if err := cbor.Unmarshal(data, &message); err != nil {
		return err
	}
	if message.Lobby == "" || message.Player == "" {
		return fmt.Errorf("join needs a lobby and a player name")
	}

	joined, left := c.Lobbies.Join(message.Lobby, message.Player)
	c.Clients.Associate(client, message.Lobby, message.Player)

	if message.Country != "" {
		joined.SetCountry(message.Player, message.Country)
	}

	// The lobby the player abandoned, if it survived, hears about it too.
	if left != nil {
		c.announce(left, fmt.Sprintf("%s left the lobby", message.Player))
		c.broadcast(left.ID, protocol.LobbyMessage{
			Op:       protocol.LobbyOp,
			Snapshot: left.Snapshot(),
		})
	}

	c.announce(joined, fmt.Sprintf("%s joined the lobby", message.Player))
	c.broadcast(joined.ID, protocol.LobbyMessage{
		Op:       protocol.LobbyOp,
		Snapshot: joined.Snapshot(),
	})

	log.Info().
		Str("lobby", message.Lobby).
		Str("player", message.Player).
		Msg("player joined lobby")

	// A rejoin during a running game gets the board immediately.
	if round := joined.Game(); round != nil {
		snapshot := round.Snapshot()
		if opt.IsSome(snapshot) {
			return client.Send(protocol.GameStateMessage{
				Op:     protocol.GameStateOp,
				Active: true,
				State:  snapshot.Value,
			})
		}
	}
	return nil
}

func (c *Coordinator) handleLeave(client clients.Client, data []byte) error {
	var message protocol.LeaveMessage
	if err := cbor.Unmarshal(data, &message); err != nil {
		return err
	}

	target, ok := c.where(client)
	if !ok {
		return errNotInLobby
	}

	c.removePlayer(target)
	c.Clients.Dissociate(client)
	return nil
}

func (c *Coordinator) handleDisconnect(client clients.Client, logger zerolog.Logger) {
	target, ok := c.where(client)
	if !ok {
		return
	}

	logger.Info().
		Str("lobby", target.Lobby).
		Str("player", target.Player).
		Msg("player disconnected")

	c.Clients.Dissociate(client)
	c.removePlayer(target)
}

// removePlayer takes a player out of their lobby and notifies whoever is
// left. A running round keeps its player set; only the lobby roster shrinks.
func (c *Coordinator) removePlayer(target clients.Target) {
	left, deleted := c.Lobbies.Leave(target.Player)
	if left == nil || deleted {
		return
	}

	c.announce(left, fmt.Sprintf("%s left the lobby", target.Player))
	c.broadcast(left.ID, protocol.LobbyMessage{
		Op:       protocol.LobbyOp,
		Snapshot: left.Snapshot(),
	})
}

func (c *Coordinator) handleSetCountry(client clients.Client, data []byte) error {
	var message protocol.SetCountryMessage
	if err := cbor.Unmarshal(data, &message); err != nil {
		return err
	}

	l, target, err := c.lobbyFor(client)
	if err != nil {
		return err
	}

	l.SetCountry(target.Player, message.Country)
	c.broadcast(l.ID, protocol.LobbyMessage{
		Op:       protocol.LobbyOp,
		Snapshot: l.Snapshot(),
	})
	return nil
}

func (c *Coordinator) handleStartGame(client clients.Client, data []byte) error {
	var message protocol.StartGameMessage
	if err := cbor.Unmarshal(data, &message); err != nil {
		return err
	}

	l, target, err := c.lobbyFor(client)
	if err != nil {
		return err
	}

	round, err := l.StartGame(target.Player, c.gameOptions())
	if err != nil {
		return client.Send(protocol.NoticeMessage{
			Op:      protocol.NoticeOp,
			Message: err.Error(),
		})
	}

	log.Info().
		Str("lobby", l.ID).
		Str("host", target.Player).
		Msg("game starting")

	// The forwarder must be draining before the countdown starts emitting.
	go c.pollRound(l, round)
	go round.Run()
	return nil
}

func (c *Coordinator) handleSubmitAction(client clients.Client, data []byte) error {
	var message protocol.SubmitActionMessage
	if err := cbor.Unmarshal(data, &message); err != nil {
		return err
	}

	l, target, err := c.lobbyFor(client)
	if err != nil {
		return err
	}

	round := l.Game()
	if round == nil {
		return nil
	}

	round.SubmitAction(target.Player, message.Action)

	// Echo the updated board so the submitter sees their queue grow.
	snapshot := round.Snapshot()
	if opt.IsNone(snapshot) {
		return nil
	}
	return client.Send(protocol.GameStateMessage{
		Op:     protocol.GameStateOp,
		Active: true,
		State:  snapshot.Value,
	})
}

func (c *Coordinator) handleTurn(client clients.Client, op int, data []byte) error {
	var message protocol.TurnMessage
	if err := cbor.Unmarshal(data, &message); err != nil {
		return err
	}

	l, target, err := c.lobbyFor(client)
	if err != nil {
		return err
	}

	round := l.Game()
	if round == nil {
		return nil
	}

	if op == protocol.FinishTurnOp {
		round.FinishTurn(target.Player)
	} else {
		round.UndoFinish(target.Player)
	}
	return nil
}

func (c *Coordinator) handleRequestGameState(client clients.Client, data []byte) error {
	var message protocol.RequestStateMessage
	if err := cbor.Unmarshal(data, &message); err != nil {
		return err
	}

	l, _, err := c.lobbyFor(client)
	if err != nil {
		return err
	}
	// A stale request for a lobby the client already left gets no answer.
	if message.Lobby != "" && message.Lobby != l.ID {
		return nil
	}

	round := l.Game()
	if round == nil {
		return client.Send(protocol.GameStateMessage{Op: protocol.GameStateOp})
	}

	snapshot := round.Snapshot()
	if opt.IsNone(snapshot) {
		return client.Send(protocol.GameStateMessage{Op: protocol.GameStateOp})
	}
	return client.Send(protocol.GameStateMessage{
		Op:     protocol.GameStateOp,
		Active: true,
		State:  snapshot.Value,
	})
}

func (c *Coordinator) handleRequestRoundStart(client clients.Client, data []byte) error {
	var message protocol.RequestStateMessage
	if err := cbor.Unmarshal(data, &message); err != nil {
		return err
	}

	l, _, err := c.lobbyFor(client)
	if err != nil {
		return err
	}
	if message.Lobby != "" && message.Lobby != l.ID {
		return nil
	}

	round := l.Game()
	if round == nil {
		return nil
	}

	snapshot := round.Snapshot()
	if opt.IsNone(snapshot) {
		return nil
	}
	return client.Send(protocol.RoundStartMessage{
		Op:        protocol.RoundStartOp,
		Round:     snapshot.Value.Round,
		StartedAt: snapshot.Value.RoundStartedAt,
	})
}

func (c *Coordinator) handlePing(client clients.Client, data []byte) error {
	var message protocol.PingMessage
	if err := cbor.Unmarshal(data, &message); err != nil {
		return err
	}
	return client.Send(protocol.PongMessage{
		Op: protocol.PongOp,
		Ts: message.Ts,
	})
}

func (c *Coordinator) handleReportPing(client clients.Client, data []byte) error {
	var message protocol.ReportPingMessage
	if err := cbor.Unmarshal(data, &message); err != nil {
		return err
	}

	l, target, err := c.lobbyFor(client)
	if err != nil {
		return err
	}

	l.SetPing(target.Player, message.Ping)
	c.broadcast(l.ID, protocol.LobbyPingsMessage{
		Op:    protocol.LobbyPingsOp,
		Pings: l.Pings(),
	})
	return nil
}
