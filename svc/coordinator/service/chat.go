package service

import (
	"time"

	"github.com/mahammadbbyv/mirgos/pkg/protocol"
	"github.com/mahammadbbyv/mirgos/svc/coordinator/clients"
	"github.com/mahammadbbyv/mirgos/svc/coordinator/lobby"

	"github.com/fxamacker/cbor/v2"
	"github.com/repeale/fp-go"
	"golang.org/x/time/rate"
)

func (c *Coordinator) handleChatMessage(
	client clients.Client,
	chatLimiter *rate.Limiter,
	op int,
	data []byte,
) error {
	var packet protocol.ChatPacket
	if err := cbor.Unmarshal(data, &packet); err != nil {
		return err
	}

	l, target, err := c.lobbyFor(client)
	if err != nil {
		return err
	}

	if !chatLimiter.Allow() {
		return client.Send(protocol.NoticeMessage{
			Op:      protocol.NoticeOp,
			Message: "you are sending messages too quickly",
		})
	}

	// The sender and lobby always come from the connection, never from the
	// packet; a client cannot speak as someone else.
	message := packet.Message
	message.From = target.Player
	message.Lobby = l.ID
	if op == protocol.RoomMessageOp {
		message.Channel = protocol.RoomChannel()
	} else {
		message.Channel = protocol.PrivateChannel(message.Channel.Other)
		if message.Channel.Other == "" || message.Channel.Other == target.Player {
			return nil
		}
	}

	stored, ok := l.Chat().Append(message)
	if !ok {
		// A duplicate; the first copy already went out.
		return nil
	}

	if op == protocol.RoomMessageOp {
		c.broadcast(l.ID, protocol.ChatPacket{
			Op:      protocol.RoomMessageOp,
			Lobby:   l.ID,
			Message: stored,
		})
		return nil
	}

	// The recipient's copy already carries the delivery receipt; the log
	// only records it once their connection actually took the message.
	recipientCopy := stored
	recipientCopy.Status = recipientCopy.Status.Advance(protocol.StatusDelivered)
	delivered := c.sendTo(l.ID, stored.Channel.Other, protocol.ChatPacket{
		Op:      protocol.PrivateMessageOp,
		Lobby:   l.ID,
		Message: recipientCopy,
	})
	if delivered {
		l.Chat().MarkDelivered(stored.ID)
		stored.Status = recipientCopy.Status
	}

	return client.Send(protocol.ChatPacket{
		Op:      protocol.PrivateMessageOp,
		Lobby:   l.ID,
		Message: stored,
	})
}

func (c *Coordinator) handleChatHistory(client clients.Client, data []byte) error {
	var request protocol.ChatHistoryRequest
	if err := cbor.Unmarshal(data, &request); err != nil {
		return err
	}

	l, target, err := c.lobbyFor(client)
	if err != nil {
		return err
	}

	// Opening a private conversation reads it; the history below already
	// shows the updated statuses.
	if request.Channel.Kind == protocol.ChannelPrivate {
		if err := c.markRead(client, l, target.Player, request.Channel.Other); err != nil {
			return err
		}
	}

	return client.Send(protocol.ChatHistoryMessage{
		Op:       protocol.ChatHistoryOp,
		Channel:  request.Channel,
		Messages: l.Chat().History(target.Player, request.Channel),
	})
}

// markRead marks a private conversation read and fans out the receipts: the
// author learns their messages were seen, the reader gets fresh counts.
func (c *Coordinator) markRead(client clients.Client, l *lobby.Lobby, reader string, from string) error {
	if l.Chat().MarkRead(reader, from) {
		c.sendTo(l.ID, from, protocol.MessagesReadMessage{
			Op: protocol.MessagesReadOp,
			By: reader,
			Ts: time.Now().UnixMilli(),
		})
	}

	return client.Send(protocol.UnreadCountsMessage{
		Op:     protocol.UnreadCountsOp,
		Counts: l.Chat().UnreadCounts(reader),
	})
}

func (c *Coordinator) handleMarkRead(client clients.Client, data []byte) error {
	var message protocol.MarkReadMessage
	if err := cbor.Unmarshal(data, &message); err != nil {
		return err
	}

	l, target, err := c.lobbyFor(client)
	if err != nil {
		return err
	}

	return c.markRead(client, l, target.Player, message.From)
}

func (c *Coordinator) handleRequestUnread(client clients.Client, data []byte) error {
	var message protocol.RequestUnreadMessage
	if err := cbor.Unmarshal(data, &message); err != nil {
		return err
	}

	l, target, err := c.lobbyFor(client)
	if err != nil {
		return err
	}
	if message.Lobby != "" && message.Lobby != l.ID {
		return nil
	}

	return client.Send(protocol.UnreadCountsMessage{
		Op:     protocol.UnreadCountsOp,
		Counts: l.Chat().UnreadCounts(target.Player),
	})
}

func (c *Coordinator) handleTyping(client clients.Client, data []byte) error {
	var message protocol.TypingMessage
	if err := cbor.Unmarshal(data, &message); err != nil {
		return err
	}

	l, target, err := c.lobbyFor(client)
	if err != nil {
		return err
	}

	chat := l.Chat()
	chat.SetTyping(target.Player, message.Channel, message.IsTyping)

	update := protocol.TypingUpdateMessage{
		Op:       protocol.TypingUpdateOp,
		Channel:  message.Channel,
		Players:  chat.Typing(message.Channel),
		IsTyping: message.IsTyping,
	}

	if message.Channel.Kind == protocol.ChannelRoom {
		// The actor already knows they are typing; the list they caused
		// carries only the others.
		update.Players = fp.Filter(func(player string) bool {
			return player != target.Player
		})(update.Players)
		c.broadcast(l.ID, update)
		return nil
	}

	// Only the other end of a private conversation sees the indicator. The
	// channel is flipped so the recipient sees who is typing at them.
	update.Channel = protocol.PrivateChannel(target.Player)
	c.sendTo(l.ID, message.Channel.Other, update)
	return nil
}
