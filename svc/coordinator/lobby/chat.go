package lobby

import (
	"fmt"
	"time"

	"github.com/mahammadbbyv/mirgos/pkg/protocol"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"
)

// How long a typing signal stays visible without being refreshed.
const TypingWindow = 5 * time.Second

type typingState struct {
	channel protocol.Channel
	at      time.Time
}

// ChatLog holds a lobby's entire chat history, room and private messages in
// one arrival-ordered sequence. Private messages are filtered per viewer on
// the way out, never on the way in.
type ChatLog struct {
	mutex    deadlock.Mutex
	messages []*protocol.ChatMessage
	seen     map[string]struct{}
	typing   map[string]typingState
}

func NewChatLog() *ChatLog {
	return &ChatLog{
		seen:   make(map[string]struct{}),
		typing: make(map[string]typingState),
	}
}

// dedupKey identifies a message for duplicate suppression. Messages that
// arrive with a client-assigned id dedup on that id alone; messages without
// one fall back to hashing sender, channel, body and timestamp.
func dedupKey(message protocol.ChatMessage) string {
	if message.ID != "" {
		return "id:" + message.ID
	}

	digest := xxhash.New()
	fmt.Fprintf(digest, "%s|%d|%s|%s|%d",
		message.From,
		message.Channel.Kind,
		message.Channel.Other,
		message.Body,
		message.Time,
	)
	return fmt.Sprintf("h:%x", digest.Sum64())
}

// Append stores a message and returns the stored copy. The second return is
// false when the message was a duplicate and nothing was stored.
func (c *ChatLog) Append(message protocol.ChatMessage) (protocol.ChatMessage, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	key := dedupKey(message)
	if _, ok := c.seen[key]; ok {
		return protocol.ChatMessage{}, false
	}
	c.seen[key] = struct{}{}

	if message.ID == "" {
		message.ID = uuid.NewString()
		c.seen["id:"+message.ID] = struct{}{}
	}
	if message.Time == 0 {
		message.Time = time.Now().UnixMilli()
	}
	message.Status = protocol.StatusSent

	stored := message
	c.messages = append(c.messages, &stored)
	return stored, true
}

func visible(message *protocol.ChatMessage, viewer string, channel protocol.Channel) bool {
	if message.Channel.Kind != channel.Kind {
		return false
	}
	if channel.Kind == protocol.ChannelRoom {
		return true
	}

	// A private conversation is visible from both ends.
	from, to := message.From, message.Channel.Other
	return (from == viewer && to == channel.Other) ||
		(from == channel.Other && to == viewer)
}

// History returns the messages a viewer may see on a channel, in arrival
// order.
func (c *ChatLog) History(viewer string, channel protocol.Channel) []protocol.ChatMessage {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	history := make([]protocol.ChatMessage, 0, len(c.messages))
	for _, message := range c.messages {
		if visible(message, viewer, channel) {
			history = append(history, *message)
		}
	}
	return history
}

// MarkDelivered advances a message to delivered once any recipient holds it.
func (c *ChatLog) MarkDelivered(id string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for _, message := range c.messages {
		if message.ID == id {
			message.Status = message.Status.Advance(protocol.StatusDelivered)
			return
		}
	}
}

// MarkRead marks every private message from one sender to the reader as
// read. Room messages are never marked read. Returns true when at least one
// message changed.
func (c *ChatLog) MarkRead(reader string, from string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	changed := false
	for _, message := range c.messages {
		if message.Channel.Kind != protocol.ChannelPrivate ||
			message.From != from ||
			message.Channel.Other != reader {
			continue
		}
		if hasRead(message, reader) {
			continue
		}
		message.ReadBy = append(message.ReadBy, reader)
		message.Status = message.Status.Advance(protocol.StatusRead)
		changed = true
	}
	return changed
}

func hasRead(message *protocol.ChatMessage, reader string) bool {
	for _, name := range message.ReadBy {
		if name == reader {
			return true
		}
	}
	return false
}

// UnreadCounts tallies the viewer's unread messages: private messages per
// sender, and the room bucket under the legacy "all" key the frontend still
// consumes.
func (c *ChatLog) UnreadCounts(viewer string) map[string]int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	counts := map[string]int{"all": 0}
	for _, message := range c.messages {
		if message.From == viewer || hasRead(message, viewer) {
			continue
		}
		if message.Channel.Kind == protocol.ChannelRoom {
			counts["all"]++
			continue
		}
		if message.Channel.Other == viewer {
			counts[message.From]++
		}
	}
	return counts
}

// SetTyping records or clears a player's typing signal on a channel.
func (c *ChatLog) SetTyping(player string, channel protocol.Channel, isTyping bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !isTyping {
		delete(c.typing, player)
		return
	}
	c.typing[player] = typingState{channel: channel, at: time.Now()}
}

// Typing lists the players whose typing signal on a channel is still inside
// the freshness window. Stale entries are pruned as a side effect.
func (c *ChatLog) Typing(channel protocol.Channel) []string {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	players := make([]string, 0, len(c.typing))
	for player, state := range c.typing {
		if time.Since(state.at) > TypingWindow {
			delete(c.typing, player)
			continue
		}
		if state.channel == channel {
			players = append(players, player)
		}
	}
	return players
}
