package clients

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"

	"github.com/repeale/fp-go/option"
	"github.com/sasha-s/go-deadlock"
)

const (
	CLIENT_MESSAGE_LIMIT int = 16
)

// A decoded event from a client connection. Data is the raw CBOR message;
// the op has already been peeked so the service can dispatch without
// decoding twice.
type Event struct {
	Op   int
	Data []byte
}

type Client interface {
	// Get a string identifier for this client for logging purposes.
	Reference() string
	Id() uint16
	Host() string
	// The client's user agent, when the transport exposes one.
	Agent() string
	SetId(newId uint16)
	// Encode and queue a message for the client.
	Send(message interface{}) error
	// Events going to the server
	ReceiveEvents() <-chan Event
	// When the client disconnects on its own
	ReceiveDisconnect() <-chan bool
	// Valid for the lifetime of the client's connection.
	SessionContext() context.Context
	// Forcibly disconnect this client
	Disconnect(reason string)
}

// Where a client currently sits. A client belongs to at most one lobby
// under one player name at a time.
type Target struct {
	Lobby  string
	Player string
}

// Manager tracks live connections and keeps an explicit (lobby, player) ->
// connection index so point-to-point delivery never scans all clients.
type Manager struct {
	mutex      deadlock.Mutex
	clients    map[Client]*Target
	index      map[Target]Client
	lobbies    map[string]map[Client]struct{}
	newClients chan Client
}

func NewManager() *Manager {
	return &Manager{
		clients:    make(map[Client]*Target),
		index:      make(map[Target]Client),
		lobbies:    make(map[string]map[Client]struct{}),
		newClients: make(chan Client, 16),
	}
}

func (m *Manager) newClientID() (uint16, error) {
	for attempts := 0; attempts < math.MaxUint16; attempts++ {
		number, _ := rand.Int(rand.Reader, big.NewInt(math.MaxUint16))
		truncated := uint16(number.Uint64())

		taken := false
		for client := range m.clients {
			if client.Id() == truncated {
				taken = true
			}
		}
		if taken {
			continue
		}

		return truncated, nil
	}

	return 0, errors.New("failed to assign client ID")
}

func (m *Manager) AddClient(client Client) error {
	m.mutex.Lock()
	id, err := m.newClientID()
	if err != nil {
		m.mutex.Unlock()
		return err
	}

	client.SetId(id)
	m.clients[client] = nil
	m.mutex.Unlock()

	m.newClients <- client

	return nil
}

func (m *Manager) RemoveClient(client Client) {
	m.mutex.Lock()
	m.dissociateLocked(client)
	delete(m.clients, client)
	m.mutex.Unlock()
}

func (m *Manager) ReceiveClients() <-chan Client {
	return m.newClients
}

func (m *Manager) dissociateLocked(client Client) {
	target := m.clients[client]
	if target == nil {
		return
	}

	if m.index[*target] == client {
		delete(m.index, *target)
	}
	if members, ok := m.lobbies[target.Lobby]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(m.lobbies, target.Lobby)
		}
	}
	m.clients[client] = nil
}

// Associate binds a connection to a (lobby, player) pair, replacing any
// previous binding for either the connection or the pair. Reconnects simply
// steal the pair from the stale connection.
func (m *Manager) Associate(client Client, lobby string, player string) {
	target := Target{Lobby: lobby, Player: player}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if previous, ok := m.index[target]; ok && previous != client {
		m.dissociateLocked(previous)
	}

	m.dissociateLocked(client)

	m.clients[client] = &target
	m.index[target] = client

	members, ok := m.lobbies[lobby]
	if !ok {
		members = make(map[Client]struct{})
		m.lobbies[lobby] = members
	}
	members[client] = struct{}{}
}

func (m *Manager) Dissociate(client Client) {
	m.mutex.Lock()
	m.dissociateLocked(client)
	m.mutex.Unlock()
}

// GetTarget reports the lobby and player a connection is bound to.
func (m *Manager) GetTarget(client Client) opt.Option[Target] {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	target := m.clients[client]
	if target == nil {
		return opt.None[Target]()
	}
	return opt.Some(*target)
}

// Lookup finds the live connection for a player in a lobby, if any.
func (m *Manager) Lookup(lobby string, player string) opt.Option[Client] {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	client, ok := m.index[Target{Lobby: lobby, Player: player}]
	if !ok {
		return opt.None[Client]()
	}
	return opt.Some(client)
}

// ForLobby returns every connection currently bound to a lobby.
func (m *Manager) ForLobby(lobby string) []Client {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	members := make([]Client, 0, len(m.lobbies[lobby]))
	for client := range m.lobbies[lobby] {
		members = append(members, client)
	}
	return members
}
