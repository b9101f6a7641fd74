package lobby

import (
	"context"
	"errors"
	"time"

	"github.com/mahammadbbyv/mirgos/pkg/protocol"
	"github.com/mahammadbbyv/mirgos/svc/coordinator/game"

	"github.com/repeale/fp-go"
	"github.com/repeale/fp-go/option"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
)

var (
	ErrNotHost         = errors.New("only the host can start the game")
	ErrGameInProgress  = errors.New("the game has already started")
	ErrCountriesNotSet = errors.New("every player has to pick a country first")
	ErrCountriesClash  = errors.New("two players picked the same country")
)

type Player struct {
	Name     string
	Country  string
	JoinedAt time.Time
	Ping     int
}

// Lobby is one named room of players. Joining order is preserved; the host
// is always the earliest-joined remaining player.
type Lobby struct {
	ID string

	mutex   deadlock.Mutex
	host    string
	players []*Player
	chat    *ChatLog
	game    *game.Round

	// Canceled when the lobby is deleted; tears down the round engine and
	// anything else running on the lobby's behalf.
	ctx    context.Context
	cancel context.CancelFunc
}

func newLobby(ctx context.Context, id string) *Lobby {
	lobbyCtx, cancel := context.WithCancel(ctx)
	return &Lobby{
		ID:     id,
		chat:   NewChatLog(),
		ctx:    lobbyCtx,
		cancel: cancel,
	}
}

func (l *Lobby) Context() context.Context {
	return l.ctx
}

func (l *Lobby) Chat() *ChatLog {
	return l.chat
}

// Game returns the round engine, or nil before the host has started one.
func (l *Lobby) Game() *game.Round {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.game
}

func (l *Lobby) Host() string {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.host
}

func (l *Lobby) Players() []string {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return fp.Map(func(player *Player) string {
		return player.Name
	})(l.players)
}

func (l *Lobby) findLocked(player string) opt.Option[*Player] {
	for _, existing := range l.players {
		if existing.Name == player {
			return opt.Some(existing)
		}
	}
	return opt.None[*Player]()
}

// SetCountry records a player's country pick. Unknown players are ignored.
func (l *Lobby) SetCountry(player string, country string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	found := l.findLocked(player)
	if opt.IsNone(found) {
		return
	}
	found.Value.Country = country
}

func (l *Lobby) SetPing(player string, ping int) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	found := l.findLocked(player)
	if opt.IsNone(found) {
		return
	}
	found.Value.Ping = ping
}

// Pings reports the latest reported latency for every player.
func (l *Lobby) Pings() map[string]int {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	pings := make(map[string]int, len(l.players))
	for _, player := range l.players {
		pings[player.Name] = player.Ping
	}
	return pings
}

func (l *Lobby) Snapshot() protocol.LobbySnapshot {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return protocol.LobbySnapshot{
		LobbyID: l.ID,
		Players: fp.Map(func(player *Player) protocol.PlayerInfo {
			return protocol.PlayerInfo{
				Name:     player.Name,
				Country:  player.Country,
				JoinedAt: player.JoinedAt,
				Ping:     player.Ping,
			}
		})(l.players),
		Host:           l.host,
		GameInProgress: l.game != nil,
	}
}

// StartGame validates the lobby and hands the roster to a new round engine.
// The engine keeps its own copy of the player set, so later joins and leaves
// do not touch a running game.
func (l *Lobby) StartGame(player string, opts game.Options) (*game.Round, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if player != l.host {
		return nil, ErrNotHost
	}
	if l.game != nil {
		return nil, ErrGameInProgress
	}

	players := make([]string, 0, len(l.players))
	selections := make(map[string]string)
	taken := make(map[string]struct{})
	for _, member := range l.players {
		if member.Country == "" {
			return nil, ErrCountriesNotSet
		}
		if _, ok := taken[member.Country]; ok {
			return nil, ErrCountriesClash
		}
		taken[member.Country] = struct{}{}
		players = append(players, member.Name)
		selections[member.Name] = member.Country
	}

	l.game = game.NewRound(l.ctx, players, selections, opts)
	return l.game, nil
}

// Store owns every lobby and enforces that a player sits in at most one
// lobby at a time.
type Store struct {
	mutex   deadlock.Mutex
	ctx     context.Context
	lobbies map[string]*Lobby
	players map[string]*Lobby
}

func NewStore(ctx context.Context) *Store {
	return &Store{
		ctx:     ctx,
		lobbies: make(map[string]*Lobby),
		players: make(map[string]*Lobby),
	}
}

func (s *Store) Get(id string) opt.Option[*Lobby] {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if lobby, ok := s.lobbies[id]; ok {
		return opt.Some(lobby)
	}
	return opt.None[*Lobby]()
}

// Join puts a player into a lobby, creating it on first join. The first
// player becomes host. If the player was in a different lobby they leave it
// first; the abandoned lobby is returned so callers can notify it, and nil
// means it was deleted outright.
func (s *Store) Join(id string, player string) (joined *Lobby, left *Lobby) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if previous, ok := s.players[player]; ok {
		if previous.ID == id {
			return previous, nil
		}
		if !s.leaveLocked(previous, player) {
			left = previous
		}
	}

	lobby, ok := s.lobbies[id]
	if !ok {
		lobby = newLobby(s.ctx, id)
		s.lobbies[id] = lobby
		log.Info().Str("lobby", id).Msg("lobby created")
	}

	lobby.mutex.Lock()
	lobby.players = append(lobby.players, &Player{
		Name:     player,
		JoinedAt: time.Now(),
	})
	if lobby.host == "" {
		lobby.host = player
	}
	lobby.mutex.Unlock()

	s.players[player] = lobby
	return lobby, left
}

// Leave removes a player from their lobby. It reports the lobby they left
// and whether that lobby was deleted because it became empty.
func (s *Store) Leave(player string) (left *Lobby, deleted bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	lobby, ok := s.players[player]
	if !ok {
		return nil, false
	}

	deleted = s.leaveLocked(lobby, player)
	return lobby, deleted
}

// leaveLocked drops the player from the lobby roster, transfers the host
// role to the earliest remaining player, and deletes the lobby when it
// empties. Returns true if the lobby was deleted.
func (s *Store) leaveLocked(lobby *Lobby, player string) bool {
	delete(s.players, player)

	lobby.mutex.Lock()
	lobby.players = fp.Filter(func(existing *Player) bool {
		return existing.Name != player
	})(lobby.players)

	if len(lobby.players) == 0 {
		lobby.mutex.Unlock()
		delete(s.lobbies, lobby.ID)
		lobby.cancel()
		log.Info().Str("lobby", lobby.ID).Msg("lobby deleted")
		return true
	}

	if lobby.host == player {
		lobby.host = lobby.players[0].Name
		log.Info().
			Str("lobby", lobby.ID).
			Str("host", lobby.host).
			Msg("host left; transferred")
	}
	lobby.mutex.Unlock()
	return false
}
