package lobby

import (
	"context"
	"testing"

	"github.com/mahammadbbyv/mirgos/svc/coordinator/game"

	"github.com/repeale/fp-go/option"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewStore(ctx)
}

func TestJoinCreatesLobby(t *testing.T) {
	store := newStore(t)

	joined, left := store.Join("room", "alice")
	require.Nil(t, left)
	require.Equal(t, "room", joined.ID)
	require.Equal(t, "alice", joined.Host())

	// The second joiner does not take over as host.
	again, _ := store.Join("room", "bob")
	require.Same(t, joined, again)
	require.Equal(t, "alice", again.Host())
	require.Equal(t, []string{"alice", "bob"}, again.Players())
}

func TestRejoinIsIdempotent(t *testing.T) {
	store := newStore(t)

	store.Join("room", "alice")
	joined, left := store.Join("room", "alice")
	require.Nil(t, left)
	require.Equal(t, []string{"alice"}, joined.Players())
}

func TestJoinLeavesPreviousLobby(t *testing.T) {
	store := newStore(t)

	first, _ := store.Join("first", "alice")
	store.Join("first", "bob")

	second, left := store.Join("second", "alice")
	require.Same(t, first, left)
	require.Equal(t, []string{"bob"}, first.Players())
	require.Equal(t, "bob", first.Host())
	require.Equal(t, []string{"alice"}, second.Players())
}

func TestJoinDeletesAbandonedSoloLobby(t *testing.T) {
	store := newStore(t)

	first, _ := store.Join("first", "alice")
	_, left := store.Join("second", "alice")

	// The old lobby emptied and was deleted, so there is nothing to notify.
	require.Nil(t, left)
	require.True(t, opt.IsNone(store.Get("first")))
	require.Error(t, first.Context().Err())
}

func TestHostTransferFollowsJoinOrder(t *testing.T) {
	store := newStore(t)

	store.Join("room", "alice")
	store.Join("room", "bob")
	store.Join("room", "carol")

	left, deleted := store.Leave("alice")
	require.False(t, deleted)
	require.Equal(t, "bob", left.Host())

	left, deleted = store.Leave("bob")
	require.False(t, deleted)
	require.Equal(t, "carol", left.Host())
}

func TestEmptyLobbyIsDeleted(t *testing.T) {
	store := newStore(t)

	lobby, _ := store.Join("room", "alice")
	store.Join("room", "bob")

	store.Leave("alice")
	_, deleted := store.Leave("bob")
	require.True(t, deleted)
	require.True(t, opt.IsNone(store.Get("room")))
	require.Error(t, lobby.Context().Err())
}

func TestLeaveUnknownPlayer(t *testing.T) {
	store := newStore(t)

	left, deleted := store.Leave("nobody")
	require.Nil(t, left)
	require.False(t, deleted)
}

func TestSetCountry(t *testing.T) {
	store := newStore(t)

	lobby, _ := store.Join("room", "alice")
	lobby.SetCountry("alice", "France")

	snapshot := lobby.Snapshot()
	require.Equal(t, "France", snapshot.Players[0].Country)

	// Unknown players are ignored without an error.
	lobby.SetCountry("nobody", "Germany")
	require.Len(t, lobby.Snapshot().Players, 1)
}

func TestStartGame(t *testing.T) {
	store := newStore(t)

	lobby, _ := store.Join("room", "alice")
	store.Join("room", "bob")

	opts := game.DefaultOptions()

	_, err := lobby.StartGame("bob", opts)
	require.ErrorIs(t, err, ErrNotHost)

	_, err = lobby.StartGame("alice", opts)
	require.ErrorIs(t, err, ErrCountriesNotSet)

	lobby.SetCountry("alice", "France")
	lobby.SetCountry("bob", "France")
	_, err = lobby.StartGame("alice", opts)
	require.ErrorIs(t, err, ErrCountriesClash)

	lobby.SetCountry("bob", "Germany")
	round, err := lobby.StartGame("alice", opts)
	require.NoError(t, err)
	require.Same(t, round, lobby.Game())
	require.Equal(t, []string{"alice", "bob"}, round.Players())
	require.True(t, lobby.Snapshot().GameInProgress)

	_, err = lobby.StartGame("alice", opts)
	require.ErrorIs(t, err, ErrGameInProgress)
}

func TestPings(t *testing.T) {
	store := newStore(t)

	lobby, _ := store.Join("room", "alice")
	lobby.SetPing("alice", 42)
	require.Equal(t, map[string]int{"alice": 42}, lobby.Pings())
}
