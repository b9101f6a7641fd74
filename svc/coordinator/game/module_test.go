package game

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/mahammadbbyv/mirgos/pkg/protocol"

	"github.com/repeale/fp-go/option"
	"github.com/stretchr/testify/require"
)

// Every starting roster deals four cities with incomes 120+100+90+80.
const baseIncome = 390

func testOptions() Options {
	opts := DefaultOptions()
	opts.CountdownSeconds = 0
	opts.GraceSeconds = 0
	return opts
}

func next(t *testing.T, r *Round, kind EventKind) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case event := <-r.Events():
			if event.Kind == kind {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event kind %d", kind)
		}
	}
}

var testCountries = []string{"France", "Germany", "Israel", "Russia"}

func startGame(t *testing.T, opts Options, players ...string) *Round {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	selections := make(map[string]string)
	for i, player := range players {
		selections[player] = testCountries[i]
	}

	r := NewRound(ctx, players, selections, opts)
	go r.Run()
	next(t, r, EventBegin)
	next(t, r, EventRoundStart)
	return r
}

func playRound(t *testing.T, r *Round, actions map[string][]protocol.Action) Summary {
	t.Helper()

	for player, queue := range actions {
		for _, action := range queue {
			r.SubmitAction(player, action)
		}
	}
	for _, player := range r.Players() {
		r.FinishTurn(player)
	}

	event := next(t, r, EventResolved)
	return *event.Summary
}

func TestCountdown(t *testing.T) {
	opts := testOptions()
	opts.CountdownSeconds = 2

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	r := NewRound(ctx, []string{"alice"}, map[string]string{"alice": "France"}, opts)
	go r.Run()

	// No round state exists until the countdown finishes.
	require.True(t, opt.IsNone(r.Snapshot()))

	event := next(t, r, EventCountdown)
	require.Equal(t, 2, event.Seconds)
	event = next(t, r, EventCountdown)
	require.Equal(t, 1, event.Seconds)

	event = next(t, r, EventBegin)
	require.Equal(t, 1, event.Round)
	require.True(t, opt.IsSome(r.Snapshot()))
}

func TestIncomeAndBuyArmy(t *testing.T) {
	r := startGame(t, testOptions(), "alice", "bob")

	summary := playRound(t, r, map[string][]protocol.Action{
		"alice": {{Type: protocol.ActionBuyArmy, Count: 2}},
	})

	require.Equal(t, 1, summary.Round)
	require.Equal(t, 1000+baseIncome-2*ArmyUnitCost, summary.State.Budgets["France"])
	require.Equal(t, 2, summary.State.Armies["France"])
	require.Equal(t, 1000+baseIncome, summary.State.Budgets["Germany"])

	// Actions carry attribution stamped at submission time.
	require.Equal(t, "alice", summary.Actions["alice"][0].Player)
	require.Equal(t, "France", summary.Actions["alice"][0].Country)
}

func TestUpgradeCity(t *testing.T) {
	r := startGame(t, testOptions(), "alice", "bob")

	summary := playRound(t, r, map[string][]protocol.Action{
		"alice": {{Type: protocol.ActionUpgradeCity, City: "Paris"}},
		"bob":   {{Type: protocol.ActionUpgradeCity, City: "Atlantis"}},
	})

	paris := summary.State.Cities["France"][0]
	require.Equal(t, "Paris", paris.Names.EN)
	require.Equal(t, 2, paris.Level)
	require.Equal(t, 120+UpgradeIncomeBonus, paris.Income)
	require.Equal(t, 1, paris.Shield)
	require.Equal(t, 1000+baseIncome-CityUpgradeCost, summary.State.Budgets["France"])

	// No such city, so the upgrade drops without touching the budget.
	require.Equal(t, 1000+baseIncome, summary.State.Budgets["Germany"])
}

func TestAttack(t *testing.T) {
	r := startGame(t, testOptions(), "alice", "bob")

	playRound(t, r, map[string][]protocol.Action{
		"alice": {{Type: protocol.ActionBuyArmy, Count: 3}},
		"bob":   {{Type: protocol.ActionUpgradeCity, City: "Berlin"}},
	})

	summary := playRound(t, r, map[string][]protocol.Action{
		"alice": {
			// Overwhelms Leipzig, which has no defense at all.
			{Type: protocol.ActionAttack, Army: 2, TargetCountry: "Germany", TargetCity: "Leipzig"},
			// Absorbed by Berlin's shield; the army is still spent.
			{Type: protocol.ActionAttack, Army: 1, TargetCountry: "Germany", TargetCity: "Berlin"},
			// Exceeds the remaining army, so it drops entirely.
			{Type: protocol.ActionAttack, Army: 5, TargetCountry: "Germany", TargetCity: "Frankfurt"},
		},
	})

	require.Equal(t, 0, summary.State.Armies["France"])

	leipzig := summary.State.Cities["Germany"][1]
	require.Equal(t, 0, leipzig.Defense)
	require.Equal(t, 100-AttackStabilityLoss, leipzig.Stability)

	berlin := summary.State.Cities["Germany"][0]
	require.Equal(t, 0, berlin.Defense)
	require.Equal(t, 100, berlin.Stability)

	frankfurt := summary.State.Cities["Germany"][2]
	require.Equal(t, 100, frankfurt.Stability)
}

func TestNuclearSpendIsUnconditional(t *testing.T) {
	r := startGame(t, testOptions(), "alice")

	summary := playRound(t, r, map[string][]protocol.Action{
		"alice": {
			{Type: protocol.ActionNuclear},
			{Type: protocol.ActionNuclear},
			{Type: protocol.ActionNuclear},
			// Unaffordable by now, so it drops.
			{Type: protocol.ActionNuclear},
		},
	})

	// Three programs were paid for whether or not their draws succeeded.
	require.Equal(t, 1000+baseIncome-3*NuclearCost, summary.State.Budgets["France"])
	level := summary.State.Nuclear["France"]
	require.GreaterOrEqual(t, level, 0)
	require.LessOrEqual(t, level, 3)
}

func TestResolutionIsDeterministic(t *testing.T) {
	run := func() Summary {
		opts := testOptions()
		opts.Rand = rand.New(rand.NewSource(42))
		r := startGame(t, opts, "alice", "bob")
		return playRound(t, r, map[string][]protocol.Action{
			"alice": {
				{Type: protocol.ActionNuclear},
				{Type: protocol.ActionNuclear},
			},
			"bob": {{Type: protocol.ActionNuclear}},
		})
	}

	first := run()
	second := run()
	require.Equal(t, first.State.Nuclear, second.State.Nuclear)
	require.Equal(t, first.State.Budgets, second.State.Budgets)
}

func TestSanctionsDecayAcrossRounds(t *testing.T) {
	r := startGame(t, testOptions(), "alice", "bob")

	summary := playRound(t, r, map[string][]protocol.Action{
		"alice": {{Type: protocol.ActionSanction, TargetCountry: "Germany"}},
	})

	// The sanction pass debits the full city income right away and burns
	// one round off the counter.
	require.Equal(t, 1000, summary.State.Budgets["Germany"])
	require.Equal(t, map[string]int{"Germany": 1}, summary.State.Sanctions)

	summary = playRound(t, r, nil)
	require.Equal(t, 1000, summary.State.Budgets["Germany"])
	require.Empty(t, summary.State.Sanctions)

	summary = playRound(t, r, nil)
	require.Equal(t, 1000+baseIncome, summary.State.Budgets["Germany"])
}

func TestResearchTechnology(t *testing.T) {
	r := startGame(t, testOptions(), "alice", "bob")

	summary := playRound(t, r, map[string][]protocol.Action{
		"alice": {{Type: protocol.ActionResearch, Tech: "military"}},
		"bob":   {{Type: protocol.ActionResearch, Tech: "lasers", Cost: 100}},
	})

	require.Equal(t, 1, summary.State.Technologies["France"]["military"])
	require.Equal(t, 1000+baseIncome-DefaultTechCost, summary.State.Budgets["France"])

	require.Equal(t, 1, summary.State.Technologies["Germany"]["lasers"])
	require.Equal(t, 1000+baseIncome-100, summary.State.Budgets["Germany"])
}

func TestUnaffordableActionsDropSilently(t *testing.T) {
	r := startGame(t, testOptions(), "alice")

	summary := playRound(t, r, map[string][]protocol.Action{
		"alice": {{Type: protocol.ActionBuyArmy, Count: 100}},
	})

	require.Equal(t, 1000+baseIncome, summary.State.Budgets["France"])
	require.Equal(t, 0, summary.State.Armies["France"])
}

func TestUndoFinish(t *testing.T) {
	r := startGame(t, testOptions(), "alice", "bob")

	r.FinishTurn("alice")
	event := next(t, r, EventWaiting)
	require.Equal(t, []string{"bob"}, event.Waiting)

	r.UndoFinish("alice")
	event = next(t, r, EventWaiting)
	require.Equal(t, []string{"alice", "bob"}, event.Waiting)

	r.FinishTurn("bob")
	event = next(t, r, EventWaiting)
	require.Equal(t, []string{"alice"}, event.Waiting)

	r.FinishTurn("alice")
	next(t, r, EventResolved)
}

func TestResolutionHappensExactlyOnce(t *testing.T) {
	players := []string{"alice", "bob", "carol", "dave"}
	r := startGame(t, testOptions(), players...)

	var wg sync.WaitGroup
	for _, player := range players {
		wg.Add(1)
		go func(player string) {
			defer wg.Done()
			r.FinishTurn(player)
		}(player)
	}

	resolved := 0
	deadline := time.After(5 * time.Second)
drain:
	for {
		select {
		case event := <-r.Events():
			if event.Kind == EventResolved {
				resolved++
			}
			if event.Kind == EventNewRound {
				break drain
			}
		case <-deadline:
			t.Fatal("timed out waiting for resolution")
		}
	}
	wg.Wait()

	require.Equal(t, 1, resolved)

	// The finished flags belong to round 2 now.
	snapshot := r.Snapshot()
	require.True(t, opt.IsSome(snapshot))
	state := snapshot.Value
	require.Equal(t, 2, state.Round)
	for _, player := range players {
		require.False(t, state.Finished[player])
	}
}

func TestDeadlineForcesResolution(t *testing.T) {
	opts := testOptions()
	opts.RoundSeconds = 1

	r := startGame(t, opts, "alice", "bob")

	// Nobody finishes; the deadline watcher resolves the round anyway.
	event := next(t, r, EventResolved)
	require.Equal(t, 1, event.Round)

	event = next(t, r, EventRoundStart)
	require.Equal(t, 2, event.Round)
}

func TestStrangersCannotAct(t *testing.T) {
	r := startGame(t, testOptions(), "alice", "bob")

	r.SubmitAction("mallory", protocol.Action{Type: protocol.ActionBuyArmy, Count: 1})
	r.FinishTurn("mallory")

	summary := playRound(t, r, nil)
	require.Empty(t, summary.Actions["mallory"])
	require.Equal(t, 1000+baseIncome, summary.State.Budgets["France"])
}
