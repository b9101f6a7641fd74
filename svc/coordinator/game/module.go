package game

import (
	"context"
	"math/rand"
	"time"

	"github.com/mahammadbbyv/mirgos/pkg/protocol"
	"github.com/mahammadbbyv/mirgos/pkg/timer"

	"github.com/repeale/fp-go"
	"github.com/repeale/fp-go/option"
	"github.com/sasha-s/go-deadlock"
)

type Phase byte

const (
	// The pre-game countdown is running; round state does not exist yet.
	PhaseCountdown Phase = iota
	PhaseInProgress
)

type EventKind byte

const (
	// Countdown tick; Seconds holds the remaining count.
	EventCountdown EventKind = iota
	// The countdown reached zero and round 1 exists.
	EventBegin
	// A round started (round 1 and every round after a resolution).
	EventRoundStart
	// The set of players still playing changed.
	EventWaiting
	// A round resolved; Summary is set.
	EventResolved
	// The post-resolution grace delay elapsed; clients may show the new round.
	EventNewRound
)

type Event struct {
	Kind      EventKind
	Seconds   int
	Round     int
	StartedAt time.Time
	Waiting   []string
	Summary   *Summary
}

// Summary describes one resolved round: the actions that were applied and
// the state they produced.
type Summary struct {
	Round   int
	Actions map[string][]protocol.Action
	State   protocol.GameSnapshot
}

type Options struct {
	CountdownSeconds int
	RoundSeconds     int
	GraceSeconds     int
	StartingBudget   int
	// Source for the one random draw in resolution. Tests inject a seeded
	// source to get reproducible rounds.
	Rand *rand.Rand
}

func DefaultOptions() Options {
	return Options{
		CountdownSeconds: 5,
		RoundSeconds:     300,
		GraceSeconds:     5,
		StartingBudget:   1000,
	}
}

// Round is the per-lobby turn engine. All mutations go through its mutex;
// the all-finished check runs after every finish mutation under that same
// lock, so resolution fires exactly once per round no matter how finish
// signals and the deadline interleave.
type Round struct {
	ctx    context.Context
	opts   Options
	events chan Event

	mutex deadlock.Mutex
	phase Phase
	// The round number, starting at 1.
	number int
	// Roster order at game start. Resolution iterates in this order and the
	// set never shrinks, even if a player disconnects mid-round.
	players      []string
	countryOf    map[string]string
	countries    map[string]protocol.LocalizedName
	names        map[string]protocol.LocalizedName
	cities       map[string][]protocol.City
	budgets      map[string]int
	armies       map[string]int
	stability    map[string]int
	nuclear      map[string]int
	sanctions    map[string]int
	technologies map[string]map[string]int
	actions      map[string][]protocol.Action
	finished     map[string]bool
	startedAt    time.Time
	rng          *rand.Rand
	grace        *timer.Timer
}

// NewRound creates the engine in its countdown phase. players must be in
// roster order; selections maps each player to a canonical country name.
func NewRound(ctx context.Context, players []string, selections map[string]string, opts Options) *Round {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	countryOf := make(map[string]string)
	for _, player := range players {
		countryOf[player] = selections[player]
	}

	return &Round{
		ctx:       ctx,
		opts:      opts,
		events:    make(chan Event, 16),
		phase:     PhaseCountdown,
		players:   append([]string(nil), players...),
		countryOf: countryOf,
		rng:       rng,
	}
}

func (r *Round) Events() <-chan Event {
	return r.events
}

// Run drives the countdown and then watches the round deadline. It returns
// when the lobby context is canceled.
func (r *Round) Run() {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	count := r.opts.CountdownSeconds
	if count > 0 {
		r.emit(Event{Kind: EventCountdown, Seconds: count})
	}

	for count > 0 {
		select {
		case <-tick.C:
			count--
			if count > 0 {
				r.emit(Event{Kind: EventCountdown, Seconds: count})
			}
		case <-r.ctx.Done():
			return
		}
	}

	r.begin()

	for {
		select {
		case <-tick.C:
			r.checkDeadline()
		case <-r.ctx.Done():
			r.mutex.Lock()
			grace := r.grace
			r.mutex.Unlock()
			if grace != nil {
				grace.Stop()
			}
			return
		}
	}
}

// begin builds round 1 from the static country tables.
func (r *Round) begin() {
	r.mutex.Lock()

	r.number = 1
	r.countries = make(map[string]protocol.LocalizedName)
	r.names = make(map[string]protocol.LocalizedName)
	r.cities = make(map[string][]protocol.City)
	r.budgets = make(map[string]int)
	r.armies = make(map[string]int)
	r.stability = make(map[string]int)
	r.nuclear = make(map[string]int)
	r.sanctions = make(map[string]int)
	r.technologies = make(map[string]map[string]int)
	r.actions = make(map[string][]protocol.Action)
	r.finished = make(map[string]bool)

	for _, player := range r.players {
		country := r.countryOf[player]
		names := LocalizeCountry(country)
		r.countries[player] = names
		r.names[country] = names
		r.cities[country] = StartingCities(country)
		r.budgets[country] = r.opts.StartingBudget
		r.armies[country] = 0
		r.stability[country] = 100
		r.nuclear[country] = 0
		r.technologies[country] = map[string]int{
			"military":       0,
			"economic":       0,
			"infrastructure": 0,
		}
		r.finished[player] = false
	}

	r.phase = PhaseInProgress
	r.startedAt = time.Now()

	round := r.number
	startedAt := r.startedAt
	r.mutex.Unlock()

	r.emit(
		Event{Kind: EventBegin, Round: round, StartedAt: startedAt},
		Event{Kind: EventRoundStart, Round: round, StartedAt: startedAt},
	)
}

// checkDeadline recomputes elapsed time from the stored absolute start
// timestamp, never from a counter, so remaining time survives reconnects
// without drift.
func (r *Round) checkDeadline() {
	r.mutex.Lock()

	if r.phase != PhaseInProgress ||
		time.Since(r.startedAt) < time.Duration(r.opts.RoundSeconds)*time.Second {
		r.mutex.Unlock()
		return
	}

	for _, player := range r.players {
		r.finished[player] = true
	}
	events := r.afterFinishLocked()
	r.mutex.Unlock()

	r.emit(events...)
}

// TimeLeft reports the remaining round time, or 0 when no round is running.
func (r *Round) TimeLeft() time.Duration {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.phase != PhaseInProgress {
		return 0
	}

	left := time.Duration(r.opts.RoundSeconds)*time.Second - time.Since(r.startedAt)
	if left < 0 {
		return 0
	}
	return left
}

// SubmitAction queues an action for the current round. Actions accumulate;
// nothing is validated until resolution.
func (r *Round) SubmitAction(player string, action protocol.Action) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	country, ok := r.countryOf[player]
	if r.phase != PhaseInProgress || !ok {
		return
	}

	action.Player = player
	action.Country = country
	action.Timestamp = time.Now().UnixMilli()
	r.actions[player] = append(r.actions[player], action)
}

func (r *Round) FinishTurn(player string) {
	r.mutex.Lock()

	if r.phase != PhaseInProgress {
		r.mutex.Unlock()
		return
	}
	if _, ok := r.countryOf[player]; !ok {
		r.mutex.Unlock()
		return
	}

	r.finished[player] = true
	events := r.afterFinishLocked()
	r.mutex.Unlock()

	r.emit(events...)
}

// UndoFinish clears a player's finished flag. Once a round has resolved the
// flags belong to the next round, so undo can never reach a resolved round.
func (r *Round) UndoFinish(player string) {
	r.mutex.Lock()

	if r.phase != PhaseInProgress {
		r.mutex.Unlock()
		return
	}
	if _, ok := r.countryOf[player]; !ok {
		r.mutex.Unlock()
		return
	}

	r.finished[player] = false
	waiting := r.waitingLocked()
	r.mutex.Unlock()

	r.emit(Event{Kind: EventWaiting, Waiting: waiting})
}

// afterFinishLocked evaluates the all-finished condition after a finish
// mutation and resolves the round on the not-all -> all transition.
func (r *Round) afterFinishLocked() []Event {
	for _, player := range r.players {
		if !r.finished[player] {
			return []Event{{Kind: EventWaiting, Waiting: r.waitingLocked()}}
		}
	}

	summary := r.resolveLocked()
	return []Event{{Kind: EventResolved, Round: summary.Round, Summary: &summary}}
}

func (r *Round) waitingLocked() []string {
	return fp.Filter(func(player string) bool {
		return !r.finished[player]
	})(r.players)
}

// Players returns the round's player set in roster order.
func (r *Round) Players() []string {
	return append([]string(nil), r.players...)
}

// Snapshot returns the current round state, or none while the countdown is
// still running, so clients can tell "not started" from "loading".
func (r *Round) Snapshot() opt.Option[protocol.GameSnapshot] {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.phase != PhaseInProgress {
		return opt.None[protocol.GameSnapshot]()
	}
	return opt.Some(r.snapshotLocked())
}

func (r *Round) snapshotLocked() protocol.GameSnapshot {
	cities := make(map[string][]protocol.City, len(r.cities))
	for country, list := range r.cities {
		cities[country] = append([]protocol.City(nil), list...)
	}

	technologies := make(map[string]map[string]int, len(r.technologies))
	for country, levels := range r.technologies {
		copied := make(map[string]int, len(levels))
		for name, level := range levels {
			copied[name] = level
		}
		technologies[country] = copied
	}

	actions := make(map[string][]protocol.Action, len(r.actions))
	for player, queue := range r.actions {
		actions[player] = append([]protocol.Action(nil), queue...)
	}

	return protocol.GameSnapshot{
		Round:           r.number,
		Players:         append([]string(nil), r.players...),
		PlayerCountries: copyNames(r.countries),
		CountryNames:    copyNames(r.names),
		Cities:          cities,
		Armies:          copyCounts(r.armies),
		Budgets:         copyCounts(r.budgets),
		Stability:       copyCounts(r.stability),
		Nuclear:         copyCounts(r.nuclear),
		Sanctions:       copyCounts(r.sanctions),
		Technologies:    technologies,
		Actions:         actions,
		Finished:        copyFlags(r.finished),
		RoundStartedAt:  r.startedAt,
	}
}

func copyNames(m map[string]protocol.LocalizedName) map[string]protocol.LocalizedName {
	copied := make(map[string]protocol.LocalizedName, len(m))
	for k, v := range m {
		copied[k] = v
	}
	return copied
}

func copyCounts(m map[string]int) map[string]int {
	copied := make(map[string]int, len(m))
	for k, v := range m {
		copied[k] = v
	}
	return copied
}

func copyFlags(m map[string]bool) map[string]bool {
	copied := make(map[string]bool, len(m))
	for k, v := range m {
		copied[k] = v
	}
	return copied
}

func (r *Round) emit(events ...Event) {
	for _, event := range events {
		select {
		case r.events <- event:
		case <-r.ctx.Done():
			return
		}
	}
}
