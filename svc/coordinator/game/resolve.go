package game

import (
	"sort"
	"time"

	"github.com/mahammadbbyv/mirgos/pkg/protocol"
	"github.com/mahammadbbyv/mirgos/pkg/timer"
)

const (
	ArmyUnitCost    = 300
	CityUpgradeCost = 500
	NuclearCost     = 450
	DefaultTechCost = 400

	MaxShieldLevel  = 3
	MaxNuclearLevel = 3

	UpgradeIncomeBonus  = 50
	AttackStabilityLoss = 30
	SanctionRounds      = 2
)

// resolveLocked applies the round in three passes: income, then actions in
// roster order (submission order within a player), then sanctions. Invalid
// or unaffordable actions are dropped without any per-action feedback.
func (r *Round) resolveLocked() Summary {
	r.applyIncomeLocked()

	for _, player := range r.players {
		country := r.countryOf[player]
		for _, action := range r.actions[player] {
			r.applyActionLocked(country, action)
		}
	}

	r.applySanctionsLocked()

	summary := Summary{
		Round:   r.number,
		Actions: make(map[string][]protocol.Action, len(r.actions)),
		State:   r.snapshotLocked(),
	}
	for player, queue := range r.actions {
		summary.Actions[player] = append([]protocol.Action(nil), queue...)
	}

	r.actions = make(map[string][]protocol.Action)
	for _, player := range r.players {
		r.finished[player] = false
	}
	r.number++
	r.startedAt = time.Now()

	r.scheduleGraceLocked()

	return summary
}

// scheduleGraceLocked delays the new-round announcement so clients can show
// the resolution summary before the board resets.
func (r *Round) scheduleGraceLocked() {
	round := r.number
	startedAt := r.startedAt

	grace := timer.AfterFunc(time.Duration(r.opts.GraceSeconds)*time.Second, func() {
		r.emit(Event{Kind: EventNewRound, Round: round, StartedAt: startedAt})
		r.emit(Event{Kind: EventRoundStart, Round: round, StartedAt: startedAt})
	})
	grace.Start()
	r.grace = grace
}

func (r *Round) applyIncomeLocked() {
	for _, player := range r.players {
		country := r.countryOf[player]
		r.budgets[country] += r.countryIncomeLocked(country)
	}
}

func (r *Round) countryIncomeLocked(country string) int {
	income := 0
	for _, city := range r.cities[country] {
		income += city.Income
	}
	return income
}

func (r *Round) applyActionLocked(country string, action protocol.Action) {
	switch action.Type {
	case protocol.ActionBuyArmy:
		count := action.Count
		if count < 1 {
			count = 1
		}
		cost := ArmyUnitCost * count
		if r.budgets[country] < cost {
			return
		}
		r.budgets[country] -= cost
		r.armies[country] += count

	case protocol.ActionUpgradeCity:
		index, ok := r.findCityLocked(country, action.City)
		if !ok || r.budgets[country] < CityUpgradeCost {
			return
		}
		city := &r.cities[country][index]
		r.budgets[country] -= CityUpgradeCost
		city.Level++
		city.Income += UpgradeIncomeBonus
		if city.Shield < MaxShieldLevel {
			city.Shield++
		}

	case protocol.ActionAttack:
		force := action.Army
		if force < 1 || r.armies[country] < force {
			return
		}
		index, ok := r.findCityLocked(action.TargetCountry, action.TargetCity)
		if !ok {
			return
		}

		// The army is spent whether or not the strike lands.
		r.armies[country] -= force

		city := &r.cities[action.TargetCountry][index]
		if force > city.Defense+city.Shield {
			city.Defense = 0
			city.Stability -= AttackStabilityLoss
			if city.Stability < 0 {
				city.Stability = 0
			}
			return
		}
		city.Defense -= force
		if city.Defense < 0 {
			city.Defense = 0
		}

	case protocol.ActionNuclear:
		if r.budgets[country] < NuclearCost || r.nuclear[country] >= MaxNuclearLevel {
			return
		}
		// The spend happens regardless of whether the program advances.
		r.budgets[country] -= NuclearCost
		if r.rng.Float64() < 0.5 {
			r.nuclear[country]++
		}

	case protocol.ActionSanction:
		if action.TargetCountry == "" {
			return
		}
		r.sanctions[action.TargetCountry] = SanctionRounds

	case protocol.ActionResearch:
		if action.Tech == "" {
			return
		}
		cost := action.Cost
		if cost <= 0 {
			cost = DefaultTechCost
		}
		if r.budgets[country] < cost {
			return
		}
		r.budgets[country] -= cost
		levels, ok := r.technologies[country]
		if !ok {
			levels = make(map[string]int)
			r.technologies[country] = levels
		}
		levels[action.Tech]++
	}
}

// applySanctionsLocked debits each sanctioned country by its full city
// income and burns one round off the counter, clearing it at zero.
func (r *Round) applySanctionsLocked() {
	targets := make([]string, 0, len(r.sanctions))
	for country := range r.sanctions {
		targets = append(targets, country)
	}
	sort.Strings(targets)

	for _, country := range targets {
		if _, ok := r.cities[country]; ok {
			r.budgets[country] -= r.countryIncomeLocked(country)
		}
		r.sanctions[country]--
		if r.sanctions[country] <= 0 {
			delete(r.sanctions, country)
		}
	}
}

func (r *Round) findCityLocked(country string, name string) (int, bool) {
	for index, city := range r.cities[country] {
		if city.Names.EN == name {
			return index, true
		}
	}
	return 0, false
}
