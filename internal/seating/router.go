/*
Package seating implements C7, the Fairness-First Party Router:
recommend(restaurant, request) -> Recommendation | NoMatch, per §4.7.
Grounded on the teacher gateway's routing/sla_balancer.go computeScore
shape (weighted-sum priority over normalized shares) and its
routing/routing.go mode dispatch (section vs. rotation). Seat runs under
the store's per-restaurant KeyedMutex and SeatParty's compare-and-swap
on the table state (§5 scenario 2); Recommend takes no lock.
*/
package seating

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/alfred-ops/restaurant-core/internal/domain"
	"github.com/alfred-ops/restaurant-core/internal/store"
)

const component = "seating"

// NoMatchKind enumerates §4.7's terminal non-match outcomes.
type NoMatchKind string

const (
	NoTables                NoMatchKind = "no_tables"
	NoWaiters                NoMatchKind = "no_waiters"
	PreferenceUnsatisfiable NoMatchKind = "preference_unsatisfiable"
)

// NoMatchError carries the kind of non-match so callers can branch on it.
type NoMatchError struct {
	Kind NoMatchKind
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("no match: %s", e.Kind)
}

// Request is either a waitlist entry or an ad-hoc party, per §4.7.
type Request struct {
	WaitlistEntryID    domain.ID // set if seating from the waitlist
	PartySize          int
	TablePreference    domain.TablePreference
	LocationPreference domain.LocationPreference
	HardPreference     bool
}

// Recommendation is C7's successful output.
type Recommendation struct {
	Table       domain.Table
	Waiter      domain.Waiter
	TableScore  float64
	WaiterScore float64
}

// Router is C7.
type Router struct {
	store *store.Store
}

// New builds a Router.
func New(st *store.Store) *Router {
	return &Router{store: st}
}

type scoredTable struct {
	table store.TableMatch
	score float64
}

type scoredWaiter struct {
	candidate store.WaiterCandidate
	priority  float64
	recencyPenaltyActive bool
}

// Recommend runs §4.7's full algorithm. It does not mutate state; Seat
// performs the actual table/visit transition.
func (r *Router) Recommend(ctx context.Context, restaurantID domain.ID, req Request, cfg domain.RestaurantConfig) (*Recommendation, error) {
	matches, err := r.store.FindAvailableTables(ctx, restaurantID, req.PartySize, req.TablePreference, req.LocationPreference)
	if err != nil {
		return nil, fmt.Errorf("find available tables: %w", err)
	}
	if len(matches) == 0 {
		return nil, &NoMatchError{Kind: NoTables}
	}

	if req.HardPreference {
		var anyHit bool
		for _, m := range matches {
			if m.PreferenceHit {
				anyHit = true
				break
			}
		}
		if !anyHit {
			return nil, &NoMatchError{Kind: PreferenceUnsatisfiable}
		}
		filtered := matches[:0]
		for _, m := range matches {
			if m.PreferenceHit {
				filtered = append(filtered, m)
			}
		}
		matches = filtered
	}

	tables := make([]scoredTable, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, scoredTable{table: m, score: tableScore(m)})
	}

	candidates, err := r.store.ListCandidateWaiters(ctx, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("list candidate waiters: %w", err)
	}
	candidates = filterServingRoles(candidates)
	if cfg.RoutingMode == domain.RoutingModeSection {
		candidates = filterBySectionOwnership(candidates, tables)
	}
	if len(candidates) == 0 {
		return nil, &NoMatchError{Kind: NoWaiters}
	}

	scoredWaiters := scoreWaiters(candidates, cfg)
	// applyUnderservedOverride returns the candidates sorted by priority,
	// with any promoted underserved candidate first.
	scoredWaiters = applyUnderservedOverride(scoredWaiters, candidates)
	topWaiter := scoredWaiters[0]

	validTables := tables
	if cfg.RoutingMode == domain.RoutingModeSection && !topWaiter.candidate.Waiter.SectionID.IsNil() {
		validTables = tablesInSection(tables, topWaiter.candidate.Waiter.SectionID)
		if len(validTables) == 0 {
			validTables = tables
		}
	}

	bestTable := pickBestTable(validTables)

	return &Recommendation{
		Table:       bestTable.table.Table,
		Waiter:      topWaiter.candidate.Waiter,
		TableScore:  bestTable.score,
		WaiterScore: topWaiter.priority,
	}, nil
}

// Seat performs the actual table/visit mutation for a prior
// Recommendation, holding the restaurant's KeyedMutex for the duration
// so seats in one restaurant serialize (§5 scenario 2, §8). The lock
// does not cover the earlier Recommend call; a table taken between
// Recommend and Seat is caught by SeatParty's CAS update, which returns
// Conflict.
func (r *Router) Seat(ctx context.Context, restaurantID domain.ID, rec Recommendation, req Request) (*domain.Visit, error) {
	unlock := r.store.LockRestaurant(restaurantID.String())
	defer unlock()

	return r.store.SeatParty(ctx, rec.Table.ID, rec.Waiter.ID, req.PartySize, req.WaitlistEntryID)
}

// tableScore implements §4.7 step 1's formula.
func tableScore(m store.TableMatch) float64 {
	score := 50.0
	if m.TypeMatch {
		score += 10
	}
	if m.LocationMatch {
		score += 10
	}
	score -= 2 * float64(m.ExcessSeats)
	return score
}

func filterServingRoles(candidates []store.WaiterCandidate) []store.WaiterCandidate {
	var out []store.WaiterCandidate
	for _, c := range candidates {
		if c.Waiter.Role.CanServeTables() {
			out = append(out, c)
		}
	}
	return out
}

func filterBySectionOwnership(candidates []store.WaiterCandidate, tables []scoredTable) []store.WaiterCandidate {
	sections := make(map[domain.ID]bool)
	for _, t := range tables {
		sections[t.table.Table.SectionID] = true
	}
	var out []store.WaiterCandidate
	for _, c := range candidates {
		if sections[c.Waiter.SectionID] {
			out = append(out, c)
		}
	}
	return out
}

func tablesInSection(tables []scoredTable, sectionID domain.ID) []scoredTable {
	var out []scoredTable
	for _, t := range tables {
		if t.table.Table.SectionID == sectionID {
			out = append(out, t)
		}
	}
	return out
}

// defaultWeights are used when the caller's RestaurantConfig leaves a
// weight at its zero value (not configured).
const (
	defaultEfficiencyWeight = 1.0
	defaultWorkloadWeight   = 3.0
	defaultTipWeight        = 2.0
	defaultMaxTables        = 5
	defaultRecencyWindow    = 5 * time.Minute
	defaultRecencyPenalty   = 1.5
)

// scoreWaiters implements §4.7 step 3's priority formula.
func scoreWaiters(candidates []store.WaiterCandidate, cfg domain.RestaurantConfig) []scoredWaiter {
	wEff := orDefault(cfg.RoutingEfficiencyWeight, defaultEfficiencyWeight)
	wWork := orDefault(cfg.RoutingWorkloadPenalty, defaultWorkloadWeight)
	wTip := orDefault(cfg.RoutingTipPenalty, defaultTipWeight)
	maxTables := cfg.MaxTablesPerWaiter
	if maxTables <= 0 {
		maxTables = defaultMaxTables
	}
	recencyWindow := defaultRecencyWindow
	if cfg.RoutingRecencyMinutes > 0 {
		recencyWindow = time.Duration(cfg.RoutingRecencyMinutes) * time.Minute
	}
	recencyPenaltyWeight := orDefault(cfg.RoutingRecencyPenaltyWeight, defaultRecencyPenalty)

	var totalTips float64
	for _, c := range candidates {
		tips, _ := c.Snapshot.Tips.Float64()
		totalTips += tips
	}
	if totalTips == 0 {
		totalTips = 1
	}

	now := time.Now()
	out := make([]scoredWaiter, 0, len(candidates))
	for _, c := range candidates {
		tips, _ := c.Snapshot.Tips.Float64()
		workloadRatio := float64(c.Snapshot.CurrentTables) / float64(maxTables)
		tipRatio := tips / totalTips

		recencyActive := !c.Snapshot.LastActivityAt.IsZero() && now.Sub(c.Snapshot.LastActivityAt) < recencyWindow
		recencyPenalty := 0.0
		if recencyActive {
			recencyPenalty = recencyPenaltyWeight
		}

		priority := c.Waiter.CompositeScore*wEff - workloadRatio*wWork - tipRatio*wTip - recencyPenalty

		out = append(out, scoredWaiter{candidate: c, priority: priority, recencyPenaltyActive: recencyActive})
	}
	return out
}

func orDefault(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}

// applyUnderservedOverride promotes an underserved candidate above the
// top scorer when the top scorer's recency penalty is active and the
// underserved candidate qualifies, per §4.7 step 4.
func applyUnderservedOverride(scored []scoredWaiter, candidates []store.WaiterCandidate) []scoredWaiter {
	if len(scored) == 0 {
		return scored
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].priority > scored[j].priority })
	top := scored[0]
	if !top.recencyPenaltyActive {
		return scored
	}

	var meanCovers, meanTips float64
	for _, c := range candidates {
		meanCovers += float64(c.Snapshot.Covers)
		tips, _ := c.Snapshot.Tips.Float64()
		meanTips += tips
	}
	n := float64(len(candidates))
	meanCovers /= n
	meanTips /= n

	for i, s := range scored {
		if i == 0 {
			continue
		}
		tips, _ := s.candidate.Snapshot.Tips.Float64()
		if float64(s.candidate.Snapshot.Covers) < 0.5*meanCovers && tips < 0.5*meanTips {
			promoted := append([]scoredWaiter{s}, append(scored[:i], scored[i+1:]...)...)
			return promoted
		}
	}
	return scored
}

// pickBestTable selects the highest-scoring table, tie-broken by lowest
// table number then earliest created_at, per §4.7 step 5.
func pickBestTable(tables []scoredTable) scoredTable {
	best := tables[0]
	for _, t := range tables[1:] {
		if t.score > best.score {
			best = t
			continue
		}
		if t.score == best.score {
			if t.table.Table.Number < best.table.Table.Number {
				best = t
				continue
			}
			if t.table.Table.Number == best.table.Table.Number && t.table.Table.CreatedAt.Before(best.table.Table.CreatedAt) {
				best = t
			}
		}
	}
	return best
}
