package seating

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alfred-ops/restaurant-core/internal/domain"
	"github.com/alfred-ops/restaurant-core/internal/store"
)

func TestTableScoreTypeAndLocationBonusesAreSeparate(t *testing.T) {
	both := tableScore(store.TableMatch{TypeMatch: true, LocationMatch: true, ExcessSeats: 0})
	typeOnly := tableScore(store.TableMatch{TypeMatch: true, LocationMatch: false, ExcessSeats: 0})
	neither := tableScore(store.TableMatch{TypeMatch: false, LocationMatch: false, ExcessSeats: 0})

	if both != 70 {
		t.Fatalf("expected score 70 for both bonuses, got %f", both)
	}
	if typeOnly != 60 {
		t.Fatalf("expected score 60 for type-only bonus, got %f", typeOnly)
	}
	if neither != 50 {
		t.Fatalf("expected base score 50 with no bonuses, got %f", neither)
	}
}

func TestTableScorePenalizesExcessSeats(t *testing.T) {
	score := tableScore(store.TableMatch{ExcessSeats: 3})
	if score != 50-2*3 {
		t.Fatalf("expected score %f, got %f", 50-2.0*3, score)
	}
}

func TestPickBestTableTieBreaksByNumberThenCreatedAt(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	tables := []scoredTable{
		{table: store.TableMatch{Table: domain.Table{Number: 5, CreatedAt: newer}}, score: 60},
		{table: store.TableMatch{Table: domain.Table{Number: 2, CreatedAt: older}}, score: 60},
		{table: store.TableMatch{Table: domain.Table{Number: 9, CreatedAt: older}}, score: 80},
	}

	best := pickBestTable(tables)
	if best.table.Table.Number != 9 {
		t.Fatalf("expected the strictly higher-scored table (9) to win, got %d", best.table.Table.Number)
	}

	tied := []scoredTable{
		{table: store.TableMatch{Table: domain.Table{Number: 5, CreatedAt: newer}}, score: 60},
		{table: store.TableMatch{Table: domain.Table{Number: 2, CreatedAt: older}}, score: 60},
	}
	best = pickBestTable(tied)
	if best.table.Table.Number != 2 {
		t.Fatalf("expected the lowest table number to win a score tie, got %d", best.table.Table.Number)
	}
}

func candidateWith(tables int, tips string, lastActivity time.Time) store.WaiterCandidate {
	return store.WaiterCandidate{
		Waiter: domain.Waiter{CompositeScore: 75},
		Snapshot: store.ShiftSnapshot{
			CurrentTables:  tables,
			Tips:           decimal.RequireFromString(tips),
			LastActivityAt: lastActivity,
		},
	}
}

func TestScoreWaitersAppliesWorkloadAndRecencyPenalty(t *testing.T) {
	cfg := domain.DefaultRestaurantConfig()

	idle := candidateWith(0, "0", time.Time{})
	busy := candidateWith(4, "100", time.Now())

	scored := scoreWaiters([]store.WaiterCandidate{idle, busy}, cfg)
	if len(scored) != 2 {
		t.Fatalf("expected 2 scored waiters, got %d", len(scored))
	}

	var idleScore, busyScore scoredWaiter
	for _, s := range scored {
		if s.candidate.Snapshot.CurrentTables == 0 {
			idleScore = s
		} else {
			busyScore = s
		}
	}

	if idleScore.priority <= busyScore.priority {
		t.Fatalf("expected the idle, recently-inactive waiter to outscore the busy, recently-active one: idle=%f busy=%f",
			idleScore.priority, busyScore.priority)
	}
	if !busyScore.recencyPenaltyActive {
		t.Fatal("expected recencyPenaltyActive for a waiter with very recent activity")
	}
	if idleScore.recencyPenaltyActive {
		t.Fatal("expected no recency penalty for a waiter with no recorded activity")
	}
}

func TestFilterServingRolesExcludesNonServingRoles(t *testing.T) {
	candidates := []store.WaiterCandidate{
		{Waiter: domain.Waiter{Role: domain.RoleServer}},
		{Waiter: domain.Waiter{Role: domain.RoleHost}},
		{Waiter: domain.Waiter{Role: domain.RoleBartender}},
		{Waiter: domain.Waiter{Role: domain.RoleBusser}},
	}
	out := filterServingRoles(candidates)
	if len(out) != 2 {
		t.Fatalf("expected 2 serving-role candidates, got %d", len(out))
	}
	for _, c := range out {
		if !c.Waiter.Role.CanServeTables() {
			t.Fatalf("filterServingRoles let a non-serving role through: %s", c.Waiter.Role)
		}
	}
}
