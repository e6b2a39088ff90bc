/*
Package schedule implements C11, the Scheduling Engine: the score-and-rank
run(restaurant, week_start) algorithm of §4.11, composing C1 (candidate
waiters/availability/preferences), C8 (forecast), C9 (fairness), and C10
(constraint validation). Grounded on the teacher gateway's
routing/sla_balancer.go for the weighted-sum scoring shape and on
golang.org/x/sync/errgroup (provider/healthpoller.go) for concurrent
per-slot candidate scoring.
*/
package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/alfred-ops/restaurant-core/internal/constraint"
	"github.com/alfred-ops/restaurant-core/internal/domain"
	"github.com/alfred-ops/restaurant-core/internal/fairness"
	"github.com/alfred-ops/restaurant-core/internal/forecast"
	"github.com/alfred-ops/restaurant-core/internal/store"
)

const component = "schedule"

const (
	weightConstraint = 0.5
	weightFairness   = 0.3
	weightPreference = 0.2

	bonusRoleMatch      = 20.0
	bonusShiftTypeMatch = 15.0
	bonusSectionMatch   = 10.0
	bonusPrimeTime      = 10.0
)

// Engine is C11.
type Engine struct {
	store  *store.Store
	logger zerolog.Logger
}

// New builds an Engine.
func New(st *store.Store, logger zerolog.Logger) *Engine {
	return &Engine{store: st, logger: logger.With().Str("component", component).Logger()}
}

// runningState tracks per-waiter assigned hours across the run, feeding
// C9's hypothetical-fairness-impact computation at each slot (§4.11 step 3).
type runningState struct {
	waiterHours map[domain.ID]float64
	waiterPrime map[domain.ID]float64
	assignments map[domain.ID][]constraint.ExistingAssignment
}

func newRunningState() *runningState {
	return &runningState{
		waiterHours: make(map[domain.ID]float64),
		waiterPrime: make(map[domain.ID]float64),
		assignments: make(map[domain.ID][]constraint.ExistingAssignment),
	}
}

// Run executes one scheduling pass for restaurant over weekStart, per
// §4.11.
func (e *Engine) Run(ctx context.Context, restaurantID domain.ID, weekStart time.Time) (*domain.ScheduleRun, error) {
	run := &domain.ScheduleRun{
		ID:           domain.NewID(),
		RestaurantID: restaurantID,
		SnapshotID:   domain.NewID(),
		StartedAt:    time.Now().UTC(),
	}

	historicalVisits, err := e.store.VisitsInWindow(ctx, restaurantID, weekStart.AddDate(0, 0, -7*forecast.MaxLookbackWeeks), weekStart)
	if err != nil {
		run.FinishedAt = time.Now().UTC()
		run.Status = domain.RunFailed
		run.ErrorMessage = err.Error()
		if recErr := e.store.RecordScheduleRun(ctx, run); recErr != nil {
			e.logger.Error().Err(recErr).Msg("failed to record failed schedule run")
		}
		return run, fmt.Errorf("load historical visits: %w", err)
	}
	weekSummary := forecast.BuildWeekSummary(historicalVisits, weekStart)
	run.ForecastTrend = string(weekSummary.Trend)

	sched, items, understaffed, err := e.runInternal(ctx, restaurantID, weekStart)
	run.FinishedAt = time.Now().UTC()
	if err != nil {
		run.Status = domain.RunFailed
		run.ErrorMessage = err.Error()
		if recErr := e.store.RecordScheduleRun(ctx, run); recErr != nil {
			e.logger.Error().Err(recErr).Msg("failed to record failed schedule run")
		}
		return run, fmt.Errorf("schedule run: %w", err)
	}

	run.ScheduleID = sched.ID
	run.Status = domain.RunCompleted
	run.ItemsCreated = len(items)
	run.UnderstaffedSlots = understaffed

	var totalHours, prefSum float64
	for _, it := range items {
		totalHours += float64(it.EndMinute-it.StartMinute) / 60.0
		prefSum += it.PreferenceMatchScore
	}
	run.TotalHours = totalHours
	if len(items) > 0 {
		run.PreferenceAvg = prefSum / float64(len(items))
	}

	waiterHoursReport := collectWaiterHours(items)
	fairnessReport := fairness.Evaluate(waiterHoursReport)
	run.FairnessGini = fairnessReport.HoursGini

	if err := e.store.RecordScheduleRun(ctx, run); err != nil {
		return run, fmt.Errorf("record schedule run: %w", err)
	}
	return run, nil
}

func collectWaiterHours(items []domain.ScheduleItem) []fairness.WaiterHours {
	byWaiter := make(map[domain.ID]float64)
	for _, it := range items {
		byWaiter[it.WaiterID] += float64(it.EndMinute-it.StartMinute) / 60.0
	}
	out := make([]fairness.WaiterHours, 0, len(byWaiter))
	for id, hrs := range byWaiter {
		out = append(out, fairness.WaiterHours{WaiterID: id.String(), Hours: hrs})
	}
	return out
}

func (e *Engine) runInternal(ctx context.Context, restaurantID domain.ID, weekStart time.Time) (*domain.Schedule, []domain.ScheduleItem, int, error) {
	sched, err := e.store.CreateDraftSchedule(ctx, restaurantID, weekStart, domain.GeneratedEngine)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("create draft schedule: %w", err)
	}

	requirements, err := e.store.ListStaffingRequirements(ctx, restaurantID)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("list staffing requirements: %w", err)
	}

	candidates, err := e.store.ListCandidateWaiters(ctx, restaurantID)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("list candidate waiters: %w", err)
	}

	state := newRunningState()
	var items []domain.ScheduleItem
	understaffed := 0

	for _, req := range requirements {
		slotDate := weekStart.AddDate(0, 0, req.DayOfWeek)
		best, bestScore, bestDeductions, found, err := e.scoreSlot(ctx, req, slotDate, candidates, state)
		if err != nil {
			return nil, nil, 0, err
		}
		if !found {
			understaffed++
			continue
		}

		item := domain.ScheduleItem{
			ScheduleID:           sched.ID,
			WaiterID:             best.Waiter.ID,
			Role:                 req.Role,
			Date:                 slotDate,
			StartMinute:          req.StartMinute,
			EndMinute:            req.EndMinute,
			Source:               domain.GeneratedEngine,
			PreferenceMatchScore: bestScore.preferenceBonus,
			FairnessImpactScore:  bestScore.fairnessImpact,
		}
		reasoning := buildReasoning(req, bestScore, bestDeductions)

		if err := e.store.InsertScheduleItem(ctx, &item, reasoning); err != nil {
			return nil, nil, 0, fmt.Errorf("insert schedule item: %w", err)
		}
		items = append(items, item)

		hours := float64(req.EndMinute-req.StartMinute) / 60.0
		state.waiterHours[best.Waiter.ID] += hours
		if req.IsPrimeShift {
			state.waiterPrime[best.Waiter.ID] += hours
		}
		state.assignments[best.Waiter.ID] = append(state.assignments[best.Waiter.ID], constraint.ExistingAssignment{
			Date: slotDate, Start: req.StartMinute, End: req.EndMinute,
		})
	}

	return sched, items, understaffed, nil
}

type slotScore struct {
	constraintScore float64
	fairnessImpact  float64
	preferenceBonus float64
	total           float64
	currentHours    float64
}

// scoreSlot scores every candidate waiter against one StaffingRequirement
// slot concurrently (via errgroup) and picks the winner per §4.11 steps
// 3-4 and the tie-break rules of §4.11's closing paragraph.
func (e *Engine) scoreSlot(ctx context.Context, req domain.StaffingRequirement, slotDate time.Time,
	candidates []store.WaiterCandidate, state *runningState) (store.WaiterCandidate, slotScore, []constraint.Deduction, bool, error) {

	type scored struct {
		candidate  store.WaiterCandidate
		score      slotScore
		deductions []constraint.Deduction
		eligible   bool
	}
	results := make([]scored, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	for i, cand := range candidates {
		i, cand := i, cand
		g.Go(func() error {
			s, deductions, eligible, err := e.scoreCandidate(gctx, req, slotDate, cand, state)
			results[i] = scored{candidate: cand, score: s, deductions: deductions, eligible: eligible}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return store.WaiterCandidate{}, slotScore{}, nil, false, err
	}

	var eligible []scored
	for _, r := range results {
		if r.eligible {
			eligible = append(eligible, r)
		}
	}
	if len(eligible) == 0 {
		return store.WaiterCandidate{}, slotScore{}, nil, false, nil
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].score.total != eligible[j].score.total {
			return eligible[i].score.total > eligible[j].score.total
		}
		if eligible[i].score.preferenceBonus != eligible[j].score.preferenceBonus {
			return eligible[i].score.preferenceBonus > eligible[j].score.preferenceBonus
		}
		if eligible[i].score.currentHours != eligible[j].score.currentHours {
			return eligible[i].score.currentHours < eligible[j].score.currentHours
		}
		return eligible[i].candidate.Waiter.ID.String() < eligible[j].candidate.Waiter.ID.String()
	})

	winner := eligible[0]
	return winner.candidate, winner.score, winner.deductions, true, nil
}

func (e *Engine) scoreCandidate(ctx context.Context, req domain.StaffingRequirement, slotDate time.Time,
	cand store.WaiterCandidate, state *runningState) (slotScore, []constraint.Deduction, bool, error) {

	pref, err := e.store.GetStaffPreference(ctx, cand.Waiter.ID)
	if err != nil {
		return slotScore{}, nil, false, fmt.Errorf("get staff preference for %s: %w", cand.Waiter.ID, err)
	}
	availability, err := e.store.ListStaffAvailability(ctx, cand.Waiter.ID, slotDate)
	if err != nil {
		return slotScore{}, nil, false, fmt.Errorf("list availability for %s: %w", cand.Waiter.ID, err)
	}

	shiftType := classifyShiftType(req.StartMinute)

	candidateSlot := constraint.Candidate{
		WaiterID:  cand.Waiter.ID,
		Date:      slotDate,
		DayOfWeek: req.DayOfWeek,
		Start:     req.StartMinute,
		End:       req.EndMinute,
		Role:      req.Role,
		SectionID: cand.Waiter.SectionID,
		ShiftType: shiftType,
		IsPrime:   req.IsPrimeShift,
	}
	verdict := constraint.Validate(candidateSlot, constraint.WaiterContext{
		Role:         cand.Waiter.Role,
		Preference:   *pref,
		Availability: availability,
		Existing:     state.assignments[cand.Waiter.ID],
	})
	if !verdict.Accepted {
		return slotScore{}, nil, false, nil
	}

	currentHours := state.waiterHours[cand.Waiter.ID]
	fairnessImpact := computeFairnessImpact(cand.Waiter.ID, req, state)
	preferenceBonus := computePreferenceBonus(candidateSlot, *pref)

	total := weightConstraint*verdict.ConstraintScore + weightFairness*(fairnessImpact+50) + weightPreference*preferenceBonus

	return slotScore{
		constraintScore: verdict.ConstraintScore,
		fairnessImpact:  fairnessImpact,
		preferenceBonus: preferenceBonus,
		total:           total,
		currentHours:    currentHours,
	}, verdict.Deductions, true, nil
}

// computeFairnessImpact evaluates C9 on the hypothetical post-assignment
// state vs. the current running state, per §4.11 step 3.
func computeFairnessImpact(waiterID domain.ID, req domain.StaffingRequirement, state *runningState) float64 {
	before := fairnessGiniOf(state.waiterHours)

	hypothetical := make(map[domain.ID]float64, len(state.waiterHours)+1)
	for id, h := range state.waiterHours {
		hypothetical[id] = h
	}
	hypothetical[waiterID] += float64(req.EndMinute-req.StartMinute) / 60.0
	after := fairnessGiniOf(hypothetical)

	// Positive when the assignment reduces hours-gini (more balanced).
	return (before - after) * 100
}

func fairnessGiniOf(hoursByWaiter map[domain.ID]float64) float64 {
	if len(hoursByWaiter) == 0 {
		return 0
	}
	waiters := make([]fairness.WaiterHours, 0, len(hoursByWaiter))
	for id, h := range hoursByWaiter {
		waiters = append(waiters, fairness.WaiterHours{WaiterID: id.String(), Hours: h})
	}
	return fairness.Evaluate(waiters).HoursGini
}

// computePreferenceBonus sums §4.11 step 3's preference match bonuses,
// capped at 100.
func computePreferenceBonus(c constraint.Candidate, pref domain.StaffPreference) float64 {
	var bonus float64
	for _, r := range pref.PreferredRoles {
		if r == c.Role {
			bonus += bonusRoleMatch
			break
		}
	}
	for _, st := range pref.PreferredShifts {
		if st == c.ShiftType {
			bonus += bonusShiftTypeMatch
			break
		}
	}
	for _, sec := range pref.PreferredSections {
		if sec == c.SectionID {
			bonus += bonusSectionMatch
			break
		}
	}
	if c.IsPrime {
		for _, st := range pref.PreferredShifts {
			if st == domain.ShiftEvening || st == domain.ShiftClosing {
				bonus += bonusPrimeTime
				break
			}
		}
	}
	if bonus > 100 {
		bonus = 100
	}
	return bonus
}

func classifyShiftType(startMinute int) domain.ShiftType {
	switch {
	case startMinute < 11*60:
		return domain.ShiftMorning
	case startMinute < 16*60:
		return domain.ShiftAfternoon
	case startMinute < 21*60:
		return domain.ShiftEvening
	default:
		return domain.ShiftClosing
	}
}

func buildReasoning(req domain.StaffingRequirement, score slotScore, deductions []constraint.Deduction) *domain.ScheduleReasoning {
	lines := []string{
		fmt.Sprintf("availability and role constraints satisfied, constraint score %.1f", score.constraintScore),
		fmt.Sprintf("fairness impact %.2f toward a more balanced schedule", score.fairnessImpact),
		fmt.Sprintf("preference match score %.1f", score.preferenceBonus),
	}
	for _, d := range deductions {
		lines = append(lines, fmt.Sprintf("%s (%.1f)", d.Reason, d.Points))
	}
	if req.IsPrimeShift {
		lines = append(lines, "prime-time slot")
	}
	return &domain.ScheduleReasoning{Lines: lines}
}

// Publish invokes C1's publish_schedule on behalf of a caller.
func (e *Engine) Publish(ctx context.Context, scheduleID domain.ID) error {
	return e.store.PublishSchedule(ctx, scheduleID)
}
