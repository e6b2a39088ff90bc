/*
Package constraint implements C10, the Constraint Validator: hard
rejection rules and soft score deductions for a candidate
(waiter, date, start, end, role, section) assignment (§4.10). Grounded
on the teacher gateway's routing/routing.go rule-evaluation style
(ordered predicate checks returning a typed verdict).
*/
package constraint

import (
	"time"

	"github.com/alfred-ops/restaurant-core/internal/domain"
)

const (
	legalMaxWeeklyHours     = 48
	defaultMaxWeeklyHours   = 40
	clopeningMinGapHours    = 10
	shiftTypeMismatchPenalty = 15
	sectionMismatchPenalty   = 10
	clopeningPenalty         = 20
	underMinHoursPenaltyPerHour = 5
)

// Candidate is the proposed assignment under evaluation.
type Candidate struct {
	WaiterID  domain.ID
	Date      time.Time
	DayOfWeek int
	Start     int // minutes since midnight
	End       int
	Role      domain.WaiterRole
	SectionID domain.ID
	ShiftType domain.ShiftType
	IsPrime   bool
}

// ExistingAssignment is one shift already assigned to the same waiter
// within the schedule under construction, used for overlap/clopening/
// weekly-hours checks.
type ExistingAssignment struct {
	Date  time.Time
	Start int
	End   int
}

// WaiterContext bundles everything the validator needs about a waiter
// beyond the candidate slot itself.
type WaiterContext struct {
	Role        domain.WaiterRole
	Preference  domain.StaffPreference
	Availability []domain.StaffAvailability
	Existing    []ExistingAssignment
}

// RejectReason names which hard constraint failed.
type RejectReason string

const (
	RejectNone              RejectReason = ""
	RejectUnavailable       RejectReason = "unavailable"
	RejectRoleIncompatible  RejectReason = "role_incompatible"
	RejectWeeklyHoursExceeded RejectReason = "weekly_hours_exceeded"
	RejectShiftsCapExceeded RejectReason = "shifts_cap_exceeded"
	RejectOverlap           RejectReason = "overlap"
)

// Verdict is the outcome of validating one candidate.
type Verdict struct {
	Accepted       bool
	RejectReason   RejectReason
	ConstraintScore float64 // 100 - soft deductions, meaningful only if Accepted
	Deductions     []Deduction
}

// Deduction records one soft-constraint penalty, for ScheduleReasoning.
type Deduction struct {
	Reason string
	Points float64
}

// Validate runs every hard constraint in order, short-circuiting on the
// first rejection, then tallies soft deductions (§4.10).
func Validate(c Candidate, ctx WaiterContext) Verdict {
	if !availabilityCovers(c, ctx.Availability) {
		return Verdict{Accepted: false, RejectReason: RejectUnavailable}
	}
	if !roleCompatible(c.Role, ctx.Role, ctx.Preference) {
		return Verdict{Accepted: false, RejectReason: RejectRoleIncompatible}
	}

	candidateHours := hoursOf(c.Start, c.End)
	weeklyHours := candidateHours
	for _, e := range ctx.Existing {
		weeklyHours += hoursOf(e.Start, e.End)
	}
	maxWeekly := ctx.Preference.MaxHoursPerWeek
	if maxWeekly <= 0 {
		maxWeekly = defaultMaxWeeklyHours
	}
	if weeklyHours > maxWeekly || weeklyHours > legalMaxWeeklyHours {
		return Verdict{Accepted: false, RejectReason: RejectWeeklyHoursExceeded}
	}

	maxShifts := ctx.Preference.MaxShiftsPerWeek
	if maxShifts <= 0 {
		maxShifts = 6
	}
	if len(ctx.Existing)+1 > maxShifts {
		return Verdict{Accepted: false, RejectReason: RejectShiftsCapExceeded}
	}

	for _, e := range ctx.Existing {
		if overlaps(c.Date, c.Start, c.End, e.Date, e.Start, e.End) {
			return Verdict{Accepted: false, RejectReason: RejectOverlap}
		}
	}

	score := 100.0
	var deductions []Deduction

	if len(ctx.Preference.PreferredShifts) > 0 && !shiftTypeIn(c.ShiftType, ctx.Preference.PreferredShifts) {
		score -= shiftTypeMismatchPenalty
		deductions = append(deductions, Deduction{Reason: "shift type outside preferences", Points: -shiftTypeMismatchPenalty})
	}
	if len(ctx.Preference.PreferredSections) > 0 && !sectionIn(c.SectionID, ctx.Preference.PreferredSections) {
		score -= sectionMismatchPenalty
		deductions = append(deductions, Deduction{Reason: "section not preferred", Points: -sectionMismatchPenalty})
	}
	if ctx.Preference.AvoidClopening && hasClopening(c, ctx.Existing) {
		score -= clopeningPenalty
		deductions = append(deductions, Deduction{Reason: "clopening shift", Points: -clopeningPenalty})
	}
	if ctx.Preference.MinHoursPerWeek > 0 && weeklyHours < ctx.Preference.MinHoursPerWeek {
		shortHours := ctx.Preference.MinHoursPerWeek - weeklyHours
		penalty := underMinHoursPenaltyPerHour * shortHours
		score -= penalty
		deductions = append(deductions, Deduction{Reason: "under minimum weekly hours", Points: -penalty})
	}

	return Verdict{Accepted: true, ConstraintScore: score, Deductions: deductions}
}

func hoursOf(start, end int) float64 {
	return float64(end-start) / 60.0
}

func availabilityCovers(c Candidate, windows []domain.StaffAvailability) bool {
	covered := false
	for _, w := range windows {
		if w.DayOfWeek != c.DayOfWeek {
			continue
		}
		switch w.Type {
		case domain.AvailUnavailable:
			if w.StartMinute < c.End && c.Start < w.EndMinute {
				return false
			}
		case domain.AvailAvailable, domain.AvailPreferred:
			if w.StartMinute <= c.Start && c.End <= w.EndMinute {
				covered = true
			}
		}
	}
	return covered
}

func roleCompatible(candidateRole, waiterRole domain.WaiterRole, pref domain.StaffPreference) bool {
	if len(pref.PreferredRoles) > 0 {
		for _, r := range pref.PreferredRoles {
			if r == candidateRole {
				return true
			}
		}
		return false
	}
	return candidateRole == waiterRole
}

func overlaps(dateA time.Time, startA, endA int, dateB time.Time, startB, endB int) bool {
	if !sameDate(dateA, dateB) {
		return false
	}
	return startA < endB && startB < endA
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func shiftTypeIn(t domain.ShiftType, list []domain.ShiftType) bool {
	for _, x := range list {
		if x == t {
			return true
		}
	}
	return false
}

func sectionIn(id domain.ID, list []domain.ID) bool {
	for _, x := range list {
		if x == id {
			return true
		}
	}
	return false
}

// hasClopening checks whether c closes one day and another existing
// assignment opens the next day with less than clopeningMinGapHours
// between them (§4.10).
func hasClopening(c Candidate, existing []ExistingAssignment) bool {
	for _, e := range existing {
		if isNextDay(c.Date, e.Date) && gapHours(c.End, e.Start, 24*60) < clopeningMinGapHours {
			return true
		}
		if isNextDay(e.Date, c.Date) && gapHours(e.End, c.Start, 24*60) < clopeningMinGapHours {
			return true
		}
	}
	return false
}

func isNextDay(earlier, later time.Time) bool {
	return sameDate(earlier.AddDate(0, 0, 1), later)
}

// gapHours computes the gap between a closing minute-of-day on day N and
// an opening minute-of-day on day N+1.
func gapHours(closeMinute, openMinute, minutesPerDay int) float64 {
	gap := (minutesPerDay - closeMinute) + openMinute
	return float64(gap) / 60.0
}
