package constraint

import (
	"testing"
	"time"

	"github.com/alfred-ops/restaurant-core/internal/domain"
)

func monday() time.Time {
	return time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC) // a Monday
}

func availableAllDay(dayOfWeek int) domain.StaffAvailability {
	return domain.StaffAvailability{
		DayOfWeek:   dayOfWeek,
		StartMinute: 0,
		EndMinute:   24 * 60,
		Type:        domain.AvailAvailable,
	}
}

func TestValidateRejectsUnavailable(t *testing.T) {
	c := Candidate{Date: monday(), DayOfWeek: 1, Start: 9 * 60, End: 17 * 60, Role: domain.RoleServer}
	ctx := WaiterContext{Role: domain.RoleServer}

	v := Validate(c, ctx)
	if v.Accepted {
		t.Fatal("expected rejection with no availability windows")
	}
	if v.RejectReason != RejectUnavailable {
		t.Fatalf("expected RejectUnavailable, got %s", v.RejectReason)
	}
}

func TestValidateRejectsRoleIncompatible(t *testing.T) {
	c := Candidate{Date: monday(), DayOfWeek: 1, Start: 9 * 60, End: 17 * 60, Role: domain.RoleBartender}
	ctx := WaiterContext{
		Role:         domain.RoleServer,
		Availability: []domain.StaffAvailability{availableAllDay(1)},
	}

	v := Validate(c, ctx)
	if v.Accepted {
		t.Fatal("expected rejection for mismatched role")
	}
	if v.RejectReason != RejectRoleIncompatible {
		t.Fatalf("expected RejectRoleIncompatible, got %s", v.RejectReason)
	}
}

func TestValidateRejectsWeeklyHoursExceeded(t *testing.T) {
	c := Candidate{Date: monday(), DayOfWeek: 1, Start: 9 * 60, End: 17 * 60, Role: domain.RoleServer}
	ctx := WaiterContext{
		Role:         domain.RoleServer,
		Availability: []domain.StaffAvailability{availableAllDay(1)},
		Preference:   domain.StaffPreference{MaxHoursPerWeek: 4},
	}

	v := Validate(c, ctx)
	if v.Accepted {
		t.Fatal("expected rejection when the candidate alone exceeds MaxHoursPerWeek")
	}
	if v.RejectReason != RejectWeeklyHoursExceeded {
		t.Fatalf("expected RejectWeeklyHoursExceeded, got %s", v.RejectReason)
	}
}

func TestValidateRejectsShiftsCapExceeded(t *testing.T) {
	c := Candidate{Date: monday(), DayOfWeek: 1, Start: 9 * 60, End: 17 * 60, Role: domain.RoleServer}
	existing := make([]ExistingAssignment, 6)
	for i := range existing {
		existing[i] = ExistingAssignment{Date: monday().AddDate(0, 0, -i-1), Start: 9 * 60, End: 10 * 60}
	}
	ctx := WaiterContext{
		Role:         domain.RoleServer,
		Availability: []domain.StaffAvailability{availableAllDay(1)},
		Preference:   domain.StaffPreference{MaxHoursPerWeek: 100, MaxShiftsPerWeek: 6},
		Existing:     existing,
	}

	v := Validate(c, ctx)
	if v.Accepted {
		t.Fatal("expected rejection when the 7th shift exceeds MaxShiftsPerWeek")
	}
	if v.RejectReason != RejectShiftsCapExceeded {
		t.Fatalf("expected RejectShiftsCapExceeded, got %s", v.RejectReason)
	}
}

func TestValidateRejectsOverlap(t *testing.T) {
	c := Candidate{Date: monday(), DayOfWeek: 1, Start: 9 * 60, End: 17 * 60, Role: domain.RoleServer}
	ctx := WaiterContext{
		Role:         domain.RoleServer,
		Availability: []domain.StaffAvailability{availableAllDay(1)},
		Preference:   domain.StaffPreference{MaxHoursPerWeek: 100},
		Existing:     []ExistingAssignment{{Date: monday(), Start: 12 * 60, End: 14 * 60}},
	}

	v := Validate(c, ctx)
	if v.Accepted {
		t.Fatal("expected rejection for an overlapping shift on the same date")
	}
	if v.RejectReason != RejectOverlap {
		t.Fatalf("expected RejectOverlap, got %s", v.RejectReason)
	}
}

func TestValidateAcceptsWithSoftDeductions(t *testing.T) {
	c := Candidate{
		Date: monday(), DayOfWeek: 1, Start: 9 * 60, End: 17 * 60,
		Role: domain.RoleServer, ShiftType: domain.ShiftEvening,
	}
	ctx := WaiterContext{
		Role:         domain.RoleServer,
		Availability: []domain.StaffAvailability{availableAllDay(1)},
		Preference: domain.StaffPreference{
			MaxHoursPerWeek: 100,
			PreferredShifts: []domain.ShiftType{domain.ShiftMorning},
		},
	}

	v := Validate(c, ctx)
	if !v.Accepted {
		t.Fatalf("expected acceptance, got rejection: %s", v.RejectReason)
	}
	if v.ConstraintScore != 100-shiftTypeMismatchPenalty {
		t.Fatalf("expected score %f, got %f", float64(100-shiftTypeMismatchPenalty), v.ConstraintScore)
	}
	if len(v.Deductions) != 1 {
		t.Fatalf("expected exactly one deduction, got %d", len(v.Deductions))
	}
}

func TestValidateDetectsClopening(t *testing.T) {
	c := Candidate{
		Date: monday(), DayOfWeek: 1, Start: 18 * 60, End: 23*60 + 30,
		Role: domain.RoleServer,
	}
	nextDay := monday().AddDate(0, 0, 1)
	ctx := WaiterContext{
		Role: domain.RoleServer,
		Availability: []domain.StaffAvailability{
			availableAllDay(1),
			availableAllDay(2),
		},
		Preference: domain.StaffPreference{MaxHoursPerWeek: 100, AvoidClopening: true},
		Existing:   []ExistingAssignment{{Date: nextDay, Start: 6 * 60, End: 14 * 60}},
	}

	v := Validate(c, ctx)
	if !v.Accepted {
		t.Fatalf("clopening is a soft constraint, expected acceptance, got rejection: %s", v.RejectReason)
	}
	if v.ConstraintScore != 100-clopeningPenalty {
		t.Fatalf("expected clopening penalty applied, got score %f", v.ConstraintScore)
	}
}

func TestValidateNoClopeningWithSufficientGap(t *testing.T) {
	c := Candidate{
		Date: monday(), DayOfWeek: 1, Start: 9 * 60, End: 17 * 60,
		Role: domain.RoleServer,
	}
	nextDay := monday().AddDate(0, 0, 1)
	ctx := WaiterContext{
		Role: domain.RoleServer,
		Availability: []domain.StaffAvailability{
			availableAllDay(1),
			availableAllDay(2),
		},
		Preference: domain.StaffPreference{MaxHoursPerWeek: 100, AvoidClopening: true},
		Existing:   []ExistingAssignment{{Date: nextDay, Start: 11 * 60, End: 19 * 60}},
	}

	v := Validate(c, ctx)
	if !v.Accepted {
		t.Fatalf("expected acceptance, got rejection: %s", v.RejectReason)
	}
	if v.ConstraintScore != 100 {
		t.Fatalf("expected no clopening deduction with a sufficient gap, got score %f", v.ConstraintScore)
	}
}
