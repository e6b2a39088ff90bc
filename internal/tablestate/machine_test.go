package tablestate

import (
	"testing"

	"github.com/alfred-ops/restaurant-core/internal/domain"
)

func TestEvaluateValidTransitions(t *testing.T) {
	tests := []struct {
		name     string
		previous domain.TableState
		next     domain.TableState
	}{
		{"clean to occupied", domain.TableClean, domain.TableOccupied},
		{"clean to reserved", domain.TableClean, domain.TableReserved},
		{"clean to unavailable", domain.TableClean, domain.TableUnavailable},
		{"occupied to dirty", domain.TableOccupied, domain.TableDirty},
		{"dirty to clean", domain.TableDirty, domain.TableClean},
		{"reserved to occupied", domain.TableReserved, domain.TableOccupied},
		{"reserved to clean", domain.TableReserved, domain.TableClean},
		{"unavailable to clean", domain.TableUnavailable, domain.TableClean},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := Evaluate(tc.previous, tc.next, 0.5, 0.9, domain.SourceML)
			if !d.Accept {
				t.Fatalf("expected %s -> %s to be accepted", tc.previous, tc.next)
			}
			if d.Noop {
				t.Fatalf("expected %s -> %s to not be a no-op", tc.previous, tc.next)
			}
		})
	}
}

func TestEvaluateRejectsInvalidTransition(t *testing.T) {
	d := Evaluate(domain.TableDirty, domain.TableOccupied, 0.5, 0.9, domain.SourceML)
	if d.Accept {
		t.Fatal("expected dirty -> occupied to be rejected")
	}
	if d.Reason == "" {
		t.Fatal("expected a rejection reason")
	}
}

func TestEvaluateSameStateRaisedConfidenceIsNotNoop(t *testing.T) {
	d := Evaluate(domain.TableClean, domain.TableClean, 0.5, 0.95, domain.SourceML)
	if !d.Accept {
		t.Fatal("expected clean -> clean with raised confidence to be accepted")
	}
	if d.Noop {
		t.Fatal("expected a confidence-raising same-state push to not be a no-op")
	}
}

func TestEvaluateSameStateLowerConfidenceIsNoop(t *testing.T) {
	d := Evaluate(domain.TableOccupied, domain.TableOccupied, 0.9, 0.5, domain.SourceML)
	if !d.Accept {
		t.Fatal("expected a same-state push to always be accepted")
	}
	if !d.Noop {
		t.Fatal("expected a confidence-lowering same-state push to be a no-op")
	}
}

func TestEvaluateSameStateNonGatedStates(t *testing.T) {
	// reserved/dirty/unavailable have no confidence gating in the no-op rule.
	d := Evaluate(domain.TableReserved, domain.TableReserved, 0.9, 0.1, domain.SourceHost)
	if !d.Accept || !d.Noop {
		t.Fatalf("expected reserved -> reserved to always be a no-op, got %+v", d)
	}
}

func TestValidateSource(t *testing.T) {
	if err := ValidateSource(domain.SourceML); err != nil {
		t.Fatalf("expected SourceML to validate, got %v", err)
	}
	if err := ValidateSource(domain.StateSource("bogus")); err == nil {
		t.Fatal("expected an unknown source to fail validation")
	}
}
