/*
Package tablestate implements C2, the Table State Machine: a pure
transition-validity function kept separate from persistence (internal/store
calls into it inside a transaction). Grounded on the teacher gateway's
routing.sla_balancer scoring style of small pure decision functions fed by
the caller, rather than reaching into storage itself.
*/
package tablestate

import "github.com/alfred-ops/restaurant-core/internal/domain"

const component = "tablestate"

// Decision is the outcome of evaluating a proposed transition.
type Decision struct {
	// Accept is false only when the transition is rejected outright
	// (InvalidTransition); a stale/duplicate push is accepted with Noop set.
	Accept bool
	// Noop is true when Accept is true but no TableStateLog entry should
	// be written (idempotent same-state push that didn't raise confidence).
	Noop bool
	// Reason explains a rejection, for the caller's error message.
	Reason string
}

// transitions enumerates every accepted (previous, next) pair outside the
// same-state no-op rule, per §4.2.
var transitions = map[domain.TableState]map[domain.TableState]bool{
	domain.TableClean: {
		domain.TableOccupied:    true,
		domain.TableReserved:    true,
		domain.TableUnavailable: true,
	},
	domain.TableOccupied: {
		domain.TableDirty: true,
	},
	domain.TableDirty: {
		domain.TableClean: true,
	},
	domain.TableReserved: {
		domain.TableOccupied: true,
		domain.TableClean:    true,
	},
	domain.TableUnavailable: {
		domain.TableClean: true,
	},
}

// Evaluate decides whether a proposed (previous → next, confidence, source)
// transition is accepted, per §4.2's transition table and no-op rule.
func Evaluate(previous, next domain.TableState, currentConfidence, proposedConfidence float64, source domain.StateSource) Decision {
	if previous == next {
		// clean→clean or occupied→occupied: an idempotent push. Logged as
		// a transition only if confidence actually increased; otherwise,
		// and for every other same-state push, it is a no-op.
		if (previous == domain.TableClean || previous == domain.TableOccupied) && proposedConfidence > currentConfidence {
			return Decision{Accept: true}
		}
		return Decision{Accept: true, Noop: true}
	}

	if allowed, ok := transitions[previous]; ok && allowed[next] {
		return Decision{Accept: true}
	}

	return Decision{Accept: false, Reason: "invalid transition: " + string(previous) + " -> " + string(next)}
}

// sourceAllowed reports whether source is a recognized attribution source.
// Every StateSource constant is valid for every real transition in §4.2 —
// the table does not gate by source — so this only guards against an
// empty/unknown value reaching the log.
func sourceAllowed(source domain.StateSource) bool {
	switch source {
	case domain.SourceML, domain.SourceHost, domain.SourceSystem:
		return true
	default:
		return false
	}
}

// ValidateSource returns an Input error if source is not one of the
// recognized StateSource values.
func ValidateSource(source domain.StateSource) *domain.Error {
	if !sourceAllowed(source) {
		return domain.Input(component, "unknown state source: "+string(source))
	}
	return nil
}
