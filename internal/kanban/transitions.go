// Package kanban defines the application pipeline state machine.
//
// Valid status graph:
//
//	new-leads ──► reviewing ──► applied ──► interviewing ──► offer
//	    │             │            │              │
//	    ├─────────────┴────────────┴──────────────┴──► archived
//	    └─────────────┴────────────┴──────────────┴──► rejected
//
// offer, rejected and archived are terminal. new-leads is the only initial
// state.
package kanban

import "fmt"

// Status is the pipeline column of an ApplicationCard.
type Status string

const (
	StatusNewLeads     Status = "new-leads"
	StatusReviewing    Status = "reviewing"
	StatusApplied      Status = "applied"
	StatusInterviewing Status = "interviewing"
	StatusOffer        Status = "offer"
	StatusRejected     Status = "rejected"
	StatusArchived     Status = "archived"
)

// AllStatuses lists every status in pipeline order.
var AllStatuses = []Status{
	StatusNewLeads, StatusReviewing, StatusApplied, StatusInterviewing,
	StatusOffer, StatusRejected, StatusArchived,
}

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[Status][]Status{
	StatusNewLeads:     {StatusReviewing, StatusArchived, StatusRejected},
	StatusReviewing:    {StatusApplied, StatusArchived, StatusRejected},
	StatusApplied:      {StatusInterviewing, StatusArchived, StatusRejected},
	StatusInterviewing: {StatusOffer, StatusArchived, StatusRejected},
	// offer, rejected, archived are terminal; re-opening means a new card
}

// ParseStatus converts a raw string to a Status, returning an error for
// unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	for _, known := range AllStatuses {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown application status %q", s)
}

// IsTransitionAllowed returns true when moving from → to is permitted by the
// state machine. Self-transitions are not transitions; the engine treats
// them as no-ops before consulting this table.
func IsTransitionAllowed(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AllowedTargets returns the statuses reachable from s in one move.
func AllowedTargets(s Status) []Status {
	out := make([]Status, len(validTransitions[s]))
	copy(out, validTransitions[s])
	return out
}

// IsTerminal returns true for offer, rejected and archived.
func IsTerminal(s Status) bool {
	_, hasOutgoing := validTransitions[s]
	return !hasOutgoing
}

// TriggersPrepKit returns true for the one transition target that requests
// interview-prep generation.
func TriggersPrepKit(s Status) bool { return s == StatusInterviewing }
