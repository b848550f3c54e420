// README: Transition table, per-edge actor permissions and actor roles.
package order

import "gigmarket/internal/types"

type Role string

const (
	RoleClient     Role = "client"
	RoleFreelancer Role = "freelancer"
	RoleSystem     Role = "system"
	// RoleAny selects orders where the user is either party.
	RoleAny Role = "any"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleClient, RoleFreelancer:
		return Role(s), true
	case RoleAny, "":
		return RoleAny, true
	}
	return "", false
}

// Permission says which party may take an edge. The system actor may take any edge.
type Permission int

const (
	AnyParty Permission = iota
	ClientOnly
	FreelancerOnly
)

func (p Permission) allows(r Role) bool {
	switch r {
	case RoleSystem:
		return true
	case RoleClient:
		return p == AnyParty || p == ClientOnly
	case RoleFreelancer:
		return p == AnyParty || p == FreelancerOnly
	}
	return false
}

// AllowedTransitions represents the order state flow (diagram) as code.
// completed and cancelled have no outgoing edges.
var AllowedTransitions = map[Status]map[Status]Permission{
	StatusDraft: {
		StatusPayment:   AnyParty,
		StatusCancelled: AnyParty,
	},
	StatusPayment: {
		StatusPending:   AnyParty,
		StatusCancelled: AnyParty,
	},
	StatusPending: {
		StatusActive:    FreelancerOnly,
		StatusCancelled: AnyParty,
	},
	StatusActive: {
		StatusDelivered: FreelancerOnly,
		StatusCancelled: AnyParty,
	},
	StatusDelivered: {
		StatusInRevision: ClientOnly,
		StatusCompleted:  ClientOnly,
		StatusCancelled:  AnyParty,
	},
	StatusInRevision: {
		StatusDelivered: FreelancerOnly,
		StatusCancelled: AnyParty,
	},
}

func CanTransition(from, to Status) bool {
	_, ok := AllowedTransitions[from][to]
	return ok
}

func IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Actor is whoever requests a transition. System actors bypass party checks.
type Actor struct {
	ID     types.ID
	System bool
}

// SystemActor is used by the expiry sweep and the payment webhook.
var SystemActor = Actor{ID: "system", System: true}

func UserActor(id types.ID) Actor { return Actor{ID: id} }

// RoleOf resolves the actor's role on o; ok is false for non-parties.
func RoleOf(o *Order, a Actor) (Role, bool) {
	switch {
	case a.System:
		return RoleSystem, true
	case a.ID == "":
		return "", false
	case a.ID == o.ClientID:
		return RoleClient, true
	case a.ID == o.FreelancerID:
		return RoleFreelancer, true
	}
	return "", false
}

func (a Actor) typeName(o *Order) string {
	r, ok := RoleOf(o, a)
	if !ok {
		return "unknown"
	}
	return string(r)
}
