package types

import "fmt"

// ActorType tags the three identity classes the engine recognises. Actors
// are compared by (type, id) exactly; a user and an agent sharing an id are
// distinct actors.
type ActorType string

const (
	ActorUser    ActorType = "user"
	ActorAgent   ActorType = "agent"
	ActorPartner ActorType = "partner"
)

// Valid reports whether the actor type is one of the supported tags.
func (t ActorType) Valid() bool {
	switch t {
	case ActorUser, ActorAgent, ActorPartner:
		return true
	default:
		return false
	}
}

// Actor identifies a caller or record owner.
type Actor struct {
	Type ActorType `json:"type"`
	ID   string    `json:"id"`
}

// Key renders the canonical "type:id" scope key used by the idempotency
// ledger and the daily spend map.
func (a Actor) Key() string { return fmt.Sprintf("%s:%s", a.Type, a.ID) }

// Equal compares actors by their full (type, id) pair.
func (a Actor) Equal(other Actor) bool { return a.Type == other.Type && a.ID == other.ID }

// IsZero reports whether the actor is unset.
func (a Actor) IsZero() bool { return a.Type == "" && a.ID == "" }
