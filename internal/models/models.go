// Package models holds the persisted entities and their conditional writes.
package models

// AllModels tables owned by the service, in migration order
func AllModels() []any {
	return []any{
		&TrackedNumber{},
		&Agent{},
		&TrackedNumberRoute{},
		&Call{},
		&CallAttempt{},
	}
}
