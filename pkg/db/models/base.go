package models

import "github.com/google/uuid"

// ensureID assigns a random id to rows created without one so inserts work
// the same way on Postgres and SQLite.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// All lists every persisted model in dependency order.
func All() []any {
	return []any{
		&User{},
		&Sector{},
		&Risk{},
		&Collaborator{},
		&Equipment{},
		&Issuance{},
		&Notification{},
		&ActivityLog{},
		&SecurityEvent{},
	}
}
