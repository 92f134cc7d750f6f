package types

import "github.com/google/uuid"

// NewUniqueID generates the unique field of a JobRequest when the caller
// does not supply one, and the admin front-end's ping payloads. A worker
// that never calls SetClientID sends no SET_CLIENT_ID at all.
func NewUniqueID() string {
	return uuid.NewString()
}
