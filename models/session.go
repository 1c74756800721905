package models

import "time"

// SessionRecord is the stored form of a session. The token is the document id.
type SessionRecord struct {
	Token     string    `bson:"_id"`
	Data      []byte    `bson:"data"`
	ExpiresAt time.Time `bson:"expires_at"`
}
