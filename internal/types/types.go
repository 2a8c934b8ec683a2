// README: Common identifier and coordinate value objects used across modules.
package types

import "time"

// ID identifies an incident, a responder, or an external reporter.
type ID string

// Point is a WGS84 coordinate pair in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Message is one entry of an incident's append-only conversation log.
type Message struct {
	SenderID ID        `json:"sender_id"`
	Text     string    `json:"text"`
	SentAt   time.Time `json:"sent_at"`
}
