package models

import "time"

// PayloadKind distinguishes what produced a notification payload.
type PayloadKind string

const (
	KindAlert  PayloadKind = "alert"
	KindDigest PayloadKind = "digest"
	KindReport PayloadKind = "report"
	KindManual PayloadKind = "manual"
)

// AlertPayload is a transient notification body. It is never persisted.
type AlertPayload struct {
	Kind         PayloadKind `json:"kind"`
	Title        string      `json:"title"`
	Body         string      `json:"body"`
	LocationID   int64       `json:"locationId"`
	LocationName string      `json:"locationName"`
	GeneratedAt  time.Time   `json:"generatedAt"`
	// TriggerTime and RainProb are set for rain alerts only.
	TriggerTime time.Time `json:"triggerTime"`
	RainProb    int       `json:"rainProb,omitempty"`
}
