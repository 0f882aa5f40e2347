package domain

import "time"

// Subscriber is a phone that opted in to bulk scam alerts.
// Maps to the 'subscribers' table.
type Subscriber struct {
	Phone        Phone     `json:"phone_number" db:"phone_number"`
	Region       string    `json:"region,omitempty" db:"region"`
	Active       bool      `json:"is_active" db:"is_active"`
	SubscribedAt time.Time `json:"subscribed_at" db:"subscribed_at"`
}

// Campaign is a cluster of related reports found by the campaign sweep.
type Campaign struct {
	ID            string    `json:"id" db:"id"`
	Name          string    `json:"campaign_name" db:"campaign_name"`
	Pattern       string    `json:"pattern_description" db:"pattern_description"`
	AffectedCount int       `json:"affected_count" db:"affected_count"`
	RelatedURLs   []string  `json:"related_urls" db:"related_urls"`
	RelatedPhones []Phone   `json:"related_phones" db:"related_phones"`
	DetectedAt    time.Time `json:"detected_at" db:"detected_at"`
}
