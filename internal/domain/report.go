package domain

import (
	"time"

	"github.com/google/uuid"
)

// Analysis is what the external scorer says about a message.
type Analysis struct {
	Score      int      `json:"score"` // 1 to 10
	Summary    string   `json:"summary"`
	Lesson     string   `json:"lesson"`
	IsCampaign bool     `json:"is_campaign"`
	Techniques []string `json:"techniques"`
	Confidence float64  `json:"confidence"`
}

const (
	MinScore     = 1
	MaxScore     = 10
	NeutralScore = 5
)

// NeutralAnalysis is substituted whenever the scorer fails or returns
// something unusable.
func NeutralAnalysis() *Analysis {
	return &Analysis{
		Score:      NeutralScore,
		Summary:    "Analysis error occurred",
		Lesson:     "Please forward suspicious messages to our shortcode",
		IsCampaign: false,
		Techniques: []string{},
		Confidence: 0.0,
	}
}

// ClampScore forces a score into [MinScore, MaxScore].
func ClampScore(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// ScamReport is the persisted record of one analyzed report.
// Maps to the 'scam_reports' table.
type ScamReport struct {
	ID             uuid.UUID `json:"id" db:"id"`
	ReporterPhone  Phone     `json:"reporter_phone" db:"reporter_phone"`
	OriginalSender Phone     `json:"original_sender,omitempty" db:"original_sender"` // empty when unknown
	MessageText    string    `json:"message_text" db:"message_text"`
	Score          int       `json:"score" db:"score"`
	Analysis       *Analysis `json:"analysis,omitempty" db:"analysis_json"`
	DetectedURLs   []string  `json:"detected_urls" db:"detected_urls"`
	IsCampaign     bool      `json:"is_campaign" db:"is_campaign"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// NewScamReport is a factory to create a clean report instance.
func NewScamReport(reporter, sender Phone, text string, urls []string, a *Analysis) *ScamReport {
	return &ScamReport{
		ID:             uuid.New(),
		ReporterPhone:  reporter,
		OriginalSender: sender,
		MessageText:    text,
		Score:          a.Score,
		Analysis:       a,
		DetectedURLs:   urls,
		IsCampaign:     a.IsCampaign,
		CreatedAt:      time.Now().UTC(),
	}
}
