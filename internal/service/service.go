package service

import (
	"context"

	"github.com/rgdevment/sms-firewall/internal/domain"
)

// Intake turns an admitted webhook into an analyzed, persisted report.
type Intake interface {
	Process(ctx context.Context, sub Submission) (*Outcome, error)

	// Wait blocks until background notifications have finished.
	Wait()
}

// Submission is the admitted webhook content.
type Submission struct {
	From string
	Text string
	To   string
}

// Outcome actions.
const (
	ActionAnalyzed      = "analyzed"
	ActionBlacklisted   = "blacklisted"
	ActionMissingSender = "missing_sender_phone"
)

// Outcome summarizes what happened to a report. It is the webhook response.
type Outcome struct {
	Status      string `json:"status"`
	Action      string `json:"action"`
	Score       int    `json:"score,omitempty"`
	IsCampaign  bool   `json:"is_campaign"`
	Blacklisted bool   `json:"blacklisted"`
}

// ScoreRequest is what the scorer gets to look at.
type ScoreRequest struct {
	Text   string
	Sender domain.Phone
	URLs   []string
	Phones []domain.Phone
}

// Scorer rates how dangerous a message is. Implementations may fail; the
// pipeline substitutes domain.NeutralAnalysis.
type Scorer interface {
	Score(ctx context.Context, req ScoreRequest) (*domain.Analysis, error)
}

// MessageSender delivers outbound SMS.
type MessageSender interface {
	Send(ctx context.Context, message string, recipients []domain.Phone) error
}

// Alert is a high-severity report handed to notifiers after the reply.
type Alert struct {
	Report       *domain.ScamReport
	Lesson       string
	PhoneBlocked bool
	URLBlocked   bool
	BlockedURL   string
}

// Notifier publishes an alert somewhere (social feed, subscriber SMS).
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}
