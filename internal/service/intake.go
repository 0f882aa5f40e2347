package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rgdevment/sms-firewall/internal/domain"
	"github.com/rgdevment/sms-firewall/internal/platform/metrics"
	"go.uber.org/zap"
)

// IntakeConfig tunes the pipeline. Zero values take the defaults.
type IntakeConfig struct {
	MaxTextLength    int
	AlertThreshold   int
	AutoBlockEnabled bool
	ScorerTimeout    time.Duration
	StoreTimeout     time.Duration
	NotifyTimeout    time.Duration
}

func (c *IntakeConfig) withDefaults() {
	if c.MaxTextLength <= 0 {
		c.MaxTextLength = domain.MaxMessageLength
	}
	if c.AlertThreshold <= 0 {
		c.AlertThreshold = 8
	}
	if c.ScorerTimeout <= 0 {
		c.ScorerTimeout = 20 * time.Second
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 5 * time.Second
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = 30 * time.Second
	}
}

// intakeService is the concrete implementation of the Intake interface.
// It is unexported to force usage of the interface.
type intakeService struct {
	cfg       IntakeConfig
	repo      Repository
	blacklist *BlacklistEngine
	scorer    Scorer
	sender    MessageSender
	notifiers []Notifier
	logger    *zap.Logger

	wg sync.WaitGroup
}

// NewIntakeService wires the pipeline with its collaborators.
func NewIntakeService(
	cfg IntakeConfig,
	repo Repository,
	blacklist *BlacklistEngine,
	scorer Scorer,
	sender MessageSender,
	notifiers []Notifier,
	logger *zap.Logger,
) Intake {
	cfg.withDefaults()
	return &intakeService{
		cfg:       cfg,
		repo:      repo,
		blacklist: blacklist,
		scorer:    scorer,
		sender:    sender,
		notifiers: notifiers,
		logger:    logger,
	}
}

// Process validates, extracts, short-circuits on known scams, scores,
// decides and replies. A *domain.ValidationError means the caller sent bad
// input. Any other error is a store failure: every write happens before the
// reply, so no reply has gone out when one is returned.
func (s *intakeService) Process(ctx context.Context, sub Submission) (*Outcome, error) {
	reporter, err := domain.ValidateReporter(sub.From)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateText(sub.Text, s.cfg.MaxTextLength); err != nil {
		return nil, err
	}
	text := domain.Sanitize(sub.Text)
	if text == "" {
		return nil, &domain.ValidationError{Field: "text", Message: "SMS text is required"}
	}

	entities := domain.Extract(text)
	sender, found := entities.FirstOtherThan(reporter)
	if !found {
		s.reply(ctx, reporter, missingSenderReply)
		return s.finish(&Outcome{Status: "ok", Action: ActionMissingSender}), nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	kind, value, listed, err := s.blacklist.AnyBlacklisted(lookupCtx, sender, entities.URLs)
	cancel()
	if err != nil {
		return nil, err
	}
	if listed {
		entry, err := s.recordRepeat(ctx, kind, value)
		if err != nil {
			return nil, err
		}
		s.logger.Info("reported entity already blacklisted",
			zap.String("entity_type", string(kind)),
			zap.Int("hit_count", entry.HitCount),
			zap.String("reporter", reporter.Masked()),
		)
		s.reply(ctx, reporter, blacklistedReply(kind))
		return s.finish(&Outcome{Status: "ok", Action: ActionBlacklisted, Blacklisted: true}), nil
	}

	analysis := s.score(ctx, ScoreRequest{
		Text:   text,
		Sender: sender,
		URLs:   entities.URLs,
		Phones: entities.Phones,
	})

	report := domain.NewScamReport(reporter, sender, text, entities.URLs, analysis)
	if err := s.persist(ctx, report); err != nil {
		return nil, err
	}

	var decision Decision
	if s.cfg.AutoBlockEnabled {
		decision, err = s.enforce(ctx, analysis.Score, sender, entities.URLs)
		if err != nil {
			return nil, err
		}
	}

	s.reply(ctx, reporter, FormatAnalysisReply(analysis.Score, analysis.Summary, analysis.Lesson))

	if analysis.Score >= s.cfg.AlertThreshold {
		s.dispatch(ctx, Alert{
			Report:       report,
			Lesson:       analysis.Lesson,
			PhoneBlocked: decision.PhoneBlocked,
			URLBlocked:   decision.URLBlocked,
			BlockedURL:   decision.BlockedURL,
		})
	}

	s.logger.Info("report processed",
		zap.String("report_id", report.ID.String()),
		zap.Int("score", analysis.Score),
		zap.Bool("is_campaign", analysis.IsCampaign),
		zap.Bool("blacklisted", decision.Any()),
	)
	metrics.RecordScore(analysis.Score)

	return s.finish(&Outcome{
		Status:      "ok",
		Action:      ActionAnalyzed,
		Score:       analysis.Score,
		IsCampaign:  analysis.IsCampaign,
		Blacklisted: decision.Any(),
	}), nil
}

// Wait drains in-flight notifications.
func (s *intakeService) Wait() {
	s.wg.Wait()
}

func (s *intakeService) finish(o *Outcome) *Outcome {
	metrics.RecordOutcome(o.Action)
	return o
}

// score never fails: any scorer problem becomes the neutral analysis.
func (s *intakeService) score(ctx context.Context, req ScoreRequest) *domain.Analysis {
	scoreCtx, cancel := context.WithTimeout(ctx, s.cfg.ScorerTimeout)
	defer cancel()

	start := time.Now()
	a, err := s.scorer.Score(scoreCtx, req)
	if err == nil && a == nil {
		err = errors.New("scorer returned no analysis")
	}
	metrics.RecordScorerCall(err == nil, time.Since(start).Seconds())
	if err != nil {
		s.logger.Warn("scorer failed, using neutral analysis", zap.Error(err))
		return domain.NeutralAnalysis()
	}

	a.Score = domain.ClampScore(a.Score)
	if a.Techniques == nil {
		a.Techniques = []string{}
	}
	return a
}

// detached outlives the inbound request so a dropped connection does not
// abort side effects that were already decided.
func (s *intakeService) detached(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), d)
}

func (s *intakeService) persist(ctx context.Context, r *domain.ScamReport) error {
	saveCtx, cancel := s.detached(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if err := s.repo.SaveReport(saveCtx, r); err != nil {
		metrics.RecordPersistenceFailure("save_report")
		s.logger.Error("failed to save report",
			zap.String("report_id", r.ID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// recordRepeat bumps the hit count of an entity that is already listed.
// Merge never downgrades, so the existing block and reason survive.
func (s *intakeService) recordRepeat(ctx context.Context, kind domain.EntityType, value string) (*domain.BlacklistEntry, error) {
	hitCtx, cancel := s.detached(ctx, s.cfg.StoreTimeout)
	defer cancel()
	entry, err := s.blacklist.RecordHit(hitCtx, kind, value, false, "")
	if err != nil {
		metrics.RecordPersistenceFailure("blacklist_upsert")
		s.logger.Error("failed to record repeat report", zap.Error(err))
		return nil, err
	}
	return entry, nil
}

func (s *intakeService) enforce(ctx context.Context, score int, sender domain.Phone, urls []string) (Decision, error) {
	enfCtx, cancel := s.detached(ctx, s.cfg.StoreTimeout)
	defer cancel()
	d, err := s.blacklist.Enforce(enfCtx, score, sender, urls)
	if err != nil {
		metrics.RecordPersistenceFailure("blacklist_upsert")
		s.logger.Error("failed to record blacklist hit", zap.Error(err))
		return d, err
	}
	return d, nil
}

func (s *intakeService) reply(ctx context.Context, to domain.Phone, msg string) {
	sendCtx, cancel := s.detached(ctx, s.cfg.StoreTimeout)
	defer cancel()
	err := s.sender.Send(sendCtx, truncateRunes(msg, MaxSMSLength), []domain.Phone{to})
	metrics.RecordOutbound("sms", err == nil)
	if err != nil {
		s.logger.Warn("failed to send reply",
			zap.String("to", to.Masked()),
			zap.Error(err),
		)
	}
}

// dispatch runs every notifier in the background. Failures are logged and
// never reach the request.
func (s *intakeService) dispatch(ctx context.Context, alert Alert) {
	for _, n := range s.notifiers {
		s.wg.Add(1)
		go func(n Notifier) {
			defer s.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("notifier panicked", zap.Any("panic", r))
				}
			}()

			nctx, cancel := s.detached(ctx, s.cfg.NotifyTimeout)
			defer cancel()
			if err := n.Notify(nctx, alert); err != nil {
				s.logger.Warn("notification failed",
					zap.String("notifier", fmt.Sprintf("%T", n)),
					zap.Error(err),
				)
			}
		}(n)
	}
}
