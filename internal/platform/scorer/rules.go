package scorer

import (
	"context"
	"net/url"
	"strings"

	"github.com/rgdevment/sms-firewall/internal/domain"
	"github.com/rgdevment/sms-firewall/internal/service"
)

// finding is one matched rule. Weight is added to the base score.
type finding struct {
	technique string
	weight    int
}

type ruleFunc func(req service.ScoreRequest, lower string) []finding

// RulesScorer is an offline Scorer for when no model backend is configured.
// It runs keyword rules tuned to local SMS fraud and sums their weights.
type RulesScorer struct {
	rules []ruleFunc
}

func NewRulesScorer() *RulesScorer {
	return &RulesScorer{
		rules: []ruleFunc{
			ruleUrgency,
			ruleImpersonation,
			ruleCredentialRequest,
			ruleRewardBait,
			ruleMoneyTransfer,
			ruleSuspiciousLinks,
		},
	}
}

// Score implements service.Scorer.
func (s *RulesScorer) Score(_ context.Context, req service.ScoreRequest) (*domain.Analysis, error) {
	lower := strings.ToLower(req.Text)

	var findings []finding
	for _, r := range s.rules {
		findings = append(findings, r(req, lower)...)
	}

	score := 1
	techniques := []string{}
	for _, f := range findings {
		score += f.weight
		techniques = append(techniques, f.technique)
	}
	score = domain.ClampScore(score)

	summary, lesson := rulesVerdict(score, techniques)
	return &domain.Analysis{
		Score:      score,
		Summary:    summary,
		Lesson:     lesson,
		IsCampaign: len(req.URLs) > 0 && score >= 8,
		Techniques: techniques,
		Confidence: confidence(len(findings)),
	}, nil
}

func rulesVerdict(score int, techniques []string) (string, string) {
	switch {
	case score >= 8:
		return "Likely scam: " + strings.Join(techniques, ", ") + ".",
			"Never share your M-Pesa PIN or send money to unknown numbers."
	case score >= 5:
		return "Suspicious message: " + strings.Join(techniques, ", ") + ".",
			"Verify with the official company line before acting."
	default:
		return "No strong scam indicators found.", "When in doubt, call the company on its official number."
	}
}

func confidence(n int) float64 {
	switch {
	case n == 0:
		return 0.4
	case n >= 3:
		return 0.8
	default:
		return 0.6
	}
}

func containsAny(lower string, words []string) bool {
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

var urgencyWords = []string{
	"urgent", "immediately", "within 24", "act now", "blocked", "suspended", "last chance", "expire", "haraka",
}

func ruleUrgency(_ service.ScoreRequest, lower string) []finding {
	if containsAny(lower, urgencyWords) {
		return []finding{{technique: "urgency", weight: 2}}
	}
	return nil
}

var impersonatedBrands = []string{
	"safaricom", "m-pesa", "mpesa", "kra", "kcb", "equity", "kplc", "fuliza", "ntsa", "helb", "nhif", "sha ",
}

func ruleImpersonation(_ service.ScoreRequest, lower string) []finding {
	if containsAny(lower, impersonatedBrands) {
		return []finding{{technique: "authority impersonation", weight: 2}}
	}
	return nil
}

var credentialWords = []string{"pin", "password", "otp", "verification code", "secret code"}

func ruleCredentialRequest(_ service.ScoreRequest, lower string) []finding {
	if containsAny(lower, credentialWords) {
		return []finding{{technique: "credential harvesting", weight: 3}}
	}
	return nil
}

var rewardWords = []string{
	"won", "winner", "prize", "refund", "bonus", "reward", "congratulations", "overpayment", "umeshinda",
}

func ruleRewardBait(_ service.ScoreRequest, lower string) []finding {
	if containsAny(lower, rewardWords) {
		return []finding{{technique: "reward bait", weight: 2}}
	}
	return nil
}

var transferWords = []string{"send back", "reverse", "wrongly sent", "tuma", "pay ksh", "pay kes", "registration fee"}

func ruleMoneyTransfer(_ service.ScoreRequest, lower string) []finding {
	if containsAny(lower, transferWords) {
		return []finding{{technique: "money transfer request", weight: 2}}
	}
	return nil
}

var shortenerHosts = map[string]bool{
	"bit.ly": true, "tinyurl.com": true, "t.co": true, "cutt.ly": true, "is.gd": true, "rb.gy": true, "shorturl.at": true,
}

var riskyTLDs = []string{".cc", ".xyz", ".top", ".click", ".tk", ".ml", ".ga"}

func ruleSuspiciousLinks(req service.ScoreRequest, _ string) []finding {
	var out []finding
	for _, raw := range req.URLs {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		host := strings.ToLower(u.Hostname())
		switch {
		case shortenerHosts[host]:
			out = append(out, finding{technique: "shortened link", weight: 2})
		case hasSuffixAny(host, riskyTLDs):
			out = append(out, finding{technique: "suspicious domain", weight: 2})
		case u.Scheme == "http":
			out = append(out, finding{technique: "unencrypted link", weight: 1})
		}
		if len(out) > 0 {
			break
		}
	}
	return out
}

func hasSuffixAny(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}
