package service

import (
	"fmt"
	"unicode/utf8"

	"github.com/rgdevment/sms-firewall/internal/domain"
)

// MaxSMSLength is the reply budget, in characters.
const MaxSMSLength = 160

const (
	missingSenderReply = "⚠️ Please include the sender's number in your report " +
		"(e.g. 'From: 07XXXXXXXX ...' or 'From: +2547XXXXXXXX') so we can trace and blacklist the scammer."
	blacklistedSenderReply = "⚠️ This sender is already blacklisted. Thank you for reporting!"
	blacklistedLinkReply   = "⚠️ This link is already blacklisted. Thank you for reporting!"
)

// Severity buckets a danger score for the reporter.
func Severity(score int) (icon, label string) {
	switch {
	case score >= 8:
		return "🚨", "HIGH RISK"
	case score >= 5:
		return "⚠️", "SUSPICIOUS"
	default:
		return "✅", "LOW RISK"
	}
}

// FormatAnalysisReply builds the reporter-facing verdict. The lesson is
// appended when it fits, cut short when at least ten characters remain, and
// dropped otherwise.
func FormatAnalysisReply(score int, summary, lesson string) string {
	icon, label := Severity(score)
	msg := fmt.Sprintf("%s %s: %s Score: %d/10", icon, label, summary, score)

	if lesson != "" {
		used := utf8.RuneCountInString(msg)
		switch {
		case used+utf8.RuneCountInString(lesson)+3 <= MaxSMSLength:
			msg += " | " + lesson
		case MaxSMSLength-used-3 > 10:
			msg += " | " + truncateRunes(lesson, MaxSMSLength-used-3)
		}
	}
	return truncateRunes(msg, MaxSMSLength)
}

// FormatCampaignAlert is the bulk alert for a detected campaign.
func FormatCampaignAlert(name string, affected int) string {
	return truncateRunes(fmt.Sprintf("🚨 SCAM ALERT: %s detected. %d+ reports. Stay safe! #CyberSecurityKenya", name, affected), MaxSMSLength)
}

// FormatBlacklistNotice tells subscribers an entity was blocked.
func FormatBlacklistNotice(t domain.EntityType, value string) string {
	if t == domain.EntityPhone {
		return truncateRunes(fmt.Sprintf("⚠️ Number %s has been blocked due to scam activity.", value), MaxSMSLength)
	}
	if utf8.RuneCountInString(value) > 50 {
		value = truncateRunes(value, 50) + "..."
	}
	return truncateRunes(fmt.Sprintf("⚠️ Link %s has been blocked due to scam activity.", value), MaxSMSLength)
}

// FormatSocialPost is the public post for a high-severity report.
func FormatSocialPost(text, lesson string, score int) string {
	preview := text
	if utf8.RuneCountInString(preview) > 50 {
		preview = truncateRunes(preview, 50) + "..."
	}
	return fmt.Sprintf("🚨 SCAM ALERT: '%s'\n\n💡 Tip: %s\nScore: %d/10 #CyberSecurityKenya #StaySafe", preview, lesson, score)
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func blacklistedReply(t domain.EntityType) string {
	if t == domain.EntityURL {
		return blacklistedLinkReply
	}
	return blacklistedSenderReply
}
