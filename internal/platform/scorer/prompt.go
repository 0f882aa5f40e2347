package scorer

import (
	"fmt"
	"strings"

	"github.com/rgdevment/sms-firewall/internal/platform/storage"
	"github.com/rgdevment/sms-firewall/internal/service"
)

// SystemInstruction frames the model as a regional fraud analyst and pins
// the JSON shape ParseAnalysis expects.
const SystemInstruction = `You are a Kenyan Cyber-Security Analyst fluent in English, Swahili, and Sheng.
Your expertise is in detecting phishing scams, SMS fraud, and social engineering attacks common in East Africa,
particularly Kenya.

You analyze SMS messages for:
1. Urgency manipulation (e.g., "Account blocked!", "Act now!")
2. Authority impersonation (e.g., fake KRA, Safaricom, KCB messages)
3. Linguistic cues (poor grammar, suspicious phrasing)
4. Suspicious URLs (shortened links, unusual domains like .cc instead of .go.ke)
5. Requests for sensitive information (PINs, passwords, OTPs)
6. Fake rewards or refunds (e.g., "KRA refund", "Fuliza overpayment")

Common scam patterns in Kenya:
- Fake M-Pesa messages
- Fake KRA tax refund scams
- Fake bank account verification
- Fake KPLC overcharge refunds
- Fake job offers requiring payment
- Fake lottery winnings
- Fake gambling and betting scams
- Fake fines from traffic violations, city council and other authorities

You MUST respond in English only.

Always respond in valid JSON with the following structure:
{
    "score": <integer 1-10>,
    "summary": "<short warning message>",
    "lesson": "<educational tip in 140 characters or less>",
    "is_campaign": <boolean>,
    "techniques": ["<technique1>", "<technique2>"],
    "confidence": <float 0.0-1.0>
}`

const analysisTemplate = `Analyze this SMS message for phishing/scam indicators:

SMS Text: %q

Sender: %s
Detected URLs: %s
Detected Phone Numbers: %s

Provide a comprehensive analysis focusing on:
1. Danger score (1-10, where 10 is highly dangerous)
2. Brief summary of the threat
3. Educational lesson for the user (max 140 characters)
4. Whether this appears to be part of a mass campaign
5. Specific techniques used (urgency bias, authority impersonation, etc.)
6. Confidence level in your assessment

Respond ONLY with valid JSON, no additional text.`

// BuildPrompt renders the per-message analysis prompt.
func BuildPrompt(req service.ScoreRequest) string {
	sender := req.Sender.String()
	if sender == "" {
		sender = "Unknown"
	}
	return fmt.Sprintf(analysisTemplate,
		req.Text,
		sender,
		joinOrNone(req.URLs),
		joinOrNone(storage.PhoneStrings(req.Phones)),
	)
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "None"
	}
	return strings.Join(items, ", ")
}
