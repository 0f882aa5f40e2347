package scorer

import (
	"errors"
	"strconv"
	"strings"

	"github.com/rgdevment/sms-firewall/internal/domain"
	"github.com/tidwall/gjson"
)

// ErrUnparseable means the model answered with something that is not the
// expected JSON object.
var ErrUnparseable = errors.New("scorer: response is not a JSON analysis")

// ParseAnalysis reads a model reply. Models sometimes wrap the object in a
// markdown fence or surround it with prose, so the outermost {...} block is
// used. Missing fields take defaults; the score is clamped to 1..10.
func ParseAnalysis(reply string) (*domain.Analysis, error) {
	text := stripFence(strings.TrimSpace(reply))

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, ErrUnparseable
	}
	body := text[start : end+1]
	if !gjson.Valid(body) {
		return nil, ErrUnparseable
	}

	res := gjson.Parse(body)
	if !res.IsObject() {
		return nil, ErrUnparseable
	}

	a := &domain.Analysis{
		Score:      domain.NeutralScore,
		Summary:    "Message analyzed",
		Lesson:     "Be cautious with suspicious messages",
		Techniques: []string{},
		Confidence: 0.8,
	}

	if v := res.Get("score"); v.Exists() {
		switch v.Type {
		case gjson.Number:
			a.Score = int(v.Int())
		case gjson.String:
			n, err := strconv.Atoi(strings.TrimSpace(v.Str))
			if err != nil {
				return nil, ErrUnparseable
			}
			a.Score = n
		default:
			return nil, ErrUnparseable
		}
	}
	a.Score = domain.ClampScore(a.Score)

	if v := res.Get("summary"); v.Type == gjson.String && v.Str != "" {
		a.Summary = v.Str
	}
	if v := res.Get("lesson"); v.Type == gjson.String && v.Str != "" {
		a.Lesson = v.Str
	}
	a.IsCampaign = res.Get("is_campaign").Bool()
	for _, t := range res.Get("techniques").Array() {
		if t.Type == gjson.String && t.Str != "" {
			a.Techniques = append(a.Techniques, t.Str)
		}
	}
	if v := res.Get("confidence"); v.Type == gjson.Number {
		c := v.Float()
		if c < 0 {
			c = 0
		}
		if c > 1 {
			c = 1
		}
		a.Confidence = c
	}
	return a, nil
}

func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) <= 2 {
		return text
	}
	return strings.Join(lines[1:len(lines)-1], "\n")
}
