package domain

import "regexp"

// ExtractedEntities holds what was found in a reported message. Both slices
// are deduplicated and keep first-appearance order.
type ExtractedEntities struct {
	URLs   []string `json:"urls"`
	Phones []Phone  `json:"phones"`
}

var (
	urlPattern = regexp.MustCompile(
		"https?://[^\\s<>\"{}|\\\\^`\\[\\]]+[^\\s<>\"{}|\\\\^`\\[\\].,;:!?]",
	)

	// Maximal digit runs give the digit boundaries; Normalize decides the shape.
	phoneCandidate = regexp.MustCompile(`\+?\d+`)
)

// Extract runs URL and phone extraction over text.
func Extract(text string) ExtractedEntities {
	return ExtractedEntities{
		URLs:   ExtractURLs(text),
		Phones: ExtractPhones(text),
	}
}

// ExtractURLs returns the http(s) links found in text.
func ExtractURLs(text string) []string {
	return dedupe(urlPattern.FindAllString(text, -1))
}

// ExtractPhones returns every number in text that normalizes successfully.
func ExtractPhones(text string) []Phone {
	var phones []Phone
	seen := make(map[Phone]struct{})
	for _, m := range phoneCandidate.FindAllString(text, -1) {
		p := Normalize(m)
		if !p.Valid() {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		phones = append(phones, p)
	}
	return phones
}

// FirstOtherThan returns the first phone that is not exclude.
func (e ExtractedEntities) FirstOtherThan(exclude Phone) (Phone, bool) {
	for _, p := range e.Phones {
		if p != exclude {
			return p, true
		}
	}
	return "", false
}

func dedupe(in []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
