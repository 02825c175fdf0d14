package analyze

import (
	"strings"
	"unicode"

	"github.com/ShayCichocki/hydra/internal/extract"
)

const correctionVerdict = "Your previous answer did not contain a verdict. Start your answer with ✅ YES or ❌ NO, then explain."

const (
	markApproved = "✅"
	markRejected = "❌"
)

// ParseVerdict reads a review reply. A check mark or a leading YES approves;
// a cross mark or a leading NO rejects, with the rest of the reply kept as
// the problem. A reply with neither is rejected as unparseable.
func ParseVerdict(raw string) (Verdict, error) {
	text := strings.TrimSpace(extract.StripThinking(raw))

	yes := strings.Index(text, markApproved)
	no := strings.Index(text, markRejected)
	switch {
	case yes >= 0 && (no < 0 || yes < no):
		return Verdict{Approved: true}, nil
	case no >= 0:
		return Verdict{Problem: problem(text[no+len(markRejected):])}, nil
	}

	word, rest := firstWord(text)
	switch strings.ToUpper(word) {
	case "YES":
		return Verdict{Approved: true}, nil
	case "NO":
		return Verdict{Problem: problem(rest)}, nil
	}
	return Verdict{}, extract.Failf(raw, "no verdict: expected ✅ YES or ❌ NO")
}

// firstWord splits off the first run of letters, skipping leading markdown
// and punctuation.
func firstWord(s string) (string, string) {
	s = strings.TrimLeftFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
	end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
	if end < 0 {
		return s, ""
	}
	return s[:end], s[end:]
}

// problem strips the verdict token and separators in front of the explanation.
func problem(s string) string {
	s = strings.TrimSpace(s)
	if word, rest := firstWord(s); strings.EqualFold(word, "NO") {
		s = rest
	}
	return strings.TrimSpace(strings.TrimLeft(s, " ,.:;-*"))
}
