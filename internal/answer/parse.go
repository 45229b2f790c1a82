package answer

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Confidence values used when the model does not report its own.
const (
	confidenceHedged    = 0.3
	confidenceDefault   = 0.8
	confidenceParseFail = 0.7
	lowConfidenceCutoff = 0.5
)

// hedgePhrases mark answers where the model admits it found nothing useful.
var hedgePhrases = []string{
	"don't have enough",
	"not mentioned",
	"no information",
}

var sourceRef = regexp.MustCompile(`\[Source (\d+)\]`)

// parsed is the normalized outcome of reading one model response.
type parsed struct {
	Answer          string
	CitedIndexes    []int // 1-based source indexes
	Confidence      float64
	IsLowConfidence bool
}

type modelJSON struct {
	Answer        string  `json:"answer"`
	CitationsUsed []int   `json:"citations_used"`
	Confidence    float64 `json:"confidence"`
}

// parseResponse reads a model reply in either supported shape. Structured
// replies carry a JSON object, possibly wrapped in surrounding prose, found
// by bracket matching. Plain text falls back to the hedge-phrase heuristic
// with source indexes scraped from [Source N] references. A malformed JSON
// candidate is never an error: the raw text becomes the answer with the
// parse-failure confidence.
func parseResponse(content string) parsed {
	raw := strings.TrimSpace(content)

	candidate := extractJSONObject(raw)
	if candidate == "" {
		return parsePlain(raw)
	}

	var mj modelJSON
	if err := json.Unmarshal([]byte(candidate), &mj); err != nil || mj.Answer == "" {
		return parsed{
			Answer:          raw,
			CitedIndexes:    scrapeSourceRefs(raw),
			Confidence:      confidenceParseFail,
			IsLowConfidence: false,
		}
	}

	conf := mj.Confidence
	if conf <= 0 || conf > 1 {
		conf = confidenceDefault
	}
	cited := mj.CitationsUsed
	if len(cited) == 0 {
		cited = scrapeSourceRefs(mj.Answer)
	}
	return parsed{
		Answer:          mj.Answer,
		CitedIndexes:    cited,
		Confidence:      conf,
		IsLowConfidence: conf < lowConfidenceCutoff,
	}
}

func parsePlain(text string) parsed {
	conf := confidenceDefault
	lower := strings.ToLower(text)
	for _, phrase := range hedgePhrases {
		if strings.Contains(lower, phrase) {
			conf = confidenceHedged
			break
		}
	}
	return parsed{
		Answer:          text,
		CitedIndexes:    scrapeSourceRefs(text),
		Confidence:      conf,
		IsLowConfidence: conf < lowConfidenceCutoff,
	}
}

// extractJSONObject returns the first balanced {...} span in s, or "" when
// none exists. Braces inside JSON strings are skipped.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func scrapeSourceRefs(text string) []int {
	matches := sourceRef.FindAllStringSubmatch(text, -1)
	seen := make(map[int]bool, len(matches))
	var idxs []int
	for _, m := range matches {
		n := 0
		for _, d := range m[1] {
			n = n*10 + int(d-'0')
		}
		if n > 0 && !seen[n] {
			seen[n] = true
			idxs = append(idxs, n)
		}
	}
	return idxs
}
