// Package features parses access-log lines and derives the fixed-schema
// feature vector scored by the detection engines.
package features

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/logaware/backend/internal/models"
)

// TimestampLayout is the access-log timestamp format, e.g. 01/Sep/2025:00:00:00 +0000.
const TimestampLayout = "02/Jan/2006:15:04:05 -0700"

// accessLogRe matches `ADDRESS - - [TIMESTAMP] "METHOD PATH PROTOCOL" STATUS SIZE`.
// Trailing fields (referer, user agent) are allowed and ignored.
var accessLogRe = regexp.MustCompile(`^(\S+) - - \[([^\]]+)\] "(\S+) (\S+) (\S+)" (\d+) (\S+)`)

// sqlKeywordRe finds candidate SQL verbs. Word boundaries are checked by
// HasSQLKeyword because \b in RE2 only knows ASCII word characters.
var sqlKeywordRe = regexp.MustCompile(`(?i)(SELECT|DROP|INSERT|UPDATE|DELETE)`)

// Extract splits text into lines and returns one record and one feature
// vector per non-empty line, aligned by index. It never fails: lines that do
// not match the grammar get default field values.
func Extract(text string) ([]models.LogRecord, []models.FeatureVector) {
	lines := SplitLines(text)
	records := make([]models.LogRecord, 0, len(lines))
	vectors := make([]models.FeatureVector, 0, len(lines))
	for _, line := range lines {
		rec, vec := ExtractLine(line)
		rec.Index = len(records)
		records = append(records, rec)
		vectors = append(vectors, vec)
	}
	return records, vectors
}

// SplitLines splits text at line boundaries and drops empty lines.
// Whitespace-only lines are kept. Boundaries are \n, \r, \r\n, \v, \f,
// the file/group/record separators \x1c-\x1e, NEL (U+0085) and the Unicode
// line and paragraph separators.
func SplitLines(text string) []string {
	var lines []string
	start := 0
	for i, r := range text {
		if i < start || !isLineBreak(r) {
			continue
		}
		if i > start {
			lines = append(lines, text[start:i])
		}
		start = i + utf8.RuneLen(r)
		if r == '\r' && start < len(text) && text[start] == '\n' {
			start++
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}

func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}

// ExtractLine parses a single line and computes its feature vector.
func ExtractLine(line string) (models.LogRecord, models.FeatureVector) {
	rec := Parse(line)
	return rec, Vector(line, rec)
}

// Parse matches line against the access-log grammar.
func Parse(line string) models.LogRecord {
	rec := models.LogRecord{
		Raw:     line,
		Address: models.UnknownAddress,
		Method:  models.UnknownMethod,
	}

	m := accessLogRe.FindStringSubmatch(line)
	if m == nil {
		return rec
	}

	rec.Matched = true
	rec.Address = m[1]
	rec.TimestampRaw = m[2]
	rec.Method = m[3]
	rec.Path = m[4]
	rec.Protocol = m[5]
	if status, err := strconv.Atoi(m[6]); err == nil {
		rec.Status = status
	}
	rec.Size = parseSize(m[7])

	if ts, err := time.Parse(TimestampLayout, rec.TimestampRaw); err == nil {
		rec.Timestamp = &ts
	}
	return rec
}

// parseSize treats placeholders such as "-" and out-of-range values as 0.
func parseSize(token string) int64 {
	for i := 0; i < len(token); i++ {
		if token[i] < '0' || token[i] > '9' {
			return 0
		}
	}
	n, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Vector computes the eleven features from the raw line and its parse.
func Vector(line string, rec models.LogRecord) models.FeatureVector {
	var v models.FeatureVector

	for _, r := range line {
		v[models.FeatLen]++
		switch {
		case unicode.IsDigit(r):
			v[models.FeatDigits]++
		case unicode.IsUpper(r):
			v[models.FeatUpper]++
		}
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != ' ' && r != '\t' {
			v[models.FeatSpecial]++
		}
	}

	v[models.FeatSQL] = boolFeature(HasSQLKeyword(line))
	v[models.FeatPathTraversal] = boolFeature(HasPathTraversal(line))
	v[models.FeatScriptTag] = boolFeature(HasScriptTag(line))
	v[models.FeatStatus] = float64(rec.Status)
	v[models.FeatSize] = float64(rec.Size)
	v[models.FeatMethodGET] = boolFeature(rec.Method == "GET")
	v[models.FeatMethodPOST] = boolFeature(rec.Method == "POST")
	return v
}

// HasSQLKeyword reports a whole-word, case-insensitive SQL verb. A word
// character is any Unicode letter or number, or an underscore.
func HasSQLKeyword(line string) bool {
	for _, loc := range sqlKeywordRe.FindAllStringIndex(line, -1) {
		before, _ := utf8.DecodeLastRuneInString(line[:loc[0]])
		after, _ := utf8.DecodeRuneInString(line[loc[1]:])
		if !isWordRune(before) && !isWordRune(after) {
			return true
		}
	}
	return false
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

func HasPathTraversal(line string) bool {
	return strings.Contains(line, "../")
}

func HasScriptTag(line string) bool {
	return strings.Contains(strings.ToLower(line), "<script")
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
