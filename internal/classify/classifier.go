// Package classify builds structural summaries of source files. The scan is
// a language-agnostic heuristic over keywords and delimiters; it is
// deterministic over content bytes and has no side effects.
package classify

import (
	"bytes"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// Construct weights. Branching is cheap to reason about, exception paths
// are not, and callables grow with their signature surface. Nesting
// compounds each construct's weight where it appears.
const (
	branchWeight       = 1.0
	handlerWeight      = 3.0
	callableBaseWeight = 2.0
	paramWeight        = 0.5
	containerWeight    = 2.0
	nestingFactor      = 0.2
)

// Tier threshold bands. Crossing any threshold in a band promotes the file
// to that tier.
var tierBands = []struct {
	tier       Tier
	lines      int
	callables  int
	containers int
	score      float64
}{
	{TierCritical, 600, 30, 5, 100},
	{TierComplex, 300, 15, 2, 50},
	{TierModerate, 100, 5, 0, 20},
}

var (
	callableRe  = regexp.MustCompile(`^\s*(?:(?:pub|public|private|protected|static|async|export|override)\s+)*(?:func|fn|def|function|sub|method)\s+\w+\s*\(([^)]*)`)
	containerRe = regexp.MustCompile(`^\s*(?:(?:pub|public|private|abstract|final|export)\s+)*(?:class|struct|trait|interface|enum|module|impl)\s+\w+`)
	branchRe    = regexp.MustCompile(`(^|[^\w])(if|else if|elif|for|while|switch|match|case|when)([^\w]|$)`)
	handlerRe   = regexp.MustCompile(`(^|[^\w])(try|catch|except|rescue|finally|recover|panic|raise|throw)([^\w]|$)`)
	decoratorRe = regexp.MustCompile(`^\s*(@\w+|#\[\w+)`)

	dataAccessRe = regexp.MustCompile(`(?i)(select\s+.+\s+from|insert\s+into|update\s+\w+\s+set|delete\s+from|\bdb\.|\bsql\b|query\()`)
	securityRe   = regexp.MustCompile(`(?i)(password|passwd|secret|api[_-]?key|token|credential|crypt|private[_-]?key)`)
)

// longMethodLines is the body length beyond which a callable counts as long.
const longMethodLines = 50

// Classify produces a Classification for the given path and content.
// Identical bytes always yield an identical result. A failed structural
// scan degrades to a line-count-only estimate tagged "parse-degraded"
// instead of returning an error.
func Classify(path string, content []byte) Classification {
	c := Classification{
		Path:        path,
		Lines:       countLines(content),
		Fingerprint: fingerprint(content),
	}

	if !scannable(content) {
		c.Degraded = true
		c.Score = float64(c.Lines) / 10
		c.Tier = tierFor(c)
		c.Tags = appendPathTags([]string{TagParseDegraded}, path, c.Lines)
		sort.Strings(c.Tags)
		return c
	}

	scanStructure(&c, content)
	c.Tier = tierFor(c)
	c.Tags = detectTags(c, path, content)
	return c
}

// scanStructure walks content line by line accumulating construct counts
// and the weighted complexity score.
func scanStructure(c *Classification, content []byte) {
	depth := 0
	pendingDecorators := 0
	callableStart := -1
	longMethod := false

	lines := strings.Split(string(content), "\n")
	for i, line := range lines {
		// Local nesting compounds construct weight where it appears.
		local := 1 + nestingFactor*float64(depth)

		if decoratorRe.MatchString(line) {
			pendingDecorators++
		}

		if m := callableRe.FindStringSubmatch(line); m != nil {
			c.Callables++
			params := countParams(m[1])
			c.Score += (callableBaseWeight + paramWeight*float64(params+pendingDecorators)) * local
			pendingDecorators = 0

			if callableStart >= 0 && i-callableStart > longMethodLines {
				longMethod = true
			}
			callableStart = i
		} else if !decoratorRe.MatchString(line) {
			pendingDecorators = 0
		}

		if containerRe.MatchString(line) {
			c.Containers++
			c.Score += containerWeight * local
		}
		if n := len(branchRe.FindAllString(line, -1)); n > 0 {
			c.Branches += n
			c.Score += branchWeight * float64(n) * local
		}
		if n := len(handlerRe.FindAllString(line, -1)); n > 0 {
			c.Handlers += n
			c.Score += handlerWeight * float64(n) * local
		}

		depth += strings.Count(line, "{") - strings.Count(line, "}")
		if depth < 0 {
			depth = 0
		}
		if depth > c.MaxNesting {
			c.MaxNesting = depth
		}
	}

	if callableStart >= 0 && len(lines)-callableStart > longMethodLines {
		longMethod = true
	}
	if longMethod {
		c.Score += handlerWeight // long bodies read like exception paths
	}
}

// tierFor applies the threshold bands; any single crossing promotes.
func tierFor(c Classification) Tier {
	for _, band := range tierBands {
		if c.Lines > band.lines || c.Callables > band.callables ||
			c.Containers > band.containers || c.Score > band.score {
			return band.tier
		}
	}
	return TierSimple
}

// detectTags runs the advisory keyword/path scan. Tags are sorted so the
// classification is stable for identical inputs.
func detectTags(c Classification, path string, content []byte) []string {
	var tags []string
	tags = appendPathTags(tags, path, c.Lines)

	if dataAccessRe.Match(content) {
		tags = append(tags, TagDataAccess)
	}
	if securityRe.Match(content) {
		tags = append(tags, TagSecuritySensitive)
	}
	if c.Callables > 0 && c.Lines/c.Callables > longMethodLines {
		tags = append(tags, TagLongMethod)
	}

	sort.Strings(tags)
	return tags
}

func appendPathTags(tags []string, path string, lines int) []string {
	lower := strings.ToLower(path)
	if strings.Contains(lower, "test") || strings.Contains(lower, "_spec") {
		tags = append(tags, TagTestFile)
	}
	for _, ext := range []string{".yaml", ".yml", ".json", ".toml", ".ini"} {
		if strings.HasSuffix(lower, ext) {
			tags = append(tags, TagConfigFile)
			break
		}
	}
	if lines > 600 {
		tags = append(tags, TagVeryLargeFile)
	}
	return tags
}

// scannable reports whether content can be structurally scanned. Binary
// content and wildly unbalanced delimiters defeat the keyword heuristics.
func scannable(content []byte) bool {
	if bytes.IndexByte(content, 0) >= 0 {
		return false
	}
	open := bytes.Count(content, []byte("{"))
	closed := bytes.Count(content, []byte("}"))
	imbalance := open - closed
	if imbalance < 0 {
		imbalance = -imbalance
	}
	return imbalance <= 10
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := bytes.Count(content, []byte("\n"))
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}

func countParams(paramList string) int {
	trimmed := strings.TrimSpace(paramList)
	if trimmed == "" {
		return 0
	}
	return strings.Count(trimmed, ",") + 1
}

func fingerprint(content []byte) string {
	sum := blake3.Sum256(content)
	return hex.EncodeToString(sum[:])
}
