package coordinator

import (
	"bytes"
	"fmt"
	"strings"
)

// conflictMarkers are corruption signatures a worker must never leave behind.
var conflictMarkers = []string{"<<<<<<<", ">>>>>>>", "======="}

// validateContent runs the structural-validity check on worker output.
// It gates the commit: content that fails here is rolled back to the
// backup. The check is intentionally language-agnostic.
func validateContent(content []byte) error {
	if len(bytes.TrimSpace(content)) == 0 {
		return fmt.Errorf("output is empty")
	}
	if bytes.IndexByte(content, 0) >= 0 {
		return fmt.Errorf("output contains NUL bytes")
	}
	for _, marker := range conflictMarkers {
		for _, line := range strings.Split(string(content), "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), marker) {
				return fmt.Errorf("output contains conflict marker %q", marker)
			}
		}
	}
	if err := checkBalance(content); err != nil {
		return err
	}
	return nil
}

// checkBalance verifies brace/bracket/paren counts stay non-negative and
// end balanced. String and comment contexts are not tracked, so a small
// slack absorbs literal delimiters in ordinary code.
func checkBalance(content []byte) error {
	const slack = 3
	pairs := []struct {
		open, close byte
		name        string
	}{
		{'{', '}', "braces"},
		{'[', ']', "brackets"},
		{'(', ')', "parentheses"},
	}
	for _, p := range pairs {
		depth := 0
		minDepth := 0
		for _, b := range content {
			switch b {
			case p.open:
				depth++
			case p.close:
				depth--
				if depth < minDepth {
					minDepth = depth
				}
			}
		}
		if depth > slack || depth < -slack || minDepth < -slack {
			return fmt.Errorf("unbalanced %s (delta %d)", p.name, depth)
		}
	}
	return nil
}
