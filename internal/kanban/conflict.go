package kanban

import (
	"path/filepath"
	"strings"
)

// HasConflict reports whether card's file scope overlaps with any
// currently-running card's file scope. Advisory only: per §4.C.1 this
// gates nothing on its own, it just flags a card as worth a second
// look before it is pulled. Adapted from the teacher's kanban/conflict.go
// ticket-status overlap check, narrowed from "any in-progress status" to
// the single AgentStatusRunning sub-state of the simplified board.
func HasConflict(card *Card, running []Card) bool {
	for _, other := range running {
		if other.ID == card.ID {
			continue
		}
		if filesOverlap(card.Files, other.Files) {
			return true
		}
	}
	return false
}

// ConflictingCards returns every running card whose file scope overlaps
// card's.
func ConflictingCards(card *Card, running []Card) []Card {
	var out []Card
	for _, other := range running {
		if other.ID == card.ID {
			continue
		}
		if filesOverlap(card.Files, other.Files) {
			out = append(out, other)
		}
	}
	return out
}

func filesOverlap(a, b []string) bool {
	for _, patternA := range a {
		for _, patternB := range b {
			if patternsOverlap(patternA, patternB) {
				return true
			}
		}
	}
	return false
}

// patternsOverlap checks if two glob patterns could match the same
// files. Conservative: may return true even when the patterns don't
// actually collide at runtime.
func patternsOverlap(a, b string) bool {
	a = filepath.Clean(a)
	b = filepath.Clean(b)

	if a == b {
		return true
	}
	if isParentPath(a, b) || isParentPath(b, a) {
		return true
	}

	aParts := strings.Split(a, string(filepath.Separator))
	bParts := strings.Split(b, string(filepath.Separator))

	minLen := len(aParts)
	if len(bParts) < minLen {
		minLen = len(bParts)
	}

	commonPrefixLen := 0
	for i := 0; i < minLen; i++ {
		if aParts[i] == bParts[i] || aParts[i] == "*" || bParts[i] == "*" ||
			aParts[i] == "**" || bParts[i] == "**" {
			commonPrefixLen++
		} else {
			break
		}
	}
	if commonPrefixLen == minLen {
		return true
	}

	if strings.Contains(a, "**") || strings.Contains(b, "**") {
		aDir := firstConcreteDir(a)
		bDir := firstConcreteDir(b)
		if aDir != "" && bDir != "" && (aDir == bDir || strings.HasPrefix(aDir, bDir) || strings.HasPrefix(bDir, aDir)) {
			return true
		}
	}

	return false
}

func isParentPath(parent, child string) bool {
	parent = strings.TrimSuffix(parent, "/*")
	parent = strings.TrimSuffix(parent, "/**")
	child = strings.TrimSuffix(child, "/*")
	child = strings.TrimSuffix(child, "/**")
	return strings.HasPrefix(child, parent+string(filepath.Separator))
}

func firstConcreteDir(pattern string) string {
	for _, part := range strings.Split(pattern, string(filepath.Separator)) {
		if part != "*" && part != "**" && !strings.Contains(part, "*") {
			return part
		}
	}
	return ""
}

// ValidateCardFiles rejects empty, absolute, or dangerously broad file
// patterns before they are attached to a card.
func ValidateCardFiles(files []string) []string {
	var problems []string
	for _, pattern := range files {
		switch {
		case pattern == "":
			problems = append(problems, "empty file pattern")
		case pattern == "/" || pattern == "/*" || pattern == "/**":
			problems = append(problems, "pattern too broad: "+pattern)
		case filepath.IsAbs(pattern):
			problems = append(problems, "pattern should be relative: "+pattern)
		}
	}
	return problems
}
