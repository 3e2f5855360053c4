package contextmgr

import (
	"context"
	"strings"

	"github.com/goadesign/agent-kernel/internal/core"
)

// DetectContradictions checks new content against every pinned constraint
// item using three lexical patterns: "must not X" violated if content
// contains X; "must Y" violated if content partial-word-matches fewer than
// half of Y's words; "never Z" violated if content contains Z. Any conflicts
// found are emitted as a single CONTRADICTION_DETECTED event.
func (m *Manager) DetectContradictions(ctx context.Context, content string) []string {
	m.mu.Lock()
	constraints := make([]*core.ContextItem, 0, len(m.pinned.Items))
	for _, it := range m.pinned.Items {
		if it.Kind == core.ContextConstraint {
			constraints = append(constraints, it.Clone())
		}
	}
	m.mu.Unlock()

	lowerContent := strings.ToLower(content)
	var conflicts []string
	for _, c := range constraints {
		lowerConstraint := strings.ToLower(c.Content)
		if clause := extractClause(lowerConstraint, "must not "); clause != "" {
			if strings.Contains(lowerContent, clause) {
				conflicts = append(conflicts, "constraint \""+c.Content+"\" forbids \""+clause+"\" but content contains it")
			}
			continue
		}
		if clause := extractClause(lowerConstraint, "never "); clause != "" {
			if strings.Contains(lowerContent, clause) {
				conflicts = append(conflicts, "constraint \""+c.Content+"\" forbids \""+clause+"\" but content contains it")
			}
			continue
		}
		if clause := extractClause(lowerConstraint, "must "); clause != "" {
			if wordMatchFraction(clause, lowerContent) < 0.5 {
				conflicts = append(conflicts, "constraint \""+c.Content+"\" requires \""+clause+"\" but content does not satisfy it")
			}
		}
	}

	if len(conflicts) > 0 {
		m.store.Append(ctx, core.EventContradictionFound, map[string]any{
			"description": strings.Join(conflicts, "; "),
			"count":       len(conflicts),
		})
	}
	return conflicts
}

// extractClause returns the trimmed text following keyword in s up to the
// next sentence boundary, or "" if keyword is absent.
func extractClause(s, keyword string) string {
	idx := strings.Index(s, keyword)
	if idx < 0 {
		return ""
	}
	rest := s[idx+len(keyword):]
	if dot := strings.IndexByte(rest, '.'); dot >= 0 {
		rest = rest[:dot]
	}
	return strings.TrimSpace(rest)
}

// wordMatchFraction returns the fraction of clause's words found as a
// substring of some word in content.
func wordMatchFraction(clause, content string) float64 {
	clauseWords := tokenizeWords(clause)
	if len(clauseWords) == 0 {
		return 1
	}
	contentWords := tokenizeWords(content)
	matches := 0
	for _, cw := range clauseWords {
		for _, w := range contentWords {
			if strings.Contains(w, cw) {
				matches++
				break
			}
		}
	}
	return float64(matches) / float64(len(clauseWords))
}
