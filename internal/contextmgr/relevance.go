package contextmgr

import (
	"context"
	"strings"
	"time"

	"github.com/goadesign/agent-kernel/internal/core"
)

// relevanceScore computes a deterministic relevance score for item against
// query: 0.5*keyword_overlap + 0.3*(priority/100) + 0.2*max(0, recency),
// where keyword_overlap is the fraction of query words that substring-match
// any content word, and recency is 1 - age_in_days/7 clamped at 0.
func relevanceScore(item *core.ContextItem, query string, now time.Time) float64 {
	overlap := keywordOverlap(query, item.Content)
	recency := 1 - now.Sub(item.CreatedAt).Hours()/24/7
	if recency < 0 {
		recency = 0
	}
	return 0.5*overlap + 0.3*(float64(item.Priority)/100) + 0.2*recency
}

func keywordOverlap(query, content string) float64 {
	queryWords := tokenizeWords(query)
	if len(queryWords) == 0 {
		return 0
	}
	contentWords := tokenizeWords(content)
	matches := 0
	for _, qw := range queryWords {
		for _, cw := range contentWords {
			if strings.Contains(cw, qw) {
				matches++
				break
			}
		}
	}
	return float64(matches) / float64(len(queryWords))
}

func tokenizeWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}

// SelectContext returns: every pinned item up to maxTokens, then working
// items sorted by relevance filling the remaining budget, then, if less
// than 80% of maxTokens is used, longterm items by the same score. Every
// selected item's access_count and accessed_at are updated.
func (m *Manager) SelectContext(ctx context.Context, taskPrompt string, maxTokens int) []*core.ContextItem {
	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	var selected []*core.ContextItem
	used := 0

	for _, it := range m.pinned.Items {
		if used+it.Tokens > maxTokens {
			break
		}
		selected = append(selected, it)
		used += it.Tokens
	}

	working := rankByRelevance(m.working.Items, taskPrompt, now)
	for _, it := range working {
		if used+it.Tokens > maxTokens {
			continue
		}
		selected = append(selected, it)
		used += it.Tokens
	}

	if float64(used) < 0.8*float64(maxTokens) {
		longterm := rankByRelevance(m.longterm.Items, taskPrompt, now)
		for _, it := range longterm {
			if used+it.Tokens > maxTokens {
				continue
			}
			selected = append(selected, it)
			used += it.Tokens
		}
	}

	out := make([]*core.ContextItem, len(selected))
	for i, it := range selected {
		it.AccessCount++
		it.AccessedAt = now
		out[i] = it.Clone()
	}
	return out
}

func rankByRelevance(items []*core.ContextItem, query string, now time.Time) []*core.ContextItem {
	ranked := append([]*core.ContextItem(nil), items...)
	scores := make(map[string]float64, len(ranked))
	for _, it := range ranked {
		scores[it.ID] = relevanceScore(it, query, now)
	}
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0; j-- {
			if scores[ranked[j-1].ID] >= scores[ranked[j].ID] {
				break
			}
			ranked[j-1], ranked[j] = ranked[j], ranked[j-1]
		}
	}
	return ranked
}
