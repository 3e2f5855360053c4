package core

import "time"

// ContextItemKind is the closed set of context item kinds. Items of kind
// Constraint are never evicted by the context manager.
type ContextItemKind string

const (
	ContextConstraint  ContextItemKind = "constraint"
	ContextDefinition  ContextItemKind = "definition"
	ContextArtifact    ContextItemKind = "artifact"
	ContextSummary     ContextItemKind = "summary"
	ContextMemory      ContextItemKind = "memory"
	ContextInstruction ContextItemKind = "instruction"
)

// ContextItem is one unit of context held in a ContextTier.
type ContextItem struct {
	ID         string
	Content    string
	Kind       ContextItemKind
	Source     string
	Tokens     int
	Priority   int
	CreatedAt  time.Time
	AccessedAt time.Time
	AccessCount int
	Embedding  []float32
}

// Clone returns a deep copy of the item.
func (c *ContextItem) Clone() *ContextItem {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Embedding = append([]float32(nil), c.Embedding...)
	return &cp
}

// TierKind is one of the three context tiers.
type TierKind string

const (
	TierPinned   TierKind = "pinned"
	TierWorking  TierKind = "working"
	TierLongterm TierKind = "longterm"
)

// ContextTier holds one tier's items under an independent token cap.
type ContextTier struct {
	Kind           TierKind
	Items          []*ContextItem
	MaxTokens      int
	CurrentTokens  int
}

// Clone returns a deep copy of the tier, including every item it holds.
func (t ContextTier) Clone() ContextTier {
	c := t
	c.Items = make([]*ContextItem, len(t.Items))
	for i, it := range t.Items {
		c.Items[i] = it.Clone()
	}
	return c
}
