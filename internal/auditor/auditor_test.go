package auditor

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/goadesign/agent-kernel/internal/core"
	"github.com/goadesign/agent-kernel/internal/eventstore"
)

func newAuditor() *Auditor {
	return New(eventstore.New("run1", nil), nil)
}

func TestCheckAcceptanceMeaningful(t *testing.T) {
	a := newAuditor()
	ctx := context.Background()

	results := []core.VerificationResult{{Pass: false}, {Pass: false}}
	entry := a.CheckAcceptanceMeaningful(ctx, "t1", results, strings.Repeat("x", 200))
	require.NotNil(t, entry)
	require.Equal(t, SeverityWarning, entry.Severity)

	entry = a.CheckAcceptanceMeaningful(ctx, "t1", results, "short")
	require.Nil(t, entry)
}

func TestCheckContradiction(t *testing.T) {
	a := newAuditor()
	ctx := context.Background()

	previous := []string{"we should use the shared database for all writes"}
	entry := a.CheckContradiction(ctx, previous, "we should not use the shared database for all writes")
	require.NotNil(t, entry)

	entry = a.CheckContradiction(ctx, previous, "we should use the shared cache for reads")
	require.Nil(t, entry)
}

func TestCheckFollowUpCreated(t *testing.T) {
	a := newAuditor()
	ctx := context.Background()
	failed := &core.Task{ID: "t1", Title: "ship feature"}

	entry := a.CheckFollowUpCreated(ctx, failed, nil)
	require.NotNil(t, entry)

	fixTask := &core.Task{ID: "t2", Title: "fix: ship feature", Dependencies: []string{"t1"}}
	entry = a.CheckFollowUpCreated(ctx, failed, []*core.Task{fixTask})
	require.Nil(t, entry)
}
