package taskqueue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/goadesign/agent-kernel/internal/core"
	"github.com/goadesign/agent-kernel/internal/eventstore"
)

func newQueue() *Queue {
	return New(eventstore.New("run1", nil), nil)
}

func TestAddTaskBlockedOnUnmetDependency(t *testing.T) {
	q := newQueue()
	ctx := context.Background()

	dep, err := q.AddTask(ctx, AddTaskInput{Title: "dep"})
	require.NoError(t, err)
	require.Equal(t, core.TaskQueued, dep.Status)

	t2, err := q.AddTask(ctx, AddTaskInput{Title: "t2", Dependencies: []string{dep.ID}})
	require.NoError(t, err)
	require.Equal(t, core.TaskBlocked, t2.Status)
}

func TestTerminalTransitionReevaluatesBlocked(t *testing.T) {
	q := newQueue()
	ctx := context.Background()

	dep, _ := q.AddTask(ctx, AddTaskInput{Title: "dep"})
	child, _ := q.AddTask(ctx, AddTaskInput{Title: "child", Dependencies: []string{dep.ID}})
	require.Equal(t, core.TaskBlocked, child.Status)

	require.NoError(t, q.MarkTaskDone(ctx, dep.ID, core.TaskResult{Success: true}))

	got, ok := q.Get(child.ID)
	require.True(t, ok)
	require.Equal(t, core.TaskQueued, got.Status)
}

func TestAddDependencyRejectsCycle(t *testing.T) {
	q := newQueue()
	ctx := context.Background()

	a, _ := q.AddTask(ctx, AddTaskInput{Title: "a"})
	b, err := q.AddTask(ctx, AddTaskInput{Title: "b", Dependencies: []string{a.ID}})
	require.NoError(t, err)
	require.Equal(t, core.TaskBlocked, b.Status)

	ok, err := q.AddDependency(ctx, a.ID, b.ID, "introduce cycle")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMarkTaskFailedRetriesThenFails(t *testing.T) {
	q := newQueue()
	ctx := context.Background()

	t1, _ := q.AddTask(ctx, AddTaskInput{Title: "flaky"})
	require.NoError(t, q.SetTaskStatus(ctx, t1.ID, core.TaskActive, "start"))

	for i := 0; i < 3; i++ {
		require.NoError(t, q.MarkTaskFailed(ctx, t1.ID, nil))
		got, _ := q.Get(t1.ID)
		if i < 2 {
			require.Equal(t, core.TaskQueued, got.Status)
		} else {
			require.Equal(t, core.TaskFailed, got.Status)
		}
	}
}

func TestNextTaskBreaksTiesByCreatedAt(t *testing.T) {
	q := newQueue()
	ctx := context.Background()

	first, _ := q.AddTask(ctx, AddTaskInput{Title: "first", Priority: 50})
	_, _ = q.AddTask(ctx, AddTaskInput{Title: "second", Priority: 50})

	next := q.NextTask()
	require.NotNil(t, next)
	require.Equal(t, first.ID, next.ID)
}

func TestNextTaskPrefersHigherPriority(t *testing.T) {
	q := newQueue()
	ctx := context.Background()

	_, _ = q.AddTask(ctx, AddTaskInput{Title: "low", Priority: 10})
	high, _ := q.AddTask(ctx, AddTaskInput{Title: "high", Priority: 90})

	next := q.NextTask()
	require.Equal(t, high.ID, next.ID)
}

func TestSplitTaskChainsSubtasksAndBlocksParent(t *testing.T) {
	q := newQueue()
	ctx := context.Background()

	parent, _ := q.AddTask(ctx, AddTaskInput{Title: "parent"})
	subs, err := q.SplitTask(ctx, parent.ID, []AddTaskInput{{Title: "s1"}, {Title: "s2"}}, "decompose")
	require.NoError(t, err)
	require.Len(t, subs, 2)
	require.Empty(t, subs[0].Dependencies)
	require.Equal(t, []string{subs[0].ID}, subs[1].Dependencies)

	got, _ := q.Get(parent.ID)
	require.Equal(t, core.TaskBlocked, got.Status)
	require.ElementsMatch(t, []string{subs[0].ID, subs[1].ID}, got.SubtaskIDs)
}

func TestMergeTasksUnionsAndCancelsOriginals(t *testing.T) {
	q := newQueue()
	ctx := context.Background()

	a, _ := q.AddTask(ctx, AddTaskInput{Title: "a", Prompt: "do a", Priority: 20, Tags: []string{"x"}})
	b, _ := q.AddTask(ctx, AddTaskInput{Title: "b", Prompt: "do b", Priority: 80, Tags: []string{"y"}})

	merged, err := q.MergeTasks(ctx, []string{a.ID, b.ID}, "merged", "combine")
	require.NoError(t, err)
	require.Equal(t, 80, merged.Priority)
	require.Contains(t, merged.Prompt, "do a")
	require.Contains(t, merged.Prompt, "do b")

	gotA, _ := q.Get(a.ID)
	gotB, _ := q.Get(b.ID)
	require.Equal(t, core.TaskCanceled, gotA.Status)
	require.Equal(t, core.TaskCanceled, gotB.Status)
}

func TestGetDAGStateComputesDepthAndExecutionOrder(t *testing.T) {
	q := newQueue()
	ctx := context.Background()

	root, _ := q.AddTask(ctx, AddTaskInput{Title: "root", Priority: 50})
	mid, _ := q.AddTask(ctx, AddTaskInput{Title: "mid", Dependencies: []string{root.ID}, Priority: 50})
	leaf, _ := q.AddTask(ctx, AddTaskInput{Title: "leaf", Dependencies: []string{mid.ID}, Priority: 50})

	state := q.GetDAGState()
	depths := map[string]int{}
	for _, n := range state.Nodes {
		depths[n.TaskID] = n.Depth
	}
	require.Equal(t, 0, depths[root.ID])
	require.Equal(t, 1, depths[mid.ID])
	require.Equal(t, 2, depths[leaf.ID])
	require.Equal(t, []string{root.ID, mid.ID, leaf.ID}, state.ExecutionOrder)
}
