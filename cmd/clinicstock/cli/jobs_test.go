package cli

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/clinicstock/jobs"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return f.info, f.err }

func (f fakeInspector) ListScheduledTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return []*asynq.TaskInfo{{ID: "s1", Type: jobs.TaskReorderSweep}}, f.err
}

func (f fakeInspector) Close() error { return nil }

func TestTriggerSweep(t *testing.T) {
	enq := &fakeEnqueuer{}
	c := &JobsCLI{client: enq}
	info, err := c.TriggerSweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, jobs.TaskReorderSweep, info.Type)
	require.Len(t, enq.tasks, 1)

	var empty *JobsCLI
	_, err = empty.TriggerSweep(context.Background())
	require.Error(t, err)
}

func TestInspectQueue(t *testing.T) {
	c := &JobsCLI{inspector: fakeInspector{info: &asynq.QueueInfo{Pending: 2, Retry: 1}}}
	stats, err := c.InspectQueue(context.Background())
	require.NoError(t, err)
	require.Equal(t, QueueStats{Queue: jobs.QueueDefault, Pending: 2, Retry: 1}, stats)

	c = &JobsCLI{inspector: fakeInspector{err: errors.New("redis down")}}
	_, err = c.InspectQueue(context.Background())
	require.Error(t, err)

	tasks, err := (&JobsCLI{inspector: fakeInspector{}}).ListScheduled(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
}
