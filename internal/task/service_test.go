package task

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-research/internal/domain"
	"github.com/phrazzld/scry-research/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, dispatcher Dispatcher) (*Service, store.TaskStore) {
	t.Helper()
	taskStore := newTestTaskStore(t)
	svc, err := NewService(taskStore, dispatcher, setupTestLogger())
	require.NoError(t, err)
	return svc, taskStore
}

func TestService_CreateAndGetTask(t *testing.T) {
	svc, _ := newTestService(t, &stubDispatcher{})
	ctx := context.Background()

	id, err := svc.CreateTask(ctx, " nvda ", domain.ModeStock)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	got, err := svc.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "NVDA", got.Subject)
	assert.Equal(t, domain.TaskStatusPending, got.Status)
	assert.Equal(t, domain.InitialTaskProgress, got.Progress)
	assert.Nil(t, got.Result)
}

func TestService_CreateTaskValidation(t *testing.T) {
	svc, _ := newTestService(t, &stubDispatcher{})

	_, err := svc.CreateTask(context.Background(), "", domain.ModeStock)
	assert.ErrorIs(t, err, domain.ErrSubjectRequired)

	_, err = svc.CreateTask(context.Background(), "x", domain.Mode("CRYPTO"))
	assert.ErrorIs(t, err, domain.ErrInvalidMode)
}

func TestService_GetUnknownTask(t *testing.T) {
	svc, _ := newTestService(t, &stubDispatcher{})

	_, err := svc.GetTask(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestService_UpdateTask(t *testing.T) {
	svc, _ := newTestService(t, &stubDispatcher{})
	ctx := context.Background()

	assert.False(t, svc.UpdateTask(ctx, uuid.New(), domain.TaskUpdate{Progress: domain.StringPtr("x")}))

	id, err := svc.CreateTask(ctx, "", domain.ModeMacro)
	require.NoError(t, err)

	assert.True(t, svc.UpdateTask(ctx, id, domain.TaskUpdate{
		Status:   domain.StatusPtr(domain.TaskStatusProcessing),
		Progress: domain.StringPtr("working"),
	}))
	assert.True(t, svc.UpdateTask(ctx, id, domain.TaskUpdate{
		Status: domain.StatusPtr(domain.TaskStatusFailed),
		Error:  domain.StringPtr("broken"),
	}))

	// terminal tasks reject further updates
	assert.False(t, svc.UpdateTask(ctx, id, domain.TaskUpdate{Progress: domain.StringPtr("late")}))

	got, err := svc.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "working", got.Progress)
	assert.Equal(t, "broken", got.Error)
}

func TestService_RunTaskAsync(t *testing.T) {
	dispatcher := &stubDispatcher{}
	svc, _ := newTestService(t, dispatcher)
	ctx := context.Background()

	id, err := svc.CreateTask(ctx, "msft", domain.ModeStock)
	require.NoError(t, err)

	req := ReportRequest{TaskID: id, Mode: domain.ModeStock, Subject: "msft", Topic: "cloud margins", OwnerID: "user-7"}
	require.NoError(t, svc.RunTaskAsync(ctx, req))

	require.Len(t, dispatcher.reqs, 1)
	assert.Equal(t, req, dispatcher.reqs[0])

	got, err := svc.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, got.Status)
}

func TestService_RunTaskAsyncValidation(t *testing.T) {
	dispatcher := &stubDispatcher{}
	svc, _ := newTestService(t, dispatcher)
	ctx := context.Background()

	id, err := svc.CreateTask(ctx, "", domain.ModeMacro)
	require.NoError(t, err)

	tests := []struct {
		name string
		req  ReportRequest
		want error
	}{
		{"missing owner", ReportRequest{TaskID: id, Mode: domain.ModeMacro}, domain.ErrOwnerRequired},
		{"missing id", ReportRequest{Mode: domain.ModeMacro, OwnerID: "u"}, domain.ErrEmptyTaskID},
		{"invalid mode", ReportRequest{TaskID: id, Mode: "BONDS", OwnerID: "u"}, domain.ErrInvalidMode},
		{"stock without subject", ReportRequest{TaskID: id, Mode: domain.ModeStock, OwnerID: "u"}, domain.ErrSubjectRequired},
		{"unknown task", ReportRequest{TaskID: uuid.New(), Mode: domain.ModeMacro, OwnerID: "u"}, store.ErrTaskNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.RunTaskAsync(ctx, tc.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Empty(t, dispatcher.reqs)
}

func TestService_RunTaskAsyncDispatchFailureFailsTask(t *testing.T) {
	dispatcher := &stubDispatcher{err: ErrQueueFull}
	svc, _ := newTestService(t, dispatcher)
	ctx := context.Background()

	id, err := svc.CreateTask(ctx, "", domain.ModeStrategy)
	require.NoError(t, err)

	err = svc.RunTaskAsync(ctx, ReportRequest{TaskID: id, Mode: domain.ModeStrategy, OwnerID: "u"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQueueFull)

	got, err := svc.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)
	assert.Contains(t, got.Error, "failed to start report job")
}

func TestNewServiceValidation(t *testing.T) {
	_, err := NewService(nil, &stubDispatcher{}, nil)
	assert.Error(t, err)

	_, err = NewService(newTestTaskStore(t), nil, nil)
	assert.Error(t, err)
}
