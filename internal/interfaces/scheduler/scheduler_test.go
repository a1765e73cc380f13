package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Shawndas06/bank-aggregator/internal/domain/account"
	"github.com/Shawndas06/bank-aggregator/internal/domain/aggregation"
	"github.com/Shawndas06/bank-aggregator/internal/domain/provider"
)

type funcJob struct {
	user string
	fn   func(ctx context.Context) error
}

func (j funcJob) Execute(ctx context.Context) error { return j.fn(ctx) }
func (j funcJob) UserID() string                    { return j.user }
func (j funcJob) Description() string               { return "test job" }

// MockSyncer implements AccountSyncer for testing
type MockSyncer struct {
	LinkedAccountsFunc func(ctx context.Context, userID int64, providerIDs []provider.ID) ([]*account.LinkedAccount, error)
	SyncFunc           func(ctx context.Context, la *account.LinkedAccount) (aggregation.SyncResult, error)
}

func (m *MockSyncer) LinkedAccounts(ctx context.Context, userID int64, providerIDs []provider.ID) ([]*account.LinkedAccount, error) {
	if m.LinkedAccountsFunc != nil {
		return m.LinkedAccountsFunc(ctx, userID, providerIDs)
	}
	return nil, nil
}

func (m *MockSyncer) Sync(ctx context.Context, la *account.LinkedAccount) (aggregation.SyncResult, error) {
	if m.SyncFunc != nil {
		return m.SyncFunc(ctx, la)
	}
	return aggregation.SyncResult{LinkedAccountID: la.ID}, nil
}

type userList []int64

func (u userList) UserIDs(ctx context.Context) ([]int64, error) { return u, nil }

func TestParseScheduleTime(t *testing.T) {
	tests := []struct {
		in      string
		want    ScheduleTime
		wantErr bool
	}{
		{in: "06:30", want: ScheduleTime{6, 30}},
		{in: "0:05", want: ScheduleTime{0, 5}},
		{in: "23:59", want: ScheduleTime{23, 59}},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "noon", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseScheduleTime(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "06:05", ScheduleTime{6, 5}.String())
}

func noJobs(context.Context) ([]Job, error) { return nil, nil }

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{ScheduleTimes: []string{"06:00"}})
	assert.Error(t, err, "missing job provider")

	_, err = New(Config{JobProvider: noJobs})
	assert.Error(t, err, "no schedule times")

	_, err = New(Config{ScheduleTimes: []string{"6am"}, JobProvider: noJobs})
	assert.Error(t, err)
}

func TestScheduler_ShouldRunOncePerMinute(t *testing.T) {
	s, err := New(Config{ScheduleTimes: []string{"06:00", "18:30"}, JobProvider: noJobs, WorkerCount: 1, QueueSize: 1})
	require.NoError(t, err)

	at := time.Date(2024, 5, 10, 6, 0, 12, 0, time.UTC)
	assert.True(t, s.shouldRun(at))
	assert.False(t, s.shouldRun(at.Add(30*time.Second)), "same minute fires once")
	assert.False(t, s.shouldRun(at.Add(time.Minute)))
	assert.True(t, s.shouldRun(time.Date(2024, 5, 10, 18, 30, 0, 0, time.UTC)))
	assert.True(t, s.shouldRun(at.AddDate(0, 0, 1)), "next day fires again")
}

func TestScheduler_NextRun(t *testing.T) {
	s, err := New(Config{ScheduleTimes: []string{"18:30", "06:00"}, JobProvider: noJobs})
	require.NoError(t, err)

	now := time.Date(2024, 5, 10, 7, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 10, 18, 30, 0, 0, time.UTC), s.NextRun(now))

	late := time.Date(2024, 5, 10, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 11, 6, 0, 0, 0, time.UTC), s.NextRun(late))
}

func TestScheduler_TriggerNowRunsJobs(t *testing.T) {
	var done sync.WaitGroup
	var ran atomic.Int32
	done.Add(3)

	build := func(ctx context.Context) ([]Job, error) {
		jobs := make([]Job, 0, 3)
		for _, u := range []string{"1", "2", "3"} {
			jobs = append(jobs, funcJob{user: u, fn: func(ctx context.Context) error {
				defer done.Done()
				ran.Add(1)
				return nil
			}})
		}
		return jobs, nil
	}

	s, err := New(Config{ScheduleTimes: []string{"03:00"}, JobProvider: build, WorkerCount: 2, QueueSize: 10})
	require.NoError(t, err)
	s.Start()

	assert.Equal(t, 3, s.TriggerNow())
	done.Wait()
	s.Shutdown(time.Second)
	assert.Equal(t, int32(3), ran.Load())
}

func TestScheduler_JobProviderError(t *testing.T) {
	s, err := New(Config{
		ScheduleTimes: []string{"03:00"},
		JobProvider:   func(context.Context) ([]Job, error) { return nil, errors.New("db down") },
		QueueSize:     1,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, s.TriggerNow())
}

func TestWorkerPool_QueueFull(t *testing.T) {
	pool := NewWorkerPool(1, 0, 1, nil)
	job := funcJob{user: "1", fn: func(context.Context) error { return nil }}

	require.NoError(t, pool.Submit(job))
	assert.ErrorIs(t, pool.Submit(job), ErrQueueFull)

	pool.Start()
	pool.ShutdownWithTimeout(time.Second)
	assert.Error(t, pool.Submit(job), "closed pool rejects jobs")
}

func TestWorkerPool_LogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	pool := NewWorkerPool(1, 0, 2, zap.New(core))
	pool.Start()

	require.NoError(t, pool.Submit(funcJob{user: "7", fn: func(context.Context) error { return errors.New("provider down") }}))
	pool.ShutdownWithTimeout(time.Second)

	entries := logs.FilterMessage("Job failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "7", entries[0].ContextMap()["user_id"])
}

func TestRefreshJob_Execute(t *testing.T) {
	accounts := []*account.LinkedAccount{
		{ID: "la-1", UserID: 5, ProviderID: provider.VBank},
		{ID: "la-2", UserID: 5, ProviderID: provider.SBank},
		{ID: "la-3", UserID: 5, ProviderID: provider.ABank},
	}
	var synced []string
	syncer := &MockSyncer{
		LinkedAccountsFunc: func(ctx context.Context, userID int64, providerIDs []provider.ID) ([]*account.LinkedAccount, error) {
			assert.Equal(t, int64(5), userID)
			assert.Nil(t, providerIDs, "refresh covers every provider")
			return accounts, nil
		},
		SyncFunc: func(ctx context.Context, la *account.LinkedAccount) (aggregation.SyncResult, error) {
			synced = append(synced, la.ID)
			if la.ProviderID == provider.SBank {
				return aggregation.SyncResult{}, errors.New("sbank unavailable")
			}
			return aggregation.SyncResult{LinkedAccountID: la.ID}, nil
		},
	}

	job := NewRefreshJob(5, syncer, nil)
	err := job.Execute(context.Background())
	assert.ErrorContains(t, err, "1 of 3")
	assert.Equal(t, []string{"la-1", "la-2", "la-3"}, synced, "a failing account does not stop the rest")
	assert.Equal(t, "5", job.UserID())
	assert.Contains(t, job.Description(), "user 5")
}

func TestRefreshJob_ListError(t *testing.T) {
	syncer := &MockSyncer{
		LinkedAccountsFunc: func(context.Context, int64, []provider.ID) ([]*account.LinkedAccount, error) {
			return nil, errors.New("db down")
		},
	}
	assert.Error(t, NewRefreshJob(1, syncer, nil).Execute(context.Background()))
}

func TestRefreshJobs(t *testing.T) {
	jobs, err := RefreshJobs(userList{3, 8}, &MockSyncer{}, nil)(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "3", jobs[0].UserID())
	assert.Equal(t, "8", jobs[1].UserID())
	assert.NoError(t, jobs[0].Execute(context.Background()))
}
