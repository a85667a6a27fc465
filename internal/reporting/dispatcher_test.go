package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collegeportal/internal/attendance"
	"collegeportal/internal/queue"
)

type downQueue struct{ err error }

func (q downQueue) Publish(context.Context, queue.Message) error { return q.err }

func (q downQueue) Consume(context.Context) (<-chan queue.Message, error) { return nil, q.err }

func TestSubmitPublishFailureMarksJobFailed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)
	cause := errors.New("dial tcp 127.0.0.1:6379: connection refused")
	d := NewDispatcher(downQueue{err: cause}, store)
	faculty := attendance.Actor{ID: facultyID, Role: attendance.RoleFaculty}

	_, err := d.SubmitReport(ctx, faculty, attendance.ReportFilter{})
	var serr *attendance.StorageError
	require.ErrorAs(t, err, &serr)
	assert.ErrorIs(t, err, cause)

	require.Len(t, store.entries, 1)
	for id := range store.entries {
		res, err := d.Status(ctx, faculty, id)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, res.Status)
		assert.NotEmpty(t, res.Error)
	}
}

func TestSubmitAndStatusWithStoreDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	d := NewDispatcher(queue.NewInMemory(1), NewRedisStore(client, time.Hour))
	admin := attendance.Actor{ID: adminID, Role: attendance.RoleAdmin}
	mr.Close()

	tests := []struct {
		name string
		call func() error
	}{
		{name: "submit", call: func() error {
			_, err := d.SubmitPurge(context.Background(), admin, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
			return err
		}},
		{name: "status", call: func() error {
			_, err := d.Status(context.Background(), admin, "0b6d3f1e-8c1a-4b7e-9f0a-2d3c4b5a6978")
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var serr *attendance.StorageError
			assert.ErrorAs(t, tt.call(), &serr)
		})
	}
}
