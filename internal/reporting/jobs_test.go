package reporting

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStores(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	mem := NewMemoryStore(time.Hour)
	clock := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	mem.now = func() time.Time { return clock }

	tests := []struct {
		name    string
		store   ResultStore
		advance func(time.Duration)
	}{
		{name: "memory", store: mem, advance: func(d time.Duration) { clock = clock.Add(d) }},
		{name: "redis", store: NewRedisStore(client, time.Hour), advance: mr.FastForward},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			res := JobResult{ID: "job-" + tt.name, Type: "report", Status: StatusDone, OwnerID: "u-1", FileURL: "https://cdn/x.xlsx"}
			require.NoError(t, tt.store.Save(ctx, res))

			got, err := tt.store.Get(ctx, res.ID)
			require.NoError(t, err)
			assert.Equal(t, "u-1", got.OwnerID)
			assert.Equal(t, StatusDone, got.Status)
			assert.Equal(t, res.FileURL, got.FileURL)

			_, err = tt.store.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrJobNotFound)

			tt.advance(2 * time.Hour)
			_, err = tt.store.Get(ctx, res.ID)
			assert.ErrorIs(t, err, ErrJobNotFound)
		})
	}
}
