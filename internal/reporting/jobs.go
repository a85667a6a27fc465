package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"collegeportal/internal/attendance"
)

// ErrJobNotFound is returned for unknown or expired job ids.
var ErrJobNotFound = errors.New("job not found")

// Status is the lifecycle state of a background job.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Job is the queued request. Actor is the caller who submitted it; the
// worker runs the operation on their behalf.
type Job struct {
	ID          string                  `json:"id"`
	Type        string                  `json:"type"`
	ActorID     string                  `json:"actor_id"`
	ActorRole   attendance.Role         `json:"actor_role"`
	Filter      attendance.ReportFilter `json:"filter"`
	Cutoff      time.Time               `json:"cutoff"`
	RequestedAt time.Time               `json:"requested_at"`
}

// Actor rebuilds the submitting caller.
func (j Job) Actor() attendance.Actor {
	return attendance.Actor{ID: j.ActorID, Role: j.ActorRole}
}

// JobResult is what clients poll for.
type JobResult struct {
	ID        string             `json:"id"`
	Type      string             `json:"type"`
	Status    Status             `json:"status"`
	Report    *attendance.Report `json:"report,omitempty"`
	FileURL   string             `json:"file_url,omitempty"`
	Archived  int                `json:"archived,omitempty"`
	Purged    int64              `json:"purged,omitempty"`
	Error     string             `json:"error,omitempty"`
	OwnerID   string             `json:"-"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// owned is the stored form; OwnerID is hidden from API responses but must
// survive the round trip through Redis.
type owned struct {
	JobResult
	OwnerID string `json:"owner_id"`
}

// ResultStore keeps job results for a limited time.
type ResultStore interface {
	Save(ctx context.Context, res JobResult) error
	Get(ctx context.Context, id string) (JobResult, error)
}

// RedisStore keeps results as JSON strings with a TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a store whose entries expire after ttl.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: "portal:job:", ttl: ttl}
}

func (s *RedisStore) Save(ctx context.Context, res JobResult) error {
	raw, err := json.Marshal(owned{JobResult: res, OwnerID: res.OwnerID})
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.prefix+res.ID, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save job %s: %w", res.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (JobResult, error) {
	raw, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return JobResult{}, ErrJobNotFound
	}
	if err != nil {
		return JobResult{}, fmt.Errorf("get job %s: %w", id, err)
	}
	var o owned
	if err := json.Unmarshal(raw, &o); err != nil {
		return JobResult{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	o.JobResult.OwnerID = o.OwnerID
	return o.JobResult, nil
}

// MemoryStore is the single-process counterpart of RedisStore.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	res     JobResult
	expires time.Time
}

// NewMemoryStore creates a store whose entries expire after ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, entries: map[string]memoryEntry{}}
}

func (s *MemoryStore) Save(_ context.Context, res JobResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[res.ID] = memoryEntry{res: res, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (JobResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return JobResult{}, ErrJobNotFound
	}
	if s.ttl > 0 && s.now().After(e.expires) {
		delete(s.entries, id)
		return JobResult{}, ErrJobNotFound
	}
	return e.res, nil
}
