package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nextlevelbuilder/jobagent/internal/store"
	"github.com/nextlevelbuilder/jobagent/pkg/protocol"
)

// QueueKey is the list workers pop job IDs from.
const QueueKey = "jobs:queue"

var (
	// ErrJobNotFound is returned when no hash exists for a job ID.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobFailed is returned by MarkActive when the job was already marked failed.
	ErrJobFailed = errors.New("job already failed")
)

// activateScript moves a job to active unless it is missing (-1) or failed (0).
var activateScript = redis.NewScript(`
local state = redis.call("HGET", KEYS[1], "state")
if not state then
	return -1
end
if state == ARGV[2] then
	return 0
end
redis.call("HSET", KEYS[1], "state", ARGV[1])
return 1
`)

func jobKey(id string) string { return "job:" + id }

// JobRecord is the stored view of a job including its outcome.
type JobRecord struct {
	store.Job
	Result     string    `json:"result,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

// JobStore manages job hashes (job:<id>) and the FIFO queue.
type JobStore struct {
	rdb redis.UniversalClient

	// ResultTTL expires finished job hashes. Zero keeps them forever.
	ResultTTL time.Duration
}

func NewJobStore(rdb redis.UniversalClient) *JobStore {
	return &JobStore{rdb: rdb}
}

// Create stores a queued job without enqueueing it. An empty sessionID gives
// the job its own fresh session.
func (s *JobStore) Create(ctx context.Context, prompt, sessionID string) (store.Job, error) {
	job, err := newJob(prompt, sessionID)
	if err != nil {
		return store.Job{}, err
	}
	if err := s.rdb.HSet(ctx, jobKey(job.ID), jobFields(job)).Err(); err != nil {
		return store.Job{}, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

// Submit creates a job and pushes it on the queue atomically.
func (s *JobStore) Submit(ctx context.Context, prompt, sessionID string) (store.Job, error) {
	job, err := newJob(prompt, sessionID)
	if err != nil {
		return store.Job{}, err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, jobKey(job.ID), jobFields(job))
		pipe.RPush(ctx, QueueKey, job.ID)
		return nil
	})
	if err != nil {
		return store.Job{}, fmt.Errorf("submit job: %w", err)
	}
	return job, nil
}

// Enqueue pushes an existing job ID on the queue.
func (s *JobStore) Enqueue(ctx context.Context, jobID string) error {
	return s.rdb.RPush(ctx, QueueKey, jobID).Err()
}

// Dequeue blocks up to timeout for the next job ID. It returns "" with a nil
// error when the wait times out.
func (s *JobStore) Dequeue(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := s.rdb.BLPop(ctx, timeout, QueueKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	// BLPOP replies [key, value].
	if len(res) != 2 {
		return "", fmt.Errorf("unexpected BLPOP reply: %v", res)
	}
	return res[1], nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*JobRecord, error) {
	vals, err := s.rdb.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	if len(vals) == 0 {
		return nil, ErrJobNotFound
	}
	rec := &JobRecord{
		Job: store.Job{
			ID:        id,
			Prompt:    vals["prompt"],
			SessionID: vals["session"],
			State:     vals["state"],
		},
		Result: vals["result"],
		Reason: vals["reason"],
	}
	rec.CreatedAt = parseTime(vals["createdAt"])
	rec.FinishedAt = parseTime(vals["finishedAt"])
	return rec, nil
}

// IsFailed reports whether the job was marked failed. Unknown jobs are not failed.
func (s *JobStore) IsFailed(ctx context.Context, id string) (bool, error) {
	state, err := s.rdb.HGet(ctx, jobKey(id), "state").Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return state == protocol.JobStateFailed, nil
}

// MarkFailed flags a job as failed. A running agent notices at its next
// iteration boundary.
func (s *JobStore) MarkFailed(ctx context.Context, id string) error {
	return s.setState(ctx, id, protocol.JobStateFailed)
}

// MarkActive records that a worker picked the job up. The check and the
// write are atomic: a job marked failed in the meantime is left failed and
// ErrJobFailed is returned.
func (s *JobStore) MarkActive(ctx context.Context, id string) error {
	n, err := activateScript.Run(ctx, s.rdb, []string{jobKey(id)},
		protocol.JobStateActive, protocol.JobStateFailed).Int()
	if err != nil {
		return fmt.Errorf("mark job %s active: %w", id, err)
	}
	switch n {
	case -1:
		return ErrJobNotFound
	case 0:
		return ErrJobFailed
	}
	return nil
}

// Complete stores the run outcome. A job already marked failed keeps that state.
func (s *JobStore) Complete(ctx context.Context, id, result, reason string) error {
	failed, err := s.IsFailed(ctx, id)
	if err != nil {
		return err
	}
	state := protocol.JobStateCompleted
	if failed {
		state = protocol.JobStateFailed
	}
	key := jobKey(id)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"state", state,
			"result", result,
			"reason", reason,
			"finishedAt", time.Now().UTC().Format(time.RFC3339Nano),
		)
		if s.ResultTTL > 0 {
			pipe.Expire(ctx, key, s.ResultTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}
	return nil
}

func (s *JobStore) setState(ctx context.Context, id, state string) error {
	key := jobKey(id)
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return s.rdb.HSet(ctx, key, "state", state).Err()
}

func newJob(prompt, sessionID string) (store.Job, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return store.Job{}, fmt.Errorf("job prompt is empty")
	}
	id := store.GenNewID()
	if sessionID == "" {
		sessionID = id
	}
	if err := store.ValidateSessionID(sessionID); err != nil {
		return store.Job{}, err
	}
	return store.Job{
		ID:        id,
		Prompt:    prompt,
		SessionID: sessionID,
		State:     protocol.JobStateQueued,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func jobFields(j store.Job) map[string]any {
	return map[string]any{
		"prompt":    j.Prompt,
		"session":   j.SessionID,
		"state":     j.State,
		"createdAt": j.CreatedAt.Format(time.RFC3339Nano),
	}
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
