package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/anthias-labs/arena/internal/domain"
)

// defaultStreamMaxLen is the approximate maximum length of a run's stream,
// enforced via XADD MAXLEN ~.
const defaultStreamMaxLen int64 = 100_000

// StepStream implements domain.StepPublisher with one Redis stream per run.
type StepStream struct {
	rdb    redis.Cmdable
	prefix string
	maxLen int64
}

// NewStepStream creates a stream publisher keyed under prefix. An empty
// prefix means "arena:steps".
func NewStepStream(c *Client, prefix string) *StepStream {
	return newStepStream(c.Cmdable(), prefix)
}

func newStepStream(rdb redis.Cmdable, prefix string) *StepStream {
	if prefix == "" {
		prefix = "arena:steps"
	}
	return &StepStream{rdb: rdb, prefix: prefix, maxLen: defaultStreamMaxLen}
}

// Key returns the stream key for a run.
func (s *StepStream) Key(runID string) string {
	return s.prefix + ":" + runID
}

// Publish appends rec to the run's stream.
func (s *StepStream) Publish(ctx context.Context, runID string, rec domain.StepRecord) error {
	args := &redis.XAddArgs{
		Stream: s.Key(runID),
		MaxLen: s.maxLen,
		Approx: true,
		Values: streamValues(rec),
	}
	if err := s.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", args.Stream, err)
	}
	return nil
}

// Read returns up to count records of a run's stream in order, starting from
// the beginning.
func (s *StepStream) Read(ctx context.Context, runID string, count int64) ([]domain.StepRecord, error) {
	msgs, err := s.rdb.XRangeN(ctx, s.Key(runID), "-", "+", count).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: stream read %s: %w", s.Key(runID), err)
	}
	out := make([]domain.StepRecord, 0, len(msgs))
	for _, m := range msgs {
		rec, err := parseStreamValues(m.Values)
		if err != nil {
			return nil, fmt.Errorf("redis: stream entry %s: %w", m.ID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func streamValues(rec domain.StepRecord) map[string]any {
	return map[string]any{
		"step":      strconv.Itoa(rec.Step),
		"value":     strconv.FormatFloat(rec.Value, 'g', -1, 64),
		"logged_at": rec.LoggedAt.UTC().Format(time.RFC3339Nano),
	}
}

func parseStreamValues(v map[string]any) (domain.StepRecord, error) {
	get := func(k string) (string, error) {
		s, ok := v[k].(string)
		if !ok {
			return "", fmt.Errorf("missing field %q", k)
		}
		return s, nil
	}
	var rec domain.StepRecord
	raw, err := get("step")
	if err != nil {
		return rec, err
	}
	if rec.Step, err = strconv.Atoi(raw); err != nil {
		return rec, fmt.Errorf("step: %w", err)
	}
	if raw, err = get("value"); err != nil {
		return rec, err
	}
	if rec.Value, err = strconv.ParseFloat(raw, 64); err != nil {
		return rec, fmt.Errorf("value: %w", err)
	}
	if raw, err = get("logged_at"); err != nil {
		return rec, err
	}
	if rec.LoggedAt, err = time.Parse(time.RFC3339Nano, raw); err != nil {
		return rec, fmt.Errorf("logged_at: %w", err)
	}
	return rec, nil
}

var _ domain.StepPublisher = (*StepStream)(nil)
