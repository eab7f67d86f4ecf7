package inspector

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugawarayuuta/sonnet"

	"github.com/anthias-labs/arena/internal/arena"
	"github.com/anthias-labs/arena/internal/domain"
)

var (
	_ arena.Inspector[float64]  = (*Recorder)(nil)
	_ arena.StepLogger[float64] = (*Recorder)(nil)
)

var fixedNow = time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)

func newTestRecorder(opts ...Option) *Recorder {
	opts = append([]Option{WithRunID("run-1"), WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewRecorder(opts...)
}

func logAll(t *testing.T, r *Recorder, values ...float64) {
	t.Helper()
	for _, v := range values {
		require.NoError(t, r.Log(context.Background(), v))
	}
}

type fakePublisher struct {
	mu   sync.Mutex
	recs []domain.StepRecord
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, runID string, rec domain.StepRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if runID != "run-1" {
		return errors.New("unexpected run id " + runID)
	}
	p.recs = append(p.recs, rec)
	return p.err
}

func TestRecorderLogInspect(t *testing.T) {
	r := newTestRecorder()
	_, ok := r.Inspect(0)
	assert.False(t, ok)

	logAll(t, r, 1.05, 0.97)
	v, ok := r.Inspect(1)
	require.True(t, ok)
	assert.Equal(t, 0.97, v)
	_, ok = r.Inspect(2)
	assert.False(t, ok)
	_, ok = r.Inspect(-1)
	assert.False(t, ok)

	recs := r.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, 0, recs[0].Step)
	assert.Equal(t, fixedNow, recs[0].LoggedAt)
	recs[0].Value = 99
	v, _ = r.Inspect(0)
	assert.Equal(t, 1.05, v)
}

func TestRecorderLogStepLeavesGaps(t *testing.T) {
	r := newTestRecorder()
	ctx := context.Background()
	require.NoError(t, r.LogStep(ctx, 0, 10))
	require.NoError(t, r.LogStep(ctx, 2, 12))
	require.NoError(t, r.LogStep(ctx, 3, 13))

	_, ok := r.Inspect(1)
	assert.False(t, ok)
	v, ok := r.Inspect(2)
	require.True(t, ok)
	assert.Equal(t, 12.0, v)

	// Log continues after the highest step.
	require.NoError(t, r.Log(ctx, 14))
	v, ok = r.Inspect(4)
	require.True(t, ok)
	assert.Equal(t, 14.0, v)

	recs := r.Records()
	require.Len(t, recs, 4)
	assert.Equal(t, []int{0, 2, 3, 4}, []int{recs[0].Step, recs[1].Step, recs[2].Step, recs[3].Step})
}

func TestRecorderLogStepOrdersAndReplaces(t *testing.T) {
	r := newTestRecorder()
	ctx := context.Background()
	require.NoError(t, r.LogStep(ctx, 5, 1))
	require.NoError(t, r.LogStep(ctx, 1, 2))
	require.NoError(t, r.LogStep(ctx, 5, 3))

	recs := r.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, 1, recs[0].Step)
	assert.Equal(t, 5, recs[1].Step)
	assert.Equal(t, 3.0, recs[1].Value)

	assert.Error(t, r.LogStep(ctx, -1, 0))
}

func TestRecorderPublishes(t *testing.T) {
	pub := &fakePublisher{}
	r := newTestRecorder(WithPublisher(pub))
	logAll(t, r, 1, 2)
	require.Len(t, pub.recs, 2)
	assert.Equal(t, 1, pub.recs[1].Step)

	pub.err = errors.New("redis down")
	err := r.Log(context.Background(), 3)
	assert.ErrorContains(t, err, "publish step 2")
	assert.ErrorIs(t, err, pub.err)
}

func TestRecorderSaveSelection(t *testing.T) {
	r := newTestRecorder()
	assert.NoError(t, r.Save(context.Background(), nil))

	err := r.Save(context.Background(), &domain.SaveData{Format: "parquet"})
	assert.ErrorContains(t, err, `no sink for format "parquet"`)

	assert.Equal(t, []string{"csv", "json", "sqlite"}, r.Formats())

	var got domain.RunRecord
	var target string
	r = newTestRecorder(WithSink(domain.SavePostgres, SinkFunc(func(_ context.Context, run domain.RunRecord, tgt string) error {
		got, target = run, tgt
		return nil
	})))
	logAll(t, r, 1.5)
	require.NoError(t, r.Save(context.Background(), &domain.SaveData{Format: domain.SavePostgres, Target: "db"}))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, fixedNow, got.SavedAt)
	assert.Len(t, got.Steps, 1)
	assert.Equal(t, "db", target)
}

func TestRecorderSaveWrapsSinkError(t *testing.T) {
	cause := errors.New("disk full")
	r := newTestRecorder(WithSink("csv", SinkFunc(func(context.Context, domain.RunRecord, string) error { return cause })))
	err := r.Save(context.Background(), &domain.SaveData{Format: "csv", Target: "x.csv"})
	assert.ErrorIs(t, err, cause)
	assert.ErrorContains(t, err, "csv:x.csv")
}

func TestCSVSink(t *testing.T) {
	r := newTestRecorder()
	logAll(t, r, 1.05, 2)
	path := filepath.Join(t.TempDir(), "out", "results.csv")
	require.NoError(t, r.Save(context.Background(), &domain.SaveData{Format: "csv", Target: path}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"run_id", "step", "value", "logged_at"},
		{"run-1", "0", "1.05", "2026-05-06T07:08:09Z"},
		{"run-1", "1", "2", "2026-05-06T07:08:09Z"},
	}, rows)
}

func TestJSONSink(t *testing.T) {
	r := newTestRecorder()
	logAll(t, r, 0.5)
	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, r.Save(context.Background(), &domain.SaveData{Format: "json", Target: path}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var run domain.RunRecord
	require.NoError(t, sonnet.Unmarshal(data, &run))
	assert.Equal(t, "run-1", run.RunID)
	require.Len(t, run.Steps, 1)
	assert.Equal(t, 0.5, run.Steps[0].Value)
}

func TestJSONSinkEmptyRun(t *testing.T) {
	data, err := encodeJSON(domain.RunRecord{RunID: "r"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"steps":[]`)
}

func TestSQLiteSink(t *testing.T) {
	r := newTestRecorder()
	logAll(t, r, 1.1, 1.2, 1.3)
	path := filepath.Join(t.TempDir(), "arena.db")
	sel := &domain.SaveData{Format: "sqlite", Target: path}
	require.NoError(t, r.Save(context.Background(), sel))
	require.NoError(t, r.Save(context.Background(), sel))

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var steps int
	require.NoError(t, db.QueryRow(`SELECT steps FROM runs WHERE id = ?`, "run-1").Scan(&steps))
	assert.Equal(t, 3, steps)

	var count int
	var sum float64
	require.NoError(t, db.QueryRow(`SELECT COUNT(*), SUM(value) FROM steps WHERE run_id = ?`, "run-1").Scan(&count, &sum))
	assert.Equal(t, 3, count)
	assert.InDelta(t, 3.6, sum, 1e-9)
}

type fakeStore struct {
	runs map[string]domain.RunRecord
}

func (s *fakeStore) SaveRun(_ context.Context, run domain.RunRecord) error {
	s.runs[run.RunID] = run
	return nil
}

func (s *fakeStore) GetRun(_ context.Context, id string) (domain.RunRecord, error) {
	run, ok := s.runs[id]
	if !ok {
		return domain.RunRecord{}, domain.ErrNotFound
	}
	return run, nil
}

func TestStoreSink(t *testing.T) {
	store := &fakeStore{runs: map[string]domain.RunRecord{}}
	r := newTestRecorder(WithSink(domain.SavePostgres, StoreSink{Store: store}))
	logAll(t, r, 4)
	require.NoError(t, r.Save(context.Background(), &domain.SaveData{Format: domain.SavePostgres}))

	run, err := store.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Len(t, run.Steps, 1)

	assert.Error(t, StoreSink{}.Save(context.Background(), run, ""))
}

type fakeBlobs struct {
	puts map[string]string
	ct   map[string]string
}

func (b *fakeBlobs) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.puts[path] = string(raw)
	b.ct[path] = contentType
	return nil
}

func (b *fakeBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return b.Put(ctx, path, data, "multipart")
}

func TestBlobSink(t *testing.T) {
	blobs := &fakeBlobs{puts: map[string]string{}, ct: map[string]string{}}
	r := newTestRecorder(WithSink(domain.SaveS3, BlobSink{Writer: blobs}))
	logAll(t, r, 1)

	require.NoError(t, r.Save(context.Background(), &domain.SaveData{Format: domain.SaveS3}))
	assert.Equal(t, "application/json", blobs.ct["run-1.json"])
	assert.Contains(t, blobs.puts["run-1.json"], `"run_id":"run-1"`)

	require.NoError(t, r.Save(context.Background(), &domain.SaveData{Format: domain.SaveS3, Target: "runs/one.csv"}))
	assert.Equal(t, "text/csv", blobs.ct["runs/one.csv"])
	assert.Contains(t, blobs.puts["runs/one.csv"], "run_id,step,value,logged_at")

	assert.Error(t, BlobSink{}.Save(context.Background(), domain.RunRecord{}, ""))
}
