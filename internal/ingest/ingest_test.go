package ingest_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weatherpipe/internal/domain"
	"weatherpipe/internal/ingest"
	"weatherpipe/internal/observability"
	"weatherpipe/internal/store/memory"
)

// --- mocks ---

type capturingFeed struct {
	batches [][]domain.Observation
	err     error
}

func (f *capturingFeed) PublishBatch(_ context.Context, obs []domain.Observation) error {
	if f.err != nil {
		return f.err
	}
	cp := make([]domain.Observation, len(obs))
	copy(cp, obs)
	f.batches = append(f.batches, cp)
	return nil
}

// flakyStore fails the first failFirst observation upserts, then behaves
// like the wrapped store.
type flakyStore struct {
	*memory.Store
	failFirst int
	calls     int
}

func (s *flakyStore) UpsertObservations(ctx context.Context, obs []domain.Observation) error {
	s.calls++
	if s.calls <= s.failFirst {
		return errors.New("deadlock detected")
	}
	return s.Store.UpsertObservations(ctx, obs)
}

// --- helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newIngester(t *testing.T, st ingest.Store, feed ingest.Publisher, opts ingest.Options) *ingest.Ingester {
	t.Helper()
	ing, err := ingest.New(st, feed, testLogger(), observability.NewMetrics(), opts)
	require.NoError(t, err)
	return ing
}

func writeObsFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func intp(v int) *int { return &v }

// --- tests ---

func TestIngester_Run_LoadsFiles(t *testing.T) {
	dir := t.TempDir()
	writeObsFile(t, dir, "USC00110072.txt",
		"19850601\t289\t178\t25\n"+
			"19850602\t212\t-9999\t0\n"+
			"not a data line\n")
	writeObsFile(t, dir, "USC00257715.txt",
		"20141231\t-83\t-161\t-9999\n")

	st := memory.New()
	ing := newIngester(t, st, nil, ingest.Options{Dir: dir})

	summary, err := ing.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.FilesScanned)
	assert.Equal(t, 2, summary.FilesLoaded)
	assert.Equal(t, 0, summary.FilesSkipped)
	assert.Equal(t, 0, summary.FilesFailed)
	assert.False(t, summary.Failed())
	assert.Equal(t, 4, summary.LinesRead)
	assert.Equal(t, 3, summary.Records.Succeeded)
	assert.Equal(t, 1, summary.Records.Failed)
	assert.Equal(t, map[domain.RejectReason]int{domain.RejectBadDate: 1}, summary.Reasons)

	counts, err := st.ObservationCountsByStation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"USC00110072": 2, "USC00257715": 1}, counts)

	rec, err := st.GetFileRecord(context.Background(), "USC00110072.txt")
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Lines)
	assert.Equal(t, 2, rec.Records)
	assert.Equal(t, 1, rec.Rejected)

	got, err := st.ObservationsForStationYear(context.Background(), "USC00110072", 1985)
	require.NoError(t, err)
	want := []domain.Observation{
		{
			StationID:     "USC00110072",
			Date:          time.Date(1985, 6, 1, 0, 0, 0, 0, time.UTC),
			MaxTempTenths: intp(289),
			MinTempTenths: intp(178),
			PrecipTenths:  intp(25),
		},
		{
			StationID:     "USC00110072",
			Date:          time.Date(1985, 6, 2, 0, 0, 0, 0, time.UTC),
			MaxTempTenths: intp(212),
			PrecipTenths:  intp(0),
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("stored observations mismatch (-want +got):\n%s", diff)
	}

	stations, err := st.StationIDs(context.Background())
	require.NoError(t, err)
	assert.Contains(t, stations, "USC00110072")
	assert.Contains(t, stations, "USC00257715")
}

func TestIngester_Run_DuplicateDatesOverwrite(t *testing.T) {
	dir := t.TempDir()
	writeObsFile(t, dir, "USC00110072.txt",
		"19850601\t100\t50\t0\n"+
			"19850601\t289\t178\t25\n")

	st := memory.New()
	ing := newIngester(t, st, nil, ingest.Options{Dir: dir})

	_, err := ing.Run(context.Background())
	require.NoError(t, err)

	got, err := st.ObservationsForStationYear(context.Background(), "USC00110072", 1985)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 289, *got[0].MaxTempTenths)
}

func TestIngester_Run_ChecksumSkip(t *testing.T) {
	dir := t.TempDir()
	writeObsFile(t, dir, "USC00110072.txt", "19850601\t289\t178\t25\n")

	st := memory.New()

	first, err := newIngester(t, st, nil, ingest.Options{Dir: dir}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.FilesLoaded)

	second, err := newIngester(t, st, nil, ingest.Options{Dir: dir}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.FilesLoaded)
	assert.Equal(t, 1, second.FilesSkipped)

	// A changed file is picked up again.
	writeObsFile(t, dir, "USC00110072.txt", "19850601\t289\t178\t25\n19850602\t300\t200\t0\n")
	third, err := newIngester(t, st, nil, ingest.Options{Dir: dir}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, third.FilesLoaded)

	counts, err := st.ObservationCountsByStation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["USC00110072"])
}

func TestIngester_Run_Reprocess(t *testing.T) {
	dir := t.TempDir()
	writeObsFile(t, dir, "USC00110072.txt", "19850601\t289\t178\t25\n")

	st := memory.New()

	_, err := newIngester(t, st, nil, ingest.Options{Dir: dir}).Run(context.Background())
	require.NoError(t, err)

	summary, err := newIngester(t, st, nil, ingest.Options{Dir: dir, Reprocess: true}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FilesLoaded)
	assert.Equal(t, 0, summary.FilesSkipped)

	// Reloading the same data is idempotent.
	counts, err := st.ObservationCountsByStation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["USC00110072"])
}

func TestIngester_Run_DryRun(t *testing.T) {
	dir := t.TempDir()
	writeObsFile(t, dir, "USC00110072.txt", "19850601\t289\t178\t25\nbad line\n")

	st := memory.New()
	ing := newIngester(t, st, nil, ingest.Options{Dir: dir, DryRun: true})

	summary, err := ing.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FilesLoaded)
	assert.Equal(t, 1, summary.Records.Succeeded)
	assert.Equal(t, 1, summary.Records.Failed)

	counts, err := st.ObservationCountsByStation(context.Background())
	require.NoError(t, err)
	assert.Empty(t, counts)

	_, err = st.GetFileRecord(context.Background(), "USC00110072.txt")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIngester_Run_Clear(t *testing.T) {
	dirA := t.TempDir()
	writeObsFile(t, dirA, "USC00110072.txt", "19850601\t289\t178\t25\n")

	st := memory.New()
	_, err := newIngester(t, st, nil, ingest.Options{Dir: dirA}).Run(context.Background())
	require.NoError(t, err)

	dirB := t.TempDir()
	writeObsFile(t, dirB, "USC00257715.txt", "20141231\t-83\t-161\t0\n")

	_, err = newIngester(t, st, nil, ingest.Options{Dir: dirB, Clear: true}).Run(context.Background())
	require.NoError(t, err)

	counts, err := st.ObservationCountsByStation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"USC00257715": 1}, counts)

	// The old file's log entry is gone with the clear.
	_, err = st.GetFileRecord(context.Background(), "USC00110072.txt")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIngester_Run_UnreadableFile(t *testing.T) {
	dir := t.TempDir()
	writeObsFile(t, dir, "USC00110072.txt", "19850601\t289\t178\t25\n")
	// A directory matching the glob cannot be read as a file.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "USC00999999.txt"), 0o755))

	st := memory.New()
	ing := newIngester(t, st, nil, ingest.Options{Dir: dir})

	summary, err := ing.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.FilesScanned)
	assert.Equal(t, 1, summary.FilesLoaded)
	assert.Equal(t, 1, summary.FilesFailed)
	assert.True(t, summary.Failed())

	counts, err := st.ObservationCountsByStation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["USC00110072"])
}

func TestIngester_Run_BatchFlushing(t *testing.T) {
	dir := t.TempDir()
	writeObsFile(t, dir, "USC00110072.txt",
		"19850601\t289\t178\t25\n"+
			"19850602\t290\t179\t0\n"+
			"19850603\t291\t180\t0\n"+
			"19850604\t292\t181\t0\n"+
			"19850605\t293\t182\t0\n")

	st := memory.New()
	feed := &capturingFeed{}
	ing := newIngester(t, st, feed, ingest.Options{Dir: dir, BatchSize: 2})

	_, err := ing.Run(context.Background())
	require.NoError(t, err)

	counts, err := st.ObservationCountsByStation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), counts["USC00110072"])

	require.Len(t, feed.batches, 3)
	assert.Len(t, feed.batches[0], 2)
	assert.Len(t, feed.batches[1], 2)
	assert.Len(t, feed.batches[2], 1)
}

func TestIngester_Run_BatchFailureContinues(t *testing.T) {
	dir := t.TempDir()
	writeObsFile(t, dir, "USC00110072.txt",
		"19850601\t289\t178\t25\n"+
			"19850602\t290\t179\t0\n"+
			"19850603\t291\t180\t0\n"+
			"19850604\t292\t181\t0\n"+
			"19850605\t293\t182\t0\n")

	st := &flakyStore{Store: memory.New(), failFirst: 1}
	ing := newIngester(t, st, nil, ingest.Options{Dir: dir, BatchSize: 2})

	summary, err := ing.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FilesLoaded)
	assert.Equal(t, 1, summary.BatchesFailed)
	assert.True(t, summary.Failed())

	// The two records in the failed batch are lost; the rest landed.
	counts, err := st.ObservationCountsByStation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts["USC00110072"])

	// The file stays out of the log so a later run retries it.
	_, err = st.GetFileRecord(context.Background(), "USC00110072.txt")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIngester_Run_CustomPattern(t *testing.T) {
	dir := t.TempDir()
	writeObsFile(t, dir, "USW00094846.txt", "19850601\t289\t178\t25\n")
	writeObsFile(t, dir, "USC00110072.txt", "19850601\t289\t178\t25\n")

	st := memory.New()
	ing := newIngester(t, st, nil, ingest.Options{Dir: dir, Pattern: "USW*.txt"})

	summary, err := ing.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FilesScanned)

	stations, err := st.StationIDs(context.Background())
	require.NoError(t, err)
	assert.Contains(t, stations, "USW00094846")
	assert.NotContains(t, stations, "USC00110072")
}

func TestIngester_Run_FeedFailureDoesNotFailFile(t *testing.T) {
	dir := t.TempDir()
	writeObsFile(t, dir, "USC00110072.txt", "19850601\t289\t178\t25\n")

	st := memory.New()
	feed := &capturingFeed{err: errors.New("broker unavailable")}
	ing := newIngester(t, st, feed, ingest.Options{Dir: dir})

	summary, err := ing.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FilesLoaded)
	assert.False(t, summary.Failed())

	counts, err := st.ObservationCountsByStation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["USC00110072"])
}

func TestIngester_Run_NoFiles(t *testing.T) {
	st := memory.New()
	ing := newIngester(t, st, nil, ingest.Options{Dir: t.TempDir()})

	summary, err := ing.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.FilesScanned)
	assert.False(t, summary.Failed())
}

func TestIngester_Run_ContextCancelled(t *testing.T) {
	dir := t.TempDir()
	writeObsFile(t, dir, "USC00110072.txt", "19850601\t289\t178\t25\n")

	st := memory.New()
	ing := newIngester(t, st, nil, ingest.Options{Dir: dir})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ing.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	counts, err := st.ObservationCountsByStation(context.Background())
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name        string
		opts        ingest.Options
		wantErr     string
		want        int
		wantPattern string
	}{
		{name: "defaults batch size and pattern", opts: ingest.Options{Dir: "data"}, want: 1000, wantPattern: "USC*.txt"},
		{name: "keeps explicit settings", opts: ingest.Options{Dir: "data", BatchSize: 250, Pattern: "USW*.txt"}, want: 250, wantPattern: "USW*.txt"},
		{name: "missing dir", opts: ingest.Options{}, wantErr: "data directory is required"},
		{name: "batch size too large", opts: ingest.Options{Dir: "data", BatchSize: 10001}, wantErr: "out of range"},
		{name: "negative batch size", opts: ingest.Options{Dir: "data", BatchSize: -1}, wantErr: "out of range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, tt.opts.BatchSize)
			assert.Equal(t, tt.wantPattern, tt.opts.Pattern)
		})
	}
}
