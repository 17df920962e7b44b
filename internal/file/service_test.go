package file

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fileversion/service/internal/history"
	"github.com/fileversion/service/internal/metrics"
	"github.com/fileversion/service/internal/storage"
)

// journal records the order in which store and ledger calls happen.
type journal struct {
	mu     sync.Mutex
	events []string
}

func (j *journal) add(event string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, event)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.events...)
}

type memGateway struct {
	journal   *journal
	mu        sync.Mutex
	objects   map[string][]byte
	putErr    error
	getErr    error
	removeErr error
}

func newMemGateway(j *journal) *memGateway {
	return &memGateway{journal: j, objects: make(map[string][]byte)}
}

func (g *memGateway) EnsureBucket(context.Context, string) error { return nil }

func (g *memGateway) Put(_ context.Context, key string, r io.Reader, size int64) error {
	if g.putErr != nil {
		return g.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return fmt.Errorf("short body: got %d bytes, want %d", len(data), size)
	}
	g.mu.Lock()
	g.objects[key] = data
	g.mu.Unlock()
	g.journal.add("put " + key)
	return nil
}

func (g *memGateway) Get(_ context.Context, key string) (io.ReadCloser, error) {
	if g.getErr != nil {
		return nil, g.getErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	data, ok := g.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (g *memGateway) Remove(_ context.Context, key string) error {
	g.journal.add("remove " + key)
	if g.removeErr != nil {
		return g.removeErr
	}
	g.mu.Lock()
	delete(g.objects, key)
	g.mu.Unlock()
	return nil
}

type fakeLedger struct {
	journal *journal
	err     error
	mu      sync.Mutex
	records []history.Record
	ctxErrs []error
}

func (l *fakeLedger) RecordCreated(ctx context.Context, version string, userID int64) (*history.Record, error) {
	return l.append(ctx, version, history.ActionCreated, userID)
}

func (l *fakeLedger) RecordDeleted(ctx context.Context, version string, userID int64) (*history.Record, error) {
	return l.append(ctx, version, history.ActionDeleted, userID)
}

func (l *fakeLedger) append(ctx context.Context, version string, action history.Action, userID int64) (*history.Record, error) {
	l.journal.add(string(action) + " " + version)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ctxErrs = append(l.ctxErrs, ctx.Err())
	if l.err != nil {
		return nil, l.err
	}
	rec := history.Record{
		ID:        int64(len(l.records) + 1),
		Version:   version,
		Action:    action,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	}
	l.records = append(l.records, rec)
	return &rec, nil
}

type fixture struct {
	svc     *Service
	store   *memGateway
	ledger  *fakeLedger
	journal *journal
	metrics *metrics.FileMetrics
	logs    *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	j := &journal{}
	store := newMemGateway(j)
	ledger := &fakeLedger{journal: j}
	m := metrics.New(prometheus.NewRegistry())
	logs := &bytes.Buffer{}
	return &fixture{
		svc:     NewService(store, ledger, m, zerolog.New(logs)),
		store:   store,
		ledger:  ledger,
		journal: j,
		metrics: m,
		logs:    logs,
	}
}

func TestUploadRetrieveDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	content := []byte{0xDE, 0xAD, 0xBE, 0xEF}

	version, err := f.svc.Upload(ctx, bytes.NewReader(content), int64(len(content)), "a.png", 42)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(version, ".png"))
	assert.Len(t, version, 36+len(".png"))

	got, err := f.svc.Retrieve(ctx, version)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	require.NoError(t, f.svc.Delete(ctx, version, 42))

	_, err = f.svc.Retrieve(ctx, version)
	require.ErrorIs(t, err, ErrNotFound)
	assert.EqualError(t, err, fmt.Sprintf("file version '%s' not found", version))

	assert.Equal(t, []string{
		"put " + version,
		"created " + version,
		"deleted " + version,
		"remove " + version,
	}, f.journal.list())

	require.Len(t, f.ledger.records, 2)
	assert.Equal(t, history.ActionCreated, f.ledger.records[0].Action)
	assert.Equal(t, history.ActionDeleted, f.ledger.records[1].Action)
	for _, rec := range f.ledger.records {
		assert.Equal(t, version, rec.Version)
		assert.Equal(t, int64(42), rec.UserID)
	}
}

func TestUploadRoundTripSizes(t *testing.T) {
	large := make([]byte, 5<<20)
	_, err := rand.Read(large)
	require.NoError(t, err)

	tests := []struct {
		name    string
		content []byte
	}{
		{name: "empty", content: []byte{}},
		{name: "single byte", content: []byte{0x7f}},
		{name: "multi megabyte", content: large},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			version, err := f.svc.Upload(ctx, bytes.NewReader(tt.content), int64(len(tt.content)), "blob.bin", 7)
			require.NoError(t, err)

			got, err := f.svc.Retrieve(ctx, version)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(tt.content, got))
		})
	}
}

func TestUploadVersionExtension(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		wantExt string
	}{
		{name: "simple", file: "a.png", wantExt: ".png"},
		{name: "last extension wins", file: "archive.tar.gz", wantExt: ".gz"},
		{name: "no extension", file: "README", wantExt: ""},
		{name: "dotted directory", file: "dir.v2/notes", wantExt: ""},
		{name: "empty name", file: "", wantExt: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			version, err := f.svc.Upload(context.Background(), strings.NewReader("x"), 1, tt.file, 1)
			require.NoError(t, err)
			assert.Len(t, version, 36+len(tt.wantExt))
			assert.True(t, strings.HasSuffix(version, tt.wantExt))
		})
	}
}

func TestUploadVersionsAreUnique(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 10000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		version, err := f.svc.Upload(ctx, strings.NewReader(""), 0, "same.txt", 1)
		require.NoError(t, err)
		_, dup := seen[version]
		require.False(t, dup, "duplicate version %s", version)
		seen[version] = struct{}{}
	}
}

func TestUploadCommitFailure(t *testing.T) {
	f := newFixture(t)
	f.store.putErr = errors.New("connection reset")

	_, err := f.svc.Upload(context.Background(), strings.NewReader("x"), 1, "a.txt", 1)
	require.Error(t, err)
	assert.Empty(t, f.ledger.records, "no created record without a committed object")
	assert.Empty(t, f.journal.list())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.OperationsTotal.WithLabelValues(opUpload, metrics.ResultError)))
}

func TestUploadAuditFailureStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.ledger.err = errors.New("database is down")
	ctx := context.Background()

	version, err := f.svc.Upload(ctx, strings.NewReader("payload"), 7, "a.txt", 3)
	require.NoError(t, err)

	got, err := f.svc.Retrieve(ctx, version)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	assert.Contains(t, f.logs.String(), `"event_type":"audit_write_failure"`)
	assert.Contains(t, f.logs.String(), `"action":"created"`)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.AuditWriteFailures.WithLabelValues("created")))
}

func TestUploadAuditSurvivesCancelledRequest(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Upload(ctx, strings.NewReader("x"), 1, "a.txt", 1)
	require.NoError(t, err)
	require.Len(t, f.ledger.ctxErrs, 1)
	assert.NoError(t, f.ledger.ctxErrs[0])
	assert.Len(t, f.ledger.records, 1)
}

func TestRetrieveMissing(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Retrieve(context.Background(), "missing.png")
	require.ErrorIs(t, err, ErrNotFound)

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing.png", notFound.Version)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.OperationsTotal.WithLabelValues(opRetrieve, metrics.ResultNotFound)))
}

func TestRetrieveStorageFailure(t *testing.T) {
	f := newFixture(t)
	f.store.getErr = fmt.Errorf("%w: dial tcp: refused", storage.ErrUnavailable)

	_, err := f.svc.Retrieve(context.Background(), "a.png")
	require.ErrorIs(t, err, ErrRetrieveFailed)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}

func TestEmptyVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Retrieve(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidVersion)

	err = f.svc.Delete(ctx, "", 1)
	assert.ErrorIs(t, err, ErrInvalidVersion)

	assert.Empty(t, f.journal.list())
}

func TestDeleteIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	version, err := f.svc.Upload(ctx, strings.NewReader("x"), 1, "a.txt", 5)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, version, 5))
	require.NoError(t, f.svc.Delete(ctx, version, 5))
	require.NoError(t, f.svc.Delete(ctx, "never-uploaded.txt", 5))

	var deleted int
	for _, rec := range f.ledger.records {
		if rec.Action == history.ActionDeleted {
			deleted++
		}
	}
	assert.Equal(t, 3, deleted)
}

func TestDeleteAuditFailureStillRemoves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	version, err := f.svc.Upload(ctx, strings.NewReader("x"), 1, "a.txt", 5)
	require.NoError(t, err)

	f.ledger.err = errors.New("database is down")
	require.NoError(t, f.svc.Delete(ctx, version, 5))

	_, err = f.svc.Retrieve(ctx, version)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, f.logs.String(), `"action":"deleted"`)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.AuditWriteFailures.WithLabelValues("deleted")))
}

func TestDeleteRemoveFailure(t *testing.T) {
	f := newFixture(t)
	f.store.removeErr = errors.New("access denied")

	err := f.svc.Delete(context.Background(), "a.txt", 9)
	require.Error(t, err)

	// The deleted record precedes the failed removal.
	assert.Equal(t, []string{"deleted a.txt", "remove a.txt"}, f.journal.list())
	assert.Len(t, f.ledger.records, 1)
}
