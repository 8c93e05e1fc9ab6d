package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/docingest/internal/common"
	"github.com/dmitrijs2005/docingest/internal/server/embedding"
	"github.com/dmitrijs2005/docingest/internal/server/models"
	"github.com/dmitrijs2005/docingest/internal/server/screening"
	"github.com/dmitrijs2005/docingest/internal/server/staging"
	"github.com/dmitrijs2005/docingest/internal/server/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helloSHA256 = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

type fixture struct {
	p     *Pipeline
	area  *staging.Area
	store *store.Memory
}

func newFixture(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()
	area, err := staging.New(filepath.Join(t.TempDir(), "staging"))
	require.NoError(t, err)
	mem := store.NewMemory("test")

	d := Deps{
		Embedder: embedding.NewHashing(),
		Store:    mem,
		Staging:  area,
		Now:      func() time.Time { return fixedNow },
	}
	if mutate != nil {
		mutate(&d)
	}
	p, err := New(d, Options{Environment: "test"})
	require.NoError(t, err)
	return &fixture{p: p, area: area, store: mem}
}

func countAudit(entries []models.AuditEntry, status string) int {
	n := 0
	for _, e := range entries {
		if e.Status == status {
			n++
		}
	}
	return n
}

func TestNew_RequiresStoreAndStaging(t *testing.T) {
	_, err := New(Deps{}, Options{})
	require.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = New(Deps{Store: store.NewMemory("x")}, Options{})
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestIngest_EndToEndAndIdempotence(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first := f.p.IngestReader(ctx, strings.NewReader("hello"), Request{OriginalName: "a.txt"})
	require.True(t, first.Success, first.Message)
	require.NotNil(t, first.RecordID)
	assert.Equal(t, common.ScreenClean, first.ScreenStatus)

	recs := f.store.Records()
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, helloSHA256, rec.Fingerprint)
	assert.Equal(t, helloSHA256+"_a.txt", rec.StoredName)
	assert.Equal(t, "a.txt", rec.OriginalName)
	assert.Equal(t, "text/plain", rec.MediaType)
	assert.Equal(t, int64(5), rec.ByteSize)
	assert.Equal(t, "hello", rec.TextContent)
	assert.Equal(t, common.ScreenClean, rec.ScreenStatus)
	assert.Equal(t, DefaultCategory, rec.Category)
	assert.Equal(t, common.SourceUpload, rec.SourceKind)
	assert.Equal(t, DefaultCreatedBy, rec.CreatedBy)
	assert.Equal(t, fixedNow, rec.ScreenedAt)
	assert.Equal(t, "test", rec.Metadata["environment"])
	assert.Len(t, rec.Embedding, embedding.Dimension)
	assert.Empty(t, rec.BlobLocation)
	assert.True(t, f.area.Exists(f.area.Path(staging.Processed, rec.StoredName)))

	second := f.p.IngestReader(ctx, strings.NewReader("hello"), Request{OriginalName: "b.txt"})
	require.True(t, second.Success, second.Message)
	assert.Equal(t, *first.RecordID, *second.RecordID)

	recs = f.store.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "a.txt", recs[0].OriginalName)

	audit := f.store.AuditEntries()
	assert.Equal(t, 1, countAudit(audit, common.AuditSuccess))
	assert.Equal(t, 1, countAudit(audit, common.AuditDuplicate))
	assert.True(t, f.area.Exists(f.area.Path(staging.Processed, helloSHA256+"_b.txt")))
}

func TestIngest_QuarantinesRejectedContent(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Screener = screening.NewPolicyScreener(3, nil) })
	ctx := context.Background()
	before := testutil.ToFloat64(ingestTotal.WithLabelValues(outcomeQuarantined))

	path, err := f.area.Receive(strings.NewReader("hello"), "a.txt")
	require.NoError(t, err)

	res := f.p.Ingest(ctx, Request{Path: path, OriginalName: "a.txt"})
	assert.False(t, res.Success)
	assert.Nil(t, res.RecordID)
	assert.Equal(t, common.ScreenInfected, res.ScreenStatus)
	assert.Equal(t, "File quarantined: too large", res.Message)
	assert.ErrorIs(t, res.Err, common.ErrRejectedContent)

	assert.False(t, f.area.Exists(path))
	assert.True(t, f.area.Exists(f.area.Path(staging.Quarantine, helloSHA256+"_a.txt")))
	assert.Empty(t, f.store.Records())

	audit := f.store.AuditEntries()
	require.Len(t, audit, 1)
	assert.Equal(t, common.ActionFileRejected, audit[0].Action)
	assert.Equal(t, common.AuditRejected, audit[0].Status)
	assert.Nil(t, audit[0].RecordID)
	assert.Contains(t, audit[0].Message, "too large")

	assert.Equal(t, before+1, testutil.ToFloat64(ingestTotal.WithLabelValues(outcomeQuarantined)))
}

func TestIngest_DegradedEmbeddingStillSucceeds(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Embedder = embedding.Unavailable{Reason: "model missing"} })

	res := f.p.IngestReader(context.Background(), strings.NewReader("hello"), Request{OriginalName: "a.txt"})
	require.True(t, res.Success, res.Message)

	recs := f.store.Records()
	require.Len(t, recs, 1)
	assert.False(t, recs[0].HasEmbedding())
}

type panickyEmbedder struct{ embedding.Generator }

func (panickyEmbedder) Available() bool { return true }
func (panickyEmbedder) Dimension() int  { return embedding.Dimension }
func (panickyEmbedder) Embed(context.Context, string) embedding.Result {
	panic("model crashed")
}

func TestIngest_GuardedEmbedderPanicDoesNotFailIngest(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Embedder = embedding.Guard(panickyEmbedder{}) })

	res := f.p.IngestReader(context.Background(), strings.NewReader("hello"), Request{OriginalName: "a.txt"})
	require.True(t, res.Success, res.Message)
	assert.False(t, f.store.Records()[0].HasEmbedding())
}

func TestIngest_BinaryGetsPlaceholder(t *testing.T) {
	f := newFixture(t, nil)

	res := f.p.IngestReader(context.Background(), strings.NewReader("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n"), Request{OriginalName: "r.pdf", Category: "report"})
	require.True(t, res.Success, res.Message)

	rec := f.store.Records()[0]
	assert.Equal(t, "application/pdf", rec.MediaType)
	assert.Equal(t, "[PDF content from r.pdf]", rec.TextContent)
	assert.Equal(t, "report", rec.Category)
}

type fakeSink struct {
	keys []string
	err  error
}

func (s *fakeSink) Enabled() bool { return true }
func (s *fakeSink) Put(_ context.Context, key string, r io.Reader, size int64) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if int64(len(b)) != size {
		return "", fmt.Errorf("size mismatch: %d != %d", len(b), size)
	}
	s.keys = append(s.keys, key)
	return "http://minio:9000/ingest/" + key, nil
}

func TestIngest_UploadsToBlobSink(t *testing.T) {
	sink := &fakeSink{}
	f := newFixture(t, func(d *Deps) { d.Blobs = sink })

	res := f.p.IngestReader(context.Background(), strings.NewReader("hello"), Request{OriginalName: "a.txt"})
	require.True(t, res.Success, res.Message)

	wantKey := "test/2026/01/02/" + helloSHA256 + "_a.txt"
	assert.Equal(t, []string{wantKey}, sink.keys)
	assert.Equal(t, "http://minio:9000/ingest/"+wantKey, f.store.Records()[0].BlobLocation)
}

func TestIngest_BlobSinkFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Blobs = &fakeSink{err: common.ErrBlobSinkUnavailable} })

	res := f.p.IngestReader(context.Background(), strings.NewReader("hello"), Request{OriginalName: "a.txt"})
	require.True(t, res.Success, res.Message)
	assert.Empty(t, f.store.Records()[0].BlobLocation)
}

type failingGateway struct {
	*store.Memory
	upsertErr error
	findErr   error
	upsertID  int64
}

func (g *failingGateway) FindByFingerprint(ctx context.Context, fp string) (*models.FileRecord, error) {
	if g.findErr != nil {
		return nil, g.findErr
	}
	return g.Memory.FindByFingerprint(ctx, fp)
}

func (g *failingGateway) Upsert(ctx context.Context, rec *models.FileRecord) (int64, bool, error) {
	if g.upsertErr != nil {
		return 0, false, g.upsertErr
	}
	if g.upsertID != 0 {
		return g.upsertID, false, nil
	}
	return g.Memory.Upsert(ctx, rec)
}

func TestIngest_PersistenceFailureLeavesBytesInIncoming(t *testing.T) {
	gw := &failingGateway{Memory: store.NewMemory("test"), upsertErr: fmt.Errorf("%w: connection refused", common.ErrStoreFailure)}
	f := newFixture(t, func(d *Deps) { d.Store = gw })

	path, err := f.area.Receive(strings.NewReader("hello"), "a.txt")
	require.NoError(t, err)

	res := f.p.Ingest(context.Background(), Request{Path: path, OriginalName: "a.txt"})
	assert.False(t, res.Success)
	assert.Nil(t, res.RecordID)
	assert.Contains(t, res.Message, "Database storage failed")
	assert.Contains(t, res.Message, "connection refused")
	assert.ErrorIs(t, res.Err, common.ErrStoreFailure)
	assert.True(t, f.area.Exists(path))

	audit := gw.AuditEntries()
	require.Len(t, audit, 1)
	assert.Equal(t, common.ActionFileProcessing, audit[0].Action)
	assert.Equal(t, common.AuditFailed, audit[0].Status)
}

func TestIngest_DedupLookupFailure(t *testing.T) {
	gw := &failingGateway{Memory: store.NewMemory("test"), findErr: fmt.Errorf("%w: timeout", common.ErrStoreFailure)}
	f := newFixture(t, func(d *Deps) { d.Store = gw })

	path, err := f.area.Receive(strings.NewReader("hello"), "a.txt")
	require.NoError(t, err)

	res := f.p.Ingest(context.Background(), Request{Path: path, OriginalName: "a.txt"})
	assert.False(t, res.Success)
	assert.True(t, f.area.Exists(path))
	assert.Empty(t, gw.Records())
}

func TestIngest_LostInsertRaceReportsWinner(t *testing.T) {
	gw := &failingGateway{Memory: store.NewMemory("test"), upsertID: 7}
	f := newFixture(t, func(d *Deps) { d.Store = gw })

	res := f.p.IngestReader(context.Background(), strings.NewReader("hello"), Request{OriginalName: "a.txt"})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, int64(7), *res.RecordID)
	assert.Equal(t, 1, countAudit(gw.AuditEntries(), common.AuditDuplicate))
}

type brokenMover struct {
	*staging.Area
}

func (b brokenMover) MoveTo(ctx context.Context, path string, z staging.Zone, storedName string) (string, error) {
	return "", fmt.Errorf("%w: disk full", common.ErrStagingIO)
}

func TestIngest_MoveFailureAfterPersistence(t *testing.T) {
	var area *staging.Area
	f := newFixture(t, func(d *Deps) {
		area = d.Staging.(*staging.Area)
		d.Staging = brokenMover{Area: area}
	})

	path, err := area.Receive(strings.NewReader("hello"), "a.txt")
	require.NoError(t, err)

	res := f.p.Ingest(context.Background(), Request{Path: path, OriginalName: "a.txt"})
	assert.False(t, res.Success)
	require.NotNil(t, res.RecordID)
	assert.Contains(t, res.Message, "disk full")
	assert.True(t, area.Exists(path))
	assert.Len(t, f.store.Records(), 1)
}

func TestIngest_MissingFile(t *testing.T) {
	f := newFixture(t, nil)

	res := f.p.Ingest(context.Background(), Request{Path: filepath.Join(t.TempDir(), "gone"), OriginalName: "gone"})
	assert.False(t, res.Success)
	assert.Equal(t, common.ScreenPending, res.ScreenStatus)
	assert.True(t, strings.HasPrefix(res.Message, "Processing failed"))
}

func TestIngest_ConcurrentIdenticalUploadsShareOneRecord(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	const n = 8
	results := make([]models.PipelineResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.p.IngestReader(ctx, strings.NewReader("same bytes"), Request{OriginalName: fmt.Sprintf("copy%d.txt", i)})
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		require.True(t, r.Success, r.Message)
		assert.Equal(t, *results[0].RecordID, *r.RecordID)
	}
	assert.Len(t, f.store.Records(), 1)
	assert.Equal(t, 1, countAudit(f.store.AuditEntries(), common.AuditSuccess))
}

func TestStoredName(t *testing.T) {
	assert.Equal(t, "abc_my_file.txt", StoredName("abc", "../my file.txt"))
}

func TestSubmitForm(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	form := Form{Organization: "Acme Corp", Email: "ops@acme.test", Description: "Need onboarding"}

	res, err := f.p.SubmitForm(ctx, form)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "Form submitted successfully", res.Message)

	rec := f.store.Records()[0]
	assert.Equal(t, common.SourceFormSubmission, rec.SourceKind)
	assert.Equal(t, CategoryFormData, rec.Category)
	assert.Equal(t, "ops@acme.test", rec.CreatedBy)
	assert.Equal(t, fmt.Sprintf("form_%d_acme_corp.txt", fixedNow.Unix()), rec.StoredName)
	assert.Equal(t, "form_submission_Acme Corp", rec.OriginalName)
	assert.Equal(t, "Organization: Acme Corp\nEmail: ops@acme.test\nDescription: Need onboarding", rec.TextContent)
	assert.Equal(t, "Acme Corp", rec.Metadata["organization"])
	assert.True(t, rec.HasEmbedding())

	again, err := f.p.SubmitForm(ctx, form)
	require.NoError(t, err)
	assert.Equal(t, *res.RecordID, *again.RecordID)
	assert.Len(t, f.store.Records(), 1)
}

func TestSubmitForm_Validation(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.p.SubmitForm(context.Background(), Form{Organization: "Acme", Email: " "})
	require.ErrorIs(t, err, common.ErrInvalidInput)
	assert.Empty(t, f.store.Records())
}

func TestSubmitForm_StoreFailure(t *testing.T) {
	gw := &failingGateway{Memory: store.NewMemory("test"), upsertErr: common.ErrStoreFailure}
	f := newFixture(t, func(d *Deps) { d.Store = gw })

	_, err := f.p.SubmitForm(context.Background(), Form{Organization: "a", Email: "b", Description: "c"})
	require.True(t, errors.Is(err, common.ErrStoreFailure))
}

func TestIngestReader_StagingFailure(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, os.RemoveAll(f.area.Root()))

	res := f.p.IngestReader(context.Background(), strings.NewReader("x"), Request{OriginalName: "a.txt"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "staging io failure")
}

func TestIngest_LongOriginalNameReachesProcessed(t *testing.T) {
	f := newFixture(t, nil)
	name := strings.Repeat("n", 246) + ".txt"

	res := f.p.IngestReader(context.Background(), strings.NewReader("hello"), Request{OriginalName: name})
	require.True(t, res.Success, res.Message)

	recs := f.store.Records()
	require.Len(t, recs, 1)
	assert.LessOrEqual(t, len(recs[0].StoredName), 255)
	assert.True(t, strings.HasSuffix(recs[0].StoredName, ".txt"))
	assert.Equal(t, name, recs[0].OriginalName)
	assert.True(t, f.area.Exists(f.area.Path(staging.Processed, recs[0].StoredName)))

	again := f.p.IngestReader(context.Background(), strings.NewReader("hello"), Request{OriginalName: name})
	require.True(t, again.Success, again.Message)
	assert.Equal(t, *res.RecordID, *again.RecordID)
}

func TestIngest_LongOriginalNameIsQuarantined(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Screener = screening.NewPolicyScreener(1, nil) })
	name := strings.Repeat("n", 246) + ".txt"

	res := f.p.IngestReader(context.Background(), strings.NewReader("hello"), Request{OriginalName: name})
	assert.Equal(t, "File quarantined: too large", res.Message)
	assert.True(t, f.area.Exists(f.area.Path(staging.Quarantine, StoredName(helloSHA256, name))))
}

// ctxGateway records the context state seen by the store.
type ctxGateway struct {
	*store.Memory
	mu   sync.Mutex
	errs []error
}

func (g *ctxGateway) Upsert(ctx context.Context, rec *models.FileRecord) (int64, bool, error) {
	g.mu.Lock()
	g.errs = append(g.errs, ctx.Err())
	g.mu.Unlock()
	return g.Memory.Upsert(ctx, rec)
}

func (g *ctxGateway) AppendAudit(ctx context.Context, e *models.AuditEntry) error {
	g.mu.Lock()
	g.errs = append(g.errs, ctx.Err())
	g.mu.Unlock()
	return g.Memory.AppendAudit(ctx, e)
}

func TestIngest_CancelledContextRunsToCompletion(t *testing.T) {
	gw := &ctxGateway{Memory: store.NewMemory("test")}
	f := newFixture(t, func(d *Deps) { d.Store = gw })
	f.store = gw.Memory
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.p.IngestReader(ctx, strings.NewReader("hello"), Request{OriginalName: "a.txt"})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "File processed successfully", res.Message)

	recs := f.store.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "hello", recs[0].TextContent)
	assert.Len(t, recs[0].Embedding, embedding.Dimension)
	assert.True(t, f.area.Exists(f.area.Path(staging.Processed, recs[0].StoredName)))

	form, err := f.p.SubmitForm(ctx, Form{Organization: "Acme", Email: "a@acme.io", Description: "hi"})
	require.NoError(t, err)
	assert.True(t, form.Success)

	gw.mu.Lock()
	defer gw.mu.Unlock()
	require.NotEmpty(t, gw.errs)
	for _, err := range gw.errs {
		assert.NoError(t, err)
	}
}
