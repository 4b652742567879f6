package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facilityhub/permit-tracker/internal/async"
	"github.com/facilityhub/permit-tracker/internal/entity"
	"github.com/facilityhub/permit-tracker/internal/lifecycle"
	"github.com/facilityhub/permit-tracker/internal/pipeline"
)

type stubExtractor struct {
	rec pipeline.ExtractedRecord
	err error
}

func (s stubExtractor) Extract(context.Context, string) (pipeline.ExtractedRecord, error) {
	return s.rec, s.err
}

type captureCreator struct {
	inputs []lifecycle.CreateInput
	err    error
}

func (c *captureCreator) CreateFromRecord(_ context.Context, in lifecycle.CreateInput) (*entity.Permit, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.inputs = append(c.inputs, in)
	return &entity.Permit{ID: uuid.New(), FacilityID: in.FacilityID, Number: "TOB-2024-5"}, nil
}

func strp(s string) *string { return &s }

func dropFile(t *testing.T, dir, name string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))
	return path
}

func acceptedRecord() pipeline.ExtractedRecord {
	expiry := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	return pipeline.ExtractedRecord{
		LicenseType:   strp("Tobacco Retailer Permit"),
		LicenseNumber: strp("TOB-2024-5"),
		ExpiryDate:    &expiry,
	}
}

func TestHandleJob_AcceptedRecordCreatesPermitAndParksFile(t *testing.T) {
	root := t.TempDir()
	facilityID := uuid.New()
	path := dropFile(t, filepath.Join(root, facilityID.String()), "permit.pdf")

	creator := &captureCreator{}
	svc := NewService(stubExtractor{rec: acceptedRecord()}, creator, nil)

	err := svc.HandleJob(context.Background(), async.Job{Path: path, FacilityID: facilityID})
	require.NoError(t, err)

	require.Len(t, creator.inputs, 1)
	assert.Equal(t, facilityID, creator.inputs[0].FacilityID)
	assert.Equal(t, "permit.pdf", creator.inputs[0].SourceFilename)

	assert.NoFileExists(t, path)
	assert.FileExists(t, filepath.Join(root, facilityID.String(), dirProcessed, "permit.pdf"))
}

func TestHandleJob_ReviewRecordIsParkedNotPersisted(t *testing.T) {
	root := t.TempDir()
	facilityID := uuid.New()
	path := dropFile(t, filepath.Join(root, facilityID.String()), "blurry.pdf")

	creator := &captureCreator{}
	rec := pipeline.ExtractedRecord{NeedsReview: true, InferenceNotes: "no expiry date found, review required"}
	svc := NewService(stubExtractor{rec: rec}, creator, nil)

	err := svc.HandleJob(context.Background(), async.Job{Path: path, FacilityID: facilityID})
	require.NoError(t, err)

	assert.Empty(t, creator.inputs)
	assert.FileExists(t, filepath.Join(root, facilityID.String(), dirReview, "blurry.pdf"))
}

func TestHandleJob_ExtractionFailureParksUnderFailed(t *testing.T) {
	root := t.TempDir()
	facilityID := uuid.New()
	path := dropFile(t, filepath.Join(root, facilityID.String()), "broken.pdf")

	svc := NewService(stubExtractor{err: errors.New("model unavailable")}, &captureCreator{}, nil)

	err := svc.HandleJob(context.Background(), async.Job{Path: path, FacilityID: facilityID})
	require.Error(t, err)
	assert.FileExists(t, filepath.Join(root, facilityID.String(), dirFailed, "broken.pdf"))
}

func TestFacilityFromPath(t *testing.T) {
	root := t.TempDir()
	facilityID := uuid.New()

	got, err := FacilityFromPath(root, filepath.Join(root, facilityID.String(), "permit.pdf"))
	require.NoError(t, err)
	assert.Equal(t, facilityID, got)

	_, err = FacilityFromPath(root, filepath.Join(root, "not-a-uuid", "permit.pdf"))
	assert.Error(t, err)

	_, err = FacilityFromPath(root, filepath.Join(root, "permit.pdf"))
	assert.Error(t, err)

	_, err = FacilityFromPath(root, filepath.Join(root, facilityID.String(), "nested", "permit.pdf"))
	assert.Error(t, err)
}

func TestWatcher_EmitsDroppedDocuments(t *testing.T) {
	root := t.TempDir()
	facilityID := uuid.New()
	facilityDir := filepath.Join(root, facilityID.String())
	require.NoError(t, os.MkdirAll(facilityDir, 0o755))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := StartWatcher(ctx, WatchConfig{Root: root}, nil)
	require.NoError(t, err)

	path := filepath.Join(facilityDir, "permit.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))

	select {
	case got := <-events:
		assert.Equal(t, path, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no event for dropped document")
	}

	// A text file does not match the allowed extensions.
	require.NoError(t, os.WriteFile(filepath.Join(facilityDir, "notes.txt"), []byte("x"), 0o644))
	select {
	case got := <-events:
		t.Fatalf("unexpected event %q", got)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcher_InitialScanEmitsExistingFiles(t *testing.T) {
	root := t.TempDir()
	facilityID := uuid.New()
	path := dropFile(t, filepath.Join(root, facilityID.String()), "existing.pdf")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := StartWatcher(ctx, WatchConfig{Root: root, InitialScan: true}, nil)
	require.NoError(t, err)

	select {
	case got := <-events:
		assert.Equal(t, path, got)
	case <-time.After(5 * time.Second):
		t.Fatal("initial scan emitted nothing")
	}
}

func TestWorkerQueue_ProcessesAndDrains(t *testing.T) {
	done := make(chan string, 4)
	q := async.NewWorkerQueue(func(_ context.Context, job async.Job) error {
		done <- job.Path
		return nil
	}, nil, async.WithWorkers(2))

	for _, p := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		require.NoError(t, q.Enqueue(context.Background(), async.Job{Path: p}))
	}

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		select {
		case p := <-done:
			seen[p] = true
		case <-time.After(5 * time.Second):
			t.Fatal("jobs not processed")
		}
	}
	assert.Len(t, seen, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	// Enqueue after shutdown is a no-op.
	require.NoError(t, q.Enqueue(context.Background(), async.Job{Path: "late.pdf"}))
}
