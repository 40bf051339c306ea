package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Veraticus/kasa/internal/common"
	"github.com/Veraticus/kasa/internal/model"
	"github.com/Veraticus/kasa/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func catPtr(c model.Category) *model.Category { return &c }

func record(name string, amount int64, c *model.Category, d model.Disposition) *model.SettlementRecord {
	return &model.SettlementRecord{
		RunID:       "run-1",
		Name:        name,
		Amount:      decimal.NewFromInt(amount),
		Category:    c,
		Disposition: d,
	}
}

func TestMigrate(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	v, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, v)

	require.NoError(t, store.Migrate(ctx), "migrate must be idempotent")
	pending, err := store.PendingMigrations(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestNewSQLiteStorage_InMemory(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	require.NoError(t, store.Migrate(context.Background()))

	_, err = NewSQLiteStorage("  ")
	require.ErrorIs(t, err, ErrEmptyString)
}

func TestAppendAndListRecords(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	owed := record("Ayse Demir", 1600, catPtr(model.CategoryPracticalExamFee), model.DispositionOwed)
	require.NoError(t, store.AppendRecord(ctx, owed))
	assert.NotZero(t, owed.ID)

	flag := record("", 4000, catPtr(model.CategoryAmbiguous4000), model.DispositionFlagAmbiguous)
	flag.RunID = "run-2"
	require.NoError(t, store.AppendRecord(ctx, flag))

	all, err := store.ListRecords(ctx, service.RecordFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Ayse Demir", all[0].Name)
	assert.True(t, all[0].Amount.Equal(decimal.NewFromInt(1600)))
	assert.Equal(t, model.CategoryPracticalExamFee, all[0].CategoryOrEmpty())
	assert.False(t, all[0].CreatedAt.IsZero())

	byRun, err := store.ListRecords(ctx, service.RecordFilter{RunID: "run-2"})
	require.NoError(t, err)
	require.Len(t, byRun, 1)
	assert.Equal(t, model.DispositionFlagAmbiguous, byRun[0].Disposition)

	limited, err := store.ListRecords(ctx, service.RecordFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestAppendRecord_Invariants(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	err := store.AppendRecord(ctx, record("x", 1, nil, model.DispositionOwed))
	require.ErrorIs(t, err, ErrInvalidRecord, "settled records need a category")

	err = store.AppendRecord(ctx, record("x", 1, nil, model.Disposition("MAYBE")))
	require.ErrorIs(t, err, ErrInvalidRecord)

	require.NoError(t, store.AppendRecord(ctx, record("", 1, nil, model.DispositionFlagNameNotFound)),
		"flags may omit the category")

	err = store.AppendRecord(ctx, nil)
	require.ErrorIs(t, err, ErrNilParameter)
}

func TestPendingAndResolve(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	_, err := store.FirstPending(ctx)
	require.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, store.AppendRecord(ctx, record("Ali", 1200, catPtr(model.CategoryWrittenExamFee), model.DispositionPaid)))
	first := record("", 4000, catPtr(model.CategoryAmbiguous4000), model.DispositionFlagAmbiguous)
	require.NoError(t, store.AppendRecord(ctx, first))
	second := record("", 1600, nil, model.DispositionFlagNameNotFound)
	require.NoError(t, store.AppendRecord(ctx, second))

	n, err := store.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pending, err := store.FirstPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, pending.ID)

	require.NoError(t, store.ResolveRecord(ctx, first.ID, model.DispositionFlagAmbiguous, "Ali Veli", model.CategoryPrivateLesson))

	resolved, err := store.ListRecords(ctx, service.RecordFilter{Disposition: model.DispositionPaid})
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	assert.Equal(t, "Ali Veli", resolved[1].Name)
	assert.Equal(t, model.CategoryPrivateLesson, resolved[1].CategoryOrEmpty())
	require.NotNil(t, resolved[1].ResolvedAt)

	pending, err = store.FirstPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, pending.ID)

	err = store.ResolveRecord(ctx, first.ID, model.DispositionFlagAmbiguous, "Ali Veli", model.CategoryPrivateLesson)
	require.ErrorIs(t, err, common.ErrConflict, "a resolved record cannot be resolved twice")

	err = store.ResolveRecord(ctx, 999, model.DispositionFlagAmbiguous, "x", model.CategoryPrivateLesson)
	require.ErrorIs(t, err, common.ErrNotFound)

	err = store.ResolveRecord(ctx, second.ID, model.DispositionOwed, "x", model.CategoryPrivateLesson)
	require.ErrorIs(t, err, ErrNotResolvable)

	err = store.ResolveRecord(ctx, second.ID, model.DispositionFlagNameNotFound, "x", model.CategoryUnknown)
	require.ErrorIs(t, err, ErrInvalidRecord)
}

func TestPendingIncludesFailedRows(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	failed := record("Ayse Demir", 1600, nil, model.DispositionError)
	require.NoError(t, store.AppendRecord(ctx, failed))

	n, err := store.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := store.FirstPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, failed.ID, pending.ID)

	require.NoError(t, store.ResolveRecord(ctx, failed.ID, model.DispositionError, "Ayse Demir", model.CategoryPracticalExamFee))

	n, err = store.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestResolveRecord_ConcurrentWritersOneWins(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	flag := record("", 4000, nil, model.DispositionFlagAmbiguous)
	require.NoError(t, store.AppendRecord(ctx, flag))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.ResolveRecord(ctx, flag.ID, model.DispositionFlagAmbiguous, "Ali", model.CategoryPrivateLesson)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, common.ErrConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
	assert.Equal(t, 7, conflicts)
}

func TestClearRecords(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	require.NoError(t, store.AppendRecord(ctx, record("", 1, nil, model.DispositionFlagPOS)))
	require.NoError(t, store.ClearRecords(ctx))

	all, err := store.ListRecords(ctx, service.RecordFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStatus(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	_, err := store.GetStatus(ctx)
	require.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, store.SetStatus(ctx, model.ProcessingStatus{
		Name: "Ayse Demir", Stage: model.StageProcessing,
		Category: model.CategoryPracticalExamFee, Amount: decimal.NewFromInt(1600),
	}))
	require.NoError(t, store.SetStatus(ctx, model.ProcessingStatus{
		Name: "Ayse Demir", Stage: model.StageAlmostCompleted,
		Category: model.CategoryPracticalExamFee, Amount: decimal.NewFromInt(1600),
	}))

	got, err := store.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StageAlmostCompleted, got.Stage)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(1600)))
	assert.False(t, got.UpdatedAt.IsZero())

	err = store.SetStatus(ctx, model.ProcessingStatus{Stage: "sleeping"})
	require.ErrorIs(t, err, ErrInvalidStatus)

	require.NoError(t, store.ClearStatus(ctx))
	_, err = store.GetStatus(ctx)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestArchive(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	require.NoError(t, store.AppendRecord(ctx, record("Ali", 1200, catPtr(model.CategoryWrittenExamFee), model.DispositionOwed)))

	info, err := store.Archive(ctx, "before-upload")
	require.NoError(t, err)
	assert.Equal(t, 1, info.Records)
	_, statErr := os.Stat(info.Path)
	require.NoError(t, statErr)

	_, err = store.Archive(ctx, "before-upload")
	require.ErrorIs(t, err, ErrArchiveExists)

	_, err = store.Archive(ctx, "../escape")
	require.Error(t, err)

	list, err := store.ListArchives(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "before-upload", list[0].ID)

	archived, err := NewSQLiteStorage(info.Path)
	require.NoError(t, err)
	defer func() { _ = archived.Close() }()
	recs, err := archived.ListRecords(ctx, service.RecordFilter{})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
