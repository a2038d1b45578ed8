package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvitals/vitalsync/internal/domain/model"
	"github.com/openvitals/vitalsync/internal/domain/port/driven"
)

func testResult(value float64, takenAt time.Time) model.LabResult {
	return model.LabResult{
		PublicID: uuid.NewString(),
		TakenAt:  takenAt,
		Value:    value,
		Note:     "fasting",
	}
}

func TestLabRepo_SaveRangeAndList(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLabRepo(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	batch := []model.LabResult{
		testResult(2.8, now.Add(-time.Hour)),
		testResult(3.1, now),
	}

	require.NoError(t, repo.SaveRange(ctx, "owner-1", batch))

	results, err := repo.ListRecent(ctx, "owner-1", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Most recent first.
	assert.Equal(t, 3.1, results[0].Value)
	assert.Equal(t, 2.8, results[1].Value)
	assert.Equal(t, "owner-1", results[0].OwnerID)
	assert.True(t, results[0].TakenAt.Equal(now))
}

func TestLabRepo_SaveRange_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLabRepo(db)
	ctx := context.Background()

	batch := []model.LabResult{
		testResult(2.8, time.Now().UTC().Truncate(time.Second)),
		testResult(3.1, time.Now().UTC().Truncate(time.Second)),
	}

	require.NoError(t, repo.SaveRange(ctx, "owner-1", batch))
	require.NoError(t, repo.SaveRange(ctx, "owner-1", batch))

	count, err := repo.CountAll(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "re-running an unchanged batch must not duplicate rows")

	got, err := repo.GetByPublicID(ctx, batch[0].PublicID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2.8, got.Value)
	assert.Equal(t, "fasting", got.Note)
}

func TestLabRepo_SaveRange_UpdatesInPlace(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLabRepo(db)
	ctx := context.Background()

	original := testResult(2.8, time.Now().UTC().Truncate(time.Second))
	require.NoError(t, repo.SaveRange(ctx, "owner-1", []model.LabResult{original}))

	updated := original
	updated.Value = 3.4
	updated.Note = "after dose change"
	updated.Flagged = true
	require.NoError(t, repo.SaveRange(ctx, "owner-1", []model.LabResult{updated}))

	count, err := repo.CountAll(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := repo.GetByPublicID(ctx, original.PublicID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 3.4, got.Value)
	assert.Equal(t, "after dose change", got.Note)
	assert.True(t, got.Flagged)
}

func TestLabRepo_SaveRange_OwnerRequired(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLabRepo(db)

	err := repo.SaveRange(context.Background(), "", []model.LabResult{testResult(2.8, time.Now())})
	assert.ErrorIs(t, err, driven.ErrOwnerRequired)
}

func TestLabRepo_SaveRange_EmptyBatch(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLabRepo(db)

	assert.NoError(t, repo.SaveRange(context.Background(), "owner-1", nil))
}

func TestLabRepo_ListRecent_ExcludesDeleted(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLabRepo(db)
	ctx := context.Background()

	kept := testResult(2.8, time.Now().UTC())
	removed := testResult(3.1, time.Now().UTC())
	removed.Deleted = true

	require.NoError(t, repo.SaveRange(ctx, "owner-1", []model.LabResult{kept, removed}))

	results, err := repo.ListRecent(ctx, "owner-1", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, kept.PublicID, results[0].PublicID)

	// Soft-deleted rows still exist and still count.
	count, err := repo.CountAll(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestLabRepo_ListRecent_Limit(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLabRepo(db)
	ctx := context.Background()

	now := time.Now().UTC()
	var batch []model.LabResult
	for i := 0; i < 5; i++ {
		batch = append(batch, testResult(float64(i), now.Add(time.Duration(i)*time.Minute)))
	}
	require.NoError(t, repo.SaveRange(ctx, "owner-1", batch))

	results, err := repo.ListRecent(ctx, "owner-1", 3)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, 4.0, results[0].Value)
}

func TestLabRepo_GetByPublicID_Missing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLabRepo(db)

	got, err := repo.GetByPublicID(context.Background(), uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLabRepo_SaveRange_MissingPublicID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLabRepo(db)
	ctx := context.Background()

	err := repo.SaveRange(ctx, "owner-1", []model.LabResult{{TakenAt: time.Now()}})
	require.Error(t, err)

	// The batch is transactional: nothing was committed.
	count, err := repo.CountAll(ctx, "owner-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestLabRepo_OwnersAreScoped(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLabRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.SaveRange(ctx, "owner-1", []model.LabResult{testResult(2.8, time.Now().UTC())}))
	require.NoError(t, repo.SaveRange(ctx, "owner-2", []model.LabResult{testResult(3.1, time.Now().UTC())}))

	results, err := repo.ListRecent(ctx, "owner-1", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2.8, results[0].Value)
}
