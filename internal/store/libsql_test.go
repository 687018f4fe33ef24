package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/actiondesk/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})
	return s
}

func TestAppendAndGetEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	reqID := uuid.New().String()

	for i, et := range []string{schema.EventRequestStarted, schema.EventActionStarted, schema.EventActionSucceeded} {
		e := &Event{
			RequestID: reqID,
			Sequence:  int64(i + 1),
			Type:      et,
			Message:   et,
		}
		if et != schema.EventRequestStarted {
			e.Kind = string(schema.KindSchedule)
		}
		require.NoError(t, s.AppendEvent(ctx, e))
		assert.NotZero(t, e.ID)
		assert.False(t, e.Timestamp.IsZero())
	}

	all, err := s.GetEvents(ctx, reqID, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, schema.EventRequestStarted, all[0].Type)
	assert.Empty(t, all[0].Kind)
	assert.Equal(t, string(schema.KindSchedule), all[2].Kind)

	since, err := s.GetEvents(ctx, reqID, 2)
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, int64(3), since[0].Sequence)

	other, err := s.GetEvents(ctx, uuid.New().String(), 0)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestAppendEvent_DuplicateSequenceRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendEvent(ctx, &Event{RequestID: "r1", Sequence: 1, Type: schema.EventRequestStarted}))
	err := s.AppendEvent(ctx, &Event{RequestID: "r1", Sequence: 1, Type: schema.EventRequestStarted})
	assert.Error(t, err)
}

func TestLastSequence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	last, err := s.LastSequence(ctx, "r1")
	require.NoError(t, err)
	assert.Zero(t, last)

	for _, seq := range []int64{1, 2, 5} {
		require.NoError(t, s.AppendEvent(ctx, &Event{RequestID: "r1", Sequence: seq, Type: schema.EventActionStarted}))
	}
	require.NoError(t, s.AppendEvent(ctx, &Event{RequestID: "r2", Sequence: 9, Type: schema.EventActionStarted}))

	last, err = s.LastSequence(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), last)
}

func TestPruneEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	old := time.Now().UTC().Add(-48 * time.Hour)

	require.NoError(t, s.AppendEvent(ctx, &Event{RequestID: "old", Sequence: 1, Type: schema.EventRequestStarted, Timestamp: old}))
	require.NoError(t, s.AppendEvent(ctx, &Event{RequestID: "new", Sequence: 1, Type: schema.EventRequestStarted}))

	n, err := s.PruneEvents(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, err := s.GetEvents(ctx, "old", 0)
	require.NoError(t, err)
	assert.Empty(t, left)
	kept, err := s.GetEvents(ctx, "new", 0)
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestSealedBlobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutSealed(ctx, "google/ana@example.com", []byte("sealed-1")))
	got, err := s.GetSealed(ctx, "google/ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, []byte("sealed-1"), got)

	// A refreshed token replaces the blob in place.
	require.NoError(t, s.PutSealed(ctx, "google/ana@example.com", []byte("sealed-2")))
	got, err = s.GetSealed(ctx, "google/ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, []byte("sealed-2"), got)

	require.NoError(t, s.PutSealed(ctx, "google/bo@example.com", []byte("x")))
	keys, err := s.SealedKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"google/ana@example.com", "google/bo@example.com"}, keys)

	require.NoError(t, s.DeleteSealed(ctx, "google/ana@example.com"))
	_, err = s.GetSealed(ctx, "google/ana@example.com")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
	assert.True(t, schema.IsCode(s.DeleteSealed(ctx, "google/ana@example.com"), schema.ErrCodeNotFound))
}

func TestMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestVacuum(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Vacuum(context.Background()))
}
