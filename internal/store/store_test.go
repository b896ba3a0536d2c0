package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/evt3gate/internal/evt3"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRecording() evt3.Recording {
	events := []evt3.Event{
		{Timestamp: 10, X: 1, Y: 2, Polarity: 1},
		{Timestamp: 15, X: 3, Y: 2, Polarity: 0},
		{Timestamp: 15, X: 4, Y: 2, Polarity: 1},
		{Timestamp: 20, X: 5, Y: 9, Polarity: 0},
		{Timestamp: 30, X: 6, Y: 9, Polarity: 1},
	}
	return evt3.Recording{
		Path:     "/data/session.raw",
		Metadata: evt3.Metadata{Width: 640, Height: 480, MinTime: 10, MaxTime: 30},
		Stats:    evt3.Stats{Words: 42, TimeLoops: 1},
		Events:   events,
	}
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

func TestSaveAndGetRecording(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()

	info, err := s.SaveRecording(ctx, "", sampleRecording())
	require.NoError(t, err)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, "session.raw", info.Name)
	assert.EqualValues(t, 5, info.Events)

	got, err := s.GetRecording(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, info, got)
}

func TestEventsInRangeIsStrict(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	info, err := s.SaveRecording(ctx, "session", sampleRecording())
	require.NoError(t, err)

	got, err := s.EventsInRange(ctx, info.ID, 10, 30)
	require.NoError(t, err)
	want, err := evt3.FilterTime(sampleRecording().Events, 10, 30)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	require.Len(t, got, 3)

	got, err = s.EventsInRange(ctx, info.ID, 0, ^uint64(0))
	require.NoError(t, err)
	assert.Equal(t, sampleRecording().Events, got)

	all, err := s.Events(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, sampleRecording().Events, all)

	_, err = s.EventsInRange(ctx, info.ID, 30, 10)
	assert.ErrorIs(t, err, evt3.ErrInvalidRange)

	_, err = s.EventsInRange(ctx, "missing", 0, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEventsInWindowOpenBounds(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	rec := sampleRecording()
	rec.Events = append([]evt3.Event{{Timestamp: 0, X: 7, Y: 1}}, rec.Events...)
	info, err := s.SaveRecording(ctx, "zero", rec)
	require.NoError(t, err)

	for _, w := range []evt3.Window{
		{},
		{To: 20, HasTo: true},
		{From: 15, HasFrom: true},
		{From: 10, To: 30, HasFrom: true, HasTo: true},
	} {
		got, err := s.EventsInWindow(ctx, info.ID, w)
		require.NoError(t, err, "window %+v", w)
		want, err := w.Filter(rec.Events)
		require.NoError(t, err)
		assert.Equal(t, want, got, "window %+v", w)
	}

	upTo, err := s.EventsInWindow(ctx, info.ID, evt3.Window{To: 20, HasTo: true})
	require.NoError(t, err)
	require.Len(t, upTo, 4)
	assert.Zero(t, upTo[0].Timestamp)

	_, err = s.EventsInWindow(ctx, info.ID, evt3.Window{From: 30, To: 10, HasFrom: true, HasTo: true})
	assert.ErrorIs(t, err, evt3.ErrInvalidRange)
}

func TestEmptyRecordingKeepsSentinels(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	_, meta, err := evt3.Decode(strings.NewReader(""))
	require.NoError(t, err)
	rec := evt3.Recording{Path: "empty.raw", Metadata: meta}
	info, err := s.SaveRecording(ctx, "empty", rec)
	require.NoError(t, err)

	got, err := s.GetRecording(ctx, info.ID)
	require.NoError(t, err)
	assert.True(t, got.Metadata.Empty())
	assert.Zero(t, got.Events)
}

func TestListAndDeleteRecordings(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	first, err := s.SaveRecording(ctx, "first", sampleRecording())
	require.NoError(t, err)
	second, err := s.SaveRecording(ctx, "second", sampleRecording())
	require.NoError(t, err)

	list, err := s.ListRecordings(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	ids := []string{list[0].ID, list[1].ID}
	assert.ElementsMatch(t, []string{first.ID, second.ID}, ids)

	require.NoError(t, s.DeleteRecording(ctx, first.ID))
	assert.ErrorIs(t, s.DeleteRecording(ctx, first.ID), ErrNotFound)
	_, err = s.GetRecording(ctx, first.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	events, err := s.EventsInRange(ctx, second.ID, 0, 100)
	require.NoError(t, err)
	assert.Len(t, events, 5)
}

func TestSaveRecordingHonoursCanceledContext(t *testing.T) {
	s := openTempStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.SaveRecording(ctx, "late", sampleRecording())
	assert.ErrorIs(t, err, context.Canceled)
}
