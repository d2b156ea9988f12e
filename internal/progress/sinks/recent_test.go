package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ipowatch/internal/progress"
)

func TestRecentSinkKeepsNewestEvents(t *testing.T) {
	t.Parallel()

	sink := NewRecentSink(4)
	runID := uuid.New()
	var batch []progress.Event
	for page := 1; page <= 6; page++ {
		batch = append(batch, progress.Event{
			RunID:    runID,
			TS:       time.Now(),
			Kind:     progress.KindPageDone,
			Category: "subscription",
			Page:     page,
		})
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	got := sink.Events()
	require.Len(t, got, 4)
	for i, evt := range got {
		assert.Equal(t, i+3, evt.Page, "oldest retained event must come first")
	}
}

func TestRecentSinkPartialFill(t *testing.T) {
	t.Parallel()

	sink := NewRecentSink(8)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: uuid.New(), TS: time.Now(), Kind: progress.KindRunStart},
	}))

	got := sink.Events()
	require.Len(t, got, 1)
	assert.Equal(t, progress.KindRunStart, got[0].Kind)
}
