package event

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHubSubscribeNotify(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	events, cancel := hub.Subscribe()
	defer cancel()

	require.Equal(t, 1, hub.SubscriberCount())

	hub.Notify(ctx, Log{Type: "info", Message: "hello"})

	env := <-events
	require.Equal(t, "log", env.Name)

	var e Log

	require.NoError(t, json.Unmarshal(env.Data, &e))
	require.Equal(t, "hello", e.Message)
}

func TestHubMultipleSubscribers(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	first, cancelFirst := hub.Subscribe()
	defer cancelFirst()

	second, cancelSecond := hub.Subscribe()
	defer cancelSecond()

	hub.Notify(ctx, DownloadStarted{DownloadID: "d1", Index: 3})

	for _, ch := range []<-chan Envelope{first, second} {
		env := <-ch
		require.Equal(t, "download-started", env.Name)
	}
}

func TestHubCancelRemovesSubscriber(t *testing.T) {
	hub := NewHub()

	events, cancel := hub.Subscribe()

	cancel()
	require.Equal(t, 0, hub.SubscriberCount())

	// The channel closes so range loops terminate.
	_, open := <-events
	require.False(t, open)

	// Cancel is idempotent.
	cancel()
}

func TestHubSlowSubscriberDropsEvents(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	events, cancel := hub.Subscribe()
	defer cancel()

	// Overflow the subscriber buffer; the emitter must never block.
	for i := 0; i < subscriberBuffer+10; i++ {
		hub.Notify(ctx, Log{Type: "info", Message: "tick"})
	}

	require.Len(t, events, subscriberBuffer)
}

func TestMultiFansOut(t *testing.T) {
	ctx := context.Background()

	var first, second []string

	n := Multi(
		NotifierFunc(func(ctx context.Context, e Event) { first = append(first, e.Name()) }),
		NotifierFunc(func(ctx context.Context, e Event) { second = append(second, e.Name()) }),
	)

	n.Notify(ctx, Log{Type: "info", Message: "one"})
	n.Notify(ctx, AllBatchesComplete{})

	require.Equal(t, []string{"log", "all-batches-complete"}, first)
	require.Equal(t, first, second)
}

func TestEventWireNames(t *testing.T) {
	tests := []struct {
		event Event
		want  string
	}{
		{event: Log{}, want: "log"},
		{event: NewBatchStarting{}, want: "new-batch-starting"},
		{event: Progress{}, want: "progress"},
		{event: AutoDownloadStart{}, want: "auto-download-start"},
		{event: DownloadStarted{}, want: "download-started"},
		{event: DownloadProgress{}, want: "download-progress"},
		{event: DownloadComplete{}, want: "download-complete"},
		{event: AllBatchesComplete{}, want: "all-batches-complete"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			require.Equal(t, tt.want, tt.event.Name())
		})
	}
}

func TestProgressOmitsNilPercentage(t *testing.T) {
	data, err := json.Marshal(Progress{Index: 1, Status: "preparing"})
	require.NoError(t, err)
	require.NotContains(t, string(data), "percentage")

	data, err = json.Marshal(Progress{Index: 1, Percentage: Percent(0)})
	require.NoError(t, err)
	require.Contains(t, string(data), `"percentage":0`)
}
