package outreach

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recruit-cli/internal/model"
	"github.com/sells-group/recruit-cli/internal/store"
)

func sentFixture(t *testing.T) (*fixture, *model.EmailQueueItem, *Events) {
	t.Helper()
	f := newFixture(t)
	item := f.enqueue(t, f.account, "jane@x.com")
	_, err := f.dispatcher(t, nil).ProcessBatch(context.Background(), "ws1", 10)
	require.NoError(t, err)

	ev := NewEvents(f.st)
	ev.SetClock(func() time.Time { return t0.Add(time.Hour) })
	return f, item, ev
}

func TestEvents_OpenThenClick(t *testing.T) {
	ctx := context.Background()
	f, item, ev := sentFixture(t)

	require.NoError(t, ev.Opened(ctx, item.ID))
	send := f.send(t, item)
	assert.Equal(t, model.SendOpened, send.Status)
	require.NotNil(t, send.OpenedAt)

	require.NoError(t, ev.Clicked(ctx, item.ID))
	send = f.send(t, item)
	assert.Equal(t, model.SendClicked, send.Status)
	require.NotNil(t, send.ClickedAt)

	// A late open never moves status backwards.
	require.NoError(t, ev.Opened(ctx, item.ID))
	assert.Equal(t, model.SendClicked, f.send(t, item).Status)
}

func TestEvents_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	f, item, ev := sentFixture(t)

	require.NoError(t, ev.Unsubscribe(ctx, item.ID))
	ok, err := f.st.IsSuppressed(ctx, "ws1", "JANE@x.com")
	require.NoError(t, err)
	assert.True(t, ok)

	// Idempotent.
	require.NoError(t, ev.Unsubscribe(ctx, item.ID))
}

func TestEvents_RelayBounceSuppresses(t *testing.T) {
	ctx := context.Background()
	f, item, ev := sentFixture(t)

	require.NoError(t, ev.Relay(ctx, "msg-jane@x.com", model.EventBounced))
	send := f.send(t, item)
	assert.Equal(t, model.SendBounced, send.Status)
	require.NotNil(t, send.BouncedAt)

	ok, err := f.st.IsSuppressed(ctx, "ws1", "jane@x.com")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvents_RelayReply(t *testing.T) {
	ctx := context.Background()
	f, item, ev := sentFixture(t)

	require.NoError(t, ev.Relay(ctx, "msg-jane@x.com", model.EventReplied))
	send := f.send(t, item)
	assert.Equal(t, model.SendReplied, send.Status)
	require.NotNil(t, send.RepliedAt)

	ok, err := f.st.IsSuppressed(ctx, "ws1", "jane@x.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvents_UnknownMessage(t *testing.T) {
	_, _, ev := sentFixture(t)
	err := ev.Relay(context.Background(), "nope", model.EventDelivered)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
