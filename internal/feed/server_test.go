package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/specialistvlad/telemetryhub/internal/densemap"
	"github.com/specialistvlad/telemetryhub/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

type subscribeCall struct {
	chain string
	feed  telemetry.Subscriber
}

// fakeAggregator records what sessions ask for.
type fakeAggregator struct {
	mu           sync.Mutex
	connected    []telemetry.Subscriber
	disconnected []densemap.ID
	subscribed   []subscribeCall
	connectErr   error
}

func (f *fakeAggregator) Connect(_ context.Context, feed telemetry.Subscriber) (densemap.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return 0, f.connectErr
	}
	f.connected = append(f.connected, feed)
	return densemap.ID(len(f.connected) - 1), nil
}

func (f *fakeAggregator) Disconnect(id densemap.ID, _ telemetry.Subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = append(f.disconnected, id)
}

func (f *fakeAggregator) Subscribe(chain string, feed telemetry.Subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, subscribeCall{chain: chain, feed: feed})
}

// emitted collects what a connector wrote to its viewer.
type emitted struct {
	mu     sync.Mutex
	events []string
}

func (e *emitted) emit(event string, _ any) {
	e.mu.Lock()
	e.events = append(e.events, event)
	e.mu.Unlock()
}

func (e *emitted) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

func newTestServer(agg Aggregator) *Server {
	return &Server{ctx: context.Background(), agg: agg}
}

func TestConnector_EmitsInOrder(t *testing.T) {
	t.Parallel()

	out := &emitted{}
	c := NewConnector(context.Background(), out.emit)
	defer c.Close()

	require.True(t, c.Push(telemetry.Event{Kind: telemetry.KindAddedChain}))
	require.True(t, c.Push(telemetry.Event{Kind: telemetry.KindRemovedChain}))

	require.Eventually(t, func() bool { return len(out.list()) == 2 }, waitFor, time.Millisecond)
	assert.Equal(t, []string{"added_chain", "removed_chain"}, out.list())

	c.Close()
	assert.False(t, c.Push(telemetry.Event{Kind: telemetry.KindAddedChain}))
}

func TestSession_ConnectsForChainList(t *testing.T) {
	t.Parallel()

	agg := &fakeAggregator{}
	sess, err := newTestServer(agg).open((&emitted{}).emit)
	require.NoError(t, err)
	defer sess.close()

	require.Len(t, agg.connected, 1)
	assert.Same(t, sess.feed, agg.connected[0])
}

func TestSession_ConnectFailureClosesFeed(t *testing.T) {
	t.Parallel()

	agg := &fakeAggregator{connectErr: context.Canceled}
	sess, err := newTestServer(agg).open((&emitted{}).emit)

	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, sess)
}

func TestSession_ResubscribeCancelsPrevious(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	agg := &fakeAggregator{}
	out := &emitted{}
	sess, err := newTestServer(agg).open(out.emit)
	require.NoError(t, err)
	defer sess.close()

	// --- Act ---
	sess.subscribe("polkadot")
	sess.subscribe("kusama")
	sess.subscribe("")

	// --- Assert ---
	require.Len(t, agg.subscribed, 2)
	assert.Equal(t, "polkadot", agg.subscribed[0].chain)
	assert.Equal(t, "kusama", agg.subscribed[1].chain)

	old, current := agg.subscribed[0].feed, agg.subscribed[1].feed
	assert.False(t, old.Push(telemetry.Event{Kind: telemetry.KindNodeStats}), "old chain must drop the viewer")
	assert.True(t, current.Push(telemetry.Event{Kind: telemetry.KindNodeStats}))
	require.Eventually(t, func() bool { return len(out.list()) == 1 }, waitFor, time.Millisecond)
}

func TestSession_CloseDisconnectsOnce(t *testing.T) {
	t.Parallel()

	agg := &fakeAggregator{}
	sess, err := newTestServer(agg).open((&emitted{}).emit)
	require.NoError(t, err)
	sess.subscribe("polkadot")
	sub := agg.subscribed[0].feed

	sess.close()
	sess.close()
	sess.subscribe("kusama")

	assert.Equal(t, []densemap.ID{0}, agg.disconnected)
	assert.False(t, sub.Push(telemetry.Event{Kind: telemetry.KindNodeStats}))
	assert.False(t, sess.feed.Push(telemetry.Event{Kind: telemetry.KindNodeStats}))
	assert.Len(t, agg.subscribed, 1, "a closed session ignores subscribe")
}
