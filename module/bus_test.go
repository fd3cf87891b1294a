package module

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/swaybar/bus"
	"github.com/c360/swaybar/errors"
	"github.com/c360/swaybar/protocol"
	"github.com/c360/swaybar/testutil"
)

const muteFormat = `{{if .Value}}muted{{else}}on{{end}}`

func newTestBus(t *testing.T, dialer bus.Dialer, maxAttempts int, opts BusOptions) *Bus {
	t.Helper()

	if opts.Path == "" {
		opts.Path = "/org/example/Audio"
	}
	deps := testDeps(&delays{}, fastBackoff(maxAttempts))
	deps.Dialer = dialer

	m, err := New(Spec{Kind: KindBus, Name: "vol", Bus: &opts}, deps)
	require.NoError(t, err)
	return m.(*Bus)
}

func TestBusRendersInitialAndChanges(t *testing.T) {
	client := testutil.NewMockBusClient(map[string]any{"Muted": false})
	b := newTestBus(t, testutil.NewMockDialer(testutil.DialResult{Client: client}), 3,
		BusOptions{Property: "Muted", Format: muteFormat})
	sink := newSink()
	stop := runModule(t, b, sink)

	sink.WaitFor(t, time.Second, hasText("on"))
	require.Eventually(t, func() bool { return client.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	client.Emit(map[string]any{"Muted": true})
	sink.WaitFor(t, time.Second, hasText("muted"))

	require.NoError(t, stop())
	assert.True(t, client.Closed())
}

func TestBusToggleClick(t *testing.T) {
	client := testutil.NewMockBusClient(map[string]any{"Muted": true})
	b := newTestBus(t, testutil.NewMockDialer(testutil.DialResult{Client: client}), 3,
		BusOptions{Property: "Muted", Format: muteFormat, OnClick: ActionToggle})
	sink := newSink()
	runModule(t, b, sink)

	sink.WaitFor(t, time.Second, hasText("muted"))
	require.NoError(t, b.Click(context.Background(), protocol.ClickEvent{Name: "vol", Button: protocol.ButtonLeft}))
	sink.WaitFor(t, time.Second, hasText("on"))

	sets := client.Sets()
	require.Len(t, sets, 1)
	assert.Equal(t, "Muted", sets[0].Property)
	assert.Equal(t, false, sets[0].Value)
	assert.Equal(t, "/org/example/Audio", sets[0].Object.Path)
}

func TestBusCallClick(t *testing.T) {
	client := testutil.NewMockBusClient(map[string]any{"Volume": 0.4})
	b := newTestBus(t, testutil.NewMockDialer(testutil.DialResult{Client: client}), 3, BusOptions{
		Property: "Volume",
		Format:   `{{round 0 .Value}}`,
		OnClick:  ActionCall,
		Method:   "Raise",
		Args:     []any{"5%"},
	})
	sink := newSink()
	runModule(t, b, sink)

	sink.WaitFor(t, time.Second, hasText("0"))
	require.NoError(t, b.Click(context.Background(), protocol.ClickEvent{Button: protocol.ButtonLeft}))

	require.Eventually(t, func() bool { return len(client.Calls()) == 1 }, time.Second, 5*time.Millisecond)
	call := client.Calls()[0]
	assert.Equal(t, "Raise", call.Method)
	assert.Equal(t, []any{"5%"}, call.Args)
}

func TestBusToggleRetriesTransientFailure(t *testing.T) {
	client := testutil.NewMockBusClient(map[string]any{"Muted": true})
	client.FailSets(errors.ErrConnectionLost)
	b := newTestBus(t, testutil.NewMockDialer(testutil.DialResult{Client: client}), 3,
		BusOptions{Property: "Muted", Format: muteFormat, OnClick: ActionToggle})
	sink := newSink()
	runModule(t, b, sink)

	sink.WaitFor(t, time.Second, hasText("muted"))
	require.NoError(t, b.Click(context.Background(), protocol.ClickEvent{Button: protocol.ButtonLeft}))
	sink.WaitFor(t, 2*time.Second, hasText("on"))

	assert.Len(t, client.Sets(), 2)
}

func TestBusToggleDoesNotRetryInvalidFailure(t *testing.T) {
	client := testutil.NewMockBusClient(map[string]any{"Muted": true})
	client.FailSets(errors.ErrInvalidData)
	b := newTestBus(t, testutil.NewMockDialer(testutil.DialResult{Client: client}), 3,
		BusOptions{Property: "Muted", Format: muteFormat, OnClick: ActionToggle})
	sink := newSink()
	runModule(t, b, sink)

	sink.WaitFor(t, time.Second, hasText("muted"))
	require.NoError(t, b.Click(context.Background(), protocol.ClickEvent{Button: protocol.ButtonLeft}))
	require.Eventually(t, func() bool { return len(client.Sets()) == 1 }, time.Second, 5*time.Millisecond)

	time.Sleep(200 * time.Millisecond)
	assert.Len(t, client.Sets(), 1)
	assert.Equal(t, "muted", sink.Last().FullText)
}

func TestBusCallRetriesTransientFailure(t *testing.T) {
	client := testutil.NewMockBusClient(map[string]any{"Volume": 0.4})
	client.FailCalls(errors.ErrConnectionTimeout, errors.ErrConnectionTimeout)
	b := newTestBus(t, testutil.NewMockDialer(testutil.DialResult{Client: client}), 3, BusOptions{
		Property: "Volume",
		OnClick:  ActionCall,
		Method:   "Raise",
	})
	sink := newSink()
	runModule(t, b, sink)

	sink.WaitForLen(t, 1, time.Second)
	require.NoError(t, b.Click(context.Background(), protocol.ClickEvent{Button: protocol.ButtonLeft}))
	require.Eventually(t, func() bool { return len(client.Calls()) == 3 }, 2*time.Second, 5*time.Millisecond)

	time.Sleep(200 * time.Millisecond)
	assert.Len(t, client.Calls(), 3, "the third attempt succeeds and nothing is retried after it")
}

func TestBusClickWithoutAction(t *testing.T) {
	b := newTestBus(t, testutil.NewMockDialer(), 3, BusOptions{Property: "Muted"})
	assert.NoError(t, b.Click(context.Background(), protocol.ClickEvent{Button: protocol.ButtonLeft}))
	assert.Empty(t, b.clicks)
}

func TestBusInterruptionShowsDisconnected(t *testing.T) {
	client := testutil.NewMockBusClient(map[string]any{"Muted": false})
	dialer := testutil.NewMockDialer(testutil.DialResult{Client: client})
	b := newTestBus(t, dialer, 3, BusOptions{Property: "Muted", Format: muteFormat})
	sink := newSink()
	runModule(t, b, sink)

	sink.WaitFor(t, time.Second, hasText("on"))
	require.Eventually(t, func() bool { return client.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	client.Interrupt()
	sink.WaitFor(t, time.Second, hasUrgentPrefix("vol: disconnected"))

	client.Emit(map[string]any{"Muted": true})
	sink.WaitFor(t, time.Second, hasText("muted"))
	assert.Equal(t, 1, dialer.Dials(), "an interruption does not redial")
}

func TestBusRedialsAfterConnectionLoss(t *testing.T) {
	client := testutil.NewMockBusClient(map[string]any{"Muted": false})
	dialer := testutil.NewMockDialer(testutil.DialResult{Client: client})
	b := newTestBus(t, dialer, 3, BusOptions{Property: "Muted", Format: muteFormat})
	sink := newSink()
	runModule(t, b, sink)

	sink.WaitFor(t, time.Second, hasText("on"))
	require.Eventually(t, func() bool { return client.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	client.Drop()
	sink.WaitFor(t, time.Second, hasUrgentPrefix("vol: disconnected"))
	sink.WaitFor(t, time.Second, hasText("on"))
	assert.Equal(t, 2, dialer.Dials())
}

func TestBusDialFailureIsFatalAfterMaxAttempts(t *testing.T) {
	dialer := testutil.NewMockDialer(testutil.DialResult{Err: testutil.ErrMockDial})
	b := newTestBus(t, dialer, 2, BusOptions{Property: "Muted"})
	sink := newSink()

	err := runToEnd(t, b, sink)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.ErrorIs(t, err, testutil.ErrMockDial)

	last := sink.Last()
	assert.True(t, last.Urgent)
	assert.True(t, strings.HasPrefix(last.FullText, "vol: error:"), last.FullText)
	assert.Equal(t, 2, dialer.Dials())
}

func TestBusWithoutInitialValue(t *testing.T) {
	client := testutil.NewMockBusClient(nil)
	client.GetErr = bus.ErrNotSupported
	b := newTestBus(t, testutil.NewMockDialer(testutil.DialResult{Client: client}), 3, BusOptions{
		Backend:  BackendNATS,
		Property: "Level",
		Format:   `{{with .Value}}{{.}}{{else}}?{{end}}`,
	})
	sink := newSink()
	runModule(t, b, sink)

	sink.WaitFor(t, time.Second, hasText("?"))
	require.Eventually(t, func() bool { return client.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	client.Emit(map[string]any{"Level": "high"})
	sink.WaitFor(t, time.Second, hasText("high"))
}
