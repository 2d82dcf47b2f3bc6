package subscription

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/cortex-x/go-smartcard-bridge/internal/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeListener struct {
	mu       sync.Mutex
	calls    []string
	startErr map[Channel]error
}

func (l *fakeListener) Start(ch Channel) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, "start:"+ch.String())
	return l.startErr[ch]
}

func (l *fakeListener) Stop(ch Channel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, "stop:"+ch.String())
}

func (l *fakeListener) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type recorder struct {
	mu      sync.Mutex
	results []Result
	err     error
}

func (r *recorder) Send(res Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.results = append(r.results, res)
	return nil
}

func (r *recorder) Results() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.results...)
}

func subscribe(t *testing.T, m *Manager, ch Channel, sub Subscriber) string {
	t.Helper()
	id, err := m.Subscribe(ch, sub)
	assert.NoError(t, err)
	return id
}

var (
	startBoth = []string{"start:state", "start:debug"}
	stopBoth  = []string{"stop:state", "stop:debug"}
)

func TestFirstSubscriberStartsBothStreams(t *testing.T) {
	l := &fakeListener{}
	m := NewManager(l, nil)

	subscribe(t, m, ChannelState, &recorder{})
	assert.Equal(t, startBoth, l.Calls())
	assert.True(t, m.Active())
}

func TestRefCountOnOneChannel(t *testing.T) {
	l := &fakeListener{}
	m := NewManager(l, nil)

	first := subscribe(t, m, ChannelState, &recorder{})
	second := subscribe(t, m, ChannelState, &recorder{})
	assert.Equal(t, 2, m.Count(ChannelState))

	require.True(t, m.Unsubscribe(ChannelState, first))
	assert.Equal(t, startBoth, l.Calls(), "2->1 must not stop the listener")
	assert.True(t, m.Active())

	require.True(t, m.Unsubscribe(ChannelState, second))
	assert.Equal(t, append(startBoth, stopBoth...), l.Calls())
	assert.False(t, m.Active())
	assert.Equal(t, 0, m.Total())
}

func TestRefCountAcrossChannels(t *testing.T) {
	l := &fakeListener{}
	m := NewManager(l, nil)

	debug := subscribe(t, m, ChannelDebug, &recorder{})
	state := subscribe(t, m, ChannelState, &recorder{})
	assert.Equal(t, startBoth, l.Calls())
	assert.Equal(t, 2, m.Total())

	require.True(t, m.Unsubscribe(ChannelState, state))
	assert.Equal(t, startBoth, l.Calls())

	require.True(t, m.Unsubscribe(ChannelDebug, debug))
	assert.Equal(t, append(startBoth, stopBoth...), l.Calls())
}

func TestUnsubscribeWithoutSubscribeIsNoop(t *testing.T) {
	l := &fakeListener{}
	m := NewManager(l, nil)

	assert.False(t, m.Unsubscribe(ChannelState, "missing"))
	assert.False(t, m.Unsubscribe(ChannelDebug, ""))
	assert.Empty(t, l.Calls())
	assert.Equal(t, 0, m.Total())

	id := subscribe(t, m, ChannelState, &recorder{})
	assert.False(t, m.Unsubscribe(ChannelDebug, id), "id belongs to the state channel")
	assert.Equal(t, 1, m.Total())

	require.True(t, m.Unsubscribe(ChannelState, id))
	assert.False(t, m.Unsubscribe(ChannelState, id), "second unsubscribe is a no-op")
	assert.Equal(t, append(startBoth, stopBoth...), l.Calls())
}

func TestUnsubscribeSendsOneTerminalResult(t *testing.T) {
	m := NewManager(&fakeListener{}, nil)
	leaving := &recorder{}
	staying := &recorder{}

	leavingID := subscribe(t, m, ChannelState, leaving)
	subscribe(t, m, ChannelState, staying)

	m.Publish(ChannelState, codec.Map{"state": "readerConnected"})
	m.Unsubscribe(ChannelState, leavingID)
	m.Publish(ChannelState, codec.Map{"state": "readerDisconnected"})

	got := leaving.Results()
	require.Len(t, got, 2)
	assert.True(t, got[0].KeepCallback)
	assert.Equal(t, Result{Status: StatusOK, KeepCallback: false}, got[1])

	kept := staying.Results()
	require.Len(t, kept, 2)
	for _, r := range kept {
		assert.True(t, r.KeepCallback)
		assert.Equal(t, StatusOK, r.Status)
	}
	assert.Equal(t, "readerDisconnected", kept[1].Payload["state"])
}

func TestPublishOnlyReachesItsChannel(t *testing.T) {
	m := NewManager(&fakeListener{}, nil)
	state := &recorder{}
	debug := &recorder{}
	subscribe(t, m, ChannelState, state)
	subscribe(t, m, ChannelDebug, debug)

	assert.Equal(t, 1, m.Publish(ChannelDebug, codec.EncodeDebug("hello")))
	assert.Empty(t, state.Results())
	require.Len(t, debug.Results(), 1)
	assert.Equal(t, "hello", debug.Results()[0].Payload["message"])
}

func TestPublishWithoutSubscribers(t *testing.T) {
	m := NewManager(&fakeListener{}, nil)
	assert.Equal(t, 0, m.Publish(ChannelState, codec.Map{"state": "unknown"}))
}

func TestFailedDeliveryDoesNotAffectOthers(t *testing.T) {
	m := NewManager(&fakeListener{}, nil)
	broken := &recorder{err: errors.New("buffer full")}
	healthy := &recorder{}
	subscribe(t, m, ChannelState, broken)
	subscribe(t, m, ChannelState, healthy)

	assert.Equal(t, 1, m.Publish(ChannelState, codec.Map{"state": "readerConnected"}))
	assert.Len(t, healthy.Results(), 1)
	assert.Equal(t, 2, m.Count(ChannelState))
}

func TestStartFailureStaysIdle(t *testing.T) {
	l := &fakeListener{startErr: map[Channel]error{
		ChannelState: errors.New("no driver"),
		ChannelDebug: errors.New("no driver"),
	}}
	m := NewManager(l, nil)

	first := subscribe(t, m, ChannelState, &recorder{})
	assert.False(t, m.Active())

	second := subscribe(t, m, ChannelState, &recorder{})
	assert.Equal(t, startBoth, l.Calls(), "no automatic retry")

	m.Unsubscribe(ChannelState, first)
	m.Unsubscribe(ChannelState, second)
	assert.Equal(t, startBoth, l.Calls(), "nothing to stop")

	l.startErr = nil
	subscribe(t, m, ChannelDebug, &recorder{})
	assert.Equal(t, append(startBoth, startBoth...), l.Calls())
	assert.True(t, m.Active())
}

func TestPartialStartFailureStopsOnlyRunningStream(t *testing.T) {
	l := &fakeListener{startErr: map[Channel]error{ChannelDebug: errors.New("unsupported")}}
	m := NewManager(l, nil)

	id := subscribe(t, m, ChannelState, &recorder{})
	assert.True(t, m.Active())
	m.Unsubscribe(ChannelState, id)
	assert.Equal(t, []string{"start:state", "start:debug", "stop:state"}, l.Calls())
}

func TestDetachSendsNothing(t *testing.T) {
	l := &fakeListener{}
	m := NewManager(l, nil)
	r := &recorder{}

	id := subscribe(t, m, ChannelDebug, r)
	require.True(t, m.Detach(id))
	assert.False(t, m.Detach(id))
	assert.Empty(t, r.Results())
	assert.Equal(t, append(startBoth, stopBoth...), l.Calls())
}

func TestCloseStopsListener(t *testing.T) {
	l := &fakeListener{}
	m := NewManager(l, nil)
	r := &recorder{}
	subscribe(t, m, ChannelState, r)
	subscribe(t, m, ChannelDebug, &recorder{})

	m.Close()
	assert.Equal(t, 0, m.Total())
	assert.False(t, m.Active())
	assert.Equal(t, append(startBoth, stopBoth...), l.Calls())

	m.Publish(ChannelState, codec.Map{"state": "unknown"})
	assert.Empty(t, r.Results())
}

func TestConcurrentSubscribeUnsubscribe(t *testing.T) {
	l := &fakeListener{}
	m := NewManager(l, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ch := channels[i%len(channels)]
			for j := 0; j < 20; j++ {
				id := subscribe(t, m, ch, &recorder{})
				m.Publish(ch, codec.Map{"n": fmt.Sprint(j)})
				m.Unsubscribe(ch, id)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, m.Total())
	assert.False(t, m.Active())

	calls := l.Calls()
	require.Equal(t, 0, len(calls)%4)
	for i := 0; i < len(calls); i += 4 {
		assert.Equal(t, startBoth, calls[i:i+2], "activation at %d", i)
		assert.Equal(t, stopBoth, calls[i+2:i+4], "deactivation at %d", i)
	}
}

func TestSubscribeRejectsUnknownChannel(t *testing.T) {
	l := &fakeListener{}
	m := NewManager(l, nil)

	id, err := m.Subscribe(Channel(7), &recorder{})
	assert.ErrorIs(t, err, ErrUnknownChannel)
	assert.Empty(t, id)
	assert.Equal(t, 0, m.Total())
	assert.Empty(t, l.Calls())
	assert.False(t, m.Unsubscribe(Channel(7), "missing"))
}

func TestParseChannel(t *testing.T) {
	ch, err := ParseChannel("debug")
	require.NoError(t, err)
	assert.Equal(t, ChannelDebug, ch)

	_, err = ParseChannel("audio")
	assert.Error(t, err)
}
