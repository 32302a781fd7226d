package channel_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"chatlink/internal/constants"
	"chatlink/internal/models"
	"chatlink/internal/queue"
	"chatlink/internal/retry"
	"chatlink/internal/store"
	"chatlink/pkg/channel"
	"chatlink/pkg/channel/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConnClosed = errors.New("connection closed")

type fakeConn struct {
	inbound  chan []byte
	failRead chan error
	wrote    chan []byte

	mu       sync.Mutex
	writeErr error
	closed   chan struct{}
	once     sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound:  make(chan []byte, 16),
		failRead: make(chan error, 1),
		wrote:    make(chan []byte, 32),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.inbound:
		return data, nil
	case err := <-c.failRead:
		return nil, err
	case <-c.closed:
		return nil, errConnClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) WriteMessage(_ context.Context, data []byte) error {
	c.mu.Lock()
	err := c.writeErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.wrote <- append([]byte(nil), data...)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type dialOutcome struct {
	conn types.Conn
	err  error
}

type fakeDialer struct {
	mu       sync.Mutex
	outcomes []dialOutcome
	calls    int
}

func (d *fakeDialer) Dial(ctx context.Context, _ string) (types.Conn, error) {
	d.mu.Lock()
	d.calls++
	if len(d.outcomes) == 0 {
		d.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	next := d.outcomes[0]
	d.outcomes = d.outcomes[1:]
	d.mu.Unlock()

	if next.err != nil {
		return nil, next.err
	}
	return next.conn, nil
}

func (d *fakeDialer) queue(outcomes ...dialOutcome) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outcomes = append(d.outcomes, outcomes...)
}

func (d *fakeDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testConfig() channel.Config {
	return channel.Config{
		BaseURL:           "http://chat.example.com",
		ChatID:            "general",
		Credential:        "test-token",
		Sender:            "me",
		HeartbeatInterval: time.Hour,
		DialTimeout:       time.Second,
		WriteTimeout:      time.Second,
	}
}

func fastSchedule(maxAttempts int) *retry.Schedule {
	return retry.NewScheduleFromDelays([]time.Duration{50 * time.Millisecond}, maxAttempts)
}

func newTestManager(t *testing.T, cfg channel.Config, dialer types.Dialer, schedule *retry.Schedule) (*channel.Manager, chan models.ConnectionState) {
	t.Helper()

	m, err := channel.NewManager(cfg, dialer, store.New(10), queue.New(quietLogger()), schedule, quietLogger())
	require.NoError(t, err)
	t.Cleanup(m.Close)

	states := make(chan models.ConnectionState, 64)
	m.SetOnStateChange(func(s models.ConnectionState, _ string) {
		states <- s
	})
	return m, states
}

// waitState consumes transitions until the wanted state appears.
func waitState(t *testing.T, states chan models.ConnectionState, want models.ConnectionState) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-states:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %q", want)
		}
	}
}

func waitWrite(t *testing.T, conn *fakeConn) []byte {
	t.Helper()
	select {
	case data := <-conn.wrote:
		return data
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a write")
		return nil
	}
}

func inboundFrame(id, sender, content, timestamp string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"chatId":"general","sender":%q,"content":%q,"timestamp":%q}`,
		id, sender, content, timestamp))
}

func TestManagerConnectAndSend(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{}
	dialer.queue(dialOutcome{conn: conn})

	m, states := newTestManager(t, testConfig(), dialer, fastSchedule(3))

	m.Connect()
	waitState(t, states, models.StateConnecting)
	waitState(t, states, models.StateConnected)
	assert.Empty(t, m.Diagnostic())

	queued, err := m.Send("hello there")
	require.NoError(t, err)
	assert.False(t, queued)

	var sent models.Message
	require.NoError(t, json.Unmarshal(waitWrite(t, conn), &sent))
	assert.Equal(t, "hello there", sent.Content)
	assert.Equal(t, "general", sent.ChatID)
	assert.Equal(t, "me", sent.Sender)
	assert.NotEmpty(t, sent.ID)
	assert.NotEmpty(t, sent.Timestamp)
}

func TestManagerRejectsInvalidOutbound(t *testing.T) {
	m, _ := newTestManager(t, testConfig(), &fakeDialer{}, fastSchedule(3))

	queued, err := m.Send("   ")
	assert.Error(t, err)
	assert.False(t, queued)
	assert.Equal(t, 0, m.QueueLen())
}

func TestManagerFlushesQueueInOrderOnConnect(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{}
	dialer.queue(dialOutcome{conn: conn})

	m, states := newTestManager(t, testConfig(), dialer, fastSchedule(3))

	for _, text := range []string{"first", "second", "third"} {
		queued, err := m.Send(text)
		require.NoError(t, err)
		assert.True(t, queued)
	}
	assert.Equal(t, 3, m.QueueLen())

	m.Connect()
	waitState(t, states, models.StateConnected)

	for _, want := range []string{"first", "second", "third"} {
		var sent models.Message
		require.NoError(t, json.Unmarshal(waitWrite(t, conn), &sent))
		assert.Equal(t, want, sent.Content)
	}

	// A message composed after the flush goes out behind the backlog
	_, err := m.Send("fourth")
	require.NoError(t, err)
	var sent models.Message
	require.NoError(t, json.Unmarshal(waitWrite(t, conn), &sent))
	assert.Equal(t, "fourth", sent.Content)

	require.Eventually(t, func() bool { return m.QueueLen() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestManagerReconnectsAfterReadFailure(t *testing.T) {
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	dialer := &fakeDialer{}
	dialer.queue(dialOutcome{conn: conn1}, dialOutcome{conn: conn2})

	m, states := newTestManager(t, testConfig(), dialer, fastSchedule(3))

	m.Connect()
	waitState(t, states, models.StateConnected)

	conn1.failRead <- errors.New("network partition")
	waitState(t, states, models.StateReconnecting)
	assert.Contains(t, m.Diagnostic(), "network partition")

	waitState(t, states, models.StateConnected)
	assert.Empty(t, m.Diagnostic())
	assert.Equal(t, 2, dialer.callCount())
}

func TestManagerQueuesDuringOutageAndFlushesOnReconnect(t *testing.T) {
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	dialer := &fakeDialer{}
	dialer.queue(dialOutcome{conn: conn1}, dialOutcome{conn: conn2})

	m, states := newTestManager(t, testConfig(), dialer, fastSchedule(3))

	m.Connect()
	waitState(t, states, models.StateConnected)

	conn1.failRead <- errors.New("gateway restart")
	waitState(t, states, models.StateReconnecting)

	queued, err := m.Send("composed offline")
	require.NoError(t, err)
	assert.True(t, queued)

	waitState(t, states, models.StateConnected)

	var sent models.Message
	require.NoError(t, json.Unmarshal(waitWrite(t, conn2), &sent))
	assert.Equal(t, "composed offline", sent.Content)
}

func TestManagerStopsAtRetryCeiling(t *testing.T) {
	dialer := &fakeDialer{}
	dialer.queue(
		dialOutcome{err: errors.New("refused")},
		dialOutcome{err: errors.New("refused")},
		dialOutcome{err: errors.New("refused")},
	)

	m, states := newTestManager(t, testConfig(), dialer, fastSchedule(2))

	m.Connect()
	waitState(t, states, models.StateError)
	assert.Contains(t, m.Diagnostic(), "gave up")

	// Initial attempt plus two retries, then nothing
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, dialer.callCount())
}

func TestManagerConnectAfterCeilingStartsFresh(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{}
	dialer.queue(dialOutcome{err: errors.New("refused")})

	m, states := newTestManager(t, testConfig(), dialer, fastSchedule(1))

	m.Connect()
	waitState(t, states, models.StateError)

	dialer.queue(dialOutcome{conn: conn})
	m.Connect()
	waitState(t, states, models.StateConnected)
	assert.Empty(t, m.Diagnostic())
}

func TestManagerDoesNotRetryServerRejection(t *testing.T) {
	cases := []struct {
		name string
		code int
	}{
		{"invalid chat", constants.CloseCodeInvalidChat},
		{"auth rejected", constants.CloseCodeAuthRejected},
		{"rate limited", constants.CloseCodeRateLimited},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn := newFakeConn()
			dialer := &fakeDialer{}
			dialer.queue(dialOutcome{conn: conn})

			m, states := newTestManager(t, testConfig(), dialer, fastSchedule(5))

			credentialInvalid := make(chan struct{}, 1)
			m.SetOnCredentialInvalid(func() { credentialInvalid <- struct{}{} })

			m.Connect()
			waitState(t, states, models.StateConnected)

			conn.failRead <- &types.CloseError{Code: tc.code, Reason: "rejected"}
			waitState(t, states, models.StateDisconnected)
			assert.NotEmpty(t, m.Diagnostic())

			time.Sleep(50 * time.Millisecond)
			assert.Equal(t, 1, dialer.callCount(), "rejection must not schedule a reconnect")

			select {
			case <-credentialInvalid:
				assert.Equal(t, constants.CloseCodeAuthRejected, tc.code)
			default:
				assert.NotEqual(t, constants.CloseCodeAuthRejected, tc.code)
			}
		})
	}
}

func TestManagerDisconnectSuppressesReconnect(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{}
	dialer.queue(dialOutcome{conn: conn})

	m, states := newTestManager(t, testConfig(), dialer, fastSchedule(5))

	m.Connect()
	waitState(t, states, models.StateConnected)

	m.Disconnect()
	waitState(t, states, models.StateDisconnected)
	assert.Empty(t, m.Diagnostic())

	// Repeated disconnects are harmless
	m.Disconnect()
	m.Disconnect()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, models.StateDisconnected, m.State())
	assert.Equal(t, 1, dialer.callCount())
}

func TestManagerDropsMalformedFramesAndStaysUp(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{}
	dialer.queue(dialOutcome{conn: conn})

	m, states := newTestManager(t, testConfig(), dialer, fastSchedule(3))

	m.Connect()
	waitState(t, states, models.StateConnected)

	conn.inbound <- []byte(`{not json`)
	conn.inbound <- []byte(`{"id":"x"}`)
	conn.inbound <- inboundFrame("m1", "amy", "still here", "2026-08-25T10:00:00Z")

	require.Eventually(t, func() bool {
		feed := m.Feed(nil)
		return len(feed) == 1 && feed[0].ID == "m1"
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, models.StateConnected, m.State())
}

func TestManagerDiscardsPongFrames(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{}
	dialer.queue(dialOutcome{conn: conn})

	m, states := newTestManager(t, testConfig(), dialer, fastSchedule(3))

	m.Connect()
	waitState(t, states, models.StateConnected)

	conn.inbound <- []byte(`{"type":"pong"}`)
	conn.inbound <- inboundFrame("m1", "amy", "hi", "2026-08-25T10:00:00Z")

	require.Eventually(t, func() bool {
		return len(m.Feed(nil)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "m1", m.Feed(nil)[0].ID)
}

func TestManagerSendsHeartbeatPings(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{}
	dialer.queue(dialOutcome{conn: conn})

	cfg := testConfig()
	cfg.HeartbeatInterval = 20 * time.Millisecond

	m, states := newTestManager(t, cfg, dialer, fastSchedule(3))

	m.Connect()
	waitState(t, states, models.StateConnected)

	for i := 0; i < 2; i++ {
		var frame types.ControlFrame
		require.NoError(t, json.Unmarshal(waitWrite(t, conn), &frame))
		assert.Equal(t, types.FrameTypePing, frame.Type)
	}
}

func TestManagerFeedMergesHistoryWithLiveStore(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{}
	dialer.queue(dialOutcome{conn: conn})

	m, states := newTestManager(t, testConfig(), dialer, fastSchedule(3))

	m.Connect()
	waitState(t, states, models.StateConnected)

	conn.inbound <- inboundFrame("m2", "amy", "live copy", "2026-08-25T10:01:00Z")
	conn.inbound <- inboundFrame("m3", "bob", "newest", "2026-08-25T10:02:00Z")

	require.Eventually(t, func() bool {
		return len(m.Feed(nil)) == 2
	}, 2*time.Second, 10*time.Millisecond)

	history := []models.Message{
		{ID: "m1", ChatID: "general", Sender: "amy", Content: "oldest", Timestamp: "2026-08-25T10:00:00Z"},
		{ID: "m2", ChatID: "general", Sender: "amy", Content: "history copy", Timestamp: "2026-08-25T10:01:00Z"},
	}

	feed := m.Feed(history)
	require.Len(t, feed, 3)
	assert.Equal(t, "m1", feed[0].ID)
	assert.Equal(t, "m2", feed[1].ID)
	assert.Equal(t, "live copy", feed[1].Content, "live copy wins over history for the same ID")
	assert.Equal(t, "m3", feed[2].ID)
}

func TestManagerClearStore(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{}
	dialer.queue(dialOutcome{conn: conn})

	m, states := newTestManager(t, testConfig(), dialer, fastSchedule(3))

	m.Connect()
	waitState(t, states, models.StateConnected)

	conn.inbound <- inboundFrame("m1", "amy", "hi", "2026-08-25T10:00:00Z")
	require.Eventually(t, func() bool {
		return len(m.Feed(nil)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	m.ClearStore()
	assert.Empty(t, m.Feed(nil))
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.BaseURL = "ftp://chat.example.com"

	_, err := channel.NewManager(cfg, &fakeDialer{}, nil, nil, nil, quietLogger())
	assert.Error(t, err)
}
