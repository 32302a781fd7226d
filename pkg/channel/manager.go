// Package channel owns the live chat channel: connect, heartbeat, reconnect
// with backoff, inbound frame intake and outbound flushing. One Manager is
// bound to one chat identifier; switching chats means tearing this one down
// and constructing another, so two live channels for the same chat can never
// coexist.
package channel

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"chatlink/internal/constants"
	apperrors "chatlink/internal/errors"
	"chatlink/internal/metrics"
	"chatlink/internal/models"
	"chatlink/internal/queue"
	"chatlink/internal/reconcile"
	"chatlink/internal/retry"
	"chatlink/internal/store"
	"chatlink/internal/tracing"
	"chatlink/internal/validation"
	"chatlink/pkg/channel/types"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Config binds a Manager to one chat.
type Config struct {
	BaseURL    string
	ChatID     string
	Credential string
	Sender     string

	HeartbeatInterval time.Duration
	DialTimeout       time.Duration
	WriteTimeout      time.Duration
}

type eventKind int

const (
	evConnect eventKind = iota
	evDisconnect
	evSend
	evDialOK
	evDialErr
	evFrame
	evReadErr
	evBackoffFire
	evHeartbeatTick
)

// event is one unit of work for the manager loop. Connection-scoped events
// carry the generation they belong to; events from a torn-down generation
// are inert.
type event struct {
	kind eventKind
	gen  uint64
	conn types.Conn
	data []byte
	msg  models.Message
	err  error
}

// Manager drives the channel lifecycle. All state transitions, timer
// callbacks and inbound frames are handled on a single event-loop goroutine,
// so no two handlers ever run concurrently.
type Manager struct {
	cfg      Config
	target   string
	dialer   types.Dialer
	schedule *retry.Schedule
	store    *store.Store
	queue    *queue.Queue
	logger   *logrus.Logger
	registry *metrics.Registry

	onState             func(models.ConnectionState, string)
	onCredentialInvalid func()

	mu    sync.RWMutex
	state models.ConnectionState
	diag  string

	events     chan event
	loopCtx    context.Context
	loopCancel context.CancelFunc
	wg         sync.WaitGroup
	closeOnce  sync.Once

	// Loop-owned fields, touched only from the run goroutine
	gen            uint64
	conn           types.Conn
	readCancel     context.CancelFunc
	attempts       int
	manualClose    bool
	backoffTimer   *time.Timer
	heartbeatTimer *time.Timer
}

// NewManager creates a manager for one chat and starts its event loop.
// A malformed base URL fails here, before any connection attempt.
func NewManager(cfg Config, dialer types.Dialer, st *store.Store, q *queue.Queue, schedule *retry.Schedule, logger *logrus.Logger) (*Manager, error) {
	target, err := BuildTarget(cfg.BaseURL, cfg.ChatID, cfg.Credential)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	if cfg.Sender == "" {
		cfg.Sender = "me"
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = constants.DefaultHeartbeatIntervalSec * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = constants.DefaultDialTimeoutSec * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = constants.DefaultWriteTimeoutSec * time.Second
	}
	if schedule == nil {
		schedule = retry.DefaultSchedule()
	}
	if st == nil {
		st = store.New(0)
	}
	if q == nil {
		q = queue.New(logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:        cfg,
		target:     target,
		dialer:     dialer,
		schedule:   schedule,
		store:      st,
		queue:      q,
		logger:     logger,
		state:      models.StateDisconnected,
		events:     make(chan event, 128),
		loopCtx:    ctx,
		loopCancel: cancel,
	}

	m.wg.Add(1)
	go m.run()

	return m, nil
}

// SetOnStateChange registers a state observation hook. Must be called before
// Connect.
func (m *Manager) SetOnStateChange(fn func(models.ConnectionState, string)) {
	m.onState = fn
}

// SetOnCredentialInvalid registers the credential-invalid signal, raised on
// an authentication rejection so the embedder can force re-authentication.
// Must be called before Connect.
func (m *Manager) SetOnCredentialInvalid(fn func()) {
	m.onCredentialInvalid = fn
}

// SetMetrics registers a metrics registry. Must be called before Connect.
func (m *Manager) SetMetrics(registry *metrics.Registry) {
	m.registry = registry
}

// Connect opens the channel. Any previous channel for this manager is torn
// down first. Calling Connect after the retry ceiling was reached starts a
// fresh attempt sequence.
func (m *Manager) Connect() {
	m.post(event{kind: evConnect})
}

// Disconnect closes the channel intentionally, suppressing auto-reconnect.
// Idempotent; safe to call when already disconnected.
func (m *Manager) Disconnect() {
	m.post(event{kind: evDisconnect})
}

// Close disconnects and stops the event loop. The manager cannot be reused
// afterwards.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.loopCancel()
		m.wg.Wait()
	})
}

// Send validates caller-composed text and transmits it immediately when
// connected, or queues it otherwise. The returned bool reports "queued, not
// yet delivered". Validation failures are returned to the caller, never
// silently dropped.
func (m *Manager) Send(text string) (bool, error) {
	if err := validation.ValidateOutbound(text); err != nil {
		return false, err
	}

	msg := models.Message{
		ID:          newMessageID(),
		ChatID:      m.cfg.ChatID,
		Sender:      m.cfg.Sender,
		Content:     text,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		ContentType: "text",
	}

	if m.State() != models.StateConnected {
		m.queue.Enqueue(msg)
		m.count("messages_queued", "outbound messages held while disconnected")
		return true, nil
	}

	m.post(event{kind: evSend, msg: msg})
	return false, nil
}

// State returns the current connection state.
func (m *Manager) State() models.ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Diagnostic returns the current user-facing diagnostic, empty when none.
func (m *Manager) Diagnostic() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.diag
}

// Feed merges separately fetched history with the live inbound store into
// the deduplicated, time-ordered feed. Recomputed on every call.
func (m *Manager) Feed(historical []models.Message) []models.Message {
	return reconcile.Merge(historical, m.store.Snapshot())
}

// ClearStore empties the inbound store, e.g. when the caller leaves the chat.
func (m *Manager) ClearStore() {
	m.store.Clear()
}

// QueueLen returns the number of outbound messages awaiting transmission.
func (m *Manager) QueueLen() int {
	return m.queue.Len()
}

// ChatID returns the chat this manager is bound to.
func (m *Manager) ChatID() string {
	return m.cfg.ChatID
}

func (m *Manager) post(ev event) {
	select {
	case m.events <- ev:
	case <-m.loopCtx.Done():
	}
}

func (m *Manager) run() {
	defer m.wg.Done()
	for {
		select {
		case <-m.loopCtx.Done():
			m.teardown(true)
			return
		case ev := <-m.events:
			m.handle(ev)
		}
	}
}

func (m *Manager) handle(ev event) {
	if ev.gen != 0 && ev.gen != m.gen {
		// Stale event from a torn-down connection
		if ev.conn != nil {
			_ = ev.conn.Close()
		}
		return
	}

	switch ev.kind {
	case evConnect:
		m.handleConnect()
	case evDisconnect:
		m.teardown(true)
	case evSend:
		m.handleSend(ev.msg)
	case evDialOK:
		m.handleDialOK(ev.conn)
	case evDialErr:
		m.handleChannelFailure("dial", ev.err)
	case evFrame:
		m.handleFrame(ev.data)
	case evReadErr:
		m.handleChannelFailure("read", ev.err)
	case evBackoffFire:
		m.handleBackoffFire()
	case evHeartbeatTick:
		m.handleHeartbeatTick()
	}
}

func (m *Manager) handleConnect() {
	// A new channel for this chat first tears down the old one
	m.teardown(false)
	m.manualClose = false
	m.attempts = 0
	m.startDial()
}

// teardown cancels timers, stops the heartbeat, closes the channel and makes
// all in-flight connection events inert. When intentional, it also resets the
// retry counter and settles the state at disconnected.
func (m *Manager) teardown(intentional bool) {
	if m.backoffTimer != nil {
		m.backoffTimer.Stop()
		m.backoffTimer = nil
	}
	m.closeConn()
	if intentional {
		m.manualClose = true
		m.attempts = 0
		m.setState(models.StateDisconnected, "")
	}
}

func (m *Manager) closeConn() {
	m.stopHeartbeat()
	if m.readCancel != nil {
		m.readCancel()
		m.readCancel = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.gen++
}

func (m *Manager) startDial() {
	m.gen++
	g := m.gen
	attempt := m.attempts
	m.setState(models.StateConnecting, "")
	m.logger.WithFields(logrus.Fields{
		"chat_id": m.cfg.ChatID,
		"attempt": attempt,
	}).Info("Opening channel")

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(m.loopCtx, m.cfg.DialTimeout)
		defer cancel()

		ctx, span := tracing.StartSpan(ctx, "channel.dial",
			attribute.String("chat.id", m.cfg.ChatID),
			attribute.Int("dial.attempt", attempt))
		defer span.End()

		conn, err := m.dialer.Dial(ctx, m.target)
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				err = apperrors.NewTimeoutError("dial", m.cfg.DialTimeout.String())
			}
			tracing.RecordError(ctx, err)
			m.post(event{kind: evDialErr, gen: g, err: err})
			return
		}
		m.post(event{kind: evDialOK, gen: g, conn: conn})
	}()
}

func (m *Manager) handleDialOK(conn types.Conn) {
	if m.manualClose {
		_ = conn.Close()
		return
	}

	m.conn = conn
	m.attempts = 0
	m.setState(models.StateConnected, "")
	m.logger.WithField("chat_id", m.cfg.ChatID).Info("Channel open")

	m.startHeartbeat()
	m.startReader(conn)
	m.flushQueue()
}

func (m *Manager) startReader(conn types.Conn) {
	ctx, cancel := context.WithCancel(m.loopCtx)
	m.readCancel = cancel
	g := m.gen

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			data, err := conn.ReadMessage(ctx)
			if err != nil {
				m.post(event{kind: evReadErr, gen: g, err: err})
				return
			}
			m.post(event{kind: evFrame, gen: g, data: data})
		}
	}()
}

// flushQueue drains messages composed while disconnected, head-to-tail,
// before any newly composed message is transmitted. Send events posted after
// the reconnect queue behind this handler on the event loop, so FIFO order
// holds across reconnects.
func (m *Manager) flushQueue() {
	sent, err := m.queue.Drain(func(msg models.Message) error {
		return m.writeMessage(msg)
	})
	if sent > 0 {
		m.logger.WithFields(logrus.Fields{
			"chat_id": m.cfg.ChatID,
			"count":   sent,
		}).Info("Flushed queued outbound messages")
		m.registryAdd("messages_sent", float64(sent), "outbound messages transmitted")
	}
	if err != nil {
		m.handleChannelFailure("flush", err)
	}
}

func (m *Manager) handleSend(msg models.Message) {
	if m.conn == nil {
		m.queue.Enqueue(msg)
		m.count("messages_queued", "outbound messages held while disconnected")
		return
	}

	if err := m.writeMessage(msg); err != nil {
		// Keep the message; it flushes after reconnect
		m.queue.Enqueue(msg)
		m.count("messages_queued", "outbound messages held while disconnected")
		m.handleChannelFailure("send", err)
		return
	}
	m.count("messages_sent", "outbound messages transmitted")
}

func (m *Manager) handleFrame(data []byte) {
	m.count("frames_received", "inbound frames")

	if types.IsPong(data) {
		// Heartbeat acknowledgment, not a message
		return
	}

	msg, err := validation.ValidateInbound(data)
	if err != nil {
		// One bad frame never tears down the channel
		m.count("frames_dropped", "inbound frames rejected by validation")
		m.logger.WithError(err).WithField("chat_id", m.cfg.ChatID).Warn("Dropping malformed inbound frame")
		return
	}

	m.store.Append(*msg)
}

// handleChannelFailure is the single exit path for transport failures and
// server-signaled closes, whichever side of the handshake they occur on.
func (m *Manager) handleChannelFailure(op string, err error) {
	m.closeConn()

	if m.manualClose {
		return
	}

	if code, ok := types.CloseCode(err); ok {
		if rejection := rejectionFor(code, err); rejection != nil {
			m.count("rejections", "non-retryable server rejections")
			m.logger.WithError(rejection).WithFields(logrus.Fields{
				"chat_id":    m.cfg.ChatID,
				"close_code": code,
			}).Error("Server rejected channel, not retrying")
			m.setState(models.StateDisconnected, apperrors.GetUserMessage(rejection))
			if code == constants.CloseCodeAuthRejected && m.onCredentialInvalid != nil {
				m.onCredentialInvalid()
			}
			return
		}
	}

	m.scheduleRetry(op, err)
}

// rejectionFor maps server-signaled close codes that must not be retried.
func rejectionFor(code int, cause error) *apperrors.AppError {
	switch code {
	case constants.CloseCodeAuthRejected:
		return apperrors.NewAuthError(cause.Error())
	case constants.CloseCodeRateLimited:
		return apperrors.NewRateLimitError(cause.Error())
	case constants.CloseCodeInvalidChat:
		return apperrors.New(apperrors.ErrCodeInvalidInput, "server rejected chat ID").
			WithUserMessage("This chat is not available")
	default:
		return nil
	}
}

func (m *Manager) scheduleRetry(op string, err error) {
	if m.schedule.Exhausted(m.attempts) {
		diag := fmt.Sprintf("gave up after %d reconnect attempts", m.attempts)
		m.logger.WithError(err).WithFields(logrus.Fields{
			"chat_id":  m.cfg.ChatID,
			"attempts": m.attempts,
		}).Error("Reconnect attempts exhausted")
		m.setState(models.StateError, diag)
		return
	}

	delay := m.schedule.DelayFor(m.attempts + 1)
	terr := apperrors.NewTransportError(op, err)
	m.setState(models.StateReconnecting, fmt.Sprintf("channel %s failed: %v", op, err))
	m.logger.WithError(terr).WithFields(logrus.Fields{
		"chat_id": m.cfg.ChatID,
		"attempt": m.attempts + 1,
		"delay":   delay,
	}).Warn("Channel lost, scheduling reconnect")

	g := m.gen
	m.backoffTimer = time.AfterFunc(delay, func() {
		m.post(event{kind: evBackoffFire, gen: g})
	})
}

func (m *Manager) handleBackoffFire() {
	m.backoffTimer = nil
	if m.manualClose {
		return
	}
	m.attempts++
	m.count("reconnect_attempts", "automatic reconnect attempts")
	m.startDial()
}

func (m *Manager) startHeartbeat() {
	g := m.gen
	m.heartbeatTimer = time.AfterFunc(m.cfg.HeartbeatInterval, func() {
		m.post(event{kind: evHeartbeatTick, gen: g})
	})
}

func (m *Manager) stopHeartbeat() {
	if m.heartbeatTimer != nil {
		m.heartbeatTimer.Stop()
		m.heartbeatTimer = nil
	}
}

func (m *Manager) handleHeartbeatTick() {
	if m.conn == nil {
		return
	}
	if err := m.writeFrame(types.PingFrame); err != nil {
		m.handleChannelFailure("heartbeat", err)
		return
	}
	m.startHeartbeat()
}

func (m *Manager) writeMessage(msg models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return m.writeFrame(data)
}

func (m *Manager) writeFrame(data []byte) error {
	if m.conn == nil {
		return apperrors.New(apperrors.ErrCodeTransport, "channel is not open")
	}
	ctx, cancel := context.WithTimeout(m.loopCtx, m.cfg.WriteTimeout)
	defer cancel()
	return m.conn.WriteMessage(ctx, data)
}

func (m *Manager) setState(state models.ConnectionState, diag string) {
	m.mu.Lock()
	changed := m.state != state || m.diag != diag
	m.state = state
	m.diag = diag
	m.mu.Unlock()

	if !changed {
		return
	}
	if m.registry != nil {
		m.registry.SetGauge("connection_state", stateGaugeValue(state), "0=disconnected 1=connecting 2=connected 3=reconnecting 4=error")
	}
	if m.onState != nil {
		m.onState(state, diag)
	}
}

func stateGaugeValue(state models.ConnectionState) float64 {
	switch state {
	case models.StateConnecting:
		return 1
	case models.StateConnected:
		return 2
	case models.StateReconnecting:
		return 3
	case models.StateError:
		return 4
	default:
		return 0
	}
}

func (m *Manager) count(name, description string) {
	if m.registry != nil {
		m.registry.IncrementCounter(name, description)
	}
}

func (m *Manager) registryAdd(name string, value float64, description string) {
	if m.registry != nil {
		m.registry.AddToCounter(name, value, description)
	}
}

func newMessageID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("msg-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
