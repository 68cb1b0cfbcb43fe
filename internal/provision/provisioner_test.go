package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-provisioner/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-provisioner/internal/report"
)

// eventLog records the order of publishes and recorded outcomes.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// fakeTransport stands in for the broker session. respond is called for
// each publish with the request index and a function that delivers a
// payload on the response topic.
type fakeTransport struct {
	log          *eventLog
	subscribeErr error
	healthErr    error
	publishErr   func(n int) error
	respond      func(n int, deliver func(payload string))

	mu          sync.Mutex
	handler     mqtt.MessageHandler
	published   []requestPayload
	handlerErrs []error
	teardown    []string
	closed      bool
}

func (f *fakeTransport) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
	return nil
}

func (f *fakeTransport) Publish(topic string, payload []byte, _ byte, _ bool) error {
	var req requestPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return err
	}

	f.mu.Lock()
	n := len(f.published)
	f.published = append(f.published, req)
	handler := f.handler
	f.mu.Unlock()

	if f.publishErr != nil {
		if err := f.publishErr(n); err != nil {
			return err
		}
	}
	if f.log != nil {
		f.log.add("publish:" + req.DeviceName)
	}
	if f.respond != nil {
		f.respond(n, func(p string) {
			err := handler(responseTopic, []byte(p))
			f.mu.Lock()
			f.handlerErrs = append(f.handlerErrs, err)
			f.mu.Unlock()
		})
	}
	return nil
}

func (f *fakeTransport) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = nil
	f.teardown = append(f.teardown, "unsubscribe:"+topic)
	return nil
}

func (f *fakeTransport) HealthCheck(context.Context) error {
	return f.healthErr
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.teardown = append(f.teardown, "close")
	return nil
}

// warnLog captures warnings by message.
type warnLog struct {
	mu    sync.Mutex
	warns []string
}

func (l *warnLog) Debug(string, ...any) {}
func (l *warnLog) Info(string, ...any)  {}

func (l *warnLog) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (f *fakeTransport) publishCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

type recordingSink struct {
	log *eventLog
	err error

	mu   sync.Mutex
	rows []report.Outcome
}

func (s *recordingSink) Append(_ context.Context, o report.Outcome) error {
	s.mu.Lock()
	s.rows = append(s.rows, o)
	s.mu.Unlock()
	if s.log != nil {
		s.log.add("record:" + o.DeviceName)
	}
	return s.err
}

func (s *recordingSink) outcomes() []report.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]report.Outcome(nil), s.rows...)
}

func testConfig(timeout time.Duration) Config {
	return Config{
		Key:           "o75uyb2brk34dvrcu9dh",
		Secret:        "r2id29fu6ttstc1lvxn6",
		RequestTopic:  mqtt.TopicProvisionRequest,
		ResponseTopic: mqtt.TopicProvisionResponse,
		QoS:           1,
		DeviceTimeout: timeout,
	}
}

func testRequests(t *testing.T, cfg Config, n int) []DeviceRequest {
	t.Helper()
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("dev-%d", i+1)
	}
	reqs, err := SuppliedRequests(cfg, names)
	require.NoError(t, err)
	return reqs
}

func dialer(tr Transport) DialFunc {
	return func(context.Context) (Transport, error) { return tr, nil }
}

func successFor(n int) string {
	return fmt.Sprintf(`{"status":"SUCCESS","credentialsValue":"tok%d","credentialsType":"ACCESS_TOKEN"}`, n+1)
}

func TestRun_MixedOutcomes(t *testing.T) {
	cfg := testConfig(100 * time.Millisecond)
	tr := &fakeTransport{
		respond: func(n int, deliver func(string)) {
			switch n {
			case 0:
				deliver(successFor(0))
			case 2:
				deliver(`{"status":"FAILURE","errorMsg":"duplicate"}`)
			}
		},
	}
	sink := &recordingSink{}

	summary, err := New(cfg, dialer(tr), sink).Run(context.Background(), testRequests(t, cfg, 3))
	require.NoError(t, err)

	rows := sink.outcomes()
	require.Len(t, rows, 3)

	assert.Equal(t, "dev-1", rows[0].DeviceName)
	assert.Equal(t, report.StatusSuccess, rows[0].Status)
	assert.Equal(t, "tok1", rows[0].Token)

	assert.Equal(t, "dev-2", rows[1].DeviceName)
	assert.Equal(t, report.StatusTimeout, rows[1].Status)
	assert.Empty(t, rows[1].Token)
	assert.Equal(t, "no response in 100ms", rows[1].ErrorMsg)

	assert.Equal(t, "dev-3", rows[2].DeviceName)
	assert.Equal(t, report.StatusError, rows[2].Status)
	assert.Equal(t, "duplicate", rows[2].ErrorMsg)

	assert.Equal(t, report.Summary{Total: 3, Success: 1, Error: 1, Timeout: 1}, summary)
	assert.True(t, tr.closed)
}

func TestRun_DelayedResponseStaysWithItsDevice(t *testing.T) {
	cfg := testConfig(time.Second)
	log := &eventLog{}
	tr := &fakeTransport{
		log: log,
		respond: func(n int, deliver func(string)) {
			if n == 0 {
				go func() {
					time.Sleep(50 * time.Millisecond)
					deliver(successFor(0))
				}()
				return
			}
			deliver(successFor(n))
		},
	}
	sink := &recordingSink{log: log}

	_, err := New(cfg, dialer(tr), sink).Run(context.Background(), testRequests(t, cfg, 2))
	require.NoError(t, err)

	rows := sink.outcomes()
	require.Len(t, rows, 2)
	assert.Equal(t, "tok1", rows[0].Token)
	assert.Equal(t, "tok2", rows[1].Token)

	assert.Equal(t, []string{
		"publish:dev-1", "record:dev-1",
		"publish:dev-2", "record:dev-2",
	}, log.snapshot())
}

func TestRun_LateResponseDoesNotOverrideTimeout(t *testing.T) {
	cfg := testConfig(30 * time.Millisecond)
	delivered := make(chan struct{})
	tr := &fakeTransport{
		respond: func(n int, deliver func(string)) {
			go func() {
				defer close(delivered)
				time.Sleep(120 * time.Millisecond)
				deliver(successFor(n))
			}()
		},
	}
	sink := &recordingSink{}

	summary, err := New(cfg, dialer(tr), sink).Run(context.Background(), testRequests(t, cfg, 1))
	require.NoError(t, err)

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("late response was never delivered")
	}

	rows := sink.outcomes()
	require.Len(t, rows, 1)
	assert.Equal(t, report.StatusTimeout, rows[0].Status)
	assert.Empty(t, rows[0].Token)
	assert.Equal(t, 1, summary.Timeout)
}

func TestRun_MalformedResponse(t *testing.T) {
	t.Run("followed by a valid response", func(t *testing.T) {
		cfg := testConfig(time.Second)
		tr := &fakeTransport{
			respond: func(n int, deliver func(string)) {
				deliver("{not json")
				deliver(successFor(n))
			},
		}
		sink := &recordingSink{}

		_, err := New(cfg, dialer(tr), sink).Run(context.Background(), testRequests(t, cfg, 1))
		require.NoError(t, err)

		rows := sink.outcomes()
		require.Len(t, rows, 1)
		assert.Equal(t, report.StatusSuccess, rows[0].Status)
		require.Len(t, tr.handlerErrs, 2)
		assert.ErrorIs(t, tr.handlerErrs[0], ErrMalformedResponse)
		assert.NoError(t, tr.handlerErrs[1])
	})

	t.Run("alone", func(t *testing.T) {
		cfg := testConfig(30 * time.Millisecond)
		tr := &fakeTransport{
			respond: func(_ int, deliver func(string)) { deliver("garbage") },
		}
		sink := &recordingSink{}

		_, err := New(cfg, dialer(tr), sink).Run(context.Background(), testRequests(t, cfg, 1))
		require.NoError(t, err)

		rows := sink.outcomes()
		require.Len(t, rows, 1)
		assert.Equal(t, report.StatusTimeout, rows[0].Status)
	})
}

func TestRun_DialFailure(t *testing.T) {
	cfg := testConfig(time.Second)
	sink := &recordingSink{}
	dial := func(context.Context) (Transport, error) {
		return nil, mqtt.ErrConnectionFailed
	}

	summary, err := New(cfg, dial, sink).Run(context.Background(), testRequests(t, cfg, 3))

	assert.ErrorIs(t, err, ErrTransportFatal)
	assert.ErrorIs(t, err, mqtt.ErrConnectionFailed)
	assert.Empty(t, sink.outcomes())
	assert.Zero(t, summary.Total)
}

func TestRun_SubscribeFailure(t *testing.T) {
	cfg := testConfig(time.Second)
	tr := &fakeTransport{subscribeErr: mqtt.ErrSubscribeFailed}
	sink := &recordingSink{}

	_, err := New(cfg, dialer(tr), sink).Run(context.Background(), testRequests(t, cfg, 3))

	assert.ErrorIs(t, err, ErrTransportFatal)
	assert.Zero(t, tr.publishCount())
	assert.Empty(t, sink.outcomes())
	assert.True(t, tr.closed)
}

func TestRun_PublishFailure(t *testing.T) {
	cfg := testConfig(time.Second)
	tr := &fakeTransport{
		publishErr: func(n int) error {
			if n == 0 {
				return mqtt.ErrNotConnected
			}
			return nil
		},
		respond: func(n int, deliver func(string)) { deliver(successFor(n)) },
	}
	sink := &recordingSink{}

	summary, err := New(cfg, dialer(tr), sink).Run(context.Background(), testRequests(t, cfg, 2))
	require.NoError(t, err)

	rows := sink.outcomes()
	require.Len(t, rows, 2)
	assert.Equal(t, report.StatusError, rows[0].Status)
	assert.Contains(t, rows[0].ErrorMsg, "publish failed")
	assert.Equal(t, report.StatusSuccess, rows[1].Status)
	assert.Equal(t, "tok2", rows[1].Token)
	assert.Equal(t, 1, summary.Error)
}

func TestRun_InterruptedBetweenDevices(t *testing.T) {
	cfg := testConfig(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := &fakeTransport{
		respond: func(n int, deliver func(string)) {
			if n == 1 {
				cancel()
			}
			deliver(successFor(n))
		},
	}
	sink := &recordingSink{}

	summary, err := New(cfg, dialer(tr), sink).Run(ctx, testRequests(t, cfg, 4))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.ErrorIs(t, err, context.Canceled)

	// The device in flight when the abort arrived is still recorded.
	rows := sink.outcomes()
	require.Len(t, rows, 2)
	assert.Equal(t, report.StatusSuccess, rows[1].Status)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, tr.publishCount())
	assert.True(t, tr.closed)
}

func TestRun_OneRowPerDevice(t *testing.T) {
	const devices = 20
	cfg := testConfig(20 * time.Millisecond)
	tr := &fakeTransport{
		respond: func(n int, deliver func(string)) {
			switch n % 3 {
			case 0:
				deliver(successFor(n))
			case 1:
				deliver(`{"status":"FAILURE","errorMsg":"rejected"}`)
			}
		},
	}
	sink := &recordingSink{}

	requests := testRequests(t, cfg, devices)
	summary, err := New(cfg, dialer(tr), sink).Run(context.Background(), requests)
	require.NoError(t, err)

	rows := sink.outcomes()
	require.Len(t, rows, devices)
	for i, row := range rows {
		assert.Equal(t, requests[i].Name, row.DeviceName)
		if row.Status == report.StatusSuccess {
			assert.NotEmpty(t, row.Token)
		} else {
			assert.Empty(t, row.Token)
		}
	}
	assert.Equal(t, devices, summary.Success+summary.Error+summary.Timeout)
}

func TestRun_RequestPayload(t *testing.T) {
	cfg := testConfig(time.Second)
	tr := &fakeTransport{
		respond: func(n int, deliver func(string)) { deliver(successFor(n)) },
	}

	_, err := New(cfg, dialer(tr), &recordingSink{}).Run(context.Background(), testRequests(t, cfg, 1))
	require.NoError(t, err)

	require.Len(t, tr.published, 1)
	assert.Equal(t, requestPayload{
		ProvisionKey:    cfg.Key,
		ProvisionSecret: cfg.Secret,
		DeviceName:      "dev-1",
	}, tr.published[0])
}

func TestRun_SinkErrorDoesNotStopBatch(t *testing.T) {
	cfg := testConfig(time.Second)
	tr := &fakeTransport{
		respond: func(n int, deliver func(string)) { deliver(successFor(n)) },
	}
	sink := &recordingSink{err: errors.New("disk full")}

	summary, err := New(cfg, dialer(tr), sink).Run(context.Background(), testRequests(t, cfg, 3))
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Success)
	assert.Len(t, sink.outcomes(), 3)
}

func TestRun_RecordsWithLiveContextAfterAbort(t *testing.T) {
	cfg := testConfig(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := &fakeTransport{
		respond: func(n int, deliver func(string)) {
			cancel()
			deliver(successFor(n))
		},
	}
	var sawCancelled bool
	sink := sinkFunc(func(ctx context.Context, _ report.Outcome) error {
		sawCancelled = ctx.Err() != nil
		return nil
	})

	_, err := New(cfg, dialer(tr), sink).Run(ctx, testRequests(t, cfg, 2))
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.False(t, sawCancelled)
}

type sinkFunc func(ctx context.Context, o report.Outcome) error

func (f sinkFunc) Append(ctx context.Context, o report.Outcome) error { return f(ctx, o) }

func TestRun_UnsubscribesBeforeClose(t *testing.T) {
	cfg := testConfig(10 * time.Millisecond)
	tr := &fakeTransport{}

	_, err := New(cfg, dialer(tr), &recordingSink{}).Run(context.Background(), testRequests(t, cfg, 1))
	require.NoError(t, err)

	assert.Equal(t, []string{"unsubscribe:" + responseTopic, "close"}, tr.teardown)
}

func TestRun_SubscribeFailureSkipsUnsubscribe(t *testing.T) {
	cfg := testConfig(10 * time.Millisecond)
	tr := &fakeTransport{subscribeErr: errors.New("not authorized")}

	_, err := New(cfg, dialer(tr), &recordingSink{}).Run(context.Background(), testRequests(t, cfg, 1))
	require.ErrorIs(t, err, ErrTransportFatal)

	assert.Equal(t, []string{"close"}, tr.teardown)
}

func TestRun_LostSessionIsLogged(t *testing.T) {
	cfg := testConfig(10 * time.Millisecond)
	tr := &fakeTransport{
		healthErr:  mqtt.ErrNotConnected,
		publishErr: func(int) error { return mqtt.ErrNotConnected },
	}
	sink := &recordingSink{}
	logs := &warnLog{}

	summary, err := New(cfg, dialer(tr), sink, WithLogger(logs)).Run(context.Background(), testRequests(t, cfg, 2))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Error)
	assert.Contains(t, logs.warns, "provisioning session not connected")
	for _, row := range sink.outcomes() {
		assert.Contains(t, row.ErrorMsg, "publish failed")
	}
}
