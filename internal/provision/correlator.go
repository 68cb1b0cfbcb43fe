package provision

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-provisioner/internal/report"
)

// response is the JSON published by the platform on the response topic.
type response struct {
	Status           string `json:"status"`
	CredentialsValue string `json:"credentialsValue"`
	CredentialsType  string `json:"credentialsType"`
	ErrorMsg         string `json:"errorMsg"`
}

// pending is the single in-flight request.
type pending struct {
	device    string
	result    chan report.Outcome
	delivered bool
}

// Correlator pairs responses on the shared response topic with the one
// request currently awaiting an answer.
//
// Thread Safety: HandleMessage may be called from any goroutine. Arm and
// Await are called from the batch goroutine.
type Correlator struct {
	successStatus string
	logger        Logger

	mu   sync.Mutex
	slot *pending
}

// NewCorrelator creates a Correlator. A response is SUCCESS when its
// status equals successStatus and it carries a credential.
func NewCorrelator(successStatus string, logger Logger) *Correlator {
	if successStatus == "" {
		successStatus = DefaultSuccessStatus
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &Correlator{successStatus: successStatus, logger: logger}
}

// Ticket is the handle for one armed request. It is used once.
type Ticket struct {
	c       *Correlator
	p       *pending
	armedAt time.Time
}

// Arm opens the slot for deviceName. It must happen before the request
// is published so an early response is not lost.
func (c *Correlator) Arm(deviceName string) (*Ticket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.slot != nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyArmed, c.slot.device)
	}

	p := &pending{device: deviceName, result: make(chan report.Outcome, 1)}
	c.slot = p
	return &Ticket{c: c, p: p, armedAt: time.Now()}, nil
}

// Armed reports whether a request is pending.
func (c *Correlator) Armed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot != nil
}

// HandleMessage is the subscription handler for the response topic.
//
// Payloads that are not a JSON object return ErrMalformedResponse and
// leave the slot armed. Responses with nothing pending, and repeats for
// an already answered request, are dropped.
func (c *Correlator) HandleMessage(topic string, payload []byte) error {
	var resp *response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("%w on %s: %w", ErrMalformedResponse, topic, err)
	}
	if resp == nil {
		return fmt.Errorf("%w on %s: null payload", ErrMalformedResponse, topic)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.slot
	if p == nil {
		c.logger.Debug("dropping response with no pending request",
			"topic", topic,
			"status", resp.Status,
		)
		return nil
	}
	if p.delivered {
		c.logger.Debug("dropping repeated response",
			"device", p.device,
			"status", resp.Status,
		)
		return nil
	}

	p.delivered = true
	p.result <- c.classify(p.device, resp)
	return nil
}

func (c *Correlator) classify(device string, resp *response) report.Outcome {
	if resp.Status == c.successStatus && resp.CredentialsValue != "" {
		return report.Outcome{
			DeviceName: device,
			Status:     report.StatusSuccess,
			Token:      resp.CredentialsValue,
		}
	}

	msg := resp.ErrorMsg
	switch {
	case msg != "":
	case resp.Status == c.successStatus:
		msg = "success status without credentials"
	default:
		msg = fmt.Sprintf("non-success status %q", resp.Status)
	}
	return report.Outcome{
		DeviceName: device,
		Status:     report.StatusError,
		ErrorMsg:   msg,
	}
}

// release clears the slot if it still belongs to p.
func (c *Correlator) release(p *pending) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.slot == p {
		c.slot = nil
	}
}

// Await blocks until the response for this ticket is handed off or the
// timeout elapses, then clears the slot. A response arriving after the
// timeout finds no slot and is dropped.
func (t *Ticket) Await(timeout time.Duration) report.Outcome {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var outcome report.Outcome
	select {
	case outcome = <-t.p.result:
	case <-timer.C:
		outcome = report.Outcome{
			DeviceName: t.p.device,
			Status:     report.StatusTimeout,
			ErrorMsg:   fmt.Sprintf("no response in %s", timeout),
		}
	}

	t.c.release(t.p)
	outcome.Latency = time.Since(t.armedAt)
	return outcome
}

// Abandon clears the slot without waiting. Used when the request could
// not be published.
func (t *Ticket) Abandon() {
	t.c.release(t.p)
}
