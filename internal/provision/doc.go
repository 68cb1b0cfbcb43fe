// Package provision issues device provisioning requests over MQTT and
// correlates each response with the request that caused it.
//
// The broker answers every request on one shared response topic and the
// response carries no request identifier. Correlation is therefore done
// by ordering: a Provisioner publishes request N+1 only after request N
// has been decided (SUCCESS, ERROR or TIMEOUT) and recorded. The
// Correlator holds at most one pending request; a response that arrives
// when nothing is pending is dropped.
//
// The paho delivery goroutine and the batch goroutine meet only in the
// Correlator: Arm creates the pending slot with a capacity-one result
// channel, HandleMessage fills it at most once, and Ticket.Await drains
// it or times out and clears the slot under the lock. A response that
// arrives before Await starts waits in the channel.
//
// Usage:
//
//	requests, err := provision.GenerateRequests(cfg, provision.NewNameGenerator("ESP32", 6))
//	p := provision.New(cfg, dial, recorder, provision.WithLogger(log))
//	summary, err := p.Run(ctx, requests)
//	if errors.Is(err, provision.ErrTransportFatal) {
//	    // no device was attempted
//	}
package provision
