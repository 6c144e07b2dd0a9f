package transport

import (
	"context"
	"time"

	"github.com/ExclusiveAccount/discovery-engine/internal/apperr"
	"github.com/ExclusiveAccount/discovery-engine/internal/engine"
	"github.com/ExclusiveAccount/discovery-engine/internal/store"
)

// Proxy is the transport-backed variant of engine.Service (spec §9): the
// request domain holds a Proxy, never an *engine.Engine directly, so it
// never blocks on a socket or an SSH session itself — only on a channel
// reply with a bounded wait.
type Proxy struct {
	pool      *Pool
	replyWait time.Duration
}

// NewProxy wraps pool with a reply-wait timeout. If replyWait <= 0 it
// defaults to 5s, matching the SSH-stage per-host timeout as a reasonable
// worst case for a control-plane round trip that doesn't itself do I/O.
func NewProxy(pool *Pool, replyWait time.Duration) *Proxy {
	if replyWait <= 0 {
		replyWait = 5 * time.Second
	}
	return &Proxy{pool: pool, replyWait: replyWait}
}

func (p *Proxy) StartDiscovery(ctx context.Context, req engine.StartRequest, owner string) (string, error) {
	reply := make(chan startReply, 1)
	select {
	case p.pool.startCh <- startRequest{req: req, owner: owner, reply: reply}:
	case <-p.timeout(ctx):
		return "", apperr.New(apperr.TransportFailure, "no discovery worker accepted the request")
	}

	select {
	case r := <-reply:
		return r.jobID, r.err
	case <-p.timeout(ctx):
		return "", apperr.New(apperr.TransportFailure, "discovery worker did not reply in time")
	}
}

func (p *Proxy) GetDiscoveryStatus(ctx context.Context, jobID, owner string) (*store.DiscoveryJob, error) {
	reply := make(chan statusReply, 1)
	select {
	case p.pool.statusCh <- statusRequest{jobID: jobID, owner: owner, reply: reply}:
	case <-p.timeout(ctx):
		return nil, apperr.New(apperr.TransportFailure, "no discovery worker accepted the request")
	}

	select {
	case r := <-reply:
		return r.job, r.err
	case <-p.timeout(ctx):
		return nil, apperr.New(apperr.TransportFailure, "discovery worker did not reply in time")
	}
}

func (p *Proxy) GetDiscoveryResults(ctx context.Context, jobID, owner string) ([]store.Device, error) {
	reply := make(chan resultsReply, 1)
	select {
	case p.pool.resultsCh <- resultsRequest{jobID: jobID, owner: owner, reply: reply}:
	case <-p.timeout(ctx):
		return nil, apperr.New(apperr.TransportFailure, "no discovery worker accepted the request")
	}

	select {
	case r := <-reply:
		return r.devices, r.err
	case <-p.timeout(ctx):
		return nil, apperr.New(apperr.TransportFailure, "discovery worker did not reply in time")
	}
}

func (p *Proxy) CancelDiscovery(ctx context.Context, jobID, owner string) error {
	reply := make(chan error, 1)
	select {
	case p.pool.cancelCh <- cancelRequest{jobID: jobID, owner: owner, reply: reply}:
	case <-p.timeout(ctx):
		return apperr.New(apperr.TransportFailure, "no discovery worker accepted the request")
	}

	select {
	case err := <-reply:
		return err
	case <-p.timeout(ctx):
		return apperr.New(apperr.TransportFailure, "discovery worker did not reply in time")
	}
}

func (p *Proxy) timeout(ctx context.Context) <-chan time.Time {
	if dl, ok := ctx.Deadline(); ok {
		return time.After(time.Until(dl))
	}
	return time.After(p.replyWait)
}

var _ engine.Service = (*Proxy)(nil)
