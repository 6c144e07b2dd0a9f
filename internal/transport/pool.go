package transport

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/discovery-engine/internal/engine"
)

// Pool is the bounded thread pool dedicated to discovery (spec §5), sized
// instances×poolSize. Each worker blocks freely on DB queries, probes, and
// SSH sessions; starting each request on the first idle worker is
// sufficient load balancing, so workers race on four shared channels
// rather than each owning a private queue.
type Pool struct {
	eng *engine.Engine
	log *logrus.Logger

	startCh   chan startRequest
	statusCh  chan statusRequest
	resultsCh chan resultsRequest
	cancelCh  chan cancelRequest

	stop chan struct{}
}

// NewPool builds a pool of `workers` goroutines around eng and starts them
// immediately. Channels are unbuffered: a request sits until some idle
// worker's select picks it up, which is exactly "first idle worker" load
// balancing.
func NewPool(eng *engine.Engine, workers int, log *logrus.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{
		eng:       eng,
		log:       log,
		startCh:   make(chan startRequest),
		statusCh:  make(chan statusRequest),
		resultsCh: make(chan resultsRequest),
		cancelCh:  make(chan cancelRequest),
		stop:      make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}
	return p
}

// Shutdown stops workers from picking up new requests. In-flight pipelines
// are allowed to drain under their own timeouts, matching the advisory
// cancellation semantics the rest of the engine already follows.
func (p *Pool) Shutdown() {
	close(p.stop)
}

func (p *Pool) worker(id int) {
	log := p.log.WithField("worker", id)
	for {
		select {
		case <-p.stop:
			return
		case r := <-p.startCh:
			p.handleStart(log, r)
		case r := <-p.statusCh:
			job, err := p.eng.GetDiscoveryStatus(context.Background(), r.jobID, r.owner)
			r.reply <- statusReply{job: job, err: err}
		case r := <-p.resultsCh:
			devices, err := p.eng.GetDiscoveryResults(context.Background(), r.jobID, r.owner)
			r.reply <- resultsReply{devices: devices, err: err}
		case r := <-p.cancelCh:
			r.reply <- p.eng.CancelDiscovery(context.Background(), r.jobID, r.owner)
		}
	}
}

// handleStart is split from Engine.StartDiscovery's synchronous form so the
// worker can reply with the job id immediately after the fast validation
// and row-creation steps, then run the blocking pipeline itself — this is
// what lets a caller observe the job id long before the pipeline drains
// (spec §4.8's "creates the job row ... returns the id" happening before
// "transitions job to running").
func (p *Pool) handleStart(log *logrus.Entry, r startRequest) {
	jobID, run, err := p.eng.Begin(r.req, r.owner)
	r.reply <- startReply{jobID: jobID, err: err}
	if err != nil {
		return
	}
	log.WithField("job", jobID).Debug("transport: worker picked up pipeline")
	run(context.Background())
}
