// Package transport implements the request/reply control plane between the
// request domain and the discovery domain (spec §5). Four logical
// channels — discovery.start/status/results/cancel — carry requests to a
// bounded pool of workers; each request receives exactly one reply on a
// per-request completion channel, giving the request domain a promise it
// can suspend on without ever blocking on network or SSH itself.
package transport

import (
	"github.com/ExclusiveAccount/discovery-engine/internal/engine"
	"github.com/ExclusiveAccount/discovery-engine/internal/store"
)

type startRequest struct {
	req   engine.StartRequest
	owner string
	reply chan startReply
}

type startReply struct {
	jobID string
	err   error
}

type statusRequest struct {
	jobID string
	owner string
	reply chan statusReply
}

type statusReply struct {
	job *store.DiscoveryJob
	err error
}

type resultsRequest struct {
	jobID string
	owner string
	reply chan resultsReply
}

type resultsReply struct {
	devices []store.Device
	err     error
}

type cancelRequest struct {
	jobID string
	owner string
	reply chan error
}
