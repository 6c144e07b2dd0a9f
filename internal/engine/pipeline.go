package engine

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/discovery-engine/internal/netscan/cidr"
	"github.com/ExclusiveAccount/discovery-engine/internal/netscan/liveness"
	"github.com/ExclusiveAccount/discovery-engine/internal/netscan/portprobe"
	"github.com/ExclusiveAccount/discovery-engine/internal/netscan/sshprobe"
	"github.com/ExclusiveAccount/discovery-engine/internal/store"
)

// runPipeline drives one job from running through to completed/failed
// (spec §4.8). It never returns an error: every failure mode is recorded
// into the job row itself, since the caller (a transport worker) has
// already replied with the job id and moved on.
func (e *Engine) runPipeline(ctx context.Context, job *store.DiscoveryJob, profile *store.CredentialProfile) {
	log := e.log.WithField("job", job.ID)

	if err := e.store.Jobs.SetRunning(job.ID); err != nil {
		log.WithError(err).Error("discovery: could not transition job to running")
		return
	}

	secret, err := e.secrets.Decrypt(profile.Secret)
	if err != nil {
		e.fail(job.ID, log, "decrypt profile secret", err)
		return
	}
	var privateKey []byte
	if profile.PrivateKey != "" {
		privateKey, err = e.secrets.Decrypt(profile.PrivateKey)
		if err != nil {
			e.fail(job.ID, log, "decrypt profile private key", err)
			return
		}
	}

	candidates, err := cidr.Expand(job.TargetRange)
	if err != nil {
		// Already validated in Begin; a failure here means the stored
		// target range is corrupt, not a caller mistake.
		e.fail(job.ID, log, "expand target range", err)
		return
	}

	port := profile.Port
	if port == 0 {
		port = 22
	}
	creds := sshprobe.Credentials{
		Username:   profile.Username,
		Password:   string(secret),
		PrivateKey: privateKey,
		Port:       port,
	}

	concurrency := e.limits.StageConcurrency
	if concurrency < 64 {
		concurrency = 64
	}

	livenessProber := liveness.New(e.limits.LivenessTimeout, concurrency)
	survivorsA := livenessProber.Probe(ctx, candidates)

	portProber := portprobe.New(e.limits.PortTimeout, concurrency)
	survivorsB := portProber.Probe(ctx, survivorsA, port)

	devices := e.sshStage(ctx, job, profile, creds, survivorsB, log)

	summary := store.JSONMap{
		"totalIpsScanned":   len(survivorsA),
		"devicesDiscovered": len(devices),
		"devices":           devices,
	}
	if ok, err := e.store.Jobs.SetCompletedIfRunning(job.ID, summary); err != nil {
		log.WithError(err).Error("discovery: could not write completion summary")
	} else if !ok {
		log.Info("discovery: job was cancelled before completion summary could be written")
	}
}

// sshStage runs the SSH probe + device upsert over the surviving
// candidates sequentially per host (each host's own commands run in
// sequence per spec §4.5), but hosts themselves fan out with the same
// stage-wide concurrency cap as the earlier stages.
func (e *Engine) sshStage(ctx context.Context, job *store.DiscoveryJob, profile *store.CredentialProfile, creds sshprobe.Credentials, hosts []string, log *logrus.Entry) []string {
	concurrency := e.limits.StageConcurrency
	if concurrency < 64 {
		concurrency = 64
	}
	timeout := e.limits.SSHTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		names []string
		sem   = make(chan struct{}, concurrency)
	)

	for _, ip := range hosts {
		select {
		case <-ctx.Done():
			continue
		default:
		}

		wg.Add(1)
		go func(ip string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := sshprobe.Probe(ip, creds, timeout)
			if err != nil {
				log.WithField("host", ip).WithError(err).Debug("discovery: ssh probe skipped host")
				return
			}

			facts := store.JSONMap{}
			for k, v := range res.Facts {
				facts[k] = v
			}

			device := &store.Device{
				Hostname:            res.Hostname,
				IPv4Address:         ip,
				DeviceType:          res.DeviceType,
				OSFacts:             facts,
				CredentialProfileID: profile.ID,
				DiscoveryJobID:      job.ID,
				Status:              store.DeviceOnline,
			}
			if err := e.store.Devices.InsertDiscovered(device); err != nil {
				log.WithField("host", ip).WithError(err).Error("discovery: could not insert discovered device")
				return
			}

			mu.Lock()
			names = append(names, res.Hostname)
			mu.Unlock()
		}(ip)
	}

	wg.Wait()
	return names
}

func (e *Engine) fail(jobID string, log *logrus.Entry, step string, cause error) {
	log.WithError(cause).Errorf("discovery: %s failed", step)
	summary := store.JSONMap{
		"error":    step + ": " + cause.Error(),
		"failedAt": time.Now().Format(time.RFC3339),
	}
	if _, err := e.store.Jobs.SetFailedIfRunning(jobID, summary); err != nil {
		log.WithError(err).Error("discovery: could not write failure summary")
	}
}
