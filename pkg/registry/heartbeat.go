package registry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/gridhouse/peerreg/pkg/bus"
	"github.com/gridhouse/peerreg/pkg/errors"
	"github.com/gridhouse/peerreg/pkg/logging"
)

// Heartbeat delivery modes. The scheduler beats against exactly one tier,
// the one that accepted the registration.
const (
	modeLocal  = "local"
	modeRemote = "remote"
)

const (
	// heartbeatTimeout bounds a single heartbeat delivery.
	heartbeatTimeout = 10 * time.Second

	// reregisterJitter is the maximum random delay before re-registering
	// after the home tier forgot our record, spreading the re-registration
	// burst across clients.
	reregisterJitter = 5 * time.Second
)

// heartbeatTask is one running scheduler. cancel stops the loop; done
// closes once the loop has drained, guaranteeing no heartbeat is in
// flight afterwards.
type heartbeatTask struct {
	mode   string
	cancel context.CancelFunc
	done   chan struct{}
}

// startHeartbeat launches the periodic heartbeat loop. Calling it while a
// scheduler is already running is a no-op, so repeated registrations never
// stack timers.
func (c *Client) startHeartbeat(mode string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.task != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	task := &heartbeatTask{
		mode:   mode,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.task = task
	go c.heartbeatLoop(ctx, task)

	c.logger.Debug().
		Str(logging.Source, mode).
		Dur("interval", c.cfg.HeartbeatInterval).
		Msg("heartbeat scheduler started")
}

// stopHeartbeat stops the scheduler and waits for the loop to drain. Safe
// to call when none is running.
func (c *Client) stopHeartbeat() {
	c.mu.Lock()
	task := c.task
	c.task = nil
	c.mu.Unlock()

	if task == nil {
		return
	}
	task.cancel()
	<-task.done
	c.logger.Debug().Msg("heartbeat scheduler stopped")
}

func (c *Client) heartbeatLoop(ctx context.Context, task *heartbeatTask) {
	defer close(task.done)

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.heartbeatTick(ctx, task.mode)
		}
	}
}

func (c *Client) heartbeatTick(ctx context.Context, mode string) {
	c.mu.Lock()
	reg := c.lastReg
	c.mu.Unlock()
	if reg == nil {
		return
	}

	tickCtx, cancel := context.WithTimeout(ctx, heartbeatTimeout)
	defer cancel()
	c.deliverHeartbeat(tickCtx, *reg, mode)
}

// deliverHeartbeat refreshes the registration in its home tier and
// reports success. When the home tier has lost the record the identity is
// re-registered, so a wiped backend heals on the next beat. A failing
// local tier falls through to the remote registry for this delivery.
func (c *Client) deliverHeartbeat(ctx context.Context, reg Registration, mode string) bool {
	if mode == modeLocal && c.store != nil {
		touched, err := c.store.Touch(ctx, reg.ServiceName, reg.Environment)
		if err == nil && !touched {
			// The row is gone, typically pruned. Re-register to heal.
			err = c.store.Upsert(ctx, reg)
			touched = err == nil
		}
		if err == nil && touched {
			c.countHeartbeatSent(sourceLocal)
			return true
		}
		c.countHeartbeatFailed(sourceLocal)
		c.logger.Warn().Err(err).
			Str(logging.ServiceName, reg.ServiceName).
			Msg("local heartbeat failed")
	}

	if c.remote != nil {
		err := c.remote.Heartbeat(ctx, reg.ServiceName, reg.Environment)
		if err == nil {
			c.countHeartbeatSent(sourceRemote)
			return true
		}
		if errors.IsNotFound(err) {
			if c.reregisterRemote(ctx, reg) {
				c.countHeartbeatSent(sourceRemote)
				return true
			}
		} else {
			c.logger.Warn().Err(err).
				Str(logging.ServiceName, reg.ServiceName).
				Msg("remote heartbeat failed")
		}
		c.countHeartbeatFailed(sourceRemote)
	}

	c.publish(ctx, bus.NewHeartbeatMissed(reg.ServiceName, reg.Environment))
	return false
}

// reregisterRemote re-announces the identity after the remote registry
// answered not-found for it, waiting a random slice of reregisterJitter
// first.
func (c *Client) reregisterRemote(ctx context.Context, reg Registration) bool {
	select {
	case <-time.After(rand.N(reregisterJitter)):
	case <-ctx.Done():
		return false
	}

	if err := c.remote.Register(ctx, reg); err != nil {
		c.logger.Warn().Err(err).
			Str(logging.ServiceName, reg.ServiceName).
			Msg("remote re-registration failed")
		return false
	}
	c.logger.Info().
		Str(logging.ServiceName, reg.ServiceName).
		Str(logging.Environment, reg.Environment).
		Msg("re-registered with remote registry")
	return true
}
