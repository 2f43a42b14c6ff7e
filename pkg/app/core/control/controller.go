package control

import (
	"errors"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	ErrSystemStopped = errors.New("system is stopped")
	ErrNotStopped    = errors.New("system is not stopped")
)

// Controller is the emergency stop switch. While stopped, trading calls fail
// and only the emergency escape hatch is open.
type Controller struct {
	stopped atomic.Bool
	log     *zap.Logger
}

func NewController(log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{log: log.Named("control")}
}

// Stop halts trading. It is idempotent.
func (c *Controller) Stop() {
	if c.stopped.CompareAndSwap(false, true) {
		c.log.Warn("emergency_stop")
	}
}

// Resume re-opens trading. It is idempotent.
func (c *Controller) Resume() {
	if c.stopped.CompareAndSwap(true, false) {
		c.log.Info("emergency_resume")
	}
}

func (c *Controller) Stopped() bool { return c.stopped.Load() }

// AssertNotStopped returns ErrSystemStopped while stopped.
func (c *Controller) AssertNotStopped() error {
	if c.stopped.Load() {
		return ErrSystemStopped
	}
	return nil
}

// AssertStopped returns ErrNotStopped unless stopped.
func (c *Controller) AssertStopped() error {
	if !c.stopped.Load() {
		return ErrNotStopped
	}
	return nil
}
