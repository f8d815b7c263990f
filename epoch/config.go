package epoch

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/zeebo/smr/errs"
	"github.com/zeebo/smr/machine"
)

// CollectorMode selects whether the Manager drives its own ticking
// goroutine or expects the caller to invoke Tick directly.
type CollectorMode int

const (
	// CollectorInternal starts a background goroutine on StartCollector.
	CollectorInternal CollectorMode = iota
	// CollectorExternal never starts a goroutine; callers drive Tick.
	CollectorExternal
)

const (
	// DefaultTickInterval is used when Config.TickInterval is zero.
	DefaultTickInterval = 50 * time.Millisecond
	minTickInterval     = time.Millisecond
)

// Config configures a Manager. CoreNum has no default and must be set.
type Config struct {
	// CoreNum is the number of per-core announce slots the Manager keeps.
	// Each concurrent worker must claim a distinct slot via AcquireHandle.
	CoreNum int

	// TickInterval is how often an internally driven collector ticks.
	// Defaults to DefaultTickInterval; the minimum is one millisecond.
	TickInterval time.Duration

	// CollectorMode selects internal vs externally driven collection.
	CollectorMode CollectorMode

	// Logger receives Debug-level collection events and Warn-level
	// lifecycle events. A nil Logger is replaced with a no-op logger, so
	// leaving it unset costs nothing on the hot path.
	Logger *zap.Logger
}

func (c Config) validate() (Config, error) {
	if c.CoreNum <= 0 {
		return c, errors.Wrapf(errs.ErrInvalidArgument, "core_num must be positive, got %d", c.CoreNum)
	}
	if c.CoreNum > machine.MaxThreads {
		return c, errors.Wrapf(errs.ErrInvalidArgument, "core_num must be <= %d, got %d", machine.MaxThreads, c.CoreNum)
	}
	if c.TickInterval == 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.TickInterval < minTickInterval {
		return c, errors.Wrapf(errs.ErrInvalidArgument, "tick_interval must be >= %s, got %s", minTickInterval, c.TickInterval)
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c, nil
}
