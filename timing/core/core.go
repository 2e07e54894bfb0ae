// Package core provides the cycle-accurate CPU core model.
// It drives the 5-stage pipeline as an Akita ticking component, one pipeline
// cycle per component tick.
package core

import (
	"math"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/rvpipe/timing/pipeline"
)

// Stats holds performance statistics for the core.
type Stats struct {
	// Cycles is the total number of cycles simulated.
	Cycles uint64
	// Instructions is the number of instructions retired.
	Instructions uint64
	// Stalls is the number of load-use stall cycles.
	Stalls uint64
	// Flushes is the number of pipeline flushes.
	Flushes uint64
	// DataHazards is the number of cycles with a forwarded operand.
	DataHazards uint64
}

// CPI returns the cycles per retired instruction.
func (s Stats) CPI() float64 {
	if s.Instructions == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Instructions)
}

// Core represents a cycle-accurate CPU core model.
type Core struct {
	*sim.TickingComponent

	// Pipeline is the underlying 5-stage pipeline.
	Pipeline *pipeline.Pipeline

	engine    sim.Engine
	maxCycles uint64
	err       error
}

// NewCore creates a core named name that ticks p at freq on engine.
func NewCore(
	name string,
	engine sim.Engine,
	freq sim.Freq,
	p *pipeline.Pipeline,
) *Core {
	c := &Core{
		Pipeline:  p,
		engine:    engine,
		maxCycles: math.MaxUint64,
	}
	c.TickingComponent = sim.NewTickingComponent(name, engine, freq, c)

	return c
}

// Tick advances the pipeline by one cycle. It reports no progress once the
// pipeline has halted, reached the cycle ceiling, or failed, which stops the
// component from being rescheduled.
func (c *Core) Tick() bool {
	if !c.running() {
		return false
	}

	if err := c.Pipeline.Tick(); err != nil {
		c.err = err
		return false
	}

	return c.running()
}

func (c *Core) running() bool {
	return c.err == nil &&
		!c.Pipeline.Halted() &&
		c.Pipeline.Cycle() < c.maxCycles
}

// Halted returns true once the pipeline has drained.
func (c *Core) Halted() bool {
	return c.Pipeline.Halted()
}

// Stats returns performance statistics for the core.
func (c *Core) Stats() Stats {
	pipeStats := c.Pipeline.Stats()
	return Stats{
		Cycles:       pipeStats.Cycles,
		Instructions: pipeStats.Instructions,
		Stalls:       pipeStats.Stalls,
		Flushes:      pipeStats.Flushes,
		DataHazards:  pipeStats.DataHazards,
	}
}

// Run executes the core until it halts or the cycle count reaches maxCycles.
// As with pipeline.Pipeline.Run, maxCycles is an absolute ceiling and the
// pipeline log is reset first.
func (c *Core) Run(maxCycles uint64) error {
	c.Pipeline.ResetLog()
	return c.runUntil(maxCycles)
}

// RunCycles executes the core for up to the specified number of cycles.
// Returns true if still running, false if halted.
func (c *Core) RunCycles(cycles uint64) (bool, error) {
	limit := c.Pipeline.Cycle() + cycles
	if limit < cycles {
		limit = math.MaxUint64
	}

	if err := c.runUntil(limit); err != nil {
		return false, err
	}

	return !c.Pipeline.Halted(), nil
}

func (c *Core) runUntil(limit uint64) error {
	c.maxCycles = limit
	c.err = nil

	if c.running() {
		c.TickLater()
		if err := c.engine.Run(); err != nil {
			return err
		}
	}

	return c.err
}

// Reset clears all pipeline state.
func (c *Core) Reset() {
	c.Pipeline.Reset()
	c.maxCycles = math.MaxUint64
	c.err = nil
}
