// Package tickledger provides a pay-per-unit-of-time subscription billing
// engine for Go applications.
//
// Tickledger is designed as a library, not a service. Accounts buy windows of
// discrete time at a per-unit price; the engine tracks who is covered at the
// current tick and lets an operator settle accrued revenue from a pooled
// balance into a service balance with bounded work per call, however many
// accounts exist. It provides:
//
//   - Non-overlapping, append-only coverage intervals per account
//   - Lazy fee accrual driven by an ordered schedule of rate changes
//   - Bounded settlement sweeps that can be resumed across calls
//   - Overflow-checked integer money arithmetic
//   - Snapshot persistence to memory, SQLite, PostgreSQL, MongoDB, Redis or TOML files
//   - Plugin hooks for metrics and audit trails
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/tickledger"
//	    "github.com/xraph/tickledger/store/memory"
//	)
//
//	e := tickledger.New(tickledger.WithStore(memory.New()))
//	if err := e.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Stop(ctx)
//
//	_ = e.SetPricePerUnit(ctx, tickledger.RoleOperator, tickledger.USD(10))
//	p, err := e.TopOff(ctx, "alice", tickledger.USD(100)) // ticks [1, 11)
//
// # Time
//
// Time is a monotonic counter of ticks supplied by the caller through
// AdvanceTime. The engine never reads a clock. An interval [start, end)
// covers start and excludes end; settling to tick T charges every tick
// before T. Package driver maps an external tick source onto AdvanceTime
// and Collect, on demand or on a cron schedule.
//
// # Settlement
//
// A purchase schedules +price at its start tick and -price at its end tick.
// Collect folds scheduled changes that are due, at most MaxSweepEntries per
// call, then charges the remaining elapsed ticks at the resulting rate. When
// the bound is hit the final charge is skipped and the returned Settlement
// reports Complete == false; the next Collect continues the sweep.
//
// # TypeID
//
// Instances and records use TypeID identifiers:
//
//	inst_01h2xcejqtf2nbrexx3vqjhp41  // Engine instance
//	sub_01h2xcejqtf2nbrexx3vqjhp41   // Subscription interval
//	stl_01h455vb4pex5vsknk084sn02q   // Settlement
package tickledger
