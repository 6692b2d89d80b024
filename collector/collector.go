// Package collector converts elapsed time at the aggregate subscription rate
// into a fee moved from the pooled balance to the service balance.
package collector

import (
	"errors"
	"fmt"

	"github.com/xraph/tickledger/types"
)

var (
	// ErrTimeRegression is returned when settling to a tick before the last
	// settled tick.
	ErrTimeRegression = errors.New("collector: settle time before last settled time")

	// ErrNegativeRate is returned when a rate delta would drive the
	// aggregate rate below zero.
	ErrNegativeRate = errors.New("collector: negative aggregate rate")

	// ErrInsufficientFunds is returned when an accrued fee exceeds the
	// pooled balance.
	ErrInsufficientFunds = errors.New("collector: fee exceeds pooled balance")

	// ErrNegativeAmount is returned for deposits below zero.
	ErrNegativeAmount = errors.New("collector: negative amount")
)

// State is the collector's complete accounting state. Amounts are in minor
// currency units.
type State struct {
	LastSettled types.Tick `json:"last_settled"`
	Rate        int64      `json:"rate"`
	Pooled      int64      `json:"pooled"`
	Service     int64      `json:"service"`
}

// Total returns pooled + service.
func (s State) Total() (int64, error) {
	return types.AddInt64(s.Pooled, s.Service)
}

// Validate checks the state for values no sequence of operations can produce.
func (s State) Validate() error {
	var errs []error
	if s.Rate < 0 {
		errs = append(errs, fmt.Errorf("rate %d: %w", s.Rate, ErrNegativeRate))
	}
	if s.Pooled < 0 {
		errs = append(errs, fmt.Errorf("pooled balance %d is negative", s.Pooled))
	}
	if s.Service < 0 {
		errs = append(errs, fmt.Errorf("service balance %d is negative", s.Service))
	}
	if _, err := s.Total(); err != nil {
		errs = append(errs, fmt.Errorf("total balance: %w", err))
	}
	return errors.Join(errs...)
}

// Collector accrues fees lazily. Every method either applies its full effect
// or returns an error with the state unchanged.
type Collector struct {
	state State
}

// New returns a collector settled up to start with zero rate and balances.
func New(start types.Tick) *Collector {
	return &Collector{state: State{LastSettled: start}}
}

// Restore returns a collector holding s.
func Restore(s State) (*Collector, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &Collector{state: s}, nil
}

// State returns a copy of the current state.
func (c *Collector) State() State { return c.state }

// Clone returns an independent copy.
func (c *Collector) Clone() *Collector {
	cp := *c
	return &cp
}

// SettleTo charges rate × (at − last settled) and moves it from pooled to
// service. Ticks in [last settled, at) are charged; at itself is not.
func (c *Collector) SettleTo(at types.Tick) (int64, error) {
	elapsed, err := at.Since(c.state.LastSettled)
	if err != nil {
		return 0, fmt.Errorf("collector: elapsed ticks: %w", err)
	}
	if elapsed < 0 {
		return 0, fmt.Errorf("%w: %d < %d", ErrTimeRegression, at, c.state.LastSettled)
	}

	fee, err := types.MulInt64(c.state.Rate, elapsed)
	if err != nil {
		return 0, fmt.Errorf("collector: fee for %d ticks at rate %d: %w", elapsed, c.state.Rate, err)
	}
	if fee > c.state.Pooled {
		return 0, fmt.Errorf("%w: fee %d, pooled %d", ErrInsufficientFunds, fee, c.state.Pooled)
	}
	service, err := types.AddInt64(c.state.Service, fee)
	if err != nil {
		return 0, fmt.Errorf("collector: service balance: %w", err)
	}

	c.state.Pooled -= fee
	c.state.Service = service
	c.state.LastSettled = at
	return fee, nil
}

// ApplyRateDelta adjusts the aggregate rate. The caller must have settled up
// to the delta's tick first.
func (c *Collector) ApplyRateDelta(delta int64) error {
	rate, err := types.AddInt64(c.state.Rate, delta)
	if err != nil {
		return fmt.Errorf("collector: rate: %w", err)
	}
	if rate < 0 {
		return fmt.Errorf("%w: %d%+d", ErrNegativeRate, c.state.Rate, delta)
	}
	c.state.Rate = rate
	return nil
}

// Deposit adds amount to the pooled balance.
func (c *Collector) Deposit(amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeAmount, amount)
	}
	pooled, err := types.AddInt64(c.state.Pooled, amount)
	if err != nil {
		return fmt.Errorf("collector: pooled balance: %w", err)
	}
	if _, err := types.AddInt64(pooled, c.state.Service); err != nil {
		return fmt.Errorf("collector: total balance: %w", err)
	}
	c.state.Pooled = pooled
	return nil
}
