package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/xraph/tickledger"
	"github.com/xraph/tickledger/id"
	"github.com/xraph/tickledger/subscription"
)

func newInitCmd(c *cli) *cobra.Command {
	var price int64

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an engine instance and record it in the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if existing := c.v.GetString(keyInstance); existing != "" {
				return fmt.Errorf("instance %s already configured", existing)
			}

			instanceID := id.NewInstanceID()
			err := c.withEngine(cmd, instanceID, func(e *tickledger.Engine) error {
				if price <= 0 {
					return nil
				}
				return e.SetPricePerUnit(cmd.Context(), tickledger.RoleOperator, money(e, price))
			})
			if err != nil {
				return err
			}

			c.v.Set(keyInstance, instanceID.String())
			if err := c.v.WriteConfigAs(c.configPath()); err != nil {
				return fmt.Errorf("write config: %w", err)
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "instance: %s\nconfig: %s\n", instanceID, c.configPath())
			return err
		},
	}

	cmd.Flags().Int64Var(&price, "price", 0, "initial price per unit, in minor currency units")
	return cmd
}

func newPriceCmd(c *cli) *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "price <amount>",
		Short: "Set the price per unit (one tick) for future purchases",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseInt(args[0], "amount")
			if err != nil {
				return err
			}
			return c.run(cmd, func(e *tickledger.Engine) error {
				price := money(e, amount)
				if err := e.SetPricePerUnit(cmd.Context(), tickledger.Role(role), price); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "price: %s per tick\n", price)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&role, "role", string(tickledger.RoleOperator), "caller role (operator, subscriber, driver)")
	return cmd
}

func newAdvanceCmd(c *cli) *cobra.Command {
	var by int64

	cmd := &cobra.Command{
		Use:   "advance [tick]",
		Short: "Move the current time forward to tick, or by --by ticks",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 1) == (by != 0) {
				return errors.New("give either a target tick or --by")
			}
			var target int64
			if len(args) == 1 {
				t, err := parseInt(args[0], "tick")
				if err != nil {
					return err
				}
				target = t
			}

			return c.run(cmd, func(e *tickledger.Engine) error {
				from := e.CurrentTime()
				to := tickledger.Tick(target)
				if by != 0 {
					next, err := from.Plus(by)
					if err != nil {
						return err
					}
					to = next
				}
				if err := e.AdvanceTime(cmd.Context(), to); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "time: %d -> %d\n", from, to)
				return err
			})
		},
	}

	cmd.Flags().Int64Var(&by, "by", 0, "advance by this many ticks")
	return cmd
}

func newTopOffCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "topoff <account> <amount>",
		Short: "Buy as many whole ticks as amount covers at the current price",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseInt(args[1], "amount")
			if err != nil {
				return err
			}
			return c.run(cmd, func(e *tickledger.Engine) error {
				p, err := e.TopOff(cmd.Context(), tickledger.Account(args[0]), money(e, amount))
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(),
					"subscription %s for %s: [%d, %d) units %d cost %s remainder %s\n",
					p.Subscription.ID, p.Subscription.Account,
					p.Subscription.Start, p.Subscription.End,
					p.Units, p.Cost, p.Remainder,
				)
				return err
			})
		},
	}
}

func newCollectCmd(c *cli) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Move earned fees from the pooled balance to the service balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, func(e *tickledger.Engine) error {
				out := cmd.OutOrStdout()
				for {
					s, err := e.Collect(cmd.Context())
					if err != nil {
						return err
					}
					if _, err := fmt.Fprintf(out, "collected %s over %d entries (settled %d -> %d)\n",
						s.Fee, s.Processed, s.From, s.To); err != nil {
						return err
					}
					if s.Complete {
						return nil
					}
					if !all {
						_, err := fmt.Fprintf(out, "deferred: %d due entries remain; run collect again\n", s.Deferred)
						return err
					}
				}
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "repeat until settlement reaches the current time")
	return cmd
}

type accountStatus struct {
	Account tickledger.Account `json:"account"`
	Active  bool               `json:"active"`
}

type statusView struct {
	Instance       string            `json:"instance"`
	Currency       string            `json:"currency"`
	CurrentTime    tickledger.Tick   `json:"current_time"`
	Price          *tickledger.Money `json:"price,omitempty"`
	Pooled         tickledger.Money  `json:"pooled"`
	Service        tickledger.Money  `json:"service"`
	Rate           tickledger.Money  `json:"rate"`
	LastSettled    tickledger.Tick   `json:"last_settled"`
	PendingEntries int               `json:"pending_entries"`
	Accounts       []accountStatus   `json:"accounts"`
}

func newStatusCmd(c *cli) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show time, price, balances and account activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, func(e *tickledger.Engine) error {
				b := e.Balances()
				view := statusView{
					Instance:       e.InstanceID().String(),
					Currency:       e.Currency(),
					CurrentTime:    e.CurrentTime(),
					Pooled:         b.Pooled,
					Service:        b.Service,
					Rate:           b.Rate,
					LastSettled:    b.LastSettled,
					PendingEntries: len(e.PendingEntries()),
					Accounts:       []accountStatus{},
				}
				if price, ok := e.PricePerUnit(); ok {
					view.Price = &price
				}
				for _, acct := range e.Accounts() {
					view.Accounts = append(view.Accounts, accountStatus{Account: acct, Active: e.IsActive(acct)})
				}

				if asJSON {
					return writeJSON(cmd.OutOrStdout(), view)
				}
				return writeStatus(cmd.OutOrStdout(), view)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func writeStatus(w io.Writer, v statusView) error {
	price := "unset"
	if v.Price != nil {
		price = v.Price.String()
	}
	if _, err := fmt.Fprintf(w,
		"instance: %s\ntime: %d\nprice: %s\npooled: %s\nservice: %s\nrate: %s per tick\nlast settled: %d\npending entries: %d\naccounts: %d\n",
		v.Instance, v.CurrentTime, price, v.Pooled, v.Service, v.Rate, v.LastSettled, v.PendingEntries, len(v.Accounts),
	); err != nil {
		return err
	}
	for _, a := range v.Accounts {
		state := "inactive"
		if a.Active {
			state = "active"
		}
		if _, err := fmt.Fprintf(w, "  %s: %s\n", a.Account, state); err != nil {
			return err
		}
	}
	return nil
}

func newHistoryCmd(c *cli) *cobra.Command {
	var (
		status string
		at     int64
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history <account>",
		Short: "List an account's purchased subscriptions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := subscription.ListOpts{Limit: limit}
			switch s := subscription.Status(status); s {
			case "":
			case subscription.StatusPending, subscription.StatusActive, subscription.StatusExpired:
				opts.Status = s
			default:
				return fmt.Errorf("unknown status %q", status)
			}
			if cmd.Flags().Changed("at") {
				tick := tickledger.Tick(at)
				opts.At = &tick
			}

			return c.run(cmd, func(e *tickledger.Engine) error {
				subs := e.History(tickledger.Account(args[0]), opts)
				if asJSON {
					if subs == nil {
						subs = []*tickledger.Subscription{}
					}
					return writeJSON(cmd.OutOrStdout(), subs)
				}

				now := e.CurrentTime()
				if opts.At != nil {
					now = *opts.At
				}
				out := cmd.OutOrStdout()
				if _, err := fmt.Fprintf(out, "subscriptions: %d\n", len(subs)); err != nil {
					return err
				}
				for _, s := range subs {
					if _, err := fmt.Fprintf(out, "  %s [%d, %d) %d units at %d %s\n",
						s.ID, s.Start, s.End, s.Units(), s.PricePerUnit, s.StatusAt(now)); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only pending, active or expired subscriptions")
	cmd.Flags().Int64Var(&at, "at", 0, "evaluate --status at this tick instead of the current time")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum subscriptions to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseInt(raw, name string) (int64, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return n, nil
}

// money expresses minor units in the engine currency.
func money(e *tickledger.Engine, amount int64) tickledger.Money {
	return tickledger.Money{Amount: amount, Currency: e.Currency()}
}
