package tickledger_test

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/xraph/tickledger"
	"github.com/xraph/tickledger/store/memory"
	"github.com/xraph/tickledger/types"
)

// TestDocumentationExamples verifies that the examples in the documentation
// compile and behave as described.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		ctx := context.Background()

		e := tickledger.New(
			tickledger.WithStore(memory.New()),
			tickledger.WithLogger(slog.Default()),
		)
		if err := e.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer func() {
			if err := e.Stop(ctx); err != nil {
				t.Error(err)
			}
		}()

		if err := e.SetPricePerUnit(ctx, tickledger.RoleOperator, tickledger.USD(10)); err != nil {
			t.Fatal(err)
		}
		p, err := e.TopOff(ctx, "alice", tickledger.USD(100))
		if err != nil {
			t.Fatal(err)
		}
		if p.Subscription.Start != 1 || p.Subscription.End != 11 {
			t.Errorf("interval: got [%d, %d), want [1, 11)", p.Subscription.Start, p.Subscription.End)
		}
	})

	t.Run("MoneyExamples", func(t *testing.T) {
		tests := []struct {
			name string
			got  string
			want string
		}{
			{"usd", types.USD(4900).String(), "$49.00"},
			{"jpy", types.JPY(100).FormatMajor(), "100"},
			{"zero", types.Zero("usd").FormatMajor(), "0.00"},
		}
		for _, tt := range tests {
			if tt.got != tt.want {
				t.Errorf("%s: got %q, want %q", tt.name, tt.got, tt.want)
			}
		}

		units, rest, err := types.USD(105).Quotient(types.USD(10))
		if err != nil {
			t.Fatal(err)
		}
		if units != 10 || rest.Amount != 5 {
			t.Errorf("Quotient: got %d rest %d, want 10 rest 5", units, rest.Amount)
		}
	})
}

func Example() {
	ctx := context.Background()
	e := tickledger.New()

	_ = e.SetPricePerUnit(ctx, tickledger.RoleOperator, tickledger.USD(10))
	_ = e.AdvanceTime(ctx, 5)
	_, _ = e.TopOff(ctx, "alice", tickledger.USD(100))
	_ = e.AdvanceTime(ctx, 10)
	_, _ = e.TopOff(ctx, "bob", tickledger.USD(200))

	_ = e.AdvanceTime(ctx, 19)
	s, _ := e.Collect(ctx)

	fmt.Println("alice active:", e.IsActive("alice"))
	fmt.Println("fee:", s.Fee.Amount)
	fmt.Println("pooled:", e.Balances().Pooled.Amount)
	// Output:
	// alice active: false
	// fee: 180
	// pooled: 120
}
