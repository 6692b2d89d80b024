package tickledger

import (
	"context"
	"errors"
	"fmt"
)

// Role identifies the kind of caller invoking an engine operation.
type Role string

const (
	// RoleOperator administers the instance and may set the price.
	RoleOperator Role = "operator"
	// RoleSubscriber buys time for an account.
	RoleSubscriber Role = "subscriber"
	// RoleDriver advances time and triggers settlement.
	RoleDriver Role = "driver"
)

// Action names a privileged engine operation.
type Action string

// ActionSetPrice is checked by SetPricePerUnit.
const ActionSetPrice Action = "set_price_per_unit"

// Authorizer decides whether role may perform action. A non-nil error
// refuses the call; the engine reports it as ErrUnauthorized.
type Authorizer interface {
	Authorize(ctx context.Context, role Role, action Action) error
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, role Role, action Action) error

// Authorize calls f.
func (f AuthorizerFunc) Authorize(ctx context.Context, role Role, action Action) error {
	return f(ctx, role, action)
}

// DefaultAuthorizer admits only RoleOperator for ActionSetPrice and allows
// everything else.
var DefaultAuthorizer Authorizer = AuthorizerFunc(func(_ context.Context, role Role, action Action) error {
	if action == ActionSetPrice && role != RoleOperator {
		return fmt.Errorf("%w: role %q may not %s", ErrUnauthorized, role, action)
	}
	return nil
})

func (e *Engine) authorize(ctx context.Context, role Role, action Action) error {
	err := e.authorizer.Authorize(ctx, role, action)
	if err == nil || errors.Is(err, ErrUnauthorized) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnauthorized, err)
}
