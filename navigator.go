package authsession

import (
	"context"
	"log/slog"
)

// Navigator moves the user to a front-end route. Web front-ends implement it
// as a redirect; CLIs typically record or print the route.
type Navigator interface {
	Navigate(ctx context.Context, route string) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, route string) error

func (f NavigatorFunc) Navigate(ctx context.Context, route string) error {
	return f(ctx, route)
}

type logNavigator struct {
	logger *slog.Logger
}

func (n logNavigator) Navigate(ctx context.Context, route string) error {
	n.logger.InfoContext(ctx, "authsession: navigate", "route", route, "request_id", RequestIDFromContext(ctx))
	return nil
}
