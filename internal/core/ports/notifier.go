package ports

import "context"

// Notifier runs best-effort background jobs whose result nobody waits for.
type Notifier interface {
	Notify(name string, job func(ctx context.Context) error)
}
