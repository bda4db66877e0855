package health

import "context"

// StorePinger checks event log store availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// ClassifierChecker checks remote classifier availability.
type ClassifierChecker interface {
	HealthCheck(ctx context.Context) error
}
