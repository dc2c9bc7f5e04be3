// Package control defines the distribution operator channel that issues
// direct charge targets.
package control

import "context"

// Listener receives distribution operator orders. soc is a percentage, wh an
// energy content; at is the epoch second by which the target must be met.
type Listener interface {
	SetTargetSOC(ctx context.Context, soc int, at int64) error
	SetTargetWh(ctx context.Context, wh int, at int64) error
}

// Channel publishes free-form messages to the distribution operator.
type Channel interface {
	PublishMessage(ctx context.Context, topic string, payload []byte) error
}
