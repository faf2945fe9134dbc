// Package channel defines the Channel interface for long-running uavlog
// front ends such as the Telegram bot and the log directory watcher.
package channel

import "context"

// Channel is a front end that runs alongside the HTTP server.
type Channel interface {
	Name() string
	Run(ctx context.Context) error
}
