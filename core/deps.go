package core

import (
	"time"

	"pkt.systems/pslog"
)

// ServiceDeps captures optional dependencies for the core service.
type ServiceDeps struct {
	Sender Sender
	Logger pslog.Logger
	Now    func() time.Time
}
