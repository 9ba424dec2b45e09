package directorsync

import (
	"pkt.systems/directorsync/internal/transport"
	"pkt.systems/directorsync/schema"
)

type stateFanout struct {
	observers []transport.StateObserver
}

func (f stateFanout) observe(state schema.ConnectionState) {
	for _, observer := range f.observers {
		if observer == nil {
			continue
		}
		observer(state)
	}
}
