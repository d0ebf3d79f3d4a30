package fdb

import (
	"errors"
	"fmt"

	"firestige.xyz/swctl/internal/core"
	"firestige.xyz/swctl/internal/portstate"
)

// withLearningDisabled saves the control bits of ports, forces learning off
// on each of them, runs trigger and restores every saved port. Restore runs
// even when trigger fails so no port is left with learning disabled.
func (db *Database) withLearningDisabled(ports []core.PortID, trigger func() error) error {
	saved := make([]portstate.Bits, 0, len(ports))
	restore := func(n int) error {
		var errs []error
		for i := 0; i < n; i++ {
			if err := db.control.WritePortBits(ports[i], saved[i]); err != nil {
				errs = append(errs, fmt.Errorf("restore port %d: %w", ports[i], err))
			}
		}
		return errors.Join(errs...)
	}

	for _, p := range ports {
		b, err := db.control.ReadPortBits(p)
		if err != nil {
			return errors.Join(fmt.Errorf("save port %d: %w", p, err), restore(len(saved)))
		}
		saved = append(saved, b)
		forced := b
		forced.LearningDisable = true
		if err := db.control.WritePortBits(p, forced); err != nil {
			return errors.Join(fmt.Errorf("disable learning on port %d: %w", p, err), restore(len(saved)))
		}
	}

	err := trigger()
	return errors.Join(err, restore(len(saved)))
}

func (db *Database) allPorts() []core.PortID {
	n := db.control.NumPorts()
	ports := make([]core.PortID, n)
	for i := range ports {
		ports[i] = core.PortID(i + 1)
	}
	return ports
}

// FlushStatic empties the static table. The resulting port control state
// is identical to the state before the call.
func (db *Database) FlushStatic() error {
	if db.static == nil {
		return fmt.Errorf("flush static table: %w", core.ErrUnsupported)
	}
	if db.staticFlush == FlushByClear {
		return db.static.clear()
	}
	return db.withLearningDisabled(db.allPorts(), func() error {
		return db.flusher.TriggerFlush(FlushStatic)
	})
}

// FlushDynamic flushes learned entries. Port 0 flushes the whole table;
// any other port scopes the flush to that port by disabling its learning
// for the duration of the trigger.
func (db *Database) FlushDynamic(port core.PortID) error {
	if port == 0 {
		return db.flusher.TriggerFlush(FlushDynamic)
	}
	if port < 0 || int(port) > db.control.NumPorts() {
		return fmt.Errorf("flush dynamic port %d: %w", port, core.ErrInvalidPort)
	}
	return db.withLearningDisabled([]core.PortID{port}, func() error {
		return db.flusher.TriggerFlush(FlushDynamic)
	})
}
