//go:build !linux

package regio

import (
	"fmt"

	"firestige.xyz/swctl/internal/core"
)

// OpenSPI is only available on Linux.
func OpenSPI(device string, speedHz uint32) (SPIBus, error) {
	return nil, fmt.Errorf("spidev %s: %w", device, core.ErrUnsupported)
}

// OpenMDIO is only available on Linux.
func OpenMDIO(iface string) (MDIOBus, error) {
	return nil, fmt.Errorf("mii %s: %w", iface, core.ErrUnsupported)
}
