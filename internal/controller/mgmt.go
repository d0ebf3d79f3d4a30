package controller

import (
	"errors"

	"firestige.xyz/swctl/internal/core"
)

// Toggles mirrors the management settings applied through the controller.
type Toggles struct {
	IgmpSnooping   bool          `json:"igmp_snooping"`
	MldSnooping    bool          `json:"mld_snooping"`
	UnknownMcast   bool          `json:"unknown_mcast_fwd"`
	UnknownMcastTo core.PortMask `json:"unknown_mcast_ports"`
	UnknownUcast   bool          `json:"unknown_ucast_fwd"`
	UnknownUcastTo core.PortMask `json:"unknown_ucast_ports"`
	AgingSeconds   int           `json:"aging_seconds,omitempty"`
	ReservedMcast  bool          `json:"reserved_mcast"`
}

// ReservedMcastCount is the number of IEEE 802.1D reserved group
// addresses, 01:80:c2:00:00:00 through 01:80:c2:00:00:0f.
const ReservedMcastCount = 16

// ReservedMcastMAC returns the i-th reserved group address.
func ReservedMcastMAC(i int) core.MAC {
	return core.MAC{0x01, 0x80, 0xc2, 0x00, 0x00, byte(i)}
}

func (c *Controller) SetIgmpSnooping(enable bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.chip.SetIgmpSnooping(enable); err != nil {
		return err
	}
	c.mgmt.IgmpSnooping = enable
	return nil
}

func (c *Controller) SetMldSnooping(enable bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.chip.SetMldSnooping(enable); err != nil {
		return err
	}
	c.mgmt.MldSnooping = enable
	return nil
}

func (c *Controller) SetUnknownMcastFwd(enable bool, ports core.PortMask) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ports.Physical()&^c.physicalMask() != 0 {
		return core.ErrInvalidPort
	}
	if err := c.chip.SetUnknownMcastFwd(enable, ports); err != nil {
		return err
	}
	c.mgmt.UnknownMcast, c.mgmt.UnknownMcastTo = enable, ports
	return nil
}

func (c *Controller) SetUnknownUcastFwd(enable bool, ports core.PortMask) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ports.Physical()&^c.physicalMask() != 0 {
		return core.ErrInvalidPort
	}
	if err := c.chip.SetUnknownUcastFwd(enable, ports); err != nil {
		return err
	}
	c.mgmt.UnknownUcast, c.mgmt.UnknownUcastTo = enable, ports
	return nil
}

func (c *Controller) SetAgingTime(seconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.chip.SetAgingTime(seconds); err != nil {
		return err
	}
	c.mgmt.AgingSeconds = seconds
	return nil
}

// SetReservedMcast installs or removes the static entries trapping the
// reserved group addresses to the CPU port. Installation is all or
// nothing; removal leaves every other static entry alone. A reserved
// address the host added itself belongs to the host and is neither
// overwritten nor removed here.
func (c *Controller) SetReservedMcast(enable bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	db := c.chip.Database()
	if !enable {
		for i := 0; i < ReservedMcastCount; i++ {
			mac := ReservedMcastMAC(i)
			if _, ok := c.authored[mac]; ok {
				continue
			}
			err := db.DeleteStatic(mac)
			if err != nil && !errors.Is(err, core.ErrNotFound) {
				return err
			}
		}
		c.mgmt.ReservedMcast = false
		return nil
	}

	var installed []core.MAC
	for i := 0; i < ReservedMcastCount; i++ {
		mac := ReservedMcastMAC(i)
		if _, ok := c.authored[mac]; ok {
			continue
		}
		if err := db.AddStatic(core.FdbEntry{MAC: mac, DestPorts: core.CPUPort, Override: true}); err != nil {
			errs := []error{err}
			for j := len(installed) - 1; j >= 0; j-- {
				if derr := db.DeleteStatic(installed[j]); derr != nil {
					errs = append(errs, derr)
				}
			}
			return errors.Join(errs...)
		}
		installed = append(installed, mac)
	}
	c.mgmt.ReservedMcast = true
	return nil
}

func (c *Controller) ReservedMcast() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mgmt.ReservedMcast
}
