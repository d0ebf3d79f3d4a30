//go:build linux

package regio

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	siocGMIIReg = 0x8948
	siocSMIIReg = 0x8949
)

// miiIfreq mirrors struct ifreq carrying struct mii_ioctl_data.
type miiIfreq struct {
	name   [unix.IFNAMSIZ]byte
	phyID  uint16
	regNum uint16
	valIn  uint16
	valOut uint16
	_      [16]byte
}

type miiBus struct {
	fd    int
	iface string
}

// OpenMDIO reaches the SMI bus behind a network interface through the
// kernel's MII ioctls.
func OpenMDIO(iface string) (MDIOBus, error) {
	if len(iface) >= unix.IFNAMSIZ {
		return nil, fmt.Errorf("interface name %q too long", iface)
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("mii socket: %w", err)
	}
	return &miiBus{fd: fd, iface: iface}, nil
}

func (b *miiBus) request(phy, reg uint8) *miiIfreq {
	r := &miiIfreq{phyID: uint16(phy), regNum: uint16(reg)}
	copy(r.name[:], b.iface)
	return r
}

func (b *miiBus) ReadPHY(phy, reg uint8) (uint16, error) {
	r := b.request(phy, reg)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(b.fd), siocGMIIReg, uintptr(unsafe.Pointer(r)))
	if errno != 0 {
		return 0, fmt.Errorf("mii read phy %d reg %d: %w", phy, reg, errno)
	}
	return r.valOut, nil
}

func (b *miiBus) WritePHY(phy, reg uint8, v uint16) error {
	r := b.request(phy, reg)
	r.valIn = v
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(b.fd), siocSMIIReg, uintptr(unsafe.Pointer(r)))
	if errno != 0 {
		return fmt.Errorf("mii write phy %d reg %d: %w", phy, reg, errno)
	}
	return nil
}

func (b *miiBus) Close() error {
	return unix.Close(b.fd)
}
