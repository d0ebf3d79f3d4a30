//go:build linux

package regio

import (
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	spiIocWrMode        = 0x40016b01
	spiIocWrBitsPerWord = 0x40016b03
	spiIocWrMaxSpeedHz  = 0x40046b04
	spiIocMessage1      = 0x40206b00
)

// spiIocTransfer mirrors struct spi_ioc_transfer.
type spiIocTransfer struct {
	txBuf       uint64
	rxBuf       uint64
	length      uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    uint8
	txNbits     uint8
	rxNbits     uint8
	wordDelay   uint8
	pad         uint8
}

type spidev struct {
	fd      int
	speedHz uint32
}

// OpenSPI opens a Linux spidev node in SPI mode 0 with 8-bit words.
func OpenSPI(device string, speedHz uint32) (SPIBus, error) {
	fd, err := unix.Open(device, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}
	d := &spidev{fd: fd, speedHz: speedHz}

	mode := uint8(0)
	bits := uint8(8)
	if err := d.ioctl(spiIocWrMode, unsafe.Pointer(&mode)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set spi mode: %w", err)
	}
	if err := d.ioctl(spiIocWrBitsPerWord, unsafe.Pointer(&bits)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set spi word size: %w", err)
	}
	if speedHz > 0 {
		if err := d.ioctl(spiIocWrMaxSpeedHz, unsafe.Pointer(&speedHz)); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("set spi speed: %w", err)
		}
	}
	return d, nil
}

func (d *spidev) ioctl(req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func (d *spidev) Transfer(tx []byte) ([]byte, error) {
	if len(tx) == 0 {
		return nil, nil
	}
	rx := make([]byte, len(tx))
	xfer := spiIocTransfer{
		txBuf:       uint64(uintptr(unsafe.Pointer(&tx[0]))),
		rxBuf:       uint64(uintptr(unsafe.Pointer(&rx[0]))),
		length:      uint32(len(tx)),
		speedHz:     d.speedHz,
		bitsPerWord: 8,
	}
	err := d.ioctl(spiIocMessage1, unsafe.Pointer(&xfer))
	runtime.KeepAlive(tx)
	runtime.KeepAlive(rx)
	if err != nil {
		return nil, fmt.Errorf("spi transfer: %w", err)
	}
	return rx, nil
}

func (d *spidev) Close() error {
	return unix.Close(d.fd)
}
