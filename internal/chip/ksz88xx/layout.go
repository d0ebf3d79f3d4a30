// Package ksz88xx implements the 8-bit register KSZ switches (KSZ8795,
// KSZ8863, KSZ8864). The models differ only in port count, table sizes,
// the indirect access window address and a few optional features, which
// a Layout captures.
package ksz88xx

import (
	"firestige.xyz/swctl/internal/core"
	"firestige.xyz/swctl/internal/tailtag"
)

// Layout is the per-model register description.
type Layout struct {
	Name         string
	ChipID       uint8
	Ports        int
	StaticSlots  int
	DynamicSlots int
	Dialect      tailtag.Dialect
	// Indirect is the address of indirect control register 0. Control 1
	// follows it, then data registers 8 down to 0.
	Indirect uint32
	HasMLD   bool
}

const (
	regChipID0  = 0x00
	regGlobal0  = 0x02
	regGlobal1  = 0x03
	regGlobal3  = 0x05
	regUnkUcast = 0x0a
	regUnkMcast = 0x0b
	regGlobal12 = 0x0e

	global0FlushDynamic = 0x20
	global0FlushStatic  = 0x10
	global1TailTag      = 0x40
	global1Aging        = 0x04
	global3Igmp         = 0x40
	global12Mld         = 0x04
	unkFwdEnable        = 0x80

	portCtrl2     = 0x02
	portStatus0   = 0x0e
	portStatus1   = 0x0f
	ctrl2Tx       = 0x04
	ctrl2Rx       = 0x02
	ctrl2LearnOff = 0x01
	status0Link   = 0x20
	status1Speed  = 0x04
	status1Full   = 0x02

	indirectRead    = 0x10
	indirectStatic  = 0x00
	indirectDynamic = 0x08
	indirectTable   = 0x0c

	// AgingSeconds is the hard-wired aging period.
	AgingSeconds = 300
)

func portBase(p core.PortID) uint32 {
	return 0x10 * uint32(p)
}

func (l Layout) ctrl1() uint32 { return l.Indirect + 1 }

// data returns the address of data register n (8 down to 0).
func (l Layout) data(n int) uint32 { return l.Indirect + 2 + uint32(8-n) }

func (l Layout) cpu() core.PortID { return core.PortID(l.Ports + 1) }

// Static table record, data registers 7..0:
//
//	byte 0  FID
//	byte 1  bit 7 use FID, bit 6 override, bit 5 valid, bits 4:0 forward ports
//	byte 2-7  MAC address
const (
	staticUseFID   = 0x80
	staticOverride = 0x40
	staticValid    = 0x20
	staticPorts    = 0x1f

	// StaticRecordLen is the length of an encoded static record.
	StaticRecordLen = 8
	// DynamicRecordLen is the length of an encoded dynamic record.
	DynamicRecordLen = 9
)

// StaticRecord is the decoded form of a static table slot.
type StaticRecord struct {
	Valid    bool
	Override bool
	Ports    uint8
	MAC      core.MAC
}

// EncodeStatic packs r into its 8-byte wire form.
func EncodeStatic(r StaticRecord) [StaticRecordLen]byte {
	var b [StaticRecordLen]byte
	b[1] = r.Ports & staticPorts
	if r.Valid {
		b[1] |= staticValid
	}
	if r.Override {
		b[1] |= staticOverride
	}
	copy(b[2:], r.MAC[:])
	return b
}

// DecodeStatic unpacks an 8-byte static record.
func DecodeStatic(b [StaticRecordLen]byte) StaticRecord {
	r := StaticRecord{
		Valid:    b[1]&staticValid != 0,
		Override: b[1]&staticOverride != 0,
		Ports:    b[1] & staticPorts,
	}
	copy(r.MAC[:], b[2:])
	return r
}

// Dynamic table record, data registers 8..0:
//
//	byte 0  bit 7 data not ready, bit 2 table empty, bits 1:0 valid count-1 (high)
//	byte 1  valid count-1 (low)
//	byte 2  bits 2:0 source port, zero based
//	byte 3-8  MAC address
const (
	dynNotReady = 0x80
	dynEmpty    = 0x04
	dynCountHi  = 0x03
	dynPort     = 0x07
)

// DynamicRecord is the decoded form of one dynamic table read.
type DynamicRecord struct {
	NotReady bool
	Empty    bool
	Count    int
	Port     core.PortID
	MAC      core.MAC
}

// EncodeDynamic packs r into its 9-byte wire form. Count must be at
// least 1 unless Empty is set.
func EncodeDynamic(r DynamicRecord) [DynamicRecordLen]byte {
	var b [DynamicRecordLen]byte
	if r.NotReady {
		b[0] |= dynNotReady
	}
	if r.Empty {
		b[0] |= dynEmpty
	} else if r.Count > 0 {
		n := r.Count - 1
		b[0] |= byte(n>>8) & dynCountHi
		b[1] = byte(n)
	}
	if r.Port > 0 {
		b[2] = byte(r.Port-1) & dynPort
	}
	copy(b[3:], r.MAC[:])
	return b
}

// DecodeDynamic unpacks a 9-byte dynamic record.
func DecodeDynamic(b [DynamicRecordLen]byte) DynamicRecord {
	r := DynamicRecord{
		NotReady: b[0]&dynNotReady != 0,
		Empty:    b[0]&dynEmpty != 0,
		Port:     core.PortID(b[2]&dynPort) + 1,
	}
	if !r.Empty {
		r.Count = (int(b[0]&dynCountHi)<<8 | int(b[1])) + 1
	}
	copy(r.MAC[:], b[3:])
	return r
}
