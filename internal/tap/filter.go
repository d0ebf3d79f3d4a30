package tap

import (
	"golang.org/x/net/bpf"
)

// lengthProgram accepts frames long enough to hold an Ethernet header and
// a tail tag of width bytes, truncated to snapLen, and drops the rest.
func lengthProgram(width, snapLen int) []bpf.Instruction {
	return []bpf.Instruction{
		bpf.LoadExtension{Num: bpf.ExtLen},
		bpf.JumpIf{Cond: bpf.JumpGreaterOrEqual, Val: uint32(headerLen + width), SkipFalse: 1},
		bpf.RetConstant{Val: uint32(snapLen)},
		bpf.RetConstant{Val: 0},
	}
}

func lengthFilter(width, snapLen int) ([]bpf.RawInstruction, error) {
	return bpf.Assemble(lengthProgram(width, snapLen))
}
