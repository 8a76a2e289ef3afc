package vm

import "fmt"

// NumGeneralRegisters is the fixed register file size per thread.
const NumGeneralRegisters = 8

// Flag is the 3-state result of the last CMP/CMPZ.
type Flag uint8

const (
	FlagNone Flag = iota
	FlagEqual
	FlagGreater
)

// RegisterFile is the set of general registers plus the comparison
// flag, all private to one ExecutionThread.
type RegisterFile struct {
	regs  [NumGeneralRegisters]Value
	flags Flag
}

func NewRegisterFile() *RegisterFile {
	rf := &RegisterFile{}
	for i := range rf.regs {
		rf.regs[i] = Null()
	}
	return rf
}

func (r *RegisterFile) Get(reg uint8) (Value, error) {
	if int(reg) >= NumGeneralRegisters {
		return Value{}, fmt.Errorf("register out of range: %d", reg)
	}
	return r.regs[reg], nil
}

func (r *RegisterFile) Set(reg uint8, v Value) error {
	if int(reg) >= NumGeneralRegisters {
		return fmt.Errorf("register out of range: %d", reg)
	}
	r.regs[reg] = v
	return nil
}

func (r *RegisterFile) Flags() Flag     { return r.flags }
func (r *RegisterFile) SetFlags(f Flag) { r.flags = f }
