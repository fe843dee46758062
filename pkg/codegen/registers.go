package codegen

import (
	"errors"
	"fmt"

	"github.com/energy-in-joles/C-Compiler/pkg/types"
)

const (
	numRegisters = 64
	// firstPoolReg is a1. Everything below it is reserved or ABI-fixed.
	firstPoolReg  = 31
	firstFloatReg = 45
)

var registerNames = [numRegisters]string{
	"zero", "ra", "sp", "gp", "tp", "s0",
	"s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8", "s9", "s10", "s11",
	"fs0", "fs1", "fs2", "fs3", "fs4", "fs5", "fs6", "fs7", "fs8", "fs9", "fs10", "fs11",
	"fa0",
	"a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7",
	"t0", "t1", "t2", "t3", "t4", "t5", "t6",
	"fa1", "fa2", "fa3", "fa4", "fa5", "fa6", "fa7",
	"ft0", "ft1", "ft2", "ft3", "ft4", "ft5", "ft6", "ft7", "ft8", "ft9", "ft10", "ft11",
}

var registerIndex = func() map[string]int {
	m := make(map[string]int, numRegisters)
	for i, name := range registerNames {
		m[name] = i
	}
	return m
}()

var (
	ErrExhausted        = errors.New("out of usable registers")
	ErrInvalidRegister  = errors.New("invalid register")
	ErrReservedRegister = errors.New("register is not allocatable")
	ErrRegisterInUse    = errors.New("register already in use")
)

// RegName returns the ABI name of register id.
func RegName(id int) (string, error) {
	if id < 0 || id >= numRegisters {
		return "", fmt.Errorf("register %d: %w", id, ErrInvalidRegister)
	}
	return registerNames[id], nil
}

// RegIndex returns the id of the register called name.
func RegIndex(name string) (int, error) {
	id, ok := registerIndex[name]
	if !ok {
		return 0, fmt.Errorf("register %q: %w", name, ErrInvalidRegister)
	}
	return id, nil
}

// IsFloatReg reports whether id names a floating-point register.
func IsFloatReg(id int) bool {
	return (id >= 17 && id <= 29) || id >= firstFloatReg
}

// RegisterFile tracks which machine registers hold live values. Temporaries
// are drawn from a1..a7,t0..t6 for integer kinds and fa1..fa7,ft0..ft11 for
// floating kinds.
type RegisterFile struct {
	used [numRegisters]bool
}

// Assign hands out the lowest free register of the partition matching k.
func (r *RegisterFile) Assign(k types.Kind) (int, error) {
	lo, hi := firstPoolReg, firstFloatReg
	if k.IsFloat() {
		lo, hi = firstFloatReg, numRegisters
	}
	for id := lo; id < hi; id++ {
		if !r.used[id] {
			r.used[id] = true
			return id, nil
		}
	}
	return 0, fmt.Errorf("assign %s register: %w", k, ErrExhausted)
}

// Free returns a pool register. Freeing a register that is already free is
// a no-op.
func (r *RegisterFile) Free(id int) error {
	if id < firstPoolReg || id >= numRegisters {
		return fmt.Errorf("free register %d: %w", id, ErrReservedRegister)
	}
	r.used[id] = false
	return nil
}

// Use marks the register called name as live.
func (r *RegisterFile) Use(name string) error {
	id, err := RegIndex(name)
	if err != nil {
		return err
	}
	if r.used[id] {
		return fmt.Errorf("use %s: %w", name, ErrRegisterInUse)
	}
	r.used[id] = true
	return nil
}

// IsUsed reports whether id currently holds a live value.
func (r *RegisterFile) IsUsed(id int) bool {
	return id >= 0 && id < numRegisters && r.used[id]
}

// Used lists the live registers in ascending id order.
func (r *RegisterFile) Used() []int {
	var ids []int
	for id, u := range r.used {
		if u {
			ids = append(ids, id)
		}
	}
	return ids
}

// InUse counts the live registers.
func (r *RegisterFile) InUse() int {
	n := 0
	for _, u := range r.used {
		if u {
			n++
		}
	}
	return n
}
