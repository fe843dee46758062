package codegen

import (
	"errors"
	"testing"

	"github.com/energy-in-joles/C-Compiler/pkg/types"
	"github.com/google/go-cmp/cmp"
)

func TestRegisterNames(t *testing.T) {
	tests := []struct {
		id   int
		name string
	}{
		{0, "zero"}, {1, "ra"}, {5, "s0"}, {16, "s11"}, {17, "fs0"}, {28, "fs11"},
		{29, "fa0"}, {30, "a0"}, {31, "a1"}, {37, "a7"}, {38, "t0"}, {44, "t6"},
		{45, "fa1"}, {51, "fa7"}, {52, "ft0"}, {63, "ft11"},
	}
	for _, tt := range tests {
		name, err := RegName(tt.id)
		if err != nil || name != tt.name {
			t.Errorf("RegName(%d) = %q, %v; want %q", tt.id, name, err, tt.name)
		}
		id, err := RegIndex(tt.name)
		if err != nil || id != tt.id {
			t.Errorf("RegIndex(%q) = %d, %v; want %d", tt.name, id, err, tt.id)
		}
	}
	if _, err := RegName(64); !errors.Is(err, ErrInvalidRegister) {
		t.Errorf("RegName(64) error = %v, want ErrInvalidRegister", err)
	}
	if _, err := RegIndex("x5"); !errors.Is(err, ErrInvalidRegister) {
		t.Errorf("RegIndex(x5) error = %v, want ErrInvalidRegister", err)
	}
}

func TestAssignPartitions(t *testing.T) {
	var rf RegisterFile
	var ints []string
	for i := 0; i < 14; i++ {
		id, err := rf.Assign(types.Int)
		if err != nil {
			t.Fatalf("Assign #%d: %v", i, err)
		}
		ints = append(ints, reg(id))
	}
	want := []string{"a1", "a2", "a3", "a4", "a5", "a6", "a7", "t0", "t1", "t2", "t3", "t4", "t5", "t6"}
	if diff := cmp.Diff(want, ints); diff != "" {
		t.Errorf("integer partition mismatch (-want +got):\n%s", diff)
	}
	if _, err := rf.Assign(types.Char); !errors.Is(err, ErrExhausted) {
		t.Errorf("15th integer Assign error = %v, want ErrExhausted", err)
	}

	f, err := rf.Assign(types.Float)
	if err != nil || reg(f) != "fa1" {
		t.Fatalf("first float Assign = %s, %v; want fa1", reg(f), err)
	}
	d, _ := rf.Assign(types.Double)
	if reg(d) != "fa2" {
		t.Errorf("second float Assign = %s, want fa2", reg(d))
	}
}

func TestAssignReusesLowest(t *testing.T) {
	var rf RegisterFile
	a, _ := rf.Assign(types.Int)
	b, _ := rf.Assign(types.Int)
	rf.Assign(types.Int)
	if err := rf.Free(a); err != nil {
		t.Fatal(err)
	}
	if err := rf.Free(b); err != nil {
		t.Fatal(err)
	}
	got, _ := rf.Assign(types.Int)
	if got != a {
		t.Errorf("Assign after Free = %s, want %s", reg(got), reg(a))
	}
	if err := rf.Free(b); err != nil {
		t.Errorf("double Free = %v, want no-op", err)
	}
}

func TestFreeAndUse(t *testing.T) {
	var rf RegisterFile
	for _, id := range []int{0, 2, 29, 30} {
		if err := rf.Free(id); !errors.Is(err, ErrReservedRegister) {
			t.Errorf("Free(%s) error = %v, want ErrReservedRegister", reg(id), err)
		}
	}
	if err := rf.Use("a3"); err != nil {
		t.Fatalf("Use(a3): %v", err)
	}
	if err := rf.Use("a3"); !errors.Is(err, ErrRegisterInUse) {
		t.Errorf("second Use(a3) error = %v, want ErrRegisterInUse", err)
	}
	id, _ := rf.Assign(types.Int)
	if reg(id) != "a1" {
		t.Errorf("Assign = %s, want a1", reg(id))
	}
	rf.Use("ft0")
	if diff := cmp.Diff([]int{31, 33, 52}, rf.Used()); diff != "" {
		t.Errorf("Used() mismatch (-want +got):\n%s", diff)
	}
	if rf.InUse() != 3 {
		t.Errorf("InUse() = %d, want 3", rf.InUse())
	}
}

func TestIsFloatReg(t *testing.T) {
	for _, name := range []string{"fs0", "fs11", "fa0", "fa1", "ft11"} {
		id, _ := RegIndex(name)
		if !IsFloatReg(id) {
			t.Errorf("IsFloatReg(%s) = false", name)
		}
	}
	for _, name := range []string{"zero", "s0", "s11", "a0", "a7", "t6"} {
		id, _ := RegIndex(name)
		if IsFloatReg(id) {
			t.Errorf("IsFloatReg(%s) = true", name)
		}
	}
}
