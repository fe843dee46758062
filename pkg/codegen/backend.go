package codegen

import (
	"bytes"
	"fmt"

	"github.com/energy-in-joles/C-Compiler/pkg/ast"
	"github.com/energy-in-joles/C-Compiler/pkg/config"
)

// Backend is the interface that all code generation backends must implement.
type Backend interface {
	// Generate takes a translation unit and a configuration, and produces the
	// target assembly as a byte buffer.
	Generate(root *ast.Node, cfg *config.Config) (*bytes.Buffer, error)
	Name() string
}

type rv32Backend struct{}

func NewRV32Backend() Backend { return &rv32Backend{} }

func (b *rv32Backend) Name() string { return "rv32" }

func (b *rv32Backend) Generate(root *ast.Node, cfg *config.Config) (*bytes.Buffer, error) {
	if cfg.WordSize != 4 {
		return nil, fmt.Errorf("rv32 backend: unsupported word size %d", cfg.WordSize)
	}
	return Generate(root, cfg)
}

// SelectBackend returns the backend for the configured target architecture.
func SelectBackend(cfg *config.Config) (Backend, error) {
	switch cfg.TargetArch {
	case "rv32", "riscv32":
		return NewRV32Backend(), nil
	}
	return nil, fmt.Errorf("unsupported target architecture '%s'", cfg.TargetArch)
}
