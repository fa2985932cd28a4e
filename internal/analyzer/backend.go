package analyzer

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/macprof-analysis/pkg/model"
)

// BackendInfo describes a symbolication backend for help and validation.
type BackendInfo struct {
	Backend     model.Backend
	Description string
	Tools       string
}

var backendRegistry = map[model.Backend]*BackendInfo{
	model.BackendBatch: {
		Backend:     model.BackendBatch,
		Description: "One batched llvm-addr2line call per run",
		Tools:       "llvm-addr2line with JSON output",
	},
	model.BackendLineTable: {
		Backend:     model.BackendLineTable,
		Description: "Symbol table and decoded DWARF line table read through objdump",
		Tools:       "objdump -t, --dwarf=decodedline, -h",
	},
}

var backendOrder = []model.Backend{model.BackendBatch, model.BackendLineTable}

// ParseBackend parses a backend name, case-insensitively.
func ParseBackend(s string) (model.Backend, error) {
	b := model.Backend(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := backendRegistry[b]; ok {
		return b, nil
	}
	return "", fmt.Errorf("%w: %q (valid: %s)", ErrUnsupportedBackend, s, ValidBackends())
}

// ValidBackends returns a comma-separated list of backend names.
func ValidBackends() string {
	return strings.Join(lo.Map(backendOrder, func(b model.Backend, _ int) string { return string(b) }), ", ")
}

// AllBackends returns every backend in display order.
func AllBackends() []*BackendInfo {
	return lo.Map(backendOrder, func(b model.Backend, _ int) *BackendInfo { return backendRegistry[b] })
}
