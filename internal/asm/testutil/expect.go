package testutil

import (
	"fmt"
	"strings"
	"testing"
)

// Expectation describes one instruction expected in disassembly output.
// Mnemonic is compared after dropping AT&T operand size suffixes, so "ret"
// also matches "retq".
type Expectation struct {
	Name     string
	Mnemonic string
	Contains []string
}

var attSuffixed = map[string]string{
	"retq":  "ret",
	"callq": "call",
	"jmpq":  "jmp",
	"pushq": "push",
	"popq":  "pop",
}

func baseMnemonic(m string) string {
	if base, ok := attSuffixed[m]; ok {
		return base
	}
	return m
}

func (e Expectation) match(line DisasmLine) error {
	if e.Mnemonic != "" && baseMnemonic(line.Mnemonic) != e.Mnemonic {
		return fmt.Errorf("mnemonic=%s, want %s", line.Mnemonic, e.Mnemonic)
	}
	for _, needle := range e.Contains {
		if !line.Contains(needle) {
			return fmt.Errorf("missing %q in %q", needle, line.Normalized)
		}
	}
	return nil
}

// VerifyExpectations checks that the first len(expect) instructions match in
// order and returns the index of the first unchecked instruction.
func VerifyExpectations(t *testing.T, lines []DisasmLine, expect []Expectation) int {
	t.Helper()
	if len(lines) < len(expect) {
		t.Fatalf("disassembly has %d instructions, want at least %d", len(lines), len(expect))
	}
	for idx, exp := range expect {
		if err := exp.match(lines[idx]); err != nil {
			t.Fatalf("instruction %q at %d: %v\nline: %s", exp.Name, idx, err, lines[idx].Text)
		}
	}
	return len(expect)
}

// VerifyPadding checks that every instruction from index from onwards is the
// trap mnemonic used to fill alignment gaps.
func VerifyPadding(t *testing.T, lines []DisasmLine, from int, trap string) {
	t.Helper()
	for idx := from; idx < len(lines); idx++ {
		if !strings.HasPrefix(lines[idx].Mnemonic, trap) {
			t.Fatalf("padding instruction %d is %q, want %s", idx, lines[idx].Text, trap)
		}
	}
}
