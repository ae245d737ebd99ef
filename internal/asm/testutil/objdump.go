// Package testutil checks emitted machine code against a system disassembler.
package testutil

import (
	"bufio"
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"testing"
)

const (
	MachineX86_64  = elf.EM_X86_64
	MachineAArch64 = elf.EM_AARCH64
)

// DisasmLine is one decoded instruction.
type DisasmLine struct {
	// Text is the instruction as printed by the tool.
	Text string
	// Normalized collapses whitespace and prints every '#' immediate in
	// hexadecimal, so GNU and LLVM output compare the same way.
	Normalized string
	Mnemonic   string
}

// Contains reports whether the normalized text contains substr.
func (l DisasmLine) Contains(substr string) bool {
	return strings.Contains(l.Normalized, substr)
}

type disassembler struct {
	tool string
	args []string
}

// disassemblers lists the tools tried for each machine, in order.
var disassemblers = map[elf.Machine][]disassembler{
	MachineX86_64: {
		{tool: "objdump", args: []string{"-d", "--no-show-raw-insn", "-M", "att"}},
		{tool: "llvm-objdump", args: []string{"-d", "--no-show-raw-insn", "--x86-asm-syntax=att"}},
	},
	MachineAArch64: {
		{tool: "llvm-objdump", args: []string{"-d", "--no-show-raw-insn"}},
		{tool: "aarch64-linux-gnu-objdump", args: []string{"-d", "--no-show-raw-insn"}},
	},
}

// Disassemble decodes code with the first installed tool that understands
// machine. The test is skipped when none is installed.
func Disassemble(t *testing.T, code []byte, machine elf.Machine) []DisasmLine {
	t.Helper()

	candidates, ok := disassemblers[machine]
	if !ok {
		t.Fatalf("no disassembler for %s", machine)
	}
	for _, d := range candidates {
		path, err := exec.LookPath(d.tool)
		if err != nil {
			continue
		}
		return run(t, path, d.args, code, machine)
	}
	t.Skipf("no disassembler installed for %s", machine)
	return nil
}

func run(t *testing.T, path string, args []string, code []byte, machine elf.Machine) []DisasmLine {
	t.Helper()

	image, err := textImage(code, machine)
	if err != nil {
		t.Fatalf("build ELF image: %v", err)
	}
	file, err := os.CreateTemp(t.TempDir(), "thunk-*.elf")
	if err != nil {
		t.Fatalf("create image: %v", err)
	}
	if _, err := file.Write(image); err != nil {
		t.Fatalf("write image: %v", err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("close image: %v", err)
	}

	out, err := exec.Command(path, append(append([]string{}, args...), file.Name())...).CombinedOutput()
	if err != nil {
		t.Fatalf("%s: %v\n%s", path, err, out)
	}
	lines, err := parseListing(out)
	if err != nil {
		t.Fatalf("parse %s output: %v", path, err)
	}
	if len(lines) == 0 {
		t.Fatalf("%s decoded no instructions:\n%s", path, out)
	}
	return lines
}

const (
	ehdrSize  = 64
	shdrSize  = 64
	textAlign = 16
)

// shstrtab holds the section names; .text starts at offset 1 and .shstrtab at 7.
var shstrtab = []byte("\x00.text\x00.shstrtab\x00")

// textImage wraps code in a relocatable ELF64 file holding a single .text
// section, which is all a disassembler needs.
func textImage(code []byte, machine elf.Machine) ([]byte, error) {
	textOff := uint64(ehdrSize)
	strOff := textOff + uint64(len(code))
	shOff := (strOff + uint64(len(shstrtab)) + 7) &^ 7

	var buf bytes.Buffer
	hdr := elf.Header64{
		Type:      uint16(elf.ET_REL),
		Machine:   uint16(machine),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     shOff,
		Ehsize:    ehdrSize,
		Shentsize: shdrSize,
		Shnum:     3,
		Shstrndx:  2,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	sections := []elf.Section64{
		{},
		{
			Name:      1,
			Type:      uint32(elf.SHT_PROGBITS),
			Flags:     uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR),
			Off:       textOff,
			Size:      uint64(len(code)),
			Addralign: textAlign,
		},
		{
			Name:      7,
			Type:      uint32(elf.SHT_STRTAB),
			Off:       strOff,
			Size:      uint64(len(shstrtab)),
			Addralign: 1,
		},
	}

	if err := binary.Write(&buf, binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}
	buf.Write(code)
	buf.Write(shstrtab)
	buf.Write(make([]byte, shOff-uint64(buf.Len())))
	if err := binary.Write(&buf, binary.LittleEndian, sections); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var immediate = regexp.MustCompile(`#(-?)(0x[0-9a-fA-F]+|[0-9]+)\b`)

// normalizeImmediates rewrites "#21862" and "#0x5566" alike as "#0x5566".
func normalizeImmediates(s string) string {
	return immediate.ReplaceAllStringFunc(s, func(m string) string {
		sub := immediate.FindStringSubmatch(m)
		v, err := strconv.ParseUint(sub[2], 0, 64)
		if err != nil {
			return m
		}
		return fmt.Sprintf("#%s%#x", sub[1], v)
	})
}

// parseListing extracts instruction lines ("  addr:\tmnemonic operands")
// from objdump style output, skipping headers and symbol labels.
func parseListing(out []byte) ([]DisasmLine, error) {
	var lines []DisasmLine
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		addr, text, ok := strings.Cut(scanner.Text(), ":")
		if !ok || !isAddress(addr) {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" || strings.HasPrefix(text, "file format") {
			continue
		}
		fields := strings.Fields(text)
		lines = append(lines, DisasmLine{
			Text:       text,
			Normalized: normalizeImmediates(strings.Join(fields, " ")),
			Mnemonic:   strings.ToLower(fields[0]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan listing: %w", err)
	}
	return lines, nil
}

// isAddress reports whether s is a bare hexadecimal offset. Headers and
// symbol labels such as "0000000000000000 <.text>" are not.
func isAddress(s string) bool {
	_, err := strconv.ParseUint(strings.TrimSpace(s), 16, 64)
	return err == nil
}
