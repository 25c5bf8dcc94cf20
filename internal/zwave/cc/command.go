// Package cc declares the Z-Wave command-class catalog: per-class,
// per-version command tables built on the same declarative field tables as
// the Serial API message catalog in package zwave. A command travels inside
// an ApplicationCommandHandler/SendData payload, so its own field table
// starts at the command-class byte rather than a frame header.
package cc

import (
	"fmt"

	"github.com/xx25/zwaved/internal/codec"
	"github.com/xx25/zwaved/internal/zwave"
)

// CommandDef describes one command-class command: its class+cmd magic and
// field table. The same *CommandDef pointer is reused across every version
// that leaves the command unchanged, matching the catalog's "later versions
// inherit the earlier command" convention.
type CommandDef struct {
	Name   string
	Class  zwave.CommandClass
	Cmd    byte
	Fields []codec.Field
}

func zCmd(name string, class zwave.CommandClass, cmd byte, rest ...codec.Field) *CommandDef {
	fields := make([]codec.Field, 0, len(rest)+1)
	fields = append(fields, codec.Named("", codec.Magic([]byte{byte(class), cmd})))
	fields = append(fields, rest...)
	return &CommandDef{Name: name, Class: class, Cmd: cmd, Fields: fields}
}

// Decode parses data (starting at the command-class byte) against c's field
// table.
func (c *CommandDef) Decode(data []byte) (codec.State, int, error) {
	st, pos, err := codec.Decode(c.Fields, data)
	if err != nil {
		return nil, 0, fmt.Errorf("zwave/cc: decode %s: %w", c.Name, err)
	}
	return st, pos, nil
}

// Encode serializes st against c's field table.
func (c *CommandDef) Encode(st codec.State) ([]byte, error) {
	out, err := codec.Encode(c.Fields, st)
	if err != nil {
		return nil, fmt.Errorf("zwave/cc: encode %s: %w", c.Name, err)
	}
	return out, nil
}

// ClassDef is one command class's full version history: for each
// implemented version, the complete command table that version's nodes
// understand (commands unchanged since an earlier version alias that
// earlier version's *CommandDef directly).
type ClassDef struct {
	Class    zwave.CommandClass
	Name     string
	Versions map[int]map[byte]*CommandDef
}

// Lookup resolves cmd against the command table for version, falling back
// to the highest known version at or below version — a node reporting a
// command-class version newer than this catalog models still gets decoded
// against the newest table we have, since command codes are additive
// within a class.
func (d *ClassDef) Lookup(version int, cmd byte) (*CommandDef, error) {
	table, ok := d.Versions[version]
	if !ok {
		best := 0
		for v := range d.Versions {
			if v <= version && v > best {
				best = v
			}
		}
		if best == 0 {
			return nil, fmt.Errorf("zwave/cc: %s: no command table known", d.Name)
		}
		table = d.Versions[best]
	}
	def, ok := table[cmd]
	if !ok {
		return nil, fmt.Errorf("zwave/cc: %s v%d: unknown command 0x%02x", d.Name, version, cmd)
	}
	return def, nil
}

// Decode looks up data's command byte against version's table and decodes
// the full payload (including the class+cmd prefix).
func (d *ClassDef) Decode(version int, data []byte) (*CommandDef, codec.State, int, error) {
	if len(data) < 2 {
		return nil, nil, 0, fmt.Errorf("zwave/cc: short command")
	}
	def, err := d.Lookup(version, data[1])
	if err != nil {
		return nil, nil, 0, err
	}
	st, pos, err := def.Decode(data)
	return def, st, pos, err
}

// Classes is every command class this catalog implements, indexed by code.
var Classes = map[zwave.CommandClass]*ClassDef{}

func register(d *ClassDef) {
	Classes[d.Class] = d
}

func init() {
	register(Basic)
	register(Battery)
	register(ManufacturerSpecific)
	register(Meter)
	register(MultiChannel)
	register(SensorBinary)
	register(SensorMultilevel)
	register(SwitchBinary)
	register(SwitchMultilevel)
	register(ThermostatSetpoint)
	register(Version)
	register(WakeUp)
}

// Decode dispatches data's leading command-class byte to the matching
// ClassDef and decodes against the node's negotiated version for that
// class.
func Decode(version int, data []byte) (*ClassDef, *CommandDef, codec.State, int, error) {
	if len(data) < 1 {
		return nil, nil, nil, 0, fmt.Errorf("zwave/cc: empty command")
	}
	class, ok := Classes[zwave.CommandClass(data[0])]
	if !ok {
		return nil, nil, nil, 0, fmt.Errorf("zwave/cc: unknown command class 0x%02x", data[0])
	}
	def, st, pos, err := class.Decode(version, data)
	return class, def, st, pos, err
}

func u8(name string) codec.Field  { return codec.Named(name, codec.Uint(codec.Const(1))) }
func u16(name string) codec.Field { return codec.Named(name, codec.Uint(codec.Const(2))) }
func u24(name string) codec.Field { return codec.Named(name, codec.Uint(codec.Const(3))) }

func boolField(name string, mask int, prevByte bool) codec.Field {
	return codec.Named(name, codec.Boolean(mask, prevByte))
}
func bitsField(name string, shift, mask int, prevByte bool) codec.Field {
	return codec.Named(name, codec.UintBits(shift, mask, prevByte))
}
