package cc

import (
	"github.com/xx25/zwaved/internal/codec"
	"github.com/xx25/zwaved/internal/zwave"
)

// Setpoint type and scale codes.
const (
	SetpointHeating = 1
	SetpointCooling = 2

	ScaleCelsius    = 0
	ScaleFahrenheit = 1
)

func setpointSetOrReport(name string, cmd byte) *CommandDef {
	return zCmd(name, zwave.CCThermostatSetpoint, cmd,
		bitsField("setpointType", 0, 0x0F, false),
		codec.Computed("size", codec.IntSize(codec.Ref("value")), codec.UintBits(0, 0x07, false)),
		bitsField("scale", 3, 0x03, true),
		bitsField("precision", 5, 0x07, true),
		codec.Named("value", codec.Int(codec.Ref("size"))),
	)
}

var (
	thermostatSetpointSet    = setpointSetOrReport("ThermostatSetpointSet", 0x01)
	thermostatSetpointGet    = zCmd("ThermostatSetpointGet", zwave.CCThermostatSetpoint, 0x02, bitsField("setpointType", 0, 0x0F, false))
	thermostatSetpointReport = setpointSetOrReport("ThermostatSetpointReport", 0x03)

	thermostatSetpointSupportedGet    = zCmd("ThermostatSetpointSupportedGet", zwave.CCThermostatSetpoint, 0x04)
	thermostatSetpointSupportedReport = zCmd("ThermostatSetpointSupportedReport", zwave.CCThermostatSetpoint, 0x05,
		codec.Named("types", codec.Bitset(nil, 0)))

	thermostatSetpointCapabilitiesGet = zCmd("ThermostatSetpointCapabilitiesGet", zwave.CCThermostatSetpoint, 0x09,
		bitsField("setpointType", 0, 0x0F, false))
	thermostatSetpointCapabilitiesReport = zCmd("ThermostatSetpointCapabilitiesReport", zwave.CCThermostatSetpoint, 0x0A,
		bitsField("setpointType", 0, 0x0F, false),
		codec.Computed("minValueSize", codec.IntSize(codec.Ref("minValue")), codec.UintBits(0, 0x07, false)),
		bitsField("minValueScale", 3, 0x03, true),
		bitsField("minValuePrecision", 5, 0x07, true),
		codec.Named("minValue", codec.Int(codec.Ref("minValueSize"))),
		codec.Computed("maxValueSize", codec.IntSize(codec.Ref("maxvalue")), codec.UintBits(0, 0x07, false)),
		bitsField("maxValueScale", 3, 0x03, true),
		bitsField("maxValuePrecision", 5, 0x07, true),
		codec.Named("maxvalue", codec.Int(codec.Ref("maxValueSize"))),
	)
)

func thermostatSetpointV1Table() map[byte]*CommandDef {
	return map[byte]*CommandDef{
		0x01: thermostatSetpointSet,
		0x02: thermostatSetpointGet,
		0x03: thermostatSetpointReport,
		0x04: thermostatSetpointSupportedGet,
		0x05: thermostatSetpointSupportedReport,
	}
}

// ThermostatSetpoint sets and reads a thermostat's target temperature for
// one of several named setpoint modes (heating, cooling, ...).
var ThermostatSetpoint = &ClassDef{
	Class: zwave.CCThermostatSetpoint,
	Name:  "ThermostatSetpoint",
	Versions: map[int]map[byte]*CommandDef{
		1: thermostatSetpointV1Table(),
		2: thermostatSetpointV1Table(),
		3: {
			0x01: thermostatSetpointSet,
			0x02: thermostatSetpointGet,
			0x03: thermostatSetpointReport,
			0x04: thermostatSetpointSupportedGet,
			0x05: thermostatSetpointSupportedReport,
			0x09: thermostatSetpointCapabilitiesGet,
			0x0A: thermostatSetpointCapabilitiesReport,
		},
	},
}
