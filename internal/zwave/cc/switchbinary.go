package cc

import "github.com/xx25/zwaved/internal/zwave"

// SwitchValue and Duration codes shared by binary and multilevel switches.
const (
	SwitchOff = 0x00
	SwitchOn  = 0xFF

	DurationInstantly = 0x00
	DurationUnknown   = 0xFE
	DurationDefault   = 0xFF
)

var (
	switchBinarySetV1    = zCmd("SwitchBinarySet", zwave.CCSwitchBinary, 0x01, u8("value"))
	switchBinaryGet      = zCmd("SwitchBinaryGet", zwave.CCSwitchBinary, 0x02)
	switchBinaryReportV1 = zCmd("SwitchBinaryReport", zwave.CCSwitchBinary, 0x03, u8("value"))

	switchBinarySetV2 = zCmd("SwitchBinarySet", zwave.CCSwitchBinary, 0x01,
		u8("value"), u8("duration"))
	switchBinaryReportV2 = zCmd("SwitchBinaryReport", zwave.CCSwitchBinary, 0x03,
		u8("value"), u8("targetValue"), u8("duration"))
)

// SwitchBinary is the on/off actuator command class; v2 adds a transition
// duration to Set and a target/duration pair to Report.
var SwitchBinary = &ClassDef{
	Class: zwave.CCSwitchBinary,
	Name:  "SwitchBinary",
	Versions: map[int]map[byte]*CommandDef{
		1: {0x01: switchBinarySetV1, 0x02: switchBinaryGet, 0x03: switchBinaryReportV1},
		2: {0x01: switchBinarySetV2, 0x02: switchBinaryGet, 0x03: switchBinaryReportV2},
	},
}
