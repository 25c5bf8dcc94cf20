package cc

import "github.com/xx25/zwaved/internal/zwave"

var (
	basicSet    = zCmd("BasicSet", zwave.CCBasic, 0x01, u8("value"))
	basicGet    = zCmd("BasicGet", zwave.CCBasic, 0x02)
	basicReport = zCmd("BasicReport", zwave.CCBasic, 0x03, u8("value"))

	// BasicReportV2 adds targetValue/duration, mirroring every Report
	// shape the binary/multilevel switch classes use for transition state.
	basicReportV2 = zCmd("BasicReport", zwave.CCBasic, 0x03,
		u8("value"), u8("targetValue"), u8("duration"))
)

// Basic is the universal device-control command class: a single scalar
// 0-99/255 level with no class-specific semantics of its own.
var Basic = &ClassDef{
	Class: zwave.CCBasic,
	Name:  "Basic",
	Versions: map[int]map[byte]*CommandDef{
		1: {0x01: basicSet, 0x02: basicGet, 0x03: basicReport},
		2: {0x01: basicSet, 0x02: basicGet, 0x03: basicReportV2},
	},
}
