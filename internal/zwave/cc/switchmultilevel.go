package cc

import "github.com/xx25/zwaved/internal/zwave"

// IncDec/UpDown direction codes for StartLevelChange (v3+).
const (
	IncDecIncrement = 0x00
	IncDecDecrement = 0x01
	IncDecNone      = 0x03

	UpDownUp   = 0x00
	UpDownDown = 0x01
	UpDownNone = 0x03
)

var (
	switchMultilevelSetV1    = zCmd("SwitchMultilevelSet", zwave.CCSwitchMultilevel, 0x01, u8("value"))
	switchMultilevelGet      = zCmd("SwitchMultilevelGet", zwave.CCSwitchMultilevel, 0x02)
	switchMultilevelReportV1 = zCmd("SwitchMultilevelReport", zwave.CCSwitchMultilevel, 0x03, u8("value"))

	switchMultilevelStartLevelChangeV1 = zCmd("SwitchMultilevelStartLevelChange", zwave.CCSwitchMultilevel, 0x04,
		boolField("ignoreStartLevel", 0x20, false),
		boolField("upDown", 0x40, true),
		u8("startLevel"),
	)
	switchMultilevelStopLevelChange = zCmd("SwitchMultilevelStopLevelChange", zwave.CCSwitchMultilevel, 0x05)

	switchMultilevelSetV2 = zCmd("SwitchMultilevelSet", zwave.CCSwitchMultilevel, 0x01,
		u8("value"), u8("dimmingDuration"))
	switchMultilevelStartLevelChangeV2 = zCmd("SwitchMultilevelStartLevelChange", zwave.CCSwitchMultilevel, 0x04,
		boolField("ignoreStartLevel", 0x20, false),
		boolField("upDown", 0x40, true),
		u8("startLevel"),
		u8("dimmingDuration"),
	)

	switchMultilevelStartLevelChangeV3 = zCmd("SwitchMultilevelStartLevelChange", zwave.CCSwitchMultilevel, 0x04,
		bitsField("incDec", 3, 0x03, false),
		boolField("ignoreStartLevel", 0x20, true),
		bitsField("upDown", 6, 0x03, true),
		u8("startLevel"),
		u8("dimmingDuration"),
		u8("stepSize"),
	)
	switchMultilevelSupportedGet = zCmd("SwitchMultilevelSupportedGet", zwave.CCSwitchMultilevel, 0x06)
	switchMultilevelSupportedReport = zCmd("SwitchMultilevelSupportedReport", zwave.CCSwitchMultilevel, 0x07,
		bitsField("primarySwitchType", 0, 0x1F, false),
		bitsField("secondarySwitchType", 0, 0x1F, false),
	)

	switchMultilevelReportV4 = zCmd("SwitchMultilevelReport", zwave.CCSwitchMultilevel, 0x03,
		u8("value"), u8("targetValue"), u8("duration"))
)

// SwitchMultilevel is the dimmer/shutter actuator command class: a 0-99/255
// level plus, from v3, relative level-change gestures.
var SwitchMultilevel = &ClassDef{
	Class: zwave.CCSwitchMultilevel,
	Name:  "SwitchMultilevel",
	Versions: map[int]map[byte]*CommandDef{
		1: {
			0x01: switchMultilevelSetV1,
			0x02: switchMultilevelGet,
			0x03: switchMultilevelReportV1,
			0x04: switchMultilevelStartLevelChangeV1,
			0x05: switchMultilevelStopLevelChange,
		},
		2: {
			0x01: switchMultilevelSetV2,
			0x02: switchMultilevelGet,
			0x03: switchMultilevelReportV1,
			0x04: switchMultilevelStartLevelChangeV2,
			0x05: switchMultilevelStopLevelChange,
		},
		3: {
			0x01: switchMultilevelSetV2,
			0x02: switchMultilevelGet,
			0x03: switchMultilevelReportV1,
			0x04: switchMultilevelStartLevelChangeV3,
			0x05: switchMultilevelStopLevelChange,
			0x06: switchMultilevelSupportedGet,
			0x07: switchMultilevelSupportedReport,
		},
		4: {
			0x01: switchMultilevelSetV2,
			0x02: switchMultilevelGet,
			0x03: switchMultilevelReportV4,
			0x04: switchMultilevelStartLevelChangeV3,
			0x05: switchMultilevelStopLevelChange,
			0x06: switchMultilevelSupportedGet,
			0x07: switchMultilevelSupportedReport,
		},
	},
}
