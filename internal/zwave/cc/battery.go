package cc

import "github.com/xx25/zwaved/internal/zwave"

// BatteryLowWarning is the sentinel batteryLevel value meaning "critically
// low" rather than a percentage.
const BatteryLowWarning = 0xFF

var (
	batteryGet    = zCmd("BatteryGet", zwave.CCBattery, 0x02)
	batteryReport = zCmd("BatteryReport", zwave.CCBattery, 0x03, u8("batteryLevel"))
)

// Battery reports a node's remaining battery charge as a percentage, or
// BatteryLowWarning.
var Battery = &ClassDef{
	Class: zwave.CCBattery,
	Name:  "Battery",
	Versions: map[int]map[byte]*CommandDef{
		1: {0x02: batteryGet, 0x03: batteryReport},
	},
}
