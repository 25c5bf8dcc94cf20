package cc

import "github.com/xx25/zwaved/internal/zwave"

var (
	wakeUpIntervalSet = zCmd("WakeUpIntervalSet", zwave.CCWakeUp, 0x04, u24("seconds"), u8("nodeid"))
	wakeUpIntervalGet = zCmd("WakeUpIntervalGet", zwave.CCWakeUp, 0x05)
	wakeUpIntervalReport = zCmd("WakeUpIntervalReport", zwave.CCWakeUp, 0x06, u24("seconds"), u8("nodeid"))
	wakeUpNotification = zCmd("WakeUpNotification", zwave.CCWakeUp, 0x07)
	wakeUpNoMoreInformation = zCmd("WakeUpNoMoreInformation", zwave.CCWakeUp, 0x08)

	wakeUpIntervalCapabilitiesGet = zCmd("WakeUpIntervalCapabilitiesGet", zwave.CCWakeUp, 0x09)
	wakeUpIntervalCapabilitiesReport = zCmd("WakeUpIntervalCapabilitiesReport", zwave.CCWakeUp, 0x0A,
		u24("minimumWakeUpIntervalSeconds"),
		u24("maximumWakeUpIntervalSeconds"),
		u24("defaultWakeUpIntervalSeconds"),
		u24("wakeUpIntervalStepSeconds"),
	)
)

func wakeUpV1Table() map[byte]*CommandDef {
	return map[byte]*CommandDef{
		0x04: wakeUpIntervalSet,
		0x05: wakeUpIntervalGet,
		0x06: wakeUpIntervalReport,
		0x07: wakeUpNotification,
		0x08: wakeUpNoMoreInformation,
	}
}

// WakeUp lets a battery-powered node negotiate how often it listens for
// queued commands, and announces each time it wakes.
var WakeUp = &ClassDef{
	Class: zwave.CCWakeUp,
	Name:  "WakeUp",
	Versions: map[int]map[byte]*CommandDef{
		1: wakeUpV1Table(),
		2: {
			0x04: wakeUpIntervalSet,
			0x05: wakeUpIntervalGet,
			0x06: wakeUpIntervalReport,
			0x07: wakeUpNotification,
			0x08: wakeUpNoMoreInformation,
			0x09: wakeUpIntervalCapabilitiesGet,
			0x0A: wakeUpIntervalCapabilitiesReport,
		},
	},
}
