package cc

import (
	"github.com/xx25/zwaved/internal/codec"
	"github.com/xx25/zwaved/internal/zwave"
)

// SensorBinary sensor type codes (v2+).
const (
	SensorTypeGeneral    = 0x01
	SensorTypeSmoke      = 0x02
	SensorTypeCO         = 0x03
	SensorTypeCO2        = 0x04
	SensorTypeHeat       = 0x05
	SensorTypeWater      = 0x06
	SensorTypeFreeze     = 0x07
	SensorTypeTamper     = 0x08
	SensorTypeAux        = 0x09
	SensorTypeDoorWindow = 0x0A
	SensorTypeTilt       = 0x0B
	SensorTypeMotion     = 0x0C
	SensorTypeGlassBreak = 0x0D
	SensorTypeFirst      = 0xFF
)

// SensorValueIdle and SensorValueDetected are the only two values a binary
// sensor report carries.
const (
	SensorValueIdle     = 0x00
	SensorValueDetected = 0xFF
)

var (
	sensorBinaryGetV1    = zCmd("SensorBinaryGet", zwave.CCSensorBinary, 0x02)
	sensorBinaryReportV1 = zCmd("SensorBinaryReport", zwave.CCSensorBinary, 0x03, u8("sensorValue"))

	sensorBinarySupportedGetSensor = zCmd("SensorBinarySupportedGetSensor", zwave.CCSensorBinary, 0x01)
	sensorBinaryGetV2               = zCmd("SensorBinaryGet", zwave.CCSensorBinary, 0x02, u8("sensorType"))
	sensorBinaryReportV2             = zCmd("SensorBinaryReport", zwave.CCSensorBinary, 0x03,
		u8("sensorValue"), u8("sensorType"))
	sensorBinarySupportedSensorReport = zCmd("SensorBinarySupportedSensorReport", zwave.CCSensorBinary, 0x04,
		codec.Named("bitMask", codec.Bitset(nil, 0)))
)

// SensorBinary reports a single on/off sensor reading; v2 adds a sensor
// type so one node can expose several distinct binary sensors.
var SensorBinary = &ClassDef{
	Class: zwave.CCSensorBinary,
	Name:  "SensorBinary",
	Versions: map[int]map[byte]*CommandDef{
		1: {0x02: sensorBinaryGetV1, 0x03: sensorBinaryReportV1},
		2: {
			0x01: sensorBinarySupportedGetSensor,
			0x02: sensorBinaryGetV2,
			0x03: sensorBinaryReportV2,
			0x04: sensorBinarySupportedSensorReport,
		},
	},
}
