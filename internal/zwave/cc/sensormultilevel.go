package cc

import (
	"github.com/xx25/zwaved/internal/codec"
	"github.com/xx25/zwaved/internal/zwave"
)

// SensorMultilevel sensor type codes.
const (
	MultilevelTemperature             = 1
	MultilevelGeneralPurposeValue      = 2
	MultilevelLuminance                = 3
	MultilevelPower                    = 4
	MultilevelRelativeHumidity         = 5
	MultilevelVelocity                 = 6
	MultilevelDirection                = 7
	MultilevelAtmosphericPressure      = 8
	MultilevelBarometricPressure       = 9
	MultilevelSolarRadiation           = 10
	MultilevelDewPoint                 = 11
	MultilevelRainRate                 = 12
	MultilevelTideLevel                = 13
	MultilevelWeight                   = 14
	MultilevelVoltage                  = 15
	MultilevelCurrent                  = 16
	MultilevelCO2Level                 = 17
	MultilevelAirFlow                  = 18
	MultilevelTankCapacity             = 19
	MultilevelDistance                 = 20
	MultilevelAnglePosition            = 21
	MultilevelRotation                 = 22
	MultilevelWaterTemperature         = 23
	MultilevelSoilTemperature          = 24
	MultilevelSeismicIntensity         = 25
	MultilevelSeismicMagnitude         = 26
	MultilevelUltraviolet              = 27
	MultilevelElectricalResistivity    = 28
	MultilevelElectricalConductivity   = 29
	MultilevelLoudness                 = 30
	MultilevelMoisture                 = 31
	MultilevelFrequency                = 32
	MultilevelTime                     = 33
	MultilevelTargetTemperature        = 34
)

var (
	sensorMultilevelGetV1 = zCmd("SensorMultilevelGet", zwave.CCSensorMultilevel, 0x04)

	// SensorMultilevelReport packs a virtualfield byte size ahead of a
	// variable-width signed reading, the same scale/precision straddle
	// convention ManufacturerSpecific's DeviceSpecificReport uses for its length.
	sensorMultilevelReportV1 = zCmd("SensorMultilevelReport", zwave.CCSensorMultilevel, 0x05,
		u8("sensorType"),
		codec.Computed("size", codec.IntSize(codec.Ref("sensorValue")), codec.UintBits(0, 0x07, false)),
		bitsField("scale", 3, 0x03, true),
		bitsField("precision", 5, 0x07, true),
		codec.Named("sensorValue", codec.Int(codec.Ref("size"))),
	)

	sensorMultilevelSupportedGetSensor = zCmd("SensorMultilevelSupportedGetSensor", zwave.CCSensorMultilevel, 0x01)
	sensorMultilevelSupportedSensorReport = zCmd("SensorMultilevelSupportedSensorReport", zwave.CCSensorMultilevel, 0x02,
		codec.Named("bitMask", codec.Bitset(nil, 0)))
	sensorMultilevelSupportedGetScale = zCmd("SensorMultilevelSupportedGetScale", zwave.CCSensorMultilevel, 0x03,
		u8("sensorType"))
	sensorMultilevelGetV5 = zCmd("SensorMultilevelGet", zwave.CCSensorMultilevel, 0x04,
		u8("sensorType"), bitsField("scale", 3, 0x03, false))
	sensorMultilevelSupportedScaleReport = zCmd("SensorMultilevelSupportedScaleReport", zwave.CCSensorMultilevel, 0x06,
		u8("sensorType"), bitsField("scaleBitMask", 0, 0x0F, false))
)

func sensorMultilevelV5Table() map[byte]*CommandDef {
	return map[byte]*CommandDef{
		0x01: sensorMultilevelSupportedGetSensor,
		0x02: sensorMultilevelSupportedSensorReport,
		0x03: sensorMultilevelSupportedGetScale,
		0x04: sensorMultilevelGetV5,
		0x05: sensorMultilevelReportV1,
		0x06: sensorMultilevelSupportedScaleReport,
	}
}

// SensorMultilevel reports a scaled numeric reading of one of dozens of
// physical quantities (temperature, humidity, power, ...); versions 6-11
// add no new commands over v5, matching the upstream catalog exactly.
var SensorMultilevel = &ClassDef{
	Class: zwave.CCSensorMultilevel,
	Name:  "SensorMultilevel",
	Versions: map[int]map[byte]*CommandDef{
		1:  {0x04: sensorMultilevelGetV1, 0x05: sensorMultilevelReportV1},
		2:  {0x04: sensorMultilevelGetV1, 0x05: sensorMultilevelReportV1},
		3:  {0x04: sensorMultilevelGetV1, 0x05: sensorMultilevelReportV1},
		4:  {0x04: sensorMultilevelGetV1, 0x05: sensorMultilevelReportV1},
		5:  sensorMultilevelV5Table(),
		6:  sensorMultilevelV5Table(),
		7:  sensorMultilevelV5Table(),
		8:  sensorMultilevelV5Table(),
		9:  sensorMultilevelV5Table(),
		10: sensorMultilevelV5Table(),
		11: sensorMultilevelV5Table(),
	},
}
