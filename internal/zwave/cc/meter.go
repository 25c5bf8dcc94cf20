package cc

import (
	"github.com/xx25/zwaved/internal/codec"
	"github.com/xx25/zwaved/internal/zwave"
)

// Meter type and rate type codes.
const (
	MeterTypeElectric = 1
	MeterTypeGas      = 2
	MeterTypeWater    = 3
	MeterTypeHeating  = 4
	MeterTypeCooling  = 5

	MeterRateImportOnly      = 1
	MeterRateExportOnly      = 2
	MeterRateImportAndExport = 3
)

var (
	meterGetV1 = zCmd("MeterGet", zwave.CCMeter, 0x01)

	meterReportV1 = zCmd("MeterReport", zwave.CCMeter, 0x02,
		u8("meterType"),
		codec.Computed("size", codec.IntSize(codec.Ref("meterValue")), codec.UintBits(0, 0x07, false)),
		bitsField("scale", 3, 0x03, true),
		bitsField("precision", 5, 0x07, true),
		codec.Named("meterValue", codec.Int(codec.Ref("size"))),
	)

	meterGetV2 = zCmd("MeterGet", zwave.CCMeter, 0x01, bitsField("scale", 3, 0x03, false))

	meterReportV2 = zCmd("MeterReport", zwave.CCMeter, 0x02,
		bitsField("meterType", 0, 0x1F, false),
		bitsField("rateType", 5, 0x03, true),
		codec.Computed("size", codec.Max(codec.IntSize(codec.Ref("meterValue")), codec.IntSize(codec.Ref("previousMeterValue"))), codec.UintBits(0, 0x07, false)),
		bitsField("scale", 3, 0x03, true),
		bitsField("precision", 5, 0x07, true),
		codec.Named("meterValue", codec.Int(codec.Ref("size"))),
		u16("deltaTime"),
		codec.Named("previousMeterValue", codec.Optional(codec.NotZero(codec.Ref("deltaTime")), codec.Int(codec.Ref("size")))),
	)
	meterSupportedGet = zCmd("MeterSupportedGet", zwave.CCMeter, 0x03)
	meterSupportedReportV2 = zCmd("MeterSupportedReport", zwave.CCMeter, 0x04,
		bitsField("meterType", 0, 0x1F, false),
		boolField("meterReset", 0x80, true),
		bitsField("scaleSupported", 0, 0x0F, false),
	)
	meterReset = zCmd("MeterReset", zwave.CCMeter, 0x05)

	meterGetV3 = zCmd("MeterGet", zwave.CCMeter, 0x01, bitsField("scale", 3, 0x07, false))

	meterReportV3 = zCmd("MeterReport", zwave.CCMeter, 0x02,
		bitsField("meterType", 0, 0x1F, false),
		bitsField("rateType", 5, 0x03, true),
		boolField("scaleBit2", 0x80, true),
		codec.Computed("size", codec.Max(codec.IntSize(codec.Ref("meterValue")), codec.IntSize(codec.Ref("previousMeterValue"))), codec.UintBits(0, 0x07, false)),
		bitsField("scaleBits10", 3, 0x03, true),
		bitsField("precision", 5, 0x07, true),
		codec.Named("meterValue", codec.Int(codec.Ref("size"))),
		u16("deltaTime"),
		codec.Named("previousMeterValue", codec.Optional(codec.NotZero(codec.Ref("deltaTime")), codec.Int(codec.Ref("size")))),
	)
	meterSupportedReportV3 = zCmd("MeterSupportedReport", zwave.CCMeter, 0x04,
		bitsField("meterType", 0, 0x1F, false),
		boolField("meterReset", 0x80, true),
		u8("scaleSupported"),
	)

	meterGetV4 = zCmd("MeterGet", zwave.CCMeter, 0x01,
		bitsField("scale", 3, 0x07, false),
		bitsField("rateType", 6, 0x03, true),
		u8("scale2"),
	)
	meterReportV4 = zCmd("MeterReport", zwave.CCMeter, 0x02,
		bitsField("meterType", 0, 0x1F, false),
		bitsField("rateType", 5, 0x03, true),
		boolField("scaleBit2", 0x80, true),
		codec.Computed("size", codec.Max(codec.IntSize(codec.Ref("meterValue")), codec.IntSize(codec.Ref("previousMeterValue"))), codec.UintBits(0, 0x07, false)),
		bitsField("scaleBits10", 3, 0x03, true),
		bitsField("precision", 5, 0x07, true),
		codec.Named("meterValue", codec.Int(codec.Ref("size"))),
		u16("deltaTime"),
		codec.Named("previousMeterValue", codec.Optional(codec.NotZero(codec.Ref("deltaTime")), codec.Int(codec.Ref("size")))),
		u8("scale2"),
	)
	meterSupportedReportV4 = zCmd("MeterSupportedReport", zwave.CCMeter, 0x04,
		bitsField("meterType", 0, 0x1F, false),
		bitsField("rateType", 5, 0x03, true),
		boolField("meterReset", 0x80, true),
		codec.Computed("numberOfScaleSupportedBytesToFollow", codec.Len(codec.Ref("scaleSupported")), codec.Uint(codec.Const(1))),
		codec.Named("scaleSupported", codec.Binary(codec.Ref("numberOfScaleSupportedBytesToFollow"))),
	)
)

func meterV5Table() map[byte]*CommandDef {
	return map[byte]*CommandDef{
		0x01: meterGetV4,
		0x02: meterReportV4,
		0x03: meterSupportedGet,
		0x04: meterSupportedReportV4,
		0x05: meterReset,
	}
}

// Meter reports accumulating electric/gas/water/HVAC consumption, with an
// optional previous reading alongside the delta time between them.
var Meter = &ClassDef{
	Class: zwave.CCMeter,
	Name:  "Meter",
	Versions: map[int]map[byte]*CommandDef{
		1: {0x01: meterGetV1, 0x02: meterReportV1},
		2: {
			0x01: meterGetV2,
			0x02: meterReportV2,
			0x03: meterSupportedGet,
			0x04: meterSupportedReportV2,
			0x05: meterReset,
		},
		3: {
			0x01: meterGetV3,
			0x02: meterReportV3,
			0x03: meterSupportedGet,
			0x04: meterSupportedReportV3,
			0x05: meterReset,
		},
		4: {
			0x01: meterGetV4,
			0x02: meterReportV4,
			0x03: meterSupportedGet,
			0x04: meterSupportedReportV4,
			0x05: meterReset,
		},
		5: meterV5Table(),
	},
}
