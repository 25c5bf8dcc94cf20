package cc

import (
	"github.com/xx25/zwaved/internal/codec"
	"github.com/xx25/zwaved/internal/zwave"
)

var (
	versionGet    = zCmd("VersionGet", zwave.CCVersion, 0x11)
	versionReportV1 = zCmd("VersionReport", zwave.CCVersion, 0x12,
		u8("zWaveLibraryType"),
		u8("zWaveProtocolVersion"),
		u8("zWaveProtocolSubVersion"),
		u8("applicationVersion"),
		u8("applicationSubVersion"),
	)
	versionCommandClassGet = zCmd("VersionCommandClassGet", zwave.CCVersion, 0x13, u8("requestedCommandClass"))
	versionCommandClassReport = zCmd("VersionCommandClassReport", zwave.CCVersion, 0x14,
		u8("requestedCommandClass"), u8("commandClassVersion"))

	// firmwareTargetFields is the nested per-target record VersionReport
	// v2+ arrays over — an Object field, the codec's equivalent of the
	// catalog's named classvar/array(items=object) pairing.
	firmwareTargetFields = []codec.Field{
		u8("firmwareVersion"),
		u8("firmwareSubVersion"),
	}

	versionReportV2 = zCmd("VersionReport", zwave.CCVersion, 0x12,
		u8("zWaveLibraryType"),
		u8("zWaveProtocolVersion"),
		u8("zWaveProtocolSubVersion"),
		u8("firmware0Version"),
		u8("firmware0SubVersion"),
		u8("hardwareVersion"),
		codec.Computed("numberOfFirmwareTargets", codec.Len(codec.Ref("firmwareTargets")), codec.Uint(codec.Const(1))),
		codec.Named("firmwareTargets", codec.Array(codec.Ref("numberOfFirmwareTargets"), codec.Object(func() []codec.Field { return firmwareTargetFields }))),
	)

	versionCapabilitiesGet = zCmd("VersionCapabilitiesGet", zwave.CCVersion, 0x15)
	versionCapabilitiesReport = zCmd("VersionCapabilitiesReport", zwave.CCVersion, 0x16,
		boolField("version", 0x01, false),
		boolField("commandClass", 0x02, true),
		boolField("zWaveSoftware", 0x04, true),
	)
	versionZwaveSoftwareGet = zCmd("VersionZwaveSoftwareGet", zwave.CCVersion, 0x17)
	versionZwaveSoftwareReport = zCmd("VersionZwaveSoftwareReport", zwave.CCVersion, 0x18,
		u24("sdkVersion"),
		u24("applicationFrameworkApiVersion"),
		u16("applicationFrameworkBuildNumber"),
		u24("hostInterfaceVersion"),
		u16("hostInterfaceBuildNumber"),
		u24("zWaveProtocolVersion"),
		u16("zWaveProtocolBuildNumber"),
		u24("applicationVersion"),
		u16("applicationBuildNumber"),
	)
)

// Version reports a node's Z-Wave protocol/library/application version and,
// from v3, its per-command-class version and SDK build numbers.
var Version = &ClassDef{
	Class: zwave.CCVersion,
	Name:  "Version",
	Versions: map[int]map[byte]*CommandDef{
		1: {
			0x11: versionGet,
			0x12: versionReportV1,
			0x13: versionCommandClassGet,
			0x14: versionCommandClassReport,
		},
		2: {
			0x11: versionGet,
			0x12: versionReportV2,
			0x13: versionCommandClassGet,
			0x14: versionCommandClassReport,
		},
		3: {
			0x11: versionGet,
			0x12: versionReportV2,
			0x13: versionCommandClassGet,
			0x14: versionCommandClassReport,
			0x15: versionCapabilitiesGet,
			0x16: versionCapabilitiesReport,
			0x17: versionZwaveSoftwareGet,
			0x18: versionZwaveSoftwareReport,
		},
	},
}
