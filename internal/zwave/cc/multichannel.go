package cc

import (
	"github.com/xx25/zwaved/internal/codec"
	"github.com/xx25/zwaved/internal/zwave"
)

var (
	multiInstanceGet = zCmd("MultiInstanceGet", zwave.CCMultiChannel, 0x04, u8("commandClass"))
	multiInstanceReportV1 = zCmd("MultiInstanceReport", zwave.CCMultiChannel, 0x05,
		u8("commandClass"), u8("instances"))
	multiChannelCmdEncapV1 = zCmd("MultiChannelCmdEncap", zwave.CCMultiChannel, 0x06,
		u8("instance"), u8("commandClass"), u8("command"),
		codec.Named("parameter", codec.Binary(nil)),
	)

	multiChannelReportV2 = zCmd("MultiChannelReport", zwave.CCMultiChannel, 0x05,
		u8("commandClass"), bitsField("instances", 0, 0x7F, false))
	multiChannelCmdEncapV2 = zCmd("MultiChannelCmdEncap", zwave.CCMultiChannel, 0x06,
		bitsField("instance", 0, 0x7F, false), u8("commandClass"), u8("command"),
		codec.Named("parameter", codec.Binary(nil)),
	)
	multiChannelEndPointGet = zCmd("MultiChannelEndPointGet", zwave.CCMultiChannel, 0x07)
	multiChannelEndPointReportV2 = zCmd("MultiChannelEndPointReport", zwave.CCMultiChannel, 0x08,
		boolField("identical", 0x40, false),
		boolField("dynamic", 0x80, true),
		bitsField("individualEndPoints", 0, 0x7F, false),
	)
	multiChannelCapabilityGet = zCmd("MultiChannelCapabilityGet", zwave.CCMultiChannel, 0x09,
		bitsField("endPoint", 0, 0x7F, false))
	multiChannelCapabilityReport = zCmd("MultiChannelCapabilityReport", zwave.CCMultiChannel, 0x0A,
		bitsField("endPoint", 0, 0x7F, false),
		boolField("dynamic", 0x80, true),
		u8("genericDeviceClass"),
		u8("specificDeviceClass"),
		codec.Named("commandClass", codec.Binary(nil)),
	)
	multiChannelEndPointFind = zCmd("MultiChannelEndPointFind", zwave.CCMultiChannel, 0x0B,
		u8("genericDeviceClass"), u8("specificDeviceClass"))
	multiChannelEndPointFindReport = zCmd("MultiChannelEndPointFindReport", zwave.CCMultiChannel, 0x0C,
		u8("reportsToFollow"), u8("genericDeviceClass"), u8("specificDeviceClass"),
		codec.Named("endPoint", codec.Array(nil, codec.UintBits(0, 0x7F, false))),
	)
	multiChannelMultiChannelCmdEncap = zCmd("MultiChannelMultiChannelCmdEncap", zwave.CCMultiChannel, 0x0D,
		bitsField("sourceEndPoint", 0, 0x7F, false),
		bitsField("destinationEndPoint", 0, 0x7F, false),
		boolField("bitAddress", 0x80, true),
		u8("commandClass"), u8("command"),
		codec.Named("parameter", codec.Binary(nil)),
	)

	multiChannelEndPointReportV4 = zCmd("MultiChannelEndPointReport", zwave.CCMultiChannel, 0x08,
		boolField("identical", 0x40, false),
		boolField("dynamic", 0x80, true),
		bitsField("individualEndPoints", 0, 0x7F, false),
		bitsField("aggregatedEndPoints", 0, 0x7F, false),
	)
	multiChannelAggregatedMembersGet = zCmd("MultiChannelAggregatedMembersGet", zwave.CCMultiChannel, 0x0E,
		bitsField("aggregatedEndPoint", 0, 0x7F, false))
	multiChannelAggregatedMembersReport = zCmd("MultiChannelAggregatedMembersReport", zwave.CCMultiChannel, 0x0F,
		bitsField("aggregatedEndPoint", 0, 0x7F, false),
		codec.Computed("numberOfBitMasks", codec.Len(codec.Ref("aggregatedMembersBitMask")), codec.Uint(codec.Const(1))),
		codec.Named("aggregatedMembersBitMask", codec.Bitset(codec.Ref("numberOfBitMasks"), 0)),
	)
)

func multiChannelV2Table() map[byte]*CommandDef {
	return map[byte]*CommandDef{
		0x04: multiInstanceGet,
		0x05: multiChannelReportV2,
		0x06: multiChannelCmdEncapV2,
		0x07: multiChannelEndPointGet,
		0x08: multiChannelEndPointReportV2,
		0x09: multiChannelCapabilityGet,
		0x0A: multiChannelCapabilityReport,
		0x0B: multiChannelEndPointFind,
		0x0C: multiChannelEndPointFindReport,
		0x0D: multiChannelMultiChannelCmdEncap,
	}
}

// MultiChannel (called MultiInstance in v1) exposes a node's sub-devices as
// addressable endpoints and wraps encapsulated commands to/from them.
var MultiChannel = &ClassDef{
	Class: zwave.CCMultiChannel,
	Name:  "MultiChannel",
	Versions: map[int]map[byte]*CommandDef{
		1: {
			0x04: multiInstanceGet,
			0x05: multiInstanceReportV1,
			0x06: multiChannelCmdEncapV1,
		},
		2: multiChannelV2Table(),
		3: multiChannelV2Table(),
		4: {
			0x04: multiInstanceGet,
			0x05: multiChannelReportV2,
			0x06: multiChannelCmdEncapV2,
			0x07: multiChannelEndPointGet,
			0x08: multiChannelEndPointReportV4,
			0x09: multiChannelCapabilityGet,
			0x0A: multiChannelCapabilityReport,
			0x0B: multiChannelEndPointFind,
			0x0C: multiChannelEndPointFindReport,
			0x0D: multiChannelMultiChannelCmdEncap,
			0x0E: multiChannelAggregatedMembersGet,
			0x0F: multiChannelAggregatedMembersReport,
		},
	},
}
