package cc

import (
	"github.com/xx25/zwaved/internal/codec"
	"github.com/xx25/zwaved/internal/zwave"
)

var (
	manufacturerSpecificGet    = zCmd("ManufacturerSpecificGet", zwave.CCManufacturerSpecific, 0x04)
	manufacturerSpecificReport = zCmd("ManufacturerSpecificReport", zwave.CCManufacturerSpecific, 0x05,
		u16("manufacturerId"), u16("productTypeId"), u16("productId"))

	deviceSpecificGet = zCmd("DeviceSpecificGet", zwave.CCManufacturerSpecific, 0x06,
		bitsField("deviceIdType", 0, 0x07, false))

	// DeviceSpecificReport packs deviceIdType/deviceIdDataFormat into the
	// byte either side of a virtualfield data-length nibble, the same
	// prevByte-straddling convention used throughout the catalog.
	deviceSpecificReport = zCmd("DeviceSpecificReport", zwave.CCManufacturerSpecific, 0x07,
		bitsField("deviceIdType", 0, 0x07, false),
		codec.Computed("deviceIdDataLengthIndicator", codec.Len(codec.Ref("deviceIdData")), codec.UintBits(0, 0x1F, false)),
		bitsField("deviceIdDataFormat", 5, 0x07, true),
		codec.Named("deviceIdData", codec.Binary(codec.Ref("deviceIdDataLengthIndicator"))),
	)
)

// ManufacturerSpecific identifies a device's manufacturer/product IDs and,
// from v2, a raw per-device serial/identifier blob.
var ManufacturerSpecific = &ClassDef{
	Class: zwave.CCManufacturerSpecific,
	Name:  "ManufacturerSpecific",
	Versions: map[int]map[byte]*CommandDef{
		1: {0x04: manufacturerSpecificGet, 0x05: manufacturerSpecificReport},
		2: {
			0x04: manufacturerSpecificGet,
			0x05: manufacturerSpecificReport,
			0x06: deviceSpecificGet,
			0x07: deviceSpecificReport,
		},
	},
}
