package zwave

import (
	"fmt"

	"github.com/xx25/zwaved/internal/codec"
)

// MessageDef describes one host<->controller Serial API message: its
// type/class magic, field table, and routing metadata (direction, and
// which field — if any — carries the target node id for per-node command
// delivery).
type MessageDef struct {
	Name        string
	Type        MessageType
	Class       MessageClass
	Outbound    bool
	Inbound     bool
	NodeIDField string
	Fields      []codec.Field
}

func zMsg(name string, typ MessageType, class MessageClass, outbound, inbound bool, nodeIDField string, rest ...codec.Field) *MessageDef {
	fields := make([]codec.Field, 0, len(rest)+1)
	fields = append(fields, codec.Named("", codec.Magic([]byte{byte(typ), byte(class)})))
	fields = append(fields, rest...)
	return &MessageDef{
		Name:        name,
		Type:        typ,
		Class:       class,
		Outbound:    outbound,
		Inbound:     inbound,
		NodeIDField: nodeIDField,
		Fields:      fields,
	}
}

// Decode parses data (the frame payload, without SOF/length/checksum)
// against m's field table. Trailing bytes are reported to the caller
// rather than discarded silently, matching the catalog's "warn on
// spurious data" behavior.
func (m *MessageDef) Decode(data []byte) (codec.State, int, error) {
	st, pos, err := codec.Decode(m.Fields, data)
	if err != nil {
		return nil, 0, fmt.Errorf("zwave: decode %s: %w", m.Name, err)
	}
	return st, pos, nil
}

// Encode serializes st against m's field table.
func (m *MessageDef) Encode(st codec.State) ([]byte, error) {
	out, err := codec.Encode(m.Fields, st)
	if err != nil {
		return nil, fmt.Errorf("zwave: encode %s: %w", m.Name, err)
	}
	return out, nil
}

func u8(name string) codec.Field      { return codec.Named(name, codec.Uint(codec.Const(1))) }
func u16(name string) codec.Field     { return codec.Named(name, codec.Uint(codec.Const(2))) }
func u32(name string) codec.Field     { return codec.Named(name, codec.Uint(codec.Const(4))) }
func boolField(name string, mask int, prevByte bool) codec.Field {
	return codec.Named(name, codec.Boolean(mask, prevByte))
}
func bitsField(name string, shift, mask int, prevByte bool) codec.Field {
	return codec.Named(name, codec.UintBits(shift, mask, prevByte))
}

// present evaluates to 1 if st[name] is non-nil, else 0 — the "x is not
// None" idiom used by virtualfields that count optional leading fields.
func present(name string) codec.Expr {
	return func(st codec.State) any {
		if st[name] != nil {
			return 1
		}
		return 0
	}
}

var (
	SerialAPIGetInitDataRequest = zMsg("SerialApiGetInitDataRequest", Request, ClassSerialAPIGetInitData, true, false, "")

	SerialAPIGetInitDataResponse = zMsg("SerialApiGetInitDataResponse", Response, ClassSerialAPIGetInitData, false, true, "",
		u8("serialApiApplicationVersion"),
		boolField("isSlave", 0x01, false),
		boolField("timerSupport", 0x02, true),
		boolField("isSecondary", 0x04, true),
		boolField("isSIS", 0x08, true),
		codec.Computed("nodeBitfieldBytes", codec.Const(29), codec.Uint(codec.Const(1))),
		codec.Named("nodes", codec.Bitset(codec.Ref("nodeBitfieldBytes"), 1)),
		u8("chipType"),
		u8("chipVersion"),
	)

	ApplicationCommandHandlerRequest = zMsg("ApplicationCommandHandlerRequest", Request, ClassApplicationCommand, false, true, "nodeId",
		u8("status"),
		u8("nodeId"),
		codec.Computed("payloadLength", codec.Len(codec.Ref("payload")), codec.Uint(codec.Const(1))),
		codec.Named("payload", codec.Binary(codec.Ref("payloadLength"))),
	)

	SerialAPISetTimeoutsRequest = zMsg("SerialApiSetTimeoutsRequest", Request, ClassSerialAPISetTimeouts, true, false, "",
		u8("rxAckTimeout"),
		u8("rxByteTimeout"),
	)

	SerialAPISetTimeoutsResponse = zMsg("SerialApiSetTimeoutsResponse", Response, ClassSerialAPISetTimeouts, false, true, "",
		u8("oldRxAckTimeout"),
		u8("oldRxByteTimeout"),
	)

	SerialAPIGetCapabilitiesRequest = zMsg("SerialApiGetCapabilitiesRequest", Request, ClassSerialAPIGetCapabilities, true, false, "")

	SerialAPIGetCapabilitiesResponse = zMsg("SerialApiGetCapabilitiesResponse", Response, ClassSerialAPIGetCapabilities, false, true, "",
		u8("serialApiVersion"),
		u8("serialApiRevision"),
		u16("manufacturerId"),
		u16("manufacturerProduct"),
		u16("manufacturerProductId"),
		codec.Named("supportedFunctions", codec.Bitset(codec.Const(32), 1)),
	)

	SendNodeInformationRequest = zMsg("SendNodeInformationRequest", Request, ClassSendNodeInformation, true, false, "destNode",
		u8("destNode"),
		u8("txOptions"),
		u8("funcId"),
	)

	SendNodeInformationResponse = zMsg("SendNodeInformationResponse", Response, ClassSendNodeInformation, false, true, "",
		u8("retVal"),
	)

	SendNodeInformationIncomingRequest = zMsg("SendNodeInformationIncomingRequest", Request, ClassSendNodeInformation, false, true, "",
		u8("funcId"),
		u8("txStatus"),
		codec.Named("extraData", codec.Binary(nil)),
	)

	SendDataRequest = zMsg("SendDataRequest", Request, ClassSendData, true, false, "nodeId",
		u8("nodeId"),
		codec.Computed("dataLength", codec.Len(codec.Ref("data")), codec.Uint(codec.Const(1))),
		codec.Named("data", codec.Binary(codec.Ref("dataLength"))),
		u8("txOptions"),
		u8("funcId"),
	)

	SendDataResponse = zMsg("SendDataResponse", Response, ClassSendData, false, true, "",
		u8("retVal"),
	)

	SendDataIncomingRequest = zMsg("SendDataIncomingRequest", Request, ClassSendData, false, true, "",
		u8("funcId"),
		u8("txStatus"),
		codec.Named("extraData", codec.Binary(nil)),
	)

	GetVersionRequest = zMsg("GetVersionRequest", Request, ClassGetVersion, true, false, "")

	GetVersionResponse = zMsg("GetVersionResponse", Response, ClassGetVersion, false, true, "",
		codec.Named("libraryVersion", codec.NulTerminatedString()),
		u8("libraryType"),
	)

	MemoryGetIDRequest = zMsg("MemoryGetIdRequest", Request, ClassMemoryGetID, true, false, "")

	MemoryGetIDResponse = zMsg("MemoryGetIdResponse", Response, ClassMemoryGetID, false, true, "",
		u32("homeId"),
		u8("controllerNodeId"),
	)

	GetNodeProtocolInfoRequest = zMsg("GetNodeProtocolInfoRequest", Request, ClassGetNodeProtocolInfo, true, false, "nodeId",
		u8("nodeId"),
	)

	GetNodeProtocolInfoResponse = zMsg("GetNodeProtocolInfoResponse", Response, ClassGetNodeProtocolInfo, false, true, "",
		bitsField("version", 0, 0x07, false),
		bitsField("maxBaudRate", 3, 0x38, true),
		boolField("routing", 0x40, true),
		boolField("listening", 0x80, true),
		boolField("security", 0x01, false),
		boolField("controller", 0x02, true),
		boolField("specificDevice", 0x04, true),
		boolField("routingSlave", 0x08, true),
		boolField("beamCapability", 0x10, true),
		boolField("sensor250ms", 0x20, true),
		boolField("sensor1000ms", 0x40, true),
		boolField("optionalFunctionality", 0x80, true),
		u8("reserved"),
		u8("basic"),
		u8("generic"),
		u8("specific"),
	)

	DeleteReturnRouteRequest = zMsg("DeleteReturnRouteRequest", Request, ClassDeleteReturnRoute, true, false, "nodeId",
		u8("nodeId"),
		u8("funcId"),
	)

	DeleteReturnRouteResponse = zMsg("DeleteReturnRouteResponse", Response, ClassDeleteReturnRoute, false, true, "",
		u8("retVal"),
	)

	DeleteReturnRouteIncomingRequest = zMsg("DeleteReturnRouteIncomingRequest", Request, ClassDeleteReturnRoute, false, true, "",
		u8("funcId"),
		u8("bStatus"),
	)

	ApplicationUpdateRequest = zMsg("ApplicationUpdateRequest", Request, ClassApplicationUpdate, false, true, "nodeId",
		u8("status"),
		u8("nodeId"),
		codec.Computed("dataLength",
			codec.Add(codec.Len(codec.Ref("commandClasses")), present("basic"), present("generic"), present("specific")),
			codec.Uint(codec.Const(1)),
		),
		codec.Named("basic", codec.Optional(codec.GT(codec.Ref("dataLength"), codec.Const(0)), codec.Uint(codec.Const(1)))),
		codec.Named("generic", codec.Optional(codec.GT(codec.Ref("dataLength"), codec.Const(1)), codec.Uint(codec.Const(1)))),
		codec.Named("specific", codec.Optional(codec.GT(codec.Ref("dataLength"), codec.Const(2)), codec.Uint(codec.Const(1)))),
		codec.Named("commandClasses", codec.Array(codec.Max(codec.Const(0), codec.Sub(codec.Ref("dataLength"), codec.Const(3))), codec.Uint(codec.Const(1)))),
	)

	RequestNodeInfoRequest = zMsg("RequestNodeInfoRequest", Request, ClassRequestNodeInfo, true, false, "",
		u8("nodeId"),
	)

	RequestNodeInfoResponse = zMsg("RequestNodeInfoResponse", Response, ClassRequestNodeInfo, false, true, "",
		boolField("success", 0xFF, false),
	)

	GetRoutingTableLineRequest = zMsg("GetRoutingTableLineRequest", Request, ClassGetRoutingTableLine, true, false, "",
		u8("nodeId"),
		boolField("removeBad", 0xFF, false),
		boolField("removeNonReps", 0xFF, false),
		codec.Named("", codec.Magic([]byte{0x00})),
	)

	GetRoutingTableLineResponse = zMsg("GetRoutingTableLineResponse", Response, ClassGetRoutingTableLine, false, true, "",
		codec.Named("nodes", codec.Bitset(codec.Const(29), 1)),
	)
)

// outbound is every message the host may construct and send, indexed by
// name for the data-driven public-surface call table (spec §4.J / §9).
var outbound = map[string]*MessageDef{}

// inbound is every message the controller may send unsolicited or in
// response, indexed by (type, class) for frame dispatch.
var inbound = map[[2]byte]*MessageDef{}

func register(defs ...*MessageDef) {
	for _, d := range defs {
		if d.Outbound {
			outbound[d.Name] = d
		}
		if d.Inbound {
			inbound[[2]byte{byte(d.Type), byte(d.Class)}] = d
		}
	}
}

func init() {
	register(
		SerialAPIGetInitDataRequest, SerialAPIGetInitDataResponse,
		ApplicationCommandHandlerRequest,
		SerialAPISetTimeoutsRequest, SerialAPISetTimeoutsResponse,
		SerialAPIGetCapabilitiesRequest, SerialAPIGetCapabilitiesResponse,
		SendNodeInformationRequest, SendNodeInformationResponse, SendNodeInformationIncomingRequest,
		SendDataRequest, SendDataResponse, SendDataIncomingRequest,
		GetVersionRequest, GetVersionResponse,
		MemoryGetIDRequest, MemoryGetIDResponse,
		GetNodeProtocolInfoRequest, GetNodeProtocolInfoResponse,
		DeleteReturnRouteRequest, DeleteReturnRouteResponse, DeleteReturnRouteIncomingRequest,
		ApplicationUpdateRequest,
		RequestNodeInfoRequest, RequestNodeInfoResponse,
		GetRoutingTableLineRequest, GetRoutingTableLineResponse,
	)
}

// Outbound looks up a host-constructible message by name (e.g. "SendDataRequest").
func Outbound(name string) (*MessageDef, bool) {
	d, ok := outbound[name]
	return d, ok
}

// DecodeInbound dispatches data's type+class prefix to the matching
// inbound message definition and decodes it.
func DecodeInbound(data []byte) (*MessageDef, codec.State, int, error) {
	if len(data) < 2 {
		return nil, nil, 0, fmt.Errorf("zwave: short message header")
	}
	def, ok := inbound[[2]byte{data[0], data[1]}]
	if !ok {
		return nil, nil, 0, fmt.Errorf("zwave: unknown message type=0x%02x class=0x%02x", data[0], data[1])
	}
	st, pos, err := def.Decode(data)
	return def, st, pos, err
}
