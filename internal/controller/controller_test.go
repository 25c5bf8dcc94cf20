package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xx25/zwaved/internal/codec"
	"github.com/xx25/zwaved/internal/frame"
	"github.com/xx25/zwaved/internal/node"
	"github.com/xx25/zwaved/internal/serialproto"
	"github.com/xx25/zwaved/internal/zwave"
)

// fakeTransport is the same minimal in-memory transport.Transport used by
// serialproto's own tests, duplicated here since it is test-only plumbing
// private to each package.
type fakeTransport struct {
	mu   sync.Mutex
	cond *sync.Cond
	in   []byte
	out  []byte
}

func newFakeTransport() *fakeTransport {
	ft := &fakeTransport{}
	ft.cond = sync.NewCond(&ft.mu)
	return ft
}

func (f *fakeTransport) feed(b []byte) {
	f.mu.Lock()
	f.in = append(f.in, b...)
	f.cond.Broadcast()
	f.mu.Unlock()
}

func (f *fakeTransport) written() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]byte, len(f.out))
	copy(out, f.out)
	return out
}

func (f *fakeTransport) Wait(ctx context.Context, n int) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			f.mu.Lock()
			f.cond.Broadcast()
			f.mu.Unlock()
		case <-stop:
		}
	}()
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.in) < n {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.cond.Wait()
	}
	return nil
}

func (f *fakeTransport) HasData() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.in) > 0
}

func (f *fakeTransport) Take(n int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]byte(nil), f.in[:n]...)
	f.in = f.in[n:]
	return out
}

func (f *fakeTransport) TakeByte() byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.in[0]
	f.in = f.in[1:]
	return b
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	f.out = append(f.out, data...)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) SendBreak(time.Duration) error { return nil }
func (f *fakeTransport) AtEOF() bool                   { return false }
func (f *fakeTransport) Close() error                  { return nil }

// nextOutgoingFrame blocks until a fully-framed SOF message appears past
// pos in ft's written output, skipping bare control bytes (the startup
// BREAK+NAK, and any ACKs this script itself triggers), and returns its
// decoded payload plus the new read position.
func nextOutgoingFrame(t *testing.T, ft *fakeTransport, pos int) ([]byte, int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		w := ft.written()
		for pos < len(w) && w[pos] != frame.SOF {
			pos++
		}
		if pos+2 <= len(w) {
			total := frame.DecodedLength(w[pos+1])
			if pos+2+total <= len(w) {
				body := w[pos+2 : pos+2+total]
				payload := body[:len(body)-1]
				return payload, pos + 2 + total
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for outgoing frame past offset %d (have %d bytes)", pos, len(w))
		}
		time.Sleep(time.Millisecond)
	}
}

// scriptedResponse ACKs the next outgoing frame and replies with resp,
// returning the frame's decoded payload for assertions.
func scriptedResponse(t *testing.T, ft *fakeTransport, pos int, resp *zwave.MessageDef, fields codec.State) ([]byte, int) {
	t.Helper()
	payload, next := nextOutgoingFrame(t, ft, pos)
	ft.feed([]byte{frame.ACK})
	encoded, err := resp.Encode(fields)
	require.NoError(t, err)
	reply, err := frame.Encode(encoded)
	require.NoError(t, err)
	ft.feed(reply)
	return payload, next
}

func TestStartRunsFullHandshakeAndAddsNodes(t *testing.T) {
	ft := newFakeTransport()
	sp := serialproto.New(ft, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go sp.Run(ctx)

	c := New(sp, nil)
	go c.dispatchLoop(ctx)

	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	pos := 0
	_, pos = scriptedResponse(t, ft, pos, zwave.SerialAPIGetCapabilitiesResponse, codec.State{
		"serialApiVersion":      1,
		"serialApiRevision":     1,
		"manufacturerId":        0,
		"manufacturerProduct":   0,
		"manufacturerProductId": 0,
		"supportedFunctions":    map[int]struct{}{int(zwave.ClassMemoryGetID): {}},
	})
	_, pos = scriptedResponse(t, ft, pos, zwave.MemoryGetIDResponse, codec.State{
		"homeId":           uint32(0xCAFEBABE),
		"controllerNodeId": 1,
	})
	_, pos = scriptedResponse(t, ft, pos, zwave.GetVersionResponse, codec.State{
		"libraryVersion": "Z-Wave 4.05",
		"libraryType":    byte(zwave.LibraryStaticController),
	})
	_, pos = scriptedResponse(t, ft, pos, zwave.SerialAPIGetInitDataResponse, codec.State{
		"serialApiApplicationVersion": 1,
		"isSlave":                     false,
		"timerSupport":                false,
		"isSecondary":                 false,
		"isSIS":                       false,
		"nodes":                       map[int]struct{}{1: {}, 3: {}, 9: {}},
		"chipType":                    0,
		"chipVersion":                 0,
	})
	_, pos = scriptedResponse(t, ft, pos, zwave.SerialAPISetTimeoutsResponse, codec.State{
		"oldRxAckTimeout":  10,
		"oldRxByteTimeout": 10,
	})
	_ = pos

	require.NoError(t, <-done)
	require.EqualValues(t, 0xCAFEBABE, c.HomeID())
	require.Equal(t, 1, c.ControllerNodeID())
	require.Equal(t, zwave.LibraryStaticController, c.LibraryType())
	require.Equal(t, []int{3, 9}, c.NodeIDs(), "the controller's own node id must be excluded")
}

func TestStartSkipsSetTimeoutsForBridgeController(t *testing.T) {
	ft := newFakeTransport()
	sp := serialproto.New(ft, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go sp.Run(ctx)

	c := New(sp, nil)
	go c.dispatchLoop(ctx)

	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	pos := 0
	_, pos = scriptedResponse(t, ft, pos, zwave.SerialAPIGetCapabilitiesResponse, codec.State{
		"serialApiVersion":      1,
		"serialApiRevision":     1,
		"manufacturerId":        0,
		"manufacturerProduct":   0,
		"manufacturerProductId": 0,
		"supportedFunctions":    map[int]struct{}{},
	})
	_, pos = scriptedResponse(t, ft, pos, zwave.GetVersionResponse, codec.State{
		"libraryVersion": "Z-Wave 4.05",
		"libraryType":    byte(zwave.LibraryBridgeController),
	})
	_, pos = scriptedResponse(t, ft, pos, zwave.SerialAPIGetInitDataResponse, codec.State{
		"serialApiApplicationVersion": 1,
		"isSlave":                     false,
		"timerSupport":                false,
		"isSecondary":                 false,
		"isSIS":                       false,
		"nodes":                       map[int]struct{}{},
		"chipType":                    0,
		"chipVersion":                 0,
	})

	require.NoError(t, <-done)

	// No further frame should arrive: SERIAL_API_SET_TIMEOUTS is skipped
	// for a bridge controller library.
	w1 := ft.written()
	time.Sleep(20 * time.Millisecond)
	w2 := ft.written()
	require.Equal(t, len(w1), len(w2), "bridge controller must not receive SERIAL_API_SET_TIMEOUTS")
	_ = pos
}

func TestHandleSendDataCallbackResolvesLease(t *testing.T) {
	c := New(serialproto.New(newFakeTransport(), nil), nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	lease, err := c.fid.Acquire(ctx, time.Second)
	require.NoError(t, err)

	payload, err := zwave.SendDataIncomingRequest.Encode(codec.State{
		"funcId":    byte(lease.Value),
		"txStatus":  byte(zwave.TransmitOK),
		"extraData": []byte{},
	})
	require.NoError(t, err)

	c.handleSendDataCallback(payload)

	result, err := lease.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, zwave.TransmitOK, result)
}

func TestHandleSendDataCallbackToleratesStrayFuncID(t *testing.T) {
	c := New(serialproto.New(newFakeTransport(), nil), nil)
	payload, err := zwave.SendDataIncomingRequest.Encode(codec.State{
		"funcId":    byte(200),
		"txStatus":  byte(zwave.TransmitOK),
		"extraData": []byte{},
	})
	require.NoError(t, err)
	require.NotPanics(t, func() { c.handleSendDataCallback(payload) })
}

func TestHandleApplicationUpdateAddsNodeAndPublishesCommandClasses(t *testing.T) {
	c := New(serialproto.New(newFakeTransport(), nil), nil)

	payload, err := zwave.ApplicationUpdateRequest.Encode(codec.State{
		"status":         byte(zwave.UpdateNodeInfoReceived),
		"nodeId":         5,
		"basic":          byte(0x04),
		"generic":        byte(0x10),
		"specific":       byte(0x01),
		"commandClasses": []any{byte(0x25), byte(0x20)},
	})
	require.NoError(t, err)

	c.handleApplicationUpdate(payload)

	_, err = c.Node(5)
	require.NoError(t, err)
	require.True(t, c.HasMessage())

	update, ok := c.TakeMessage()
	require.True(t, ok)
	info, ok := update.(node.CommandClassInfo)
	require.True(t, ok)
	require.Equal(t, 5, info.NodeID)
}

func TestNodeReturnsErrUnknownNode(t *testing.T) {
	c := New(serialproto.New(newFakeTransport(), nil), nil)
	_, err := c.Node(42)
	require.ErrorIs(t, err, ErrUnknownNode)
}

func TestPickInitializationCandidatePrefersAwakeWakeUpNode(t *testing.T) {
	c := New(serialproto.New(newFakeTransport(), nil), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n1 := c.addNode(ctx, 2)
	n2 := c.addNode(ctx, 3)

	// Simulate n2 as an awake wake-up node by feeding it a notification.
	wakeUp, err := zwave.ApplicationCommandHandlerRequest.Encode(codec.State{
		"status":  0,
		"nodeId":  3,
		"payload": []byte{byte(zwave.CCWakeUp), 0x07},
	})
	require.NoError(t, err)
	c.handleApplicationCommand(wakeUp)

	picked, wait := c.pickInitializationCandidate()
	require.Equal(t, 0, int(wait))
	require.Same(t, n2, picked, "an awake wake-up node ready now must win over a regular node")
	_ = n1
}
