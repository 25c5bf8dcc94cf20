package node

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xx25/zwaved/internal/codec"
	"github.com/xx25/zwaved/internal/funcid"
	"github.com/xx25/zwaved/internal/zwave"
	"github.com/xx25/zwaved/internal/zwave/cc"
)

// fakeHost is a minimal node.Host: SendData immediately resolves the
// caller's funcId lease with a configurable completion status, so tests
// never block on a real serial link.
type fakeHost struct {
	pool   *funcid.Pool
	result zwave.TransmitComplete

	mu                sync.Mutex
	notified          int
	protocolInfoCalls int
	requestInfoCalls  int
	updates           []any
}

func newFakeHost() *fakeHost {
	return &fakeHost{pool: funcid.New(), result: zwave.TransmitOK}
}

func (h *fakeHost) AcquireFuncID(ctx context.Context, timeout time.Duration) (*funcid.Lease, error) {
	return h.pool.Acquire(ctx, timeout)
}

func (h *fakeHost) SendData(ctx context.Context, nodeID int, data []byte, txOptions zwave.TransmitOption, funcID int) (bool, error) {
	go h.pool.SetResult(funcID, h.result)
	return true, nil
}

func (h *fakeHost) GetNodeProtocolInfo(ctx context.Context, nodeID int) (codec.State, error) {
	h.mu.Lock()
	h.protocolInfoCalls++
	h.mu.Unlock()
	return codec.State{"listening": true}, nil
}

func (h *fakeHost) RequestNodeInfo(ctx context.Context, nodeID int) error {
	h.mu.Lock()
	h.requestInfoCalls++
	h.mu.Unlock()
	return nil
}

func (h *fakeHost) PublishUpdate(update any) {
	h.mu.Lock()
	h.updates = append(h.updates, update)
	h.mu.Unlock()
}

func (h *fakeHost) NotifyInitializationRequired() {
	h.mu.Lock()
	h.notified++
	h.mu.Unlock()
}

func newTestNode(ctx context.Context, host Host) *Node {
	return New(ctx, 7, host, nil)
}

func TestSetCommandClassesTruncatesAtEndOfCommandClassMark(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n := newTestNode(ctx, newFakeHost())

	codes := []byte{byte(zwave.CCBasic), byte(zwave.CCSwitchBinary), EndOfCommandClassMark, byte(zwave.CCBattery)}
	updates := n.SetCommandClasses(0, codes)

	require.Len(t, updates, 2)
	info0 := updates[0].(CommandClassInfo)
	require.Equal(t, zwave.CCBasic, info0.Code)
	info1 := updates[1].(CommandClassInfo)
	require.Equal(t, zwave.CCSwitchBinary, info1.Code)
}

func TestSendCommandTransmitsAndResolves(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	n := newTestNode(ctx, newFakeHost())

	def, err := cc.SwitchBinary.Lookup(1, 0x01)
	require.NoError(t, err)

	tx := n.SendCommand(cc.SwitchBinary, def, codec.State{"value": byte(0xFF)}, 0, 0)
	_, err = tx.Wait(ctx)
	require.NoError(t, err)
}

func TestSendCommandRequiresMultiChannelForNonZeroEndpoint(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	n := newTestNode(ctx, newFakeHost())

	def, err := cc.SwitchBinary.Lookup(1, 0x01)
	require.NoError(t, err)

	tx := n.SendCommand(cc.SwitchBinary, def, codec.State{"value": byte(0xFF)}, 2, 0)
	_, err = tx.Wait(ctx)
	require.Error(t, err)
}

func TestHandleApplicationCommandHandlerRequestDispatchesVersionReport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	host := newFakeHost()
	n := newTestNode(ctx, host)

	n.SetCommandClasses(0, []byte{byte(zwave.CCVersion)})

	def, err := cc.Version.Lookup(1, 0x14)
	require.NoError(t, err)
	payload, err := def.Encode(codec.State{"requestedCommandClass": byte(zwave.CCBasic), "commandClassVersion": 2})
	require.NoError(t, err)

	updates := n.HandleApplicationCommandHandlerRequest(payload, 0)
	require.Len(t, updates, 1)
	info := updates[0].(CommandClassInfo)
	require.Equal(t, zwave.CCBasic, info.Code)
	require.Equal(t, 2, info.Version)
}

func TestHandleApplicationCommandHandlerRequestSurfacesUnknownCommandAsReceivedCommand(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	host := newFakeHost()
	n := newTestNode(ctx, host)
	n.SetCommandClasses(0, []byte{byte(zwave.CCBattery)})

	// Resolve the Battery class's version first (a real node only answers
	// commands for classes the interview has already seen a VERSION
	// report for) so parseCommand can find its catalog entry.
	versionDef, err := cc.Version.Lookup(1, 0x14)
	require.NoError(t, err)
	versionPayload, err := versionDef.Encode(codec.State{"requestedCommandClass": byte(zwave.CCBattery), "commandClassVersion": 1})
	require.NoError(t, err)
	n.HandleApplicationCommandHandlerRequest(versionPayload, 0)

	def, err := cc.Battery.Lookup(1, 0x03)
	require.NoError(t, err)
	payload, err := def.Encode(codec.State{"batteryLevel": byte(42)})
	require.NoError(t, err)

	updates := n.HandleApplicationCommandHandlerRequest(payload, 0)
	require.Len(t, updates, 1)
	rc := updates[0].(ReceivedCommand)
	require.Equal(t, zwave.CCBattery, rc.Class)
}

func TestWakeUpNotificationMarksNodeAwake(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	host := newFakeHost()
	n := newTestNode(ctx, host)
	n.SetCommandClasses(0, []byte{byte(zwave.CCWakeUp)})

	def, err := cc.WakeUp.Lookup(1, 0x07)
	require.NoError(t, err)
	payload, err := def.Encode(codec.State{})
	require.NoError(t, err)

	require.False(t, n.SendsWakeUpNotifications())
	n.HandleApplicationCommandHandlerRequest(payload, 0)
	require.True(t, n.SendsWakeUpNotifications())
	require.True(t, n.WakeUpNotificationSet())
}

func TestAttemptInitializationTimeClearsOnceProtocolInfoAndCommandClassesKnown(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	host := newFakeHost()
	n := newTestNode(ctx, host)

	require.NotNil(t, n.AttemptInitializationTime())
	n.SetCommandClasses(0, []byte{})
	n.AttemptInitialization(ctx)
	require.Nil(t, n.AttemptInitializationTime())
}
