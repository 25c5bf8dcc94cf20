// Package controller runs the single dispatcher goroutine that owns the
// link to a Z-Wave controller chip: matching RESPONSEs to in-flight
// REQUESTs, dispatching unsolicited REQUESTs to per-node/per-class
// handlers, draining the outbound priority queue, and scheduling node
// interviews (spec §4.H). Grounded on pywavez's Controller.__taskImpl,
// __nodeInitializationTaskImpl and __makeCallFunction.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xx25/zwaved/internal/codec"
	"github.com/xx25/zwaved/internal/funcid"
	"github.com/xx25/zwaved/internal/node"
	"github.com/xx25/zwaved/internal/queue"
	"github.com/xx25/zwaved/internal/serialproto"
	"github.com/xx25/zwaved/internal/zwave"
	"github.com/xx25/zwaved/internal/zwave/cc"
)

// txDeadlineWindow is how long a submitted REQUEST may stay unanswered
// before the dispatcher treats it as a failed send and retries it,
// mirroring Controller.py's tx_deadline.
const txDeadlineWindow = 5 * time.Second

// ErrUnknownNode is returned for a node id the controller never added.
var ErrUnknownNode = errors.New("controller: unknown node id")

// Controller owns the serial link, the node table, and the public
// output stream. One Controller talks to exactly one physical chip.
type Controller struct {
	sp  *serialproto.Protocol
	fid *funcid.Pool
	log *logrus.Entry

	mq *queue.MessageQueue // outbound Transmissions for controller-level messages
	rq *queue.SimpleQueue  // public received-message / update stream

	mu               sync.Mutex
	nodes            map[int]*node.Node
	homeID           uint32
	controllerNodeID int
	libraryType      zwave.LibraryType

	initRequiredCh chan struct{}
}

// New wires a Controller around an already-constructed serialproto.Protocol.
// Start `go sp.Run(ctx)` and `go c.Run(ctx)` (the dispatcher and
// node-initialization scheduler) first, then call Start to run the
// handshake, whose requests go through Run's dispatcher.
func New(sp *serialproto.Protocol, log *logrus.Entry) *Controller {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Controller{
		sp:             sp,
		fid:            funcid.New(),
		log:            log.WithField("component", "controller"),
		mq:             queue.NewMessageQueue(),
		rq:             queue.NewSimpleQueue(),
		nodes:          make(map[int]*node.Node),
		initRequiredCh: make(chan struct{}, 1),
	}
}

// --- node.Host -----------------------------------------------------------

func (c *Controller) AcquireFuncID(ctx context.Context, timeout time.Duration) (*funcid.Lease, error) {
	return c.fid.Acquire(ctx, timeout)
}

// SendData submits a SEND_DATA request already carrying a caller-acquired
// funcId and reports whether the controller accepted it for transmission
// (the synchronous retVal; the caller separately awaits the asynchronous
// completion status on its own Lease).
func (c *Controller) SendData(ctx context.Context, nodeID int, data []byte, txOptions zwave.TransmitOption, funcID int) (bool, error) {
	resp, err := c.call(ctx, zwave.SendDataRequest, codec.State{
		"nodeId":    nodeID,
		"data":      data,
		"txOptions": byte(txOptions),
		"funcId":    byte(funcID),
	}, queue.PriorityDefault)
	if err != nil {
		return false, err
	}
	return codec.AsInt(resp["retVal"]) != 0, nil
}

func (c *Controller) GetNodeProtocolInfo(ctx context.Context, nodeID int) (codec.State, error) {
	return c.call(ctx, zwave.GetNodeProtocolInfoRequest, codec.State{"nodeId": nodeID}, queue.PriorityInitialization)
}

func (c *Controller) RequestNodeInfo(ctx context.Context, nodeID int) error {
	_, err := c.call(ctx, zwave.RequestNodeInfoRequest, codec.State{"nodeId": nodeID}, queue.PriorityInitialization)
	return err
}

// PublishUpdate appends a node update / unsolicited command to the
// public output stream, consumed via WaitForMessage/TakeMessage.
func (c *Controller) PublishUpdate(update any) {
	c.rq.Append(update)
}

func (c *Controller) NotifyInitializationRequired() {
	select {
	case c.initRequiredCh <- struct{}{}:
	default:
	}
}

// --- public output stream -------------------------------------------------

func (c *Controller) HasMessage() bool { return c.rq.HasMessage() }

func (c *Controller) WaitForMessage(ctx context.Context) error { return c.rq.WaitForMessage(ctx) }

func (c *Controller) TakeMessage() (any, bool) { return c.rq.TakeMessage() }

// --- node table ------------------------------------------------------------

// Node returns the node table entry for id, or ErrUnknownNode.
func (c *Controller) Node(id int) (*node.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	return n, nil
}

// NodeIDs reports every node id the controller knows about, ascending.
func (c *Controller) NodeIDs() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int, 0, len(c.nodes))
	for id := range c.nodes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (c *Controller) addNode(ctx context.Context, id int) *node.Node {
	c.mu.Lock()
	if existing, ok := c.nodes[id]; ok {
		c.mu.Unlock()
		return existing
	}
	n := node.New(ctx, id, c, c.log.WithField("node", id))
	c.nodes[id] = n
	c.mu.Unlock()
	return n
}

// HomeID, ControllerNodeID and LibraryType report facts learned by Start.
func (c *Controller) HomeID() uint32 { c.mu.Lock(); defer c.mu.Unlock(); return c.homeID }

func (c *Controller) ControllerNodeID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controllerNodeID
}

func (c *Controller) LibraryType() zwave.LibraryType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.libraryType
}

// --- generic call / SendCommand surface ------------------------------------

// call submits msg+fields and blocks for its matching RESPONSE.
func (c *Controller) call(ctx context.Context, msg *zwave.MessageDef, fields codec.State, priority queue.Priority) (codec.State, error) {
	tx := queue.NewTransmission(msg, fields, priority)
	c.mq.Add(tx)
	result, err := tx.Wait(ctx)
	if err != nil {
		return nil, err
	}
	st, _ := result.(codec.State)
	return st, nil
}

// SendCommand enqueues a node command for asynchronous delivery on nodeID's
// own dispatcher, per spec §4.J's sendCommand(node_id, command, endpoint,
// priority).
func (c *Controller) SendCommand(nodeID int, class *cc.ClassDef, def *cc.CommandDef, fields codec.State, endpoint int, priority queue.Priority) (*queue.Transmission, error) {
	n, err := c.Node(nodeID)
	if err != nil {
		return nil, err
	}
	return n.SendCommand(class, def, fields, endpoint, priority), nil
}

// --- public surface: one typed method per outbound MessageClass (spec
// §4.J / Controller.py's __makeCallFunction) --------------------------------

func (c *Controller) SerialAPIGetInitData(ctx context.Context) (codec.State, error) {
	return c.call(ctx, zwave.SerialAPIGetInitDataRequest, codec.State{}, queue.PriorityInitialization)
}

func (c *Controller) SerialAPISetTimeouts(ctx context.Context, rxAckTimeout, rxByteTimeout byte) (codec.State, error) {
	return c.call(ctx, zwave.SerialAPISetTimeoutsRequest, codec.State{
		"rxAckTimeout":  rxAckTimeout,
		"rxByteTimeout": rxByteTimeout,
	}, queue.PriorityInitialization)
}

func (c *Controller) SerialAPIGetCapabilities(ctx context.Context) (codec.State, error) {
	return c.call(ctx, zwave.SerialAPIGetCapabilitiesRequest, codec.State{}, queue.PriorityInitialization)
}

// SendNodeInformation broadcasts this host's own node information frame.
// funcID must already be held by the caller via AcquireFuncID; the
// asynchronous completion status arrives as that Lease's Result.
func (c *Controller) SendNodeInformation(ctx context.Context, destNode int, txOptions zwave.TransmitOption, funcID int) (codec.State, error) {
	return c.call(ctx, zwave.SendNodeInformationRequest, codec.State{
		"destNode":  destNode,
		"txOptions": byte(txOptions),
		"funcId":    byte(funcID),
	}, queue.PriorityDefault)
}

func (c *Controller) GetVersion(ctx context.Context) (codec.State, error) {
	return c.call(ctx, zwave.GetVersionRequest, codec.State{}, queue.PriorityInitialization)
}

func (c *Controller) MemoryGetID(ctx context.Context) (codec.State, error) {
	return c.call(ctx, zwave.MemoryGetIDRequest, codec.State{}, queue.PriorityInitialization)
}

// DeleteReturnRoute clears nodeID's static return routes. funcID must
// already be held by the caller; the asynchronous completion status
// arrives as that Lease's Result.
func (c *Controller) DeleteReturnRoute(ctx context.Context, nodeID, funcID int) (codec.State, error) {
	return c.call(ctx, zwave.DeleteReturnRouteRequest, codec.State{
		"nodeId": nodeID,
		"funcId": byte(funcID),
	}, queue.PriorityInitialization)
}

func (c *Controller) GetRoutingTableLine(ctx context.Context, nodeID int, removeBad, removeNonReps bool) (codec.State, error) {
	return c.call(ctx, zwave.GetRoutingTableLineRequest, codec.State{
		"nodeId":        nodeID,
		"removeBad":     removeBad,
		"removeNonReps": removeNonReps,
	}, queue.PriorityInitialization)
}

// --- startup sequence (spec §4.H: GET_CAPABILITIES -> conditional
// MEMORY_GET_ID -> GET_VERSION -> SERIAL_API_GET_INIT_DATA -> conditional
// SERIAL_API_SET_TIMEOUTS -> add every reported node) ------------------------

// Start runs the controller's handshake against an already-Run serial
// link: call `go sp.Run(ctx)` and `go c.Run(ctx)` first, then Start.
func (c *Controller) Start(ctx context.Context) error {
	caps, err := c.SerialAPIGetCapabilities(ctx)
	if err != nil {
		return fmt.Errorf("controller: GET_CAPABILITIES: %w", err)
	}

	if _, hasMemoryGetID := codec.AsSet(caps["supportedFunctions"])[int(zwave.ClassMemoryGetID)]; hasMemoryGetID {
		mem, err := c.MemoryGetID(ctx)
		if err != nil {
			return fmt.Errorf("controller: MEMORY_GET_ID: %w", err)
		}
		c.mu.Lock()
		c.homeID = uint32(codec.AsUint(mem["homeId"]))
		c.controllerNodeID = codec.AsInt(mem["controllerNodeId"])
		c.mu.Unlock()
	}

	ver, err := c.GetVersion(ctx)
	if err != nil {
		return fmt.Errorf("controller: GET_VERSION: %w", err)
	}
	libType := zwave.LibraryType(codec.AsInt(ver["libraryType"]))
	c.mu.Lock()
	c.libraryType = libType
	c.mu.Unlock()

	initData, err := c.SerialAPIGetInitData(ctx)
	if err != nil {
		return fmt.Errorf("controller: SERIAL_API_GET_INIT_DATA: %w", err)
	}

	if libType != zwave.LibraryBridgeController {
		if _, err := c.SerialAPISetTimeouts(ctx, 150, 15); err != nil {
			return fmt.Errorf("controller: SERIAL_API_SET_TIMEOUTS: %w", err)
		}
	}

	ids := make([]int, 0)
	for id := range codec.AsSet(initData["nodes"]) {
		if id < 1 || id > 232 {
			c.log.Warnf("ignoring out-of-range node id %d from init data", id)
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)

	c.mu.Lock()
	self := c.controllerNodeID
	c.mu.Unlock()
	for _, id := range ids {
		if id == self {
			continue
		}
		c.addNode(ctx, id)
	}
	c.NotifyInitializationRequired()
	return nil
}

// --- dispatcher loop ---------------------------------------------------

// Run drives the dispatcher loop and the node-initialization scheduler
// until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.dispatchLoop(ctx) }()
	go func() { defer wg.Done(); c.initializationLoop(ctx) }()
	wg.Wait()
}

// dispatchLoop is the controller's single owning goroutine: it is the
// only thing that ever submits to or drains the serial link, so RESPONSE
// matching and message submission never race each other (Controller.py's
// __taskImpl).
func (c *Controller) dispatchLoop(ctx context.Context) {
	var current *queue.Transmission
	var currentMsg *zwave.MessageDef
	var deadline time.Time

	for {
		if ctx.Err() != nil {
			return
		}

		c.waitForDispatchWork(ctx, current, deadline)

		for c.sp.HasMessage() {
			raw, err := c.sp.TakeMessage()
			if err != nil {
				return
			}
			if raw == nil {
				break
			}
			c.handleIncoming(raw, &current, &currentMsg, &deadline)
		}

		if current != nil && !deadline.IsZero() && time.Now().After(deadline) {
			c.failCurrent(current, "tx_deadline elapsed with no response")
			current, currentMsg, deadline = nil, nil, time.Time{}
		}

		if current == nil && c.mq.HasMessage() {
			tx, ok := c.mq.TakeMessage()
			if !ok {
				continue
			}
			current, currentMsg, deadline = c.submit(ctx, tx)
		}
	}
}

// waitForDispatchWork blocks until there is an incoming frame to drain, a
// queued Transmission to submit (only relevant with nothing in flight), or
// (with a Transmission already in flight) its tx_deadline arrives.
func (c *Controller) waitForDispatchWork(ctx context.Context, current *queue.Transmission, deadline time.Time) {
	if c.sp.HasMessage() {
		return
	}
	if current == nil && c.mq.HasMessage() {
		return
	}

	waitCtx := ctx
	var cancel context.CancelFunc
	if current != nil && !deadline.IsZero() {
		waitCtx, cancel = context.WithDeadline(ctx, deadline)
	} else {
		waitCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan struct{}, 2)
	go func() { c.sp.WaitForMessage(waitCtx); done <- struct{}{} }()
	if current == nil {
		go func() { c.mq.WaitForMessage(waitCtx); done <- struct{}{} }()
	}
	select {
	case <-done:
	case <-waitCtx.Done():
	}
}

// handleIncoming decodes one raw frame and either completes *current (a
// matching RESPONSE), routes a REQUEST to its registered handler, or
// surfaces it unmatched on the public output stream.
func (c *Controller) handleIncoming(raw []byte, current **queue.Transmission, currentMsg **zwave.MessageDef, deadline *time.Time) {
	if len(raw) < 2 {
		c.log.Warn("dropped short frame")
		return
	}
	typ := zwave.MessageType(raw[0])
	class := zwave.MessageClass(raw[1])

	if *current != nil && typ == zwave.Response && *currentMsg != nil && class == (*currentMsg).Class {
		st, _, err := (*currentMsg).Decode(raw)
		tx := *current
		*current, *currentMsg, *deadline = nil, nil, time.Time{}
		if err != nil {
			c.log.WithError(err).Warn("failed to decode matched response")
			tx.SetError(err)
			return
		}
		if !tx.Cancelled() {
			if tx.ResponseHandler != nil {
				func() {
					defer func() {
						if r := recover(); r != nil {
							c.log.WithField("panic", r).Error("response handler failed")
						}
					}()
					tx.ResponseHandler(st)
				}()
			}
			tx.SetResult(st)
		}
		return
	}

	if typ == zwave.Request {
		switch class {
		case zwave.ClassApplicationUpdate:
			c.handleApplicationUpdate(raw)
			return
		case zwave.ClassApplicationCommand:
			c.handleApplicationCommand(raw)
			return
		case zwave.ClassSendData:
			c.handleSendDataCallback(raw)
			return
		}
	}
	c.rq.Append(raw)
}

func (c *Controller) submit(ctx context.Context, tx *queue.Transmission) (*queue.Transmission, *zwave.MessageDef, time.Time) {
	msg, ok := tx.Message.(*zwave.MessageDef)
	if !ok {
		tx.SetError(errors.New("controller: non-message transmission submitted to controller queue"))
		return nil, nil, time.Time{}
	}
	fields, _ := tx.Fields.(codec.State)
	tx.Transmitting = true

	data, err := msg.Encode(fields)
	if err != nil {
		tx.SetError(fmt.Errorf("controller: encode %s: %w", msg.Name, err))
		return nil, nil, time.Time{}
	}

	handle := c.sp.Send(data)
	if err := handle.Wait(ctx); err != nil {
		c.requeueOrFail(tx, err)
		return nil, nil, time.Time{}
	}
	return tx, msg, time.Now().Add(txDeadlineWindow)
}

func (c *Controller) requeueOrFail(tx *queue.Transmission, err error) {
	tx.Retransmission++
	tx.Transmitting = false
	if tx.Retransmission >= tx.MaxRetransmissions {
		tx.SetError(err)
		return
	}
	tx.PauseUntil = time.Now().Add(time.Second)
	c.mq.Add(tx)
}

func (c *Controller) failCurrent(tx *queue.Transmission, reason string) {
	c.requeueOrFail(tx, errors.New("controller: "+reason))
}

// --- unsolicited dispatch ---------------------------------------------------

func (c *Controller) handleApplicationUpdate(raw []byte) {
	st, _, err := zwave.ApplicationUpdateRequest.Decode(raw)
	if err != nil {
		c.log.WithError(err).Warn("failed to decode application update")
		return
	}
	nodeID := codec.AsInt(st["nodeId"])
	status := zwave.UpdateState(codec.AsInt(st["status"]))
	if status != zwave.UpdateNodeInfoReceived && status != zwave.UpdateNodeInfoReqDone {
		c.rq.Append(st)
		return
	}
	n := c.addNode(context.Background(), nodeID)
	codes := make([]byte, 0)
	for _, v := range codec.AsSlice(st["commandClasses"]) {
		codes = append(codes, byte(codec.AsInt(v)))
	}
	for _, update := range n.SetCommandClasses(0, codes) {
		c.rq.Append(update)
	}
}

func (c *Controller) handleApplicationCommand(raw []byte) {
	st, _, err := zwave.ApplicationCommandHandlerRequest.Decode(raw)
	if err != nil {
		c.log.WithError(err).Warn("failed to decode application command handler request")
		return
	}
	nodeID := codec.AsInt(st["nodeId"])
	n, err := c.Node(nodeID)
	if err != nil {
		c.log.WithField("node", nodeID).Warn("command from unknown node")
		return
	}
	payload := codec.AsBytes(st["payload"])
	for _, update := range n.HandleApplicationCommandHandlerRequest(payload, 0) {
		c.rq.Append(update)
	}
}

// handleSendDataCallback resolves the funcId lease for a completed
// SEND_DATA transmission. A callback for an already-released or unknown
// funcId is tolerated: the sender may already have given up waiting.
func (c *Controller) handleSendDataCallback(raw []byte) {
	st, _, err := zwave.SendDataIncomingRequest.Decode(raw)
	if err != nil {
		c.log.WithError(err).Warn("failed to decode send data callback")
		return
	}
	funcID := codec.AsInt(st["funcId"])
	status := zwave.TransmitComplete(codec.AsInt(st["txStatus"]))
	if !c.fid.SetResult(funcID, status) {
		c.log.WithField("funcId", funcID).Debug("stray send data callback")
	}
}

// --- node-initialization scheduler (spec §4.I/§4.H: centralized, one
// interview in flight at a time, preferring an awake wake-up node) ----------

// initializationLoop repeatedly picks the best candidate node to interview
// next and runs one round of AttemptInitialization for it, mirroring
// Controller.py's __nodeInitializationTaskImpl.
func (c *Controller) initializationLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		n, wait := c.pickInitializationCandidate()
		if n == nil {
			if wait <= 0 {
				wait = time.Second
			}
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-c.initRequiredCh:
				timer.Stop()
			case <-ctx.Done():
				timer.Stop()
				return
			}
			continue
		}
		n.AttemptInitialization(ctx)
	}
}

// pickInitializationCandidate prefers a currently-awake wake-up node ready
// now (uninterruptible by anything but its own sleep), then any other
// non-wake-up node ready now, else reports how long until the earliest
// node becomes ready.
func (c *Controller) pickInitializationCandidate() (*node.Node, time.Duration) {
	c.mu.Lock()
	nodes := make([]*node.Node, 0, len(c.nodes))
	for _, n := range c.nodes {
		nodes = append(nodes, n)
	}
	c.mu.Unlock()

	now := time.Now()
	earliest := time.Hour
	var fallback *node.Node

	for _, n := range nodes {
		t := n.AttemptInitializationTime()
		if t == nil {
			continue
		}
		if n.SendsWakeUpNotifications() && n.WakeUpNotificationSet() && !t.After(now) {
			return n, 0
		}
		if !n.SendsWakeUpNotifications() && !t.After(now) && fallback == nil {
			fallback = n
		}
		if wait := t.Sub(now); wait < earliest {
			earliest = wait
		}
	}
	if fallback != nil {
		return fallback, 0
	}
	return nil, earliest
}
