// Package node implements the per-Z-Wave-node state machine (spec
// §4.I): command dispatch with alternating routing options, the
// always-listening-vs-wake-up command queue discipline, and the
// interview that discovers a node's command classes, versions,
// endpoints, and manufacturer info.
//
// Grounded on pywavez's ControllerNode: a node owns one dispatcher
// goroutine draining its own priority queue (cybojanek/gozwave's api.Node
// shows the same mutex-guarded-state-plus-goroutine shape for a single
// Go node handle).
package node

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xx25/zwaved/internal/codec"
	"github.com/xx25/zwaved/internal/funcid"
	"github.com/xx25/zwaved/internal/queue"
	"github.com/xx25/zwaved/internal/zwave"
	"github.com/xx25/zwaved/internal/zwave/cc"
)

// EndOfCommandClassMark is the sentinel byte separating a node's
// supported command classes from the ones it controls in an
// APPLICATION_UPDATE / SendNodeInformation command-class list.
const EndOfCommandClassMark = 0xEF

const noAckCountThreshold = 3

// Host is the set of controller operations a node needs to interview
// itself and transmit commands, kept as an interface so this package
// never imports internal/controller (which imports this package).
type Host interface {
	AcquireFuncID(ctx context.Context, timeout time.Duration) (*funcid.Lease, error)
	SendData(ctx context.Context, nodeID int, data []byte, txOptions zwave.TransmitOption, funcID int) (bool, error)
	GetNodeProtocolInfo(ctx context.Context, nodeID int) (codec.State, error)
	RequestNodeInfo(ctx context.Context, nodeID int) error
	PublishUpdate(update any)
	NotifyInitializationRequired()
}

// ccKey identifies a command class on a specific endpoint.
type ccKey struct {
	Endpoint int
	Class    zwave.CommandClass
}

// ProtocolInfo reports a node's listening/routing/device-class triple,
// fetched once via GET_NODE_PROTOCOL_INFO.
type ProtocolInfo struct {
	NodeID int
	Info   codec.State
}

// CommandClassInfo reports the resolved version (and catalog entry, if
// known) for one (endpoint, command class) pair.
type CommandClassInfo struct {
	NodeID   int
	Endpoint int
	Class    *cc.ClassDef
	Code     zwave.CommandClass
	Version  int
}

// ManufacturerInfo reports a node's manufacturer/product identity.
type ManufacturerInfo struct {
	NodeID         int
	ManufacturerID uint64
	ProductTypeID  uint64
	ProductID      uint64
}

// ReceivedCommand is an unsolicited, unhandled command surfaced to the
// controller's public output stream for the application to consume.
type ReceivedCommand struct {
	NodeID   int
	Endpoint int
	Class    zwave.CommandClass
	Command  byte
	Fields   codec.State
}

// Node tracks everything known about one Z-Wave device and runs its own
// command dispatcher goroutine.
type Node struct {
	ID   int
	host Host
	log  *logrus.Entry

	mu                   sync.Mutex
	protocolInfo         *ProtocolInfo
	manufacturerInfo     *ManufacturerInfo
	commandClassCodes    map[int][]zwave.CommandClass // endpoint -> supported codes
	commandClassVersion  map[ccKey]int
	commandClass         map[ccKey]*cc.ClassDef
	endPointReport       codec.State
	noAckCount           int
	sendsWakeUpNotifications bool
	attemptInitializationTime *time.Time // nil once initialization is done
	initializationWait        time.Duration

	activeCond   *sync.Cond
	activeSignal bool
	wakeUpCond   *sync.Cond
	wakeUp       bool

	queue *queue.MessageQueue
}

// New constructs a node and starts its command dispatcher goroutine.
func New(ctx context.Context, id int, host Host, log *logrus.Entry) *Node {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	n := &Node{
		ID:                  id,
		host:                host,
		log:                 log.WithField("node", id),
		commandClassCodes:   make(map[int][]zwave.CommandClass),
		commandClassVersion: make(map[ccKey]int),
		commandClass:        make(map[ccKey]*cc.ClassDef),
		queue:               queue.NewMessageQueue(),
	}
	now := time.Now()
	n.attemptInitializationTime = &now
	n.activeCond = sync.NewCond(&n.mu)
	n.wakeUpCond = sync.NewCond(&n.mu)
	go n.dispatcherLoop(ctx)
	return n
}

func (n *Node) nodeActive() {
	n.mu.Lock()
	n.activeSignal = true
	n.activeCond.Broadcast()
	n.mu.Unlock()
}

// SendCommand enqueues command (already encoded fields) for transmission
// and returns the Transmission to await.
func (n *Node) SendCommand(class *cc.ClassDef, def *cc.CommandDef, fields codec.State, endpoint int, priority queue.Priority) *queue.Transmission {
	tx := queue.NewTransmission(def, fields, priority)
	tx.Endpoint = endpoint
	nodeID := n.ID
	tx.NodeID = &nodeID
	n.queue.Add(tx)
	return tx
}

// SetCommandClasses records endpoint's supported command classes
// (truncating at the 0xEF multi-instance-report sentinel) and returns
// one CommandClassInfo update per recorded class.
func (n *Node) SetCommandClasses(endpoint int, codes []byte) []any {
	n.mu.Lock()
	defer n.mu.Unlock()

	trimmed := codes
	for i, b := range codes {
		if b == EndOfCommandClassMark {
			trimmed = codes[:i]
			break
		}
	}
	classes := make([]zwave.CommandClass, len(trimmed))
	for i, b := range trimmed {
		classes[i] = zwave.CommandClass(b)
	}
	n.commandClassCodes[endpoint] = classes

	updates := make([]any, 0, len(classes))
	for _, code := range classes {
		key := ccKey{endpoint, code}
		updates = append(updates, CommandClassInfo{
			NodeID:   n.ID,
			Endpoint: endpoint,
			Class:    n.commandClass[key],
			Code:     code,
			Version:  n.commandClassVersion[key],
		})
	}

	if n.attemptInitializationTime == nil && n.needCommandClassVersionLocked() {
		now := time.Now()
		n.attemptInitializationTime = &now
		n.host.NotifyInitializationRequired()
	}
	return updates
}

func (n *Node) needCommandClassVersionLocked() bool {
	for endpoint, codes := range n.commandClassCodes {
		for _, code := range codes {
			if _, ok := n.commandClassVersion[ccKey{endpoint, code}]; !ok {
				return true
			}
		}
	}
	return false
}

// HandleApplicationCommandHandlerRequest parses and dispatches an
// incoming ApplicationCommandHandler payload, returning zero or more
// public updates/ReceivedCommands. A parse failure surfaces the raw
// payload instead of silently dropping it.
func (n *Node) HandleApplicationCommandHandlerRequest(payload []byte, endpoint int) []any {
	defer n.nodeActive()

	class, def, st, err := n.parseCommand(payload, endpoint)
	if err != nil {
		n.log.WithError(err).Warn("error parsing application command handler payload")
		return []any{payload}
	}
	if def == nil {
		return []any{payload}
	}
	return n.handleCommand(class, def, st, endpoint)
}

// parseCommand decodes payload against the catalog entry known for
// (endpoint, commandClass), falling back to v1 for VersionReport and
// WakeUpNotification so those two can be understood before the
// interview has resolved a version.
func (n *Node) parseCommand(payload []byte, endpoint int) (*cc.ClassDef, *cc.CommandDef, codec.State, error) {
	if len(payload) < 2 {
		return nil, nil, nil, fmt.Errorf("node: short command: % x", payload)
	}
	classCode := zwave.CommandClass(payload[0])
	cmdCode := payload[1]

	n.mu.Lock()
	class, haveClass := n.commandClass[ccKey{endpoint, classCode}]
	n.mu.Unlock()

	if !haveClass {
		isVersionReport := classCode == zwave.CCVersion && cmdCode == 0x14
		isWakeUpNotification := classCode == zwave.CCWakeUp && cmdCode == 0x07
		if !isVersionReport && !isWakeUpNotification {
			return nil, nil, nil, nil
		}
		var ok bool
		class, ok = cc.Classes[classCode]
		if !ok {
			return nil, nil, nil, fmt.Errorf("node: unknown command class 0x%02x", byte(classCode))
		}
	}

	version := 1
	if haveClass {
		n.mu.Lock()
		version = n.commandClassVersion[ccKey{endpoint, classCode}]
		n.mu.Unlock()
	}
	def, st, _, err := class.Decode(version, payload)
	return class, def, st, err
}

// handleCommand runs a registered unsolicited handler for (class, cmd),
// or surfaces it as a ReceivedCommand.
func (n *Node) handleCommand(class *cc.ClassDef, def *cc.CommandDef, st codec.State, endpoint int) []any {
	switch {
	case def.Class == zwave.CCVersion && def.Cmd == 0x14:
		return n.versionReportHandler(st)
	case def.Class == zwave.CCManufacturerSpecific && def.Cmd == 0x05:
		return n.manufacturerSpecificReportHandler(st, endpoint)
	case def.Class == zwave.CCMultiChannel && def.Cmd == 0x08:
		return n.multiChannelEndPointReportHandler(st)
	case def.Class == zwave.CCMultiChannel && def.Cmd == 0x0A:
		return n.multiChannelCapabilityReportHandler(st)
	case def.Class == zwave.CCMultiChannel && def.Cmd == 0x0D:
		return n.multiChannelCmdEncapHandler(st)
	case def.Class == zwave.CCWakeUp && def.Cmd == 0x07:
		return n.wakeUpNotificationHandler(st, endpoint)
	default:
		return []any{ReceivedCommand{NodeID: n.ID, Endpoint: endpoint, Class: def.Class, Command: def.Cmd, Fields: st}}
	}
}

func (n *Node) versionReportHandler(st codec.State) []any {
	reqClass := zwave.CommandClass(codec.AsInt(st["requestedCommandClass"]))
	version := codec.AsInt(st["commandClassVersion"])

	n.mu.Lock()
	key := ccKey{0, reqClass}
	n.commandClassVersion[key] = version
	var resolved *cc.ClassDef
	if classDef, ok := cc.Classes[reqClass]; ok {
		n.commandClass[key] = classDef
		resolved = classDef
	}
	n.mu.Unlock()

	return []any{CommandClassInfo{NodeID: n.ID, Endpoint: 0, Class: resolved, Code: reqClass, Version: version}}
}

func (n *Node) manufacturerSpecificReportHandler(st codec.State, endpoint int) []any {
	if endpoint != 0 {
		return nil
	}
	info := &ManufacturerInfo{
		NodeID:         n.ID,
		ManufacturerID: codec.AsUint(st["manufacturerId"]),
		ProductTypeID:  codec.AsUint(st["productTypeId"]),
		ProductID:      codec.AsUint(st["productId"]),
	}
	n.mu.Lock()
	n.manufacturerInfo = info
	n.mu.Unlock()
	return []any{*info}
}

func (n *Node) multiChannelEndPointReportHandler(st codec.State) []any {
	n.mu.Lock()
	n.endPointReport = st
	n.mu.Unlock()
	return nil
}

func (n *Node) multiChannelCapabilityReportHandler(st codec.State) []any {
	endpoint := codec.AsInt(st["endPoint"])
	commandClass, _ := st["commandClass"].([]byte)
	return n.SetCommandClasses(endpoint, commandClass)
}

func (n *Node) multiChannelCmdEncapHandler(st codec.State) []any {
	bitAddress := codec.AsBool(st["bitAddress"])
	destEndpoint := codec.AsInt(st["destinationEndPoint"])

	var toUs bool
	if bitAddress {
		toUs = destEndpoint&1 != 0
	} else {
		toUs = destEndpoint == 0
	}
	if !toUs {
		return []any{ReceivedCommand{NodeID: n.ID, Endpoint: 0, Class: zwave.CCMultiChannel, Command: 0x0D, Fields: st}}
	}

	param, _ := st["parameter"].([]byte)
	payload := append([]byte{byte(codec.AsInt(st["commandClass"])), byte(codec.AsInt(st["command"]))}, param...)
	endpoint := codec.AsInt(st["sourceEndPoint"])

	class, def, inner, err := n.parseCommand(payload, endpoint)
	if err != nil || def == nil {
		if err != nil {
			n.log.WithError(err).Warn("error parsing multi channel cmd encap payload")
		}
		return []any{ReceivedCommand{NodeID: n.ID, Endpoint: 0, Class: zwave.CCMultiChannel, Command: 0x0D, Fields: st}}
	}
	return n.handleCommand(class, def, inner, endpoint)
}

func (n *Node) wakeUpNotificationHandler(st codec.State, endpoint int) []any {
	n.mu.Lock()
	first := !n.sendsWakeUpNotifications
	if first {
		n.sendsWakeUpNotifications = true
	}
	if n.attemptInitializationTime != nil {
		now := time.Now()
		n.attemptInitializationTime = &now
	}
	n.mu.Unlock()

	if first {
		// A bogus entry makes the dispatcher re-check sendsWakeUpNotifications
		// and switch into wake-up mode on its next iteration.
		n.queue.Add(queue.NewTransmission(nil, nil, queue.PriorityWakeUp))
	}
	n.nodeActive()
	n.setWakeUp(true)
	n.host.NotifyInitializationRequired()

	return []any{ReceivedCommand{NodeID: n.ID, Endpoint: endpoint, Class: zwave.CCWakeUp, Command: 0x07, Fields: st}}
}

func (n *Node) setWakeUp(v bool) {
	n.mu.Lock()
	n.wakeUp = v
	n.wakeUpCond.Broadcast()
	n.mu.Unlock()
}

// SendsWakeUpNotifications reports whether this node has announced
// itself as a wake-up device.
func (n *Node) SendsWakeUpNotifications() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sendsWakeUpNotifications
}

// WakeUpNotificationSet reports whether the node is currently believed
// awake (a wake-up notification seen, not yet consumed by a "no more
// information" round-trip).
func (n *Node) WakeUpNotificationSet() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.wakeUp
}

// AttemptInitializationTime returns the node's next scheduled
// initialization attempt, or nil if initialization has completed.
func (n *Node) AttemptInitializationTime() *time.Time {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.attemptInitializationTime
}

// dispatcherLoop drains the node's command queue, one command in flight
// at a time, switching behavior when the node reports itself as a
// wake-up device (spec §4.I).
func (n *Node) dispatcherLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if n.SendsWakeUpNotifications() {
			if !n.waitForWakeUp(ctx) {
				return
			}
			waitCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
			n.queue.WaitForMessage(waitCtx)
			cancel()

			tx, ok := n.queue.TakeMessage()
			if !ok {
				for i := 0; i < 3; i++ {
					if n.transmitCommand(ctx, []byte{0x84, 0x08}) {
						break
					}
				}
				n.setWakeUp(false)
				continue
			}
			n.runTransmission(ctx, tx)
			continue
		}

		tx, err := n.waitForCommand(ctx)
		if err != nil {
			return
		}
		n.runTransmission(ctx, tx)

		jitter := time.Duration(absGauss(0.2, 0.04) * float64(time.Second))
		select {
		case <-time.After(jitter):
		case <-ctx.Done():
			return
		}
	}
}

func (n *Node) waitForWakeUp(ctx context.Context) bool {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			n.mu.Lock()
			n.wakeUpCond.Broadcast()
			n.mu.Unlock()
		case <-stop:
		}
	}()
	defer close(stop)

	n.mu.Lock()
	defer n.mu.Unlock()
	for !n.wakeUp {
		if ctx.Err() != nil {
			return false
		}
		n.wakeUpCond.Wait()
	}
	return true
}

// waitForCommand blocks until a command is queued and returns it. It also
// starts a goroutine that waits for node activity with a jittered ~30s
// timeout; that wait neither delays nor gates the returned command.
func (n *Node) waitForCommand(ctx context.Context) (*queue.Transmission, error) {
	timeout := time.Duration(gauss(30, 3) * float64(time.Second))
	activeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	go func() {
		n.mu.Lock()
		for !n.activeSignal && activeCtx.Err() == nil {
			n.activeCond.Wait()
		}
		n.mu.Unlock()
	}()

	return n.queue.GetMessage(ctx)
}

// runTransmission encodes, transmits, and resolves a single queued
// command, re-queuing it on failure up to MaxRetransmissions.
func (n *Node) runTransmission(ctx context.Context, tx *queue.Transmission) {
	if tx.Message == nil {
		return // bogus wake-up-mode-switch placeholder
	}
	tx.Transmitting = true

	def := tx.Message.(*cc.CommandDef)
	fields, _ := tx.Fields.(codec.State)
	payload, err := def.Encode(fields)
	if err != nil {
		tx.SetError(fmt.Errorf("node: encode command: %w", err))
		return
	}

	if tx.Endpoint > 0 {
		n.mu.Lock()
		multiChannel, ok := n.commandClass[ccKey{0, zwave.CCMultiChannel}]
		n.mu.Unlock()
		if !ok {
			tx.SetError(errors.New("node: node does not support multi channel"))
			return
		}
		encapDef, _ := multiChannel.Lookup(4, 0x0D)
		payload, err = encapDef.Encode(codec.State{
			"sourceEndPoint":      0,
			"destinationEndPoint": tx.Endpoint,
			"bitAddress":          false,
			"commandClass":        byte(def.Class),
			"command":             def.Cmd,
			"parameter":           payload[2:],
		})
		if err != nil {
			tx.SetError(fmt.Errorf("node: encode multi channel encap: %w", err))
			return
		}
	}

	if n.transmitCommand(ctx, payload) {
		if !tx.Cancelled() {
			tx.SetResult(nil)
		}
		return
	}

	tx.Retransmission++
	tx.Transmitting = false
	if tx.Retransmission >= tx.MaxRetransmissions {
		tx.SetError(errors.New("node: transmission failed after max retransmissions"))
		return
	}
	tx.PauseUntil = time.Now().Add(5 * time.Second)
	n.queue.AddFirst(tx)
}

// transmitCommand sends a single SEND_DATA attempt, alternating between
// explore and auto-route framing every other try as the node's ack
// history gets worse, and blocks up to 65s for the completion callback.
func (n *Node) transmitCommand(ctx context.Context, data []byte) bool {
	lease, err := n.host.AcquireFuncID(ctx, funcid.DefaultTimeout)
	if err != nil {
		n.log.WithError(err).Warn("could not acquire func id")
		return false
	}

	n.mu.Lock()
	noAck := n.noAckCount
	n.mu.Unlock()

	var txOptions zwave.TransmitOption
	if noAck%2 != 0 {
		txOptions = zwave.TxOptionACK | zwave.TxOptionExplore
	} else {
		txOptions = zwave.TxOptionACK | zwave.TxOptionAutoRoute
	}

	ok, err := n.host.SendData(ctx, n.ID, data, txOptions, lease.Value)
	if err != nil {
		n.log.WithError(err).Warn("sendData raised an error")
		ok = false
	}
	if !ok {
		lease.Release()
		return false
	}

	waitCtx, cancel := context.WithTimeout(ctx, 65*time.Second)
	result, waitErr := lease.Wait(waitCtx)
	cancel()
	lease.Release()

	var status zwave.TransmitComplete
	if waitErr == nil {
		if s, ok := result.(zwave.TransmitComplete); ok {
			status = s
		}
	}

	switch status {
	case zwave.TransmitOK:
		n.mu.Lock()
		n.noAckCount = 0
		n.activeSignal = true
		n.activeCond.Broadcast()
		n.mu.Unlock()
		return true
	case zwave.TransmitNoAck:
		n.mu.Lock()
		n.noAckCount++
		if n.noAckCount >= noAckCountThreshold {
			n.activeSignal = false
		}
		n.mu.Unlock()
	}
	return false
}

func gauss(mean, stddev float64) float64 {
	return mean + rand.NormFloat64()*stddev
}

func absGauss(mean, stddev float64) float64 {
	v := gauss(mean, stddev)
	if v < 0 {
		return -v
	}
	return v
}
