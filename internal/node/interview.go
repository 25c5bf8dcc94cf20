package node

import (
	"context"
	"math/rand"
	"time"

	"github.com/xx25/zwaved/internal/codec"
	"github.com/xx25/zwaved/internal/queue"
	"github.com/xx25/zwaved/internal/zwave"
	"github.com/xx25/zwaved/internal/zwave/cc"
)

// ccVersionPriority weights which (endpoint 0) command class gets its
// version requested first during interview — manufacturer info and
// multi-channel discovery matter more than re-confirming VERSION/WAKE_UP
// itself, grounded on ControllerNode.__initCCVersionPriority.
var ccVersionPriority = map[zwave.CommandClass]int{
	zwave.CCManufacturerSpecific: 2,
	zwave.CCMultiChannel:         1,
	zwave.CCVersion:              -1,
	zwave.CCWakeUp:               -1,
}

const (
	initTaskTimeout   = 5 * time.Second
	initSettleTimeout = 2 * time.Second
)

// initTask is one unit of interview work: a condition that must still
// hold for the task to be worth running, and the action that requests
// the missing information.
type initTask struct {
	key       string
	condition func() bool
	action    func()
}

// AttemptInitialization runs one round of the interview state machine
// and reschedules AttemptInitializationTime on failure with exponential
// backoff and jitter (ControllerNode.attemptInitialization).
func (n *Node) AttemptInitialization(ctx context.Context) {
	add := 4.0
	ok, timedOut := n.attemptInitializationOnce(ctx)
	if ok {
		n.mu.Lock()
		n.attemptInitializationTime = nil
		n.mu.Unlock()
		return
	}
	if timedOut {
		add = 2.0
	}

	n.mu.Lock()
	n.initializationWait = time.Duration(float64(n.initializationWait+time.Duration(add*float64(time.Second))) * 1.5)
	wait := n.initializationWait
	next := time.Now().Add(time.Duration(absGauss(wait.Seconds(), wait.Seconds()/5) * float64(time.Second)))
	n.attemptInitializationTime = &next
	n.mu.Unlock()
}

// attemptInitializationOnce runs protocol-info discovery, endpoint-0
// command class discovery, then a shuffled batch of version/endpoint/
// manufacturer interview tasks, returning once none remain.
func (n *Node) attemptInitializationOnce(ctx context.Context) (ok, timedOut bool) {
	n.mu.Lock()
	havePI := n.protocolInfo != nil
	n.mu.Unlock()

	if !havePI {
		piCtx, cancel := context.WithTimeout(ctx, initTaskTimeout)
		info, err := n.host.GetNodeProtocolInfo(piCtx, n.ID)
		cancel()
		if err != nil {
			return false, ctx.Err() == nil
		}
		n.mu.Lock()
		n.protocolInfo = &ProtocolInfo{NodeID: n.ID, Info: info}
		n.initializationWait = 0
		n.mu.Unlock()
		n.host.PublishUpdate(*n.protocolInfo)
	}

	n.mu.Lock()
	_, haveEndpoint0 := n.commandClassCodes[0]
	n.mu.Unlock()
	for !haveEndpoint0 {
		n.mu.Lock()
		n.activeSignal = false
		n.mu.Unlock()

		reqCtx, cancel := context.WithTimeout(ctx, initTaskTimeout)
		_ = n.host.RequestNodeInfo(reqCtx, n.ID)
		cancel()

		waitCtx, waitCancel := context.WithTimeout(ctx, initSettleTimeout)
		n.waitActive(waitCtx)
		waitCancel()

		n.mu.Lock()
		_, haveEndpoint0 = n.commandClassCodes[0]
		n.mu.Unlock()
		if ctx.Err() != nil {
			return false, true
		}
	}
	n.mu.Lock()
	n.initializationWait = 0
	n.mu.Unlock()

	for {
		tasks := n.buildInitTasks()
		if len(tasks) == 0 {
			return true, false
		}
		rand.Shuffle(len(tasks), func(i, j int) { tasks[i], tasks[j] = tasks[j], tasks[i] })
		for _, t := range tasks {
			if !n.runInitTask(ctx, t) {
				return false, false
			}
		}
	}
}

func (n *Node) waitActive(ctx context.Context) {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			n.mu.Lock()
			n.activeCond.Broadcast()
			n.mu.Unlock()
		case <-stop:
		}
	}()
	defer close(stop)

	n.mu.Lock()
	defer n.mu.Unlock()
	for !n.activeSignal {
		if ctx.Err() != nil {
			return
		}
		n.activeCond.Wait()
	}
}

// buildInitTasks enumerates every still-missing piece of interview data
// as an initTask, mirroring ControllerNode.__attemptInitializationImpl's
// per-round task list (version per unknown (endpoint, class), endpoint
// discovery, manufacturer info, per-endpoint capabilities).
func (n *Node) buildInitTasks() []initTask {
	n.mu.Lock()
	defer n.mu.Unlock()

	var tasks []initTask

	versionV1, _ := cc.Classes[zwave.CCVersion]
	type pair struct {
		endpoint int
		class    zwave.CommandClass
	}
	var unknown []pair
	for endpoint, codes := range n.commandClassCodes {
		for _, code := range codes {
			if _, ok := n.commandClassVersion[ccKey{endpoint, code}]; !ok {
				unknown = append(unknown, pair{endpoint, code})
			}
		}
	}
	for _, p := range unknown {
		endpoint, class := p.endpoint, p.class
		priority := queue.PriorityInitialization
		if endpoint == 0 {
			priority += queue.Priority(ccVersionPriority[class])
		}
		tasks = append(tasks, initTask{
			key: "getCommandClassVersion",
			condition: func() bool {
				n.mu.Lock()
				defer n.mu.Unlock()
				_, ok := n.commandClassVersion[ccKey{endpoint, class}]
				return !ok
			},
			action: func() {
				def, _ := versionV1.Lookup(1, 0x13)
				n.SendCommand(versionV1, def, codec.State{"requestedCommandClass": byte(class)}, endpoint, priority)
			},
		})
	}

	if multiChannel, ok := n.commandClass[ccKey{0, zwave.CCMultiChannel}]; ok {
		if _, hasEndPointGet := multiChannel.Versions[anyVersion(multiChannel)][0x07]; hasEndPointGet {
			if n.endPointReport == nil {
				tasks = append(tasks, initTask{
					key:       "getMultiChannelEndpoints",
					condition: func() bool { n.mu.Lock(); defer n.mu.Unlock(); return n.endPointReport == nil },
					action: func() {
						def, _ := multiChannel.Lookup(anyVersion(multiChannel), 0x07)
						n.SendCommand(multiChannel, def, codec.State{}, 0, queue.PriorityInitialization)
					},
				})
			}
		}
	}

	if manufacturerSpecific, ok := n.commandClass[ccKey{0, zwave.CCManufacturerSpecific}]; ok {
		if n.manufacturerInfo == nil {
			tasks = append(tasks, initTask{
				key:       "getManufacturerInfo",
				condition: func() bool { n.mu.Lock(); defer n.mu.Unlock(); return n.manufacturerInfo == nil },
				action: func() {
					def, _ := manufacturerSpecific.Lookup(anyVersion(manufacturerSpecific), 0x04)
					n.SendCommand(manufacturerSpecific, def, codec.State{}, 0, queue.PriorityInitialization)
				},
			})
		}
	}

	if n.endPointReport != nil {
		individual := codec.AsInt(n.endPointReport["individualEndPoints"])
		if multiChannel, ok := n.commandClass[ccKey{0, zwave.CCMultiChannel}]; ok {
			for ep := 1; ep <= individual; ep++ {
				ep := ep
				if _, known := n.commandClassCodes[ep]; known {
					continue
				}
				tasks = append(tasks, initTask{
					key: "getMultiChannelEndpointCapabilities",
					condition: func() bool {
						n.mu.Lock()
						defer n.mu.Unlock()
						_, known := n.commandClassCodes[ep]
						return !known
					},
					action: func() {
						def, _ := multiChannel.Lookup(anyVersion(multiChannel), 0x09)
						n.SendCommand(multiChannel, def, codec.State{"endPoint": ep}, 0, queue.PriorityInitialization)
					},
				})
			}
		}
	}

	return tasks
}

// anyVersion picks the highest modeled version of a class — interview
// tasks built before a VERSION.Report don't yet know the node's real
// version, so they address the catalog's newest table and let the
// command-class Lookup fallback resolve it.
func anyVersion(d *cc.ClassDef) int {
	best := 0
	for v := range d.Versions {
		if v > best {
			best = v
		}
	}
	return best
}

// runInitTask runs t's action (if its condition still holds) and waits
// up to initSettleTimeout for the condition to clear, reporting whether
// the round overall should continue (true) or be abandoned (false,
// forcing a backoff reschedule).
func (n *Node) runInitTask(ctx context.Context, t initTask) bool {
	if !t.condition() {
		return true
	}

	runCtx, cancel := context.WithTimeout(ctx, initTaskTimeout)
	defer cancel()
	t.action()

	deadline := time.Now().Add(initSettleTimeout)
	for {
		if !t.condition() {
			return true
		}
		if time.Now().After(deadline) || runCtx.Err() != nil {
			return false
		}
		n.mu.Lock()
		n.activeSignal = false
		n.mu.Unlock()

		waitCtx, waitCancel := context.WithDeadline(ctx, deadline)
		n.waitActive(waitCtx)
		waitCancel()
	}
}
