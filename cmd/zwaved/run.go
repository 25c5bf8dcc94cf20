package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/xx25/zwaved/internal/controller"
	"github.com/xx25/zwaved/internal/node"
	"github.com/xx25/zwaved/internal/serialproto"
	"github.com/xx25/zwaved/internal/transport"
)

// newRunCommand builds "zwaved run": connect to the controller chip, run
// the startup handshake, and stream node updates to the log until an
// interrupt signal requests a graceful shutdown.
func newRunCommand(cfg **config, log **logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "connect to a Z-Wave controller and run the driver",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDriver(cmd.Context(), *cfg, (*log).WithField("component", "cli"))
		},
	}
}

// connectController opens the configured transport, starts the serial
// protocol and dispatcher loop, and runs the controller's startup
// handshake, returning a ready-to-use *controller.Controller.
func connectController(ctx context.Context, cfg *config, log *logrus.Entry) (*controller.Controller, error) {
	if err := requireDevice(cfg); err != nil {
		return nil, err
	}

	t, err := transport.Open(ctx, cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("cli: open %s: %w", cfg.Device, err)
	}

	sp := serialproto.New(t, log.WithField("component", "serialproto"))
	go sp.Run(ctx)

	c := controller.New(sp, log.WithField("component", "controller"))
	go c.Run(ctx)

	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("cli: startup handshake: %w", err)
	}
	log.WithFields(logrus.Fields{
		"homeId":      fmt.Sprintf("%08X", c.HomeID()),
		"controllerNodeId": c.ControllerNodeID(),
		"libraryType": c.LibraryType(),
		"nodes":       c.NodeIDs(),
	}).Info("controller ready")
	return c, nil
}

// runDriver runs connectController then streams every public update to
// the log until ctx is cancelled or SIGINT/SIGTERM arrives (runDriver
// installs that signal handler itself).
func runDriver(ctx context.Context, cfg *config, log *logrus.Entry) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := connectController(ctx, cfg, log)
	if err != nil {
		return err
	}

	for {
		if err := c.WaitForMessage(ctx); err != nil {
			log.Info("shutting down")
			return nil
		}
		for c.HasMessage() {
			update, ok := c.TakeMessage()
			if !ok {
				break
			}
			logUpdate(log, update)
		}
	}
}

// logUpdate renders one public controller update as a structured log
// line, one case per update type the controller/node packages publish.
func logUpdate(log *logrus.Entry, update any) {
	switch u := update.(type) {
	case node.ProtocolInfo:
		log.WithField("node", u.NodeID).Info("node protocol info")
	case node.CommandClassInfo:
		log.WithFields(logrus.Fields{"node": u.NodeID, "endpoint": u.Endpoint, "class": u.Code, "version": u.Version}).Info("command class resolved")
	case node.ManufacturerInfo:
		log.WithFields(logrus.Fields{"node": u.NodeID, "manufacturerId": u.ManufacturerID, "productId": u.ProductID}).Info("manufacturer info")
	case node.ReceivedCommand:
		log.WithFields(logrus.Fields{"node": u.NodeID, "endpoint": u.Endpoint, "class": u.Class, "command": fmt.Sprintf("0x%02x", u.Command)}).Info("command received")
	default:
		log.WithField("update", fmt.Sprintf("%#v", u)).Debug("unhandled update")
	}
}
