package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// newRootCommand builds the zwaved command tree: "run" drives the
// controller against a real transport, "nodes" opens its own connection
// to the controller to list or command its nodes.
func newRootCommand() *cobra.Command {
	v := viper.New()
	var cfg *config
	var log *logrus.Logger

	root := &cobra.Command{
		Use:           "zwaved",
		Short:         "Z-Wave serial host driver",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(v)
			if err != nil {
				return err
			}
			if device, _ := cmd.Flags().GetString("device"); device != "" {
				c.Device = device
			}
			if level, _ := cmd.Flags().GetString("log-level"); level != "" {
				c.LogLevel = level
			}
			if format, _ := cmd.Flags().GetString("log-format"); format != "" {
				c.LogFormat = format
			}
			cfg = c
			log = newLogger(cfg.LogLevel, cfg.LogFormat)
			return nil
		},
	}

	root.PersistentFlags().String("device", "", "serial device path or host:port bridge address")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().String("log-format", "", "log format: text, json, auto")

	root.AddCommand(newRunCommand(&cfg, &log))
	root.AddCommand(newNodesCommand(&cfg, &log))
	return root
}

// newLogger configures logrus the way the rest of the driver expects it:
// a text formatter on an interactive terminal, JSON otherwise, grounded on
// the corpus's common "TextFormatter on TTY, JSONFormatter in production"
// logrus setup.
func newLogger(level, format string) *logrus.Logger {
	log := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	switch format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		if isatty.IsTerminal(os.Stdout.Fd()) {
			log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		} else {
			log.SetFormatter(&logrus.JSONFormatter{})
		}
	}
	return log
}

func requireDevice(cfg *config) error {
	if cfg.Device == "" {
		return fmt.Errorf("no serial device configured: pass --device, set ZWAVED_DEVICE, or add device: to zwaved.yaml")
	}
	return nil
}
