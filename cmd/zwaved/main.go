// Command zwaved runs the Z-Wave serial host driver against a local tty
// device or a remote TCP bridge, and provides a small node inspection/
// command CLI on top of it.
package main

import (
	"context"
	"os"
)

func main() {
	root := newRootCommand()
	root.SetArgs(os.Args[1:])
	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
