package transport

import (
	"context"
	"regexp"
)

var hostPortRe = regexp.MustCompile(`^[\w\-.]+:\d+$`)

// Open resolves a serial endpoint descriptor: "host:port" dials a remote
// bridge, anything else opens a local device path (spec §6).
func Open(ctx context.Context, descriptor string) (Transport, error) {
	if hostPortRe.MatchString(descriptor) {
		return DialRemote(ctx, descriptor)
	}
	return OpenLocal(descriptor)
}
