// Command portalctl administers a portal installation: bootstrap, owner
// recovery, invites, client passwords and document migrations. It works
// directly against the configured storage, so run it on the server host.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
