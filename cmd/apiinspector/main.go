// Command apiinspector captures browser traffic over the DevTools protocol
// and serves it to the dashboard.
package main

import (
	"context"
	"os"
)

func main() {
	gs := newGlobalState(context.Background(), os.Stdout, os.Stderr)
	os.Exit(execute(gs, os.Args[1:]))
}
