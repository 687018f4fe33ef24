package main

import (
	"fmt"
	"io"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=v1.0.0" ./cmd/actiondesk/
var version = "dev"

func printVersion(w io.Writer) {
	fmt.Fprintln(w, version)
}
