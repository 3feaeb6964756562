package core

import (
	"io"
	"log"
)

// Logger receives per-file diagnostics (skipped symlinks, failed
// compressions, append staging steps). It discards by default; the CLI
// points it at stderr.
var Logger = log.New(io.Discard, "csa: ", log.LstdFlags)

// Verbose enables per-file progress lines in Logger.
var Verbose = false
