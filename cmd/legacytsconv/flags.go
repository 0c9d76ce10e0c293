// Command legacytsconv is a thin CLI frontend over package convert: it
// reads one legacy DER-encoded timestamp ContentInfo and writes the
// assembled keyless-signature TLV. The CLI itself is out of scope of the
// conversion spec, but every teacher repo in this corpus ships a runnable
// binary with the same flag/config/logger/metrics wiring, so this one
// follows suit rather than leaving the package un-driveable.
package main

import (
	"flag"
	"fmt"
)

var (
	clpConfigPath = flag.String("config", "", "`path to config file` in YAML format")
	clpShowHelp   = flag.Bool("help", false, "Show help and exit (this message)")

	clpInputPath  = flag.String("in", "", "`path` of the legacy timestamp token to convert (DER encoded ContentInfo). Empty reads stdin")
	clpOutputPath = flag.String("out", "", "`path` to write the assembled TLV signature to. Empty writes stdout")

	clpLogEnabled  = flag.Bool("log.enabled", false, "flag allows to enable utility logging")
	clpLogConsole  = flag.Bool("log.console", false, "flag enables console logging if set to true")
	clpLogFileName = flag.String("log.filename", "", "enables logging to file with given `filename` if set. Use with caution - file size, rotate, etc...")
	clpLogVerbose  = flag.Bool("log.verbose", false, "flag allows to dump extra conversion detail to log")

	clpMetricsEnabled = flag.Bool("metrics.enabled", false, "flag allows to enable metrics monitoring via HTTP (Prometheus)")
	clpMetricsAddress = flag.String("metrics.address", "", "serve metrics on given [host:port]")

	clpUsageFunc = func() {
		fmt.Printf(`legacytsconv converts a legacy CMS/RFC-3161 timestamp token (carrying a
vendor TimeSignature hash-chain extension) into a keyless-signature TLV
record.

Command line flags:
`)
		flag.CommandLine.PrintDefaults()
	}
)
