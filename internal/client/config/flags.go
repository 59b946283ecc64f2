package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/accountgate/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
//	-u string   base URL of the HTTP API
//	-a string   address and port of the gRPC endpoint
//	-t string   transport, "http" or "grpc"
//	-w int      request timeout in seconds
//
// Other arguments, such as the subcommand, are left alone.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-u", "-a", "-t", "-w"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "u", cfg.ServerURL, "base URL of the HTTP API")
	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port of the gRPC endpoint")
	fs.StringVar(&cfg.Transport, "t", cfg.Transport, "transport: http or grpc")
	timeout := fs.Int("w", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.RequestTimeout = time.Duration(*timeout) * time.Second
}
