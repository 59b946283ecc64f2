package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/accountgate/internal/flagx"
)

var serverFlags = []string{"-a", "-g", "-d", "-s", "-t", "-r", "-m", "-l", "-b", "-q", "-v"}

// parseFlags populates Config from command-line flags.
//
//	-a string   HTTP bind address (":3000")
//	-g string   gRPC bind address (":50051")
//	-d string   PostgreSQL DSN
//	-s string   token HMAC secret
//	-t int      access token validity, minutes
//	-r int      reset token validity, minutes
//	-m int      failed attempts before lockout
//	-l int      lockout window, minutes
//	-b int      bcrypt cost
//	-q float    login requests per second per client (0 = unlimited)
//	-v string   log level
//
// Only the flags above are looked at, so -c/-config and anything else on the
// command line pass through untouched.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], serverFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port to run server")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "gRPC address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessTokenValidity := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	resetTokenValidity := fs.Int("r", int(config.ResetTokenValidityDuration.Minutes()), "reset token validity (in minutes)")
	lockDuration := fs.Int("l", int(config.LockDuration.Minutes()), "lock duration (in minutes)")

	fs.IntVar(&config.MaxLoginAttempts, "m", config.MaxLoginAttempts, "failed login attempts before lockout")
	fs.IntVar(&config.BcryptCost, "b", config.BcryptCost, "bcrypt cost")
	fs.Float64Var(&config.LoginRateLimit, "q", config.LoginRateLimit, "login requests per second per client")
	fs.StringVar(&config.LogLevel, "v", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	// minute flags only override when given, so "30s" from JSON survives
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.AccessTokenValidityDuration = time.Duration(*accessTokenValidity) * time.Minute
		case "r":
			config.ResetTokenValidityDuration = time.Duration(*resetTokenValidity) * time.Minute
		case "l":
			config.LockDuration = time.Duration(*lockDuration) * time.Minute
		}
	})
}
