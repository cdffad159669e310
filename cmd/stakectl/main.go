package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	passphraseEnv = "STAKECTL_PASSPHRASE"
	rpcURLEnv     = "STAKECTL_RPC_URL"
	rpcTokenEnv   = "STAKECTL_TOKEN"
	defaultRPCURL = "http://127.0.0.1:8545"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "keygen":
		return runKeygen(args[1:], stdout, stderr)
	case "address":
		return runAddress(args[1:], stdout, stderr)
	case "permit":
		return runPermit(args[1:], stdout, stderr)
	case "token":
		return runToken(args[1:], stdout, stderr)
	case "call":
		return runCall(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	return strings.TrimSpace(`
Usage: stakectl <command> [flags]

Commands:
  keygen   --out <file>                         create an encrypted keystore
  address  --keystore <file>                    print the keystore address
  permit   --keystore <file> --token <addr> --name <token name>
           --spender <addr> --value <amount> --nonce <n> --deadline <unix>
           [--chain-id <id>]                     sign a token permit
  token    --address <addr> | --keystore <file> [--ttl 1h] [--issuer stakingd]
                                                 mint an API bearer token
  call     <METHOD> <path> [--data <json>]       send a request to stakingd

Environment:
  STAKECTL_PASSPHRASE   keystore passphrase (prompted when unset)
  STAKINGD_AUTH_SECRET  secret used by "token"
  STAKECTL_RPC_URL      API base URL for "call" (default http://127.0.0.1:8545)
  STAKECTL_TOKEN        bearer token for "call"`)
}

func fail(stderr io.Writer, format string, args ...interface{}) int {
	fmt.Fprintf(stderr, "Error: "+format+"\n", args...)
	return 1
}
