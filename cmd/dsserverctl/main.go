package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/marmos91/dsserver/pkg/client"
)

const usage = `Usage: dsserverctl [flags] <command> [args]

Commands:
  alive              Print pid, executable and instance of the server
  clients            Print the number of clients being served
  shutdown           Ask the server to exit
  put <key> [file]   Store file (or stdin) under key
  get <key>          Write the blob stored under key to stdout
  rm <key>           Delete the blob stored under key
  ls [prefix]        List keys, optionally filtered by prefix

Flags:
`

func main() {
	addr := flag.String("addr", "127.0.0.1:7400", "Server address")
	timeout := flag.Duration("timeout", 10*time.Second, "Per-request timeout")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	c := client.New(*addr, *timeout)
	if err := run(context.Background(), c, flag.Arg(0), flag.Args()[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var errUsage = errors.New("invalid usage")

func run(ctx context.Context, c *client.Client, cmd string, args []string, stdin io.Reader, stdout io.Writer) error {
	switch cmd {
	case "alive":
		info, err := c.IsAlive(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(stdout, "pid=%d executable=%s instance=%s version=%s\n",
			info.Pid, info.Executable, info.Instance, info.Version)
		return err

	case "clients":
		n, err := c.NumClients(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, n)
		return err

	case "shutdown":
		return c.Shutdown(ctx)

	case "put":
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("%w: put <key> [file]", errUsage)
		}
		src := stdin
		if len(args) == 2 && args[1] != "-" {
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			src = f
		}
		data, err := io.ReadAll(src)
		if err != nil {
			return err
		}
		return c.Put(ctx, args[0], data)

	case "get":
		if len(args) != 1 {
			return fmt.Errorf("%w: get <key>", errUsage)
		}
		data, err := c.Get(ctx, args[0])
		if err != nil {
			return err
		}
		_, err = stdout.Write(data)
		return err

	case "rm":
		if len(args) != 1 {
			return fmt.Errorf("%w: rm <key>", errUsage)
		}
		return c.Delete(ctx, args[0])

	case "ls":
		if len(args) > 1 {
			return fmt.Errorf("%w: ls [prefix]", errUsage)
		}
		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}
		keys, err := c.List(ctx, prefix)
		if err != nil {
			return err
		}
		for _, k := range keys {
			if _, err := fmt.Fprintln(stdout, k); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}
