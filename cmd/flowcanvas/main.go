// Command flowcanvas runs, imports, exports and lists stored workflows.
//
// Usage:
//
//	flowcanvas run     [-file flow.yaml | -id wf] [-payload '{"k":"v"}']
//	flowcanvas import  -file flow.json -id wf [-author a] [-label l]
//	flowcanvas export  -id wf [-out flow.yaml]
//	flowcanvas history -id wf
//	flowcanvas list
//	flowcanvas delete  -id wf
//	flowcanvas mcp     [-tenant t]
//
// Every command accepts -config (YAML or JSON settings), -env (a .env
// file, default ".env"), -user and -org.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// stdin feeds the mcp command.
var stdin io.Reader = os.Stdin

var errUsage = errors.New("usage: flowcanvas <run|import|export|history|list|delete|mcp> [flags]")

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

type command func(ctx context.Context, out, errOut io.Writer, args []string) error

var commands = map[string]command{
	"run":     cmdRun,
	"import":  cmdImport,
	"export":  cmdExport,
	"history": cmdHistory,
	"list":    cmdList,
	"delete":  cmdDelete,
	"mcp":     cmdMCP,
}

// run dispatches a subcommand. It is split from main for tests.
func run(ctx context.Context, out, errOut io.Writer, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "-h", "--help", "help":
		fmt.Fprintln(out, errUsage.Error())
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q\n%w", args[0], errUsage)
	}
	return cmd(ctx, out, errOut, args[1:])
}
