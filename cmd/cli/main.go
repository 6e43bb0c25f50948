package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dvloznov/finance-ledger/internal/app"
	"github.com/dvloznov/finance-ledger/internal/config"
	"github.com/dvloznov/finance-ledger/internal/logger"
	"github.com/dvloznov/finance-ledger/internal/ui"
)

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, env *env, args []string) error
}

var commands = []command{
	{"accounts", "List accounts with their latest balances", runAccounts},
	{"add-account", "Define an account (-name, -category liquid|investment|debt)", runAddAccount},
	{"record", "Record balances for one date: record -date D NAME=BALANCE ...", runRecord},
	{"analytics", "Show net worth, changes and snapshot history", runAnalytics},
	{"transactions", "List transactions with optional filters", runTransactions},
	{"add-transaction", "Add a manual transaction", runAddTransaction},
	{"sessions", "List upload sessions", runSessions},
	{"delete-session", "Delete a session and its transactions (-id)", runDeleteSession},
	{"repair-sessions", "Recompute session counts and date ranges", runRepairSessions},
	{"import", "Import a CSV or OFX statement from a file or gs:// URI", runImport},
}

// env is what every command gets after global flags are parsed.
type env struct {
	app    *app.App
	out    *ui.Printer
	in     io.Reader
	userID string
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	name := os.Args[1]
	if name == "help" || name == "-h" || name == "--help" {
		printUsage()
		return
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
		printUsage()
		os.Exit(1)
	}

	if err := execute(cmd, os.Args[2:]); err != nil {
		ui.NewPrinter(os.Stderr, "").Error(err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Finance Ledger CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [-config PATH] [-user ID] [options]")
	fmt.Println("\nCommands:")
	for _, c := range commands {
		fmt.Printf("  %-16s %s\n", c.name, c.usage)
	}
	fmt.Println("  help             Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// execute pulls the global flags off args, builds the services and runs cmd
// with what is left.
func execute(cmd *command, args []string) error {
	global := flag.NewFlagSet(cmd.name, flag.ContinueOnError)
	configPath := global.String("config", "", "path to config.toml (or set LEDGER_CONFIG)")
	user := global.String("user", defaultUser(), "ledger user id")
	verbose := global.Bool("v", false, "log at debug level")
	global.SetOutput(io.Discard)
	rest := splitGlobal(global, args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	level := "warn"
	if *verbose {
		level = "debug"
	}
	log, err := logger.NewFromConfig(level, logger.FormatConsole, os.Stderr)
	if err != nil {
		return err
	}
	log = logger.WithUser(log, *user)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	if err := a.StartWorkers(ctx); err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			log.Error().Err(err).Msg("Failed to close services")
		}
	}()

	return cmd.run(ctx, &env{
		app:    a,
		out:    ui.NewPrinter(os.Stdout, cfg.UI.Currency),
		in:     os.Stdin,
		userID: *user,
	}, rest)
}

// splitGlobal parses the global flags wherever they appear and returns the
// remaining arguments in order.
func splitGlobal(global *flag.FlagSet, args []string) []string {
	var rest []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		name := strings.TrimLeft(a, "-")
		if eq := strings.IndexByte(name, '='); eq >= 0 {
			name = name[:eq]
		}
		f := global.Lookup(name)
		if !strings.HasPrefix(a, "-") || f == nil {
			rest = append(rest, a)
			continue
		}
		if strings.IndexByte(a, '=') >= 0 {
			_ = global.Parse([]string{a})
			continue
		}
		if _, isBool := f.Value.(interface{ IsBoolFlag() bool }); isBool || i+1 >= len(args) {
			_ = global.Parse([]string{a})
			continue
		}
		_ = global.Parse([]string{a, args[i+1]})
		i++
	}
	return rest
}

func defaultUser() string {
	if u := os.Getenv("LEDGER_USER"); u != "" {
		return u
	}
	return "local"
}
