// Command ledgerctl is the operator tool for the ingredient ledger.
//
//	ledgerctl reconcile [-ingredient <id>]   exit 2 when any ingredient drifts
//	ledgerctl repair -ingredient <id>        overwrite the cached stock with the log sum
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/DeybisMelendez/km9-comanda/internal/config"
	"github.com/DeybisMelendez/km9-comanda/internal/infra"
	"github.com/DeybisMelendez/km9-comanda/internal/router"
	"github.com/DeybisMelendez/km9-comanda/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	exitOK       = 0
	exitFailure  = 1
	exitMismatch = 2
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(exitFailure)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	// No Redis: the CLI never queues ledger events.
	svcs := router.NewServices(cfg, db, nil)

	os.Exit(run(context.Background(), svcs.Inventory, os.Args[1], os.Args[2:], os.Stdout))
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: ledgerctl reconcile [-ingredient <id>] | repair -ingredient <id>")
}

func run(ctx context.Context, inv service.InventoryService, cmd string, args []string, out io.Writer) int {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(out)
	ingredient := fs.String("ingredient", "", "ingredient id")
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}

	var id uuid.UUID
	if *ingredient != "" {
		parsed, err := uuid.Parse(*ingredient)
		if err != nil {
			fmt.Fprintf(out, "invalid ingredient id %q\n", *ingredient)
			return exitFailure
		}
		id = parsed
	}

	switch cmd {
	case "reconcile":
		if *ingredient == "" {
			return reconcileAll(ctx, inv, out)
		}
		return reconcileOne(ctx, inv, id, out)
	case "repair":
		if *ingredient == "" {
			fmt.Fprintln(out, "repair needs -ingredient")
			return exitFailure
		}
		res, err := inv.Repair(ctx, id, service.Actor{Username: "ledgerctl"})
		if err != nil {
			fmt.Fprintf(out, "repair failed: %v\n", err)
			return exitFailure
		}
		fmt.Fprintf(out, "%s: stock set to %s (was %s)\n", res.Name, res.Computed, res.Cached)
		return exitOK
	default:
		usage(out)
		return exitFailure
	}
}

func reconcileOne(ctx context.Context, inv service.InventoryService, id uuid.UUID, out io.Writer) int {
	res, err := inv.Reconcile(ctx, id)
	var cerr *service.ConsistencyError
	if err != nil && !errors.As(err, &cerr) {
		fmt.Fprintf(out, "reconcile failed: %v\n", err)
		return exitFailure
	}
	printResult(out, *res)
	if cerr != nil {
		return exitMismatch
	}
	return exitOK
}

func reconcileAll(ctx context.Context, inv service.InventoryService, out io.Writer) int {
	mismatches, err := inv.ReconcileAll(ctx)
	if err != nil {
		fmt.Fprintf(out, "reconcile failed: %v\n", err)
		return exitFailure
	}
	if len(mismatches) == 0 {
		fmt.Fprintln(out, "all ingredients reconcile")
		return exitOK
	}
	for _, r := range mismatches {
		printResult(out, r)
	}
	return exitMismatch
}

func printResult(out io.Writer, r service.ReconcileResult) {
	state := "ok"
	if !r.Consistent() {
		state = "MISMATCH"
	}
	fmt.Fprintf(out, "%-8s %s %-24s cached=%s computed=%s movements=%d\n",
		state, r.IngredientID, r.Name, r.Cached, r.Computed, r.Movements)
}
