package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/6529-Collections/netflow/internal/eth"
	"github.com/6529-Collections/netflow/internal/ledger"
	"github.com/dgraph-io/badger/v4"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/pflag"
)

// Checks that the stored aggregate matches the transfer rows it was built
// from and reports a tracker checkpoint that lags the ledger.
func main() {
	sqlitePath := pflag.String("sqlite", "", "Path to the SQLite DB")
	badgerPath := pflag.String("badger", "./db/badger", "Path to the tracker BadgerDB")
	pflag.Parse()

	if *sqlitePath == "" {
		log.Fatalf("SQLite DB path is required (use --sqlite=/path/to/netflow)")
	}

	dbSQL, err := sql.Open("sqlite3", "file:"+*sqlitePath+"?mode=ro")
	if err != nil {
		log.Fatalf("Failed to open SQLite DB at %s: %v", *sqlitePath, err)
	}
	defer dbSQL.Close()

	stored, err := ledger.NewNetflowStateDb().GetState(dbSQL)
	if err != nil {
		log.Fatalf("Failed to read stored aggregate: %v", err)
	}
	recomputed, rows, err := ledger.RecomputeAggregate(dbSQL)
	if err != nil {
		log.Fatalf("Failed to recompute aggregate: %v", err)
	}
	fmt.Printf("Recomputed aggregate from %d transfer rows\n", rows)

	failed := false
	if diffs := ledger.AggregateDiff(stored, recomputed); len(diffs) > 0 {
		failed = true
		fmt.Println("\n❌ Stored aggregate does not match the transfer rows:")
		for _, d := range diffs {
			fmt.Println("   " + d)
		}
	} else {
		fmt.Printf("✅ Aggregate matches: in=%s out=%s net=%s\n",
			stored.CumulativeIn, stored.CumulativeOut, stored.Net())
	}

	db, err := badger.Open(badger.DefaultOptions(*badgerPath).WithReadOnly(true).WithLogger(nil))
	if err != nil {
		log.Fatalf("Failed to open Badger DB: %v", err)
	}
	defer db.Close()

	finalized, found, err := eth.NewBlockTracker(db).Finalized()
	if err != nil {
		log.Fatalf("Failed to retrieve checkpoint: %v", err)
	}
	switch {
	case stored.LastAppliedBlock == nil:
		fmt.Println("✅ No transfers applied yet")
	case !found:
		// resume starts after the last applied block, so this only costs a replay
		fmt.Printf("\n⚠️  Ledger applied through block %d but no finalized checkpoint exists\n", *stored.LastAppliedBlock)
	case finalized.Number < *stored.LastAppliedBlock:
		fmt.Printf("\n⚠️  Finalized checkpoint %d is behind last applied block %d\n", finalized.Number, *stored.LastAppliedBlock)
	default:
		fmt.Printf("✅ Finalized checkpoint %d covers last applied block %d\n", finalized.Number, *stored.LastAppliedBlock)
	}

	if failed {
		os.Exit(1)
	}
}
