package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/6529-Collections/netflow/internal/eth"
	"github.com/6529-Collections/netflow/pkg/netflow/models"
	"github.com/dgraph-io/badger/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
)

func main() {
	dbPath := pflag.String("badger", "./db/badger", "Path to the tracker BadgerDB")
	outputMode := pflag.StringP("output", "o", "console", "Output mode: 'console' or 'file'")
	outputFile := pflag.StringP("file", "f", "dump.txt", "Output file (if mode is 'file')")
	pflag.Parse()

	out := os.Stdout
	if *outputMode == "file" {
		f, err := os.Create(*outputFile)
		if err != nil {
			log.Fatalf("Failed to create output file: %v", err)
		}
		defer f.Close()
		out = f
		fmt.Println("Dumping tracker state to file", *outputFile)
	}

	db, err := badger.Open(badger.DefaultOptions(*dbPath).WithReadOnly(true).WithLogger(nil))
	if err != nil {
		log.Fatalf("Failed to open BadgerDB: %v", err)
	}
	defer db.Close()

	tracker := eth.NewBlockTracker(db)

	head, found, err := tracker.ObservedHead()
	if err != nil {
		log.Fatalf("Failed to read observed head: %v", err)
	}
	printRef(out, "Observed head", head, found)

	finalized, found, err := tracker.Finalized()
	if err != nil {
		log.Fatalf("Failed to read finalized checkpoint: %v", err)
	}
	printRef(out, "Finalized", finalized, found)

	fmt.Fprintln(out, "Retained block hashes:")
	count := 0
	err = tracker.RetainedHashes(func(blockNumber uint64, hash common.Hash) error {
		fmt.Fprintf(out, "  %d  %s\n", blockNumber, hash.Hex())
		count++
		return nil
	})
	if err != nil {
		log.Fatalf("Error while iterating: %v", err)
	}
	fmt.Fprintf(out, "%d hashes\n", count)
}

func printRef(out *os.File, name string, ref models.BlockRef, found bool) {
	if !found {
		fmt.Fprintf(out, "%s: none\n", name)
		return
	}
	fmt.Fprintf(out, "%s: block %d\n", name, ref.Number)
	if ref.Hash != "" {
		fmt.Fprintf(out, "  Hash: %s\n", ref.Hash)
	}
	if ref.Timestamp > 0 {
		fmt.Fprintf(out, "  Time: %s\n", time.Unix(int64(ref.Timestamp), 0).UTC().Format(time.RFC3339))
	}
}
