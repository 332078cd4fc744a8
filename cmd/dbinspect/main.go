// Package main prints a summary of a Badger calendar database without
// going through the store layer.
//
// Usage:
//
//	DB_PATH=~/.calendar-server/db go run ./cmd/dbinspect
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/calendararchive/calendar-server/internal/store"
)

const sampleSize = 3

func main() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = os.ExpandEnv("$HOME/.calendar-server/db")
	}

	opts := badger.DefaultOptions(dbPath).
		WithReadOnly(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	fmt.Println("=== Database Inspection ===")
	fmt.Println()

	perPartition := make(map[string]int)
	samples := make(map[string][]store.Document)
	users, notifications, other := 0, 0, 0

	err = db.View(func(txn *badger.Txn) error {
		iopts := badger.DefaultIteratorOptions
		it := txn.NewIterator(iopts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())

			switch {
			case strings.HasPrefix(key, "user:"):
				users++
				continue
			case strings.HasPrefix(key, "ntf:"):
				notifications++
				continue
			case !strings.HasPrefix(key, "evt:"):
				other++
				continue
			}

			rest := strings.TrimPrefix(key, "evt:")
			sep := strings.LastIndexByte(rest, ':')
			if sep < 0 {
				other++
				continue
			}
			partition := rest[:sep]
			perPartition[partition]++
			if len(samples[partition]) >= sampleSize {
				continue
			}

			err := item.Value(func(val []byte) error {
				var doc store.Document
				if err := json.Unmarshal(val, &doc); err != nil {
					return err
				}
				samples[partition] = append(samples[partition], doc)
				return nil
			})
			if err != nil {
				log.Printf("Error reading event %s: %v", key, err)
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("Error iterating database: %v", err)
	}

	partitions := make([]string, 0, len(perPartition))
	total := 0
	for p, n := range perPartition {
		partitions = append(partitions, p)
		total += n
	}
	slices.Sort(partitions)

	for _, p := range partitions {
		fmt.Printf("Partition: %s (%d events)\n", p, perPartition[p])
		for _, doc := range samples[p] {
			fmt.Printf("  [%s] %s  %s\n", doc.ID(), doc.String(store.FieldDate), doc.String(store.FieldTitle))
		}
		if perPartition[p] > sampleSize {
			fmt.Printf("  ... and %d more\n", perPartition[p]-sampleSize)
		}
		fmt.Println()
	}

	fmt.Println("=== Summary ===")
	fmt.Printf("Partitions: %d\n", len(partitions))
	fmt.Printf("Total events: %d\n", total)
	fmt.Printf("User keys: %d\n", users)
	fmt.Printf("Notification keys: %d\n", notifications)
	fmt.Printf("Other keys: %d\n", other)
}
