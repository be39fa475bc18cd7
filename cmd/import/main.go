package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/vbehar/ffckmembers/internal/importer"
	"github.com/vbehar/ffckmembers/internal/service"
	"github.com/vbehar/ffckmembers/internal/store"
)

// Usage example on the command line:
// > DBHOST=localhost DBUSER=ffck DBPWD=bullo92 go run main.go -file=../../scripts/members.csv
func main() {
	filePtr := flag.String("file", "members.csv", "the members CSV file to import")
	flag.Parse()

	readFile, err := os.Open(*filePtr) // nosemgrep
	if err != nil {
		panic(err)
	}
	defer readFile.Close()

	sqlDB := service.CreateDatabase()
	defer sqlDB.Close()
	members := store.New(sqlDB, nil, nil)

	summary, err := importer.New(members, nil).Run(uuid.New(), readFile)
	if err != nil {
		fmt.Println("import failed:", err)
		os.Exit(1)
	}
	fmt.Printf("rows: %d\n", summary.Rows)
	fmt.Printf("inserted: %d\n", summary.Inserted)
	fmt.Printf("updated: %d\n", summary.Updated)
	fmt.Printf("skipped (stale): %d\n", summary.SkippedStale)
	fmt.Printf("skipped (empty): %d\n", summary.SkippedEmpty)
	fmt.Printf("skipped (invalid): %d\n", summary.SkippedInvalid)
}
