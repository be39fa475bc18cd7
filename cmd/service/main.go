package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/vbehar/ffckmembers/internal/importer"
	"github.com/vbehar/ffckmembers/internal/metrics"
	"github.com/vbehar/ffckmembers/internal/service"
	"github.com/vbehar/ffckmembers/internal/store"
)

// importQueueSize bounds how many CSV imports may wait for the worker.
const importQueueSize = 16

// Usage example on the command line:
// > PORT=8080 DBHOST=localhost DBUSER=ffck DBPWD=bullo92 GIN_MODE=release GIN_LOGGING=OFF go run main.go
func main() {
	sqlDB := service.CreateDatabase()
	m := metrics.New()
	notifier := store.NewNotifier()
	go logChanges(notifier.Subscribe(64))

	members := store.New(sqlDB, notifier, m)
	worker := importer.NewWorker(importer.New(members, m), notifier, m, importQueueSize)
	worker.Start()
	service.Setup(members, worker)

	router := service.SetupHttpRouter()
	_, err := strconv.Atoi(os.Getenv("PORT"))
	if err != nil {
		fmt.Println("could not parse PORT env variable", err)
		panic(err)
	}
	router.Run(":" + os.Getenv("PORT"))
}

// logChanges traces every change notification. The addresses tell which
// members changed without re-querying the whole collection.
func logChanges(changes <-chan store.Change) {
	for change := range changes {
		log.Println("changed:", change.Address)
	}
}
