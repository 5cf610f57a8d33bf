// cmd/digmbot/main.go
package main

import (
	"log"
	"os"

	"github.com/keshon/digmbot/cmd/digmbot/commands"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	if err := commands.NewRootCmd(version).Execute(); err != nil {
		log.Printf("[ERR] %v", err)
		os.Exit(1)
	}
}
