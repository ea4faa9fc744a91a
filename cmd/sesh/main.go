// Command sesh talks to the configured AI providers from the terminal and
// relays their streams to a browser UI.
package main

import (
	"os"

	_ "github.com/joho/godotenv/autoload"

	"github.com/opensesh/sesh/cmd/sesh/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
