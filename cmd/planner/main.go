package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"nachtplan/internal/consumer"
)

func main() {
	_ = godotenv.Load(".env")
	if err := rootCmd.Execute(); err != nil {
		// failed turns were already shown inline
		var te *consumer.TurnError
		if !errors.As(err, &te) {
			fmt.Fprintln(os.Stderr, warnStyle.Render("Error: "+err.Error()))
		}
		os.Exit(1)
	}
}
