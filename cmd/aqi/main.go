package main

import (
	"errors"
	"log"
	"os"
	_ "time/tzdata"

	"github.com/Emjay-16/aqi-project/cmd/internal/app"
)

func main() {
	if err := app.Run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, app.ErrUsage) {
			os.Exit(2)
		}
		log.Fatal(err)
	}
}
