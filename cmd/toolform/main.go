package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/phillip-england/toolform/internal/toolformcli"
)

func main() {
	if err := toolformcli.Execute(os.Args[1:]); err != nil {
		if errors.Is(err, toolformcli.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr)
			toolformcli.PrintUsage(os.Stderr)
			os.Exit(2)
		}
		log.Fatal(err)
	}
}
