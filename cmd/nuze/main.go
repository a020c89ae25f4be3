package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/glimte/nuze-go/internal/commands"
)

func main() {
	app := commands.New()
	if err := app.Execute(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
