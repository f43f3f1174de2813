package main

import (
	"log/slog"
	"os"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("roomdb exited with error", "error", err)
		os.Exit(1)
	}
}
