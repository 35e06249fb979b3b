package main

import (
	"os"

	"github.com/wms-platform/verification-service/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
