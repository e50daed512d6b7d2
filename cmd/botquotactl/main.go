package main

import (
	"os"

	"github.com/smallbiznis/botquota/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
