package main

import (
	"fmt"
	"os"

	"github.com/dlenski/corostc/internal/cli"
)

func main() {
	if err := cli.NewUploadCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
