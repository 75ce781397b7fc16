package main

import (
	"os"

	"github.com/alantheprice/sitebuilder/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		// cobra has already printed the error.
		os.Exit(1)
	}
}
