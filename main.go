package main

import (
	"os"

	"Bits3/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
