package main

import (
	"os"

	"github.com/mcavalletto/actionkit-api-fetch/internal/command"
)

func main() {
	os.Exit(command.Main(os.Args))
}
