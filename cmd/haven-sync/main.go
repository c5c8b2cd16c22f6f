package main

import (
	"github.com/gridhaven/haven/internal/cli"
)

func main() {
	cli.Execute()
}
