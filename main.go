package main

import (
	"tour-price-tracker/internal/cli"
)

func main() {
	cli.Execute()
}
