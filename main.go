// Package main is the entry point for the nsbasics command
package main

import "github.com/mrcode/nightscout-basics/internal/cli"

func main() {
	cli.Execute()
}
