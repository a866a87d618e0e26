// Package main is the entry point for the mutrun CLI.
package main

import "gooze.dev/pkg/mutrun/cmd"

func main() {
	cmd.Execute()
}
