package main

import "github.com/etches/etches/cmd"

func main() {
	cmd.Execute()
}
