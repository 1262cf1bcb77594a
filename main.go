package main

import "github.com/ccrelay/ccproxy/cmd"

func main() {
	cmd.Execute()
}
