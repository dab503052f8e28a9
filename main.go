package main

import "github.com/uevmon/uevmon/cmd"

func main() {
	cmd.Execute()
}
