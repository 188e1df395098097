package main

import "github.com/encodeous/ratemesh/cmd"

func main() {
	cmd.Execute()
}
