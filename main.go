package main

import "github.com/metal-toolbox/placer/cmd"

func main() {
	cmd.Execute()
}
