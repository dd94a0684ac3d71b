package main

import "github.com/IdrisKulubi/HIH-sub002/cmd"

func main() {
	cmd.Execute()
}
