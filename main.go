package main

import (
	"github.com/sardaralii/music-assistant/cmd"
)

func main() {
	cmd.Execute()
}
