package main

import (
	"github.com/PsychicNoodles/discord-xiv-emotes/cmd"
)

func main() {
	cmd.Execute()
}
