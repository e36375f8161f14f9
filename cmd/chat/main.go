package main

import (
	"fmt"
	"os"

	"promochat/internal/cli"
)

func main() {
	if err := cli.NewChatCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
