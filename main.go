package main

import (
	"github.com/purpose168/gemchat-cn/internal/cmd"
)

func main() {
	cmd.Execute()
}
