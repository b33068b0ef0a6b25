package main

import (
	"github.com/maxgio92/ktally/pkg/cmd"
)

func main() {
	cmd.Execute()
}
