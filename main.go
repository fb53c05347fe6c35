package main

import (
	"github.com/sidkik/repocheck/cmd"
	"github.com/sidkik/repocheck/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
