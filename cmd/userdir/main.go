package main

import (
	"github.com/nimburion/userdirectory/pkg/cli"
)

func main() {
	cli.Execute(cli.NewRootCommand(cli.Options{
		Name:        "userdir",
		Description: "User directory backed by pluggable storage",
	}))
}
