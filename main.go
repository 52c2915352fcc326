package main

import (
	"github.com/foomo/annotationserver/cmd"
)

func main() {
	cmd.Execute()
}
