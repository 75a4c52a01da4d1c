// File: main.go
package main

import (
	"github.com/xkilldash9x/formpilot/cmd"
)

func main() {
	cmd.Execute()
}
