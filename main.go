// main.go
package main

import "github.com/markb/chatlite/cmd"

func main() {
	cmd.Execute()
}
