package main

import "github.com/browseragent/control-plane/cmd"

func main() {
	cmd.Execute()
}
