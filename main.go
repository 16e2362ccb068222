package main

import "github.com/fakeyudi/focusgate/cmd"

func main() {
	cmd.Execute()
}
