package main

import "cinder/cmd"

func main() {
	cmd.Execute()
}
