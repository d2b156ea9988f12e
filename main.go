package main

import "ipowatch/cmd"

func main() {
	cmd.Execute()
}
