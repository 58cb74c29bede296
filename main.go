package main

import "medchat-cli/cmd"

func main() {
	cmd.Execute()
}
