package main

import "chatdesk/cmd"

func main() {
	cmd.Execute()
}
