package main

import "github.com/KaramelBytes/chartloom-cli/cmd"

func main() {
	cmd.Execute()
}
