package main

import "github.com/masmgr/revtrack/cmd"

func main() {
	cmd.Run()
}
