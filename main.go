package main

import "github.com/skywatch/transient-gateway/cmd"

func main() {
	cmd.Execute()
}
