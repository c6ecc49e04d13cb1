package main

import "github.com/stratumdb/stratum/cmd"

func main() {
	cmd.Execute()
}
