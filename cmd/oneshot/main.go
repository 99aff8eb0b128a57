package main

import "github.com/nczempin/httpc-oneshot/cmd/oneshot/cmd"

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	cmd.Execute(version, buildTime)
}
