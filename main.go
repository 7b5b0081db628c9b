// Package main is the entry point for pcapdump.
package main

import "firestige.xyz/pcapdump/cmd"

func main() {
	cmd.Main()
}
