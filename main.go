package main

import "github.com/bnema/archectl/cmd"

func main() {
	cmd.Execute()
}
