package main

import "github.com/casahub/leadlink/cmd"

func main() {
	cmd.Execute()
}
