package main

import "github.com/ethanolivertroy/depaudit/cmd"

func main() {
	cmd.Execute()
}
