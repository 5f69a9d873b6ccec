package main

import "toolhost/internal/cliapp"

func main() {
	cliapp.Main()
}
