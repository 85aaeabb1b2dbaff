package main

import "github.com/kebairia/markabak/cmd"

func main() {
	cmd.Execute()
}
