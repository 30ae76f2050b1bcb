package main

import "github.com/vasilii314/taskbroker/cmd"

func main() {
	cmd.Execute()
}
