package main

import "github.com/nextlevelbuilder/jobagent/cmd"

func main() {
	cmd.Execute()
}
