package main

import "github.com/planwise/studyplan/cmd"

func main() {
	cmd.Execute()
}
