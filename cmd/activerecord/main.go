package main

import "github.com/turbolytics/activerecord/internal/cmd"

func main() {
	cmd.Execute()
}
