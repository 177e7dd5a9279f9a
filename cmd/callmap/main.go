package main

import "github.com/mvp-joe/callmap/internal/cli"

func main() {
	cli.Execute()
}
