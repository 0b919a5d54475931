package main

import "github.com/ryo246912/gh-actions-scan/cmd"

func main() {
	cmd.Execute()
}
