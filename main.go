/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/docustore/userman/cmd"

func main() {
	cmd.Execute()
}
