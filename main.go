/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package main

import "ragmix/cmd"

func main() {
	cmd.Execute()
}
