package main

import "github.com/nextlevelbuilder/botchat/cmd"

func main() {
	cmd.Execute()
}
