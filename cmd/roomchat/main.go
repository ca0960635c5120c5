package main

import "github.com/omochice/room-chat-client/cmd/roomchat/cmd"

func main() {
	cmd.Execute()
}
