package main

import "parking-fines-service/cmd"

func main() {
	cmd.Execute()
}
