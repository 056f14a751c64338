package main

import (
	"log"

	"ticket-checkin/cmd"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
