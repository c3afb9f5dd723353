package main

import (
	"log"

	_ "time/tzdata"

	"github.com/incubator-platform/support-chat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
