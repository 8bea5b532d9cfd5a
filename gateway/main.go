package main

import (
	"os"

	"github.com/NHSDigital/clinical-data-gateway-api/gateway/gatewaycli"
	"github.com/NHSDigital/clinical-data-gateway-api/log"
)

func main() {
	app := gatewaycli.GetApp()
	if err := app.Run(os.Args); err != nil {
		log.API.Fatal(err)
	}
}
