// Package main is a module which serves the user-defined-metadata sensor model.
package main

import (
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/module"
	"go.viam.com/rdk/resource"

	"github.com/mcvella/user-defined-metadata/models"
)

func main() {
	// ModularMain can take multiple APIModel arguments, if your module implements multiple models.
	module.ModularMain(resource.APIModel{API: sensor.API, Model: models.Model})
}
