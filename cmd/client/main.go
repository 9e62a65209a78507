// Package main exercises the user-defined-metadata sensor against a locally
// served robot: it reads both metadata maps, then applies a sample update.
package main

import (
	"context"

	"go.viam.com/utils"

	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/robot/client"
)

var logger = logging.NewDebugLogger("client")

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	machine, err := client.New(ctx, "localhost:8080", logger)
	if err != nil {
		return err
	}
	//nolint:errcheck
	defer machine.Close(ctx)

	meta, err := sensor.FromRobot(machine, "metadata")
	if err != nil {
		return err
	}

	readings, err := meta.Readings(ctx, nil)
	if err != nil {
		return err
	}
	logger.Infow("current metadata", "robot", readings["robot"], "part", readings["part"])

	resp, err := meta.DoCommand(ctx, map[string]interface{}{
		"command":  "update",
		"scope":    "robot",
		"metadata": map[string]interface{}{"last_client_run": "cmd/client"},
	})
	if err != nil {
		return err
	}
	logger.Infow("update response", "response", resp)

	return nil
}
