// Package models implements the mcvella:sensor:user-defined-metadata sensor.
// It exposes the user-defined metadata stored for the running robot and robot
// part in the Viam app as sensor readings, and lets callers overwrite entries
// in either map through DoCommand.
package models

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/module/trace"
	"go.viam.com/rdk/resource"
)

// Model is the full model triplet served by this module.
var Model = resource.NewModel("mcvella", "sensor", "user-defined-metadata")

// Environment variables injected by viam-server into every module process.
const (
	apiKeyEnvVar        = "VIAM_API_KEY"
	apiKeyIDEnvVar      = "VIAM_API_KEY_ID"
	machineIDEnvVar     = "VIAM_MACHINE_ID"
	machinePartIDEnvVar = "VIAM_MACHINE_PART_ID"
)

const (
	commandUpdate = "update"
	scopeRobot    = "robot"
	scopePart     = "part"

	defaultTimeout = 10 * time.Second
)

func init() {
	resource.RegisterComponent(sensor.API, Model, resource.Registration[sensor.Sensor, *Config]{
		Constructor: newUserDefinedMetadata,
	})
}

// Config holds the optional attributes of the sensor.
type Config struct {
	// BaseURL overrides the app endpoint, e.g. to target a staging
	// environment. Empty means https://app.viam.com.
	BaseURL string `json:"base_url,omitempty"`
	// TimeoutSec bounds each fleet API round trip. Zero means 10 seconds.
	TimeoutSec int `json:"timeout_sec,omitempty"`
}

// Validate validates the config. The sensor has no resource dependencies.
func (cfg *Config) Validate(path string) ([]string, []string, error) {
	if cfg.TimeoutSec < 0 {
		return nil, nil, errors.Errorf(`expected non-negative "timeout_sec" for %q, got %d`, path, cfg.TimeoutSec)
	}
	return nil, nil, nil
}

// identity is the machine and credential identity of the running part,
// resolved once from the environment. Immutable after construction.
type identity struct {
	robotID  string
	partID   string
	apiKeyID string
	apiKey   string
}

func resolveIdentity() (identity, error) {
	ident := identity{
		robotID:  os.Getenv(machineIDEnvVar),
		partID:   os.Getenv(machinePartIDEnvVar),
		apiKeyID: os.Getenv(apiKeyIDEnvVar),
		apiKey:   os.Getenv(apiKeyEnvVar),
	}
	var missing []string
	for _, v := range []struct {
		name, value string
	}{
		{apiKeyEnvVar, ident.apiKey},
		{apiKeyIDEnvVar, ident.apiKeyID},
		{machineIDEnvVar, ident.robotID},
		{machinePartIDEnvVar, ident.partID},
	} {
		if v.value == "" {
			missing = append(missing, v.name)
		}
	}
	if len(missing) > 0 {
		return identity{}, errors.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}
	return ident, nil
}

type userDefinedMetadata struct {
	resource.Named
	resource.AlwaysRebuild

	logger  logging.Logger
	ident   identity
	timeout time.Duration

	fleet *lazyFleetClient
}

func newUserDefinedMetadata(
	ctx context.Context,
	_ resource.Dependencies,
	conf resource.Config,
	logger logging.Logger,
) (sensor.Sensor, error) {
	_, span := trace.StartSpan(ctx, "userdefinedmetadata::newUserDefinedMetadata")
	defer span.End()

	cfg, err := resource.NativeConfig[*Config](conf)
	if err != nil {
		return nil, err
	}

	// The sensor cannot function without a full identity; refuse to come up
	// rather than fail on every request later.
	ident, err := resolveIdentity()
	if err != nil {
		return nil, err
	}

	timeout := defaultTimeout
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}

	s := &userDefinedMetadata{
		Named:   conf.ResourceName().AsNamed(),
		logger:  logger,
		ident:   ident,
		timeout: timeout,
		fleet:   newLazyFleetClient(cfg.BaseURL, ident, logger),
	}
	logger.Debugf("resolved identity for robot %s part %s", ident.robotID, ident.partID)
	return s, nil
}

// Readings fetches the robot and robot part user-defined metadata from the
// fleet management API and returns them under the "robot" and "part" keys.
// The two fetches are independent and run concurrently; if either fails, the
// whole read fails.
func (s *userDefinedMetadata) Readings(ctx context.Context, _ map[string]interface{}) (map[string]interface{}, error) {
	ctx, span := trace.StartSpan(ctx, "userdefinedmetadata::Readings")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	fleet, err := s.fleet.get(ctx)
	if err != nil {
		return nil, err
	}

	var robotMD, partMD map[string]interface{}
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		if robotMD, err = fleet.GetRobotMetadata(groupCtx, s.ident.robotID); err != nil {
			return errors.Wrap(err, "failed to fetch robot metadata")
		}
		return nil
	})
	group.Go(func() error {
		var err error
		if partMD, err = fleet.GetRobotPartMetadata(groupCtx, s.ident.partID); err != nil {
			return errors.Wrap(err, "failed to fetch robot part metadata")
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"robot": robotMD,
		"part":  partMD,
	}, nil
}

// DoCommand handles metadata update commands of the form
//
//	{"command": "update", "scope": "robot"|"part", "metadata": {...}}
//
// The patch is applied by the fleet management API with merge semantics: keys
// absent from the patch keep their stored values.
func (s *userDefinedMetadata) DoCommand(ctx context.Context, req map[string]interface{}) (map[string]interface{}, error) {
	ctx, span := trace.StartSpan(ctx, "userdefinedmetadata::DoCommand")
	defer span.End()

	cmd, _ := req["command"].(string)
	scope, _ := req["scope"].(string)

	if cmd != commandUpdate {
		s.logger.Warnf("rejecting unsupported command %q", cmd)
		return commandFailure("unsupported command", scope), nil
	}
	if scope != scopeRobot && scope != scopePart {
		s.logger.Warnf("rejecting invalid scope %q", scope)
		return commandFailure("invalid scope", scope), nil
	}
	patch, ok := req["metadata"].(map[string]interface{})
	if !ok {
		return commandFailure("metadata must be a mapping", scope), nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	fleet, err := s.fleet.get(ctx)
	if err != nil {
		return commandFailure(err.Error(), scope), nil
	}

	if scope == scopeRobot {
		err = fleet.UpdateRobotMetadata(ctx, s.ident.robotID, patch)
	} else {
		err = fleet.UpdateRobotPartMetadata(ctx, s.ident.partID, patch)
	}
	if err != nil {
		s.logger.Errorw("metadata update failed", "scope", scope, "error", err)
		return commandFailure(err.Error(), scope), nil
	}

	label := "Robot"
	if scope == scopePart {
		label = "Part"
	}
	s.logger.Infof("%s metadata updated successfully", label)
	return map[string]interface{}{
		"success":  true,
		"message":  label + " metadata updated successfully",
		"scope":    scope,
		"robot_id": s.ident.robotID,
	}, nil
}

// commandFailure is the fixed failure shape of the command interface. The
// echoed command is always the literal "update"; consumers depend on the
// exact key set.
func commandFailure(errMsg, scope string) map[string]interface{} {
	return map[string]interface{}{
		"success": false,
		"error":   errMsg,
		"scope":   scope,
		"command": commandUpdate,
	}
}

// Close releases the connection to the app, if one was ever dialed.
func (s *userDefinedMetadata) Close(ctx context.Context) error {
	return s.fleet.Close(ctx)
}
