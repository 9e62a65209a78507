package models

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/rdk/app"
	"go.viam.com/rdk/logging"
)

// fleetClient is the slice of the fleet management API this sensor uses.
// *app.AppClient satisfies it; tests substitute a fake.
type fleetClient interface {
	GetRobotMetadata(ctx context.Context, robotID string) (map[string]interface{}, error)
	GetRobotPartMetadata(ctx context.Context, partID string) (map[string]interface{}, error)
	UpdateRobotMetadata(ctx context.Context, robotID string, data interface{}) error
	UpdateRobotPartMetadata(ctx context.Context, partID string, data interface{}) error
}

// lazyFleetClient dials the app on first use and caches the connection. Safe
// for concurrent use; the cached client is read-only once dialed.
type lazyFleetClient struct {
	baseURL string
	ident   identity
	logger  logging.Logger

	mu     sync.Mutex
	client fleetClient
	conn   *app.ViamClient
}

func newLazyFleetClient(baseURL string, ident identity, logger logging.Logger) *lazyFleetClient {
	return &lazyFleetClient{baseURL: baseURL, ident: ident, logger: logger}
}

func (l *lazyFleetClient) get(ctx context.Context) (fleetClient, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client != nil {
		return l.client, nil
	}
	conn, err := app.CreateViamClientWithAPIKey(
		ctx,
		app.Options{BaseURL: l.baseURL},
		l.ident.apiKey,
		l.ident.apiKeyID,
		l.logger,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to the fleet management API")
	}
	l.conn = conn
	l.client = conn.AppClient()
	return l.client, nil
}

// Close tears down the dialed connection, if any. Calling Close before the
// first use is a no-op.
func (l *lazyFleetClient) Close(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	l.conn = nil
	l.client = nil
	return err
}
