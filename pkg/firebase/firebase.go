// Package firebase initialises the Firebase app shared by the Firestore
// document store and the Firebase ID token verifier.
package firebase

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	fb "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/noah-isme/sma-attendance-api/pkg/config"
)

// ClientOptions resolves credentials: an explicit file wins over inline JSON;
// with neither, application default credentials are used.
func ClientOptions(cfg config.FirebaseConfig) []option.ClientOption {
	var opts []option.ClientOption
	switch {
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}
	return opts
}

// NewApp builds the Firebase app.
func NewApp(ctx context.Context, cfg config.FirebaseConfig) (*fb.App, error) {
	var appCfg *fb.Config
	if cfg.ProjectID != "" {
		appCfg = &fb.Config{ProjectID: cfg.ProjectID}
	}
	app, err := fb.NewApp(ctx, appCfg, ClientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	return app, nil
}

// Firestore returns a Firestore client owned by the caller.
func Firestore(ctx context.Context, app *fb.App) (*firestore.Client, error) {
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firestore client: %w", err)
	}
	return client, nil
}

// Auth returns the Firebase Auth client used to verify ID tokens.
func Auth(ctx context.Context, app *fb.App) (*auth.Client, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase auth: %w", err)
	}
	return client, nil
}
