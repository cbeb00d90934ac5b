package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"permitline/internal/config"
	"permitline/internal/db"
	"permitline/internal/engine"
	"permitline/internal/kv"
	"permitline/internal/migrate"
	"permitline/internal/signature"
)

// Runtime is everything a command or the server needs for one workspace.
type Runtime struct {
	Workspace string
	Config    *config.Config
	Engine    engine.Engine
	Legacy    migrate.LegacyResult
	conn      *sql.DB
}

func (rt *Runtime) Close() error {
	if rt.conn == nil {
		return nil
	}
	return rt.conn.Close()
}

// LoadConfig reads ptw.yml from the workspace, falling back to defaults when absent.
func LoadConfig(workspace string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default("")
	}
	return cfg, nil
}

// Open builds the store, applies schema migrations and then the one-time
// legacy channel migration, and wires the signature store.
func Open(ctx context.Context, workspace string, cfg *config.Config, log logrus.FieldLogger) (*Runtime, error) {
	if cfg == nil {
		var err error
		if cfg, err = LoadConfig(workspace); err != nil {
			return nil, err
		}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	rt := &Runtime{Workspace: workspace, Config: cfg}

	var store kv.Store
	if cfg.Storage.Driver == "memory" {
		store = kv.NewMemory()
	} else {
		conn, dialect, err := db.Open(db.Config{Workspace: workspace, Driver: cfg.Storage.Driver, DSN: cfg.Storage.DSN})
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		rt.conn = conn
		if err := migrate.Migrate(conn, dialect); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		store = kv.NewSQL(conn, dialect)
	}

	legacy, err := migrate.LegacyChannels(ctx, store, cfg.LegacyDocType(), cfg.Legacy.Keys, log)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("legacy channels: %w", err)
	}
	rt.Legacy = legacy

	sigs, err := openSignatures(ctx, cfg, store)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Engine = engine.New(store, cfg, sigs, log)
	return rt, nil
}

// openSignatures keeps images in the permit store unless memory or minio is configured.
func openSignatures(ctx context.Context, cfg *config.Config, store kv.Store) (signature.Store, error) {
	switch cfg.Signatures.Driver {
	case "memory":
		return signature.NewMemory(), nil
	case "minio":
	default:
		return signature.NewKV(store), nil
	}
	s, err := signature.NewMinio(ctx, signature.MinioConfig{
		Endpoint:  cfg.Signatures.Endpoint,
		AccessKey: cfg.Signatures.AccessKey,
		SecretKey: cfg.Signatures.SecretKey,
		Bucket:    cfg.Signatures.Bucket,
		UseSSL:    cfg.Signatures.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("signature store: %w", err)
	}
	return s, nil
}
