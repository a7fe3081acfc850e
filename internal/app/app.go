// Package app assembles the import service from configuration. The HTTP
// server and the command line tool share it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/JonMunkholm/sheetimport/internal/config"
	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/importers"
	"github.com/JonMunkholm/sheetimport/internal/rowstream"
	"github.com/JonMunkholm/sheetimport/internal/sink"
	"github.com/JonMunkholm/sheetimport/internal/sink/postgres"
	"github.com/JonMunkholm/sheetimport/internal/sink/sqlite"
)

// OpenSink connects to PostgreSQL when a database URL is configured and to
// the SQLite file otherwise.
func OpenSink(ctx context.Context, cfg *config.Config, logger *slog.Logger) (sink.Writer, error) {
	if cfg.UsePostgres() {
		w, err := postgres.Open(ctx, postgres.PoolConfig{
			URL:             cfg.Database.URL,
			MaxConns:        int32(cfg.Database.MaxConns),
			MinConns:        int32(cfg.Database.MinConns),
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			return nil, err
		}
		if u, err := url.Parse(cfg.Database.URL); err == nil {
			logger.Info("connected to database", "driver", "postgres", "name", strings.TrimPrefix(u.Path, "/"))
		}
		return w, nil
	}

	w, err := sqlite.Open(ctx, cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLite.Path, err)
	}
	logger.Info("connected to database", "driver", "sqlite", "path", cfg.SQLite.Path)
	return w, nil
}

// Specs returns the importer specs to register: the built-in ones unless
// disabled, then those of the definitions file.
func Specs(cfg *config.Config) ([]importers.Spec, error) {
	var specs []importers.Spec
	if !cfg.Import.DisableBuiltins {
		specs = append(specs, importers.Builtin()...)
	}
	if cfg.Import.DefinitionsFile != "" {
		more, err := importers.LoadFile(cfg.Import.DefinitionsFile)
		if err != nil {
			return nil, err
		}
		specs = append(specs, more...)
	}
	return specs, nil
}

// Registry builds and seals the importer registry writing through w.
func Registry(cfg *config.Config, w sink.Writer) (*core.Registry, error) {
	specs, err := Specs(cfg)
	if err != nil {
		return nil, err
	}

	opts := importers.Options{Writer: w, HandleErrors: cfg.Import.HandleErrors}
	if cfg.Import.AuditEnabled() {
		opts.Auditor = importers.NewAuditor(w, cfg.Import.AuditTable)
	}

	reg := core.NewRegistry()
	if err := importers.RegisterAll(reg, specs, opts); err != nil {
		return nil, err
	}
	if reg.Len() == 0 {
		return nil, &core.ConfigurationError{Reason: "no importers defined"}
	}
	reg.Seal()
	return reg, nil
}

// Opener returns the file opener for the configured decoding options.
func Opener(cfg *config.Config) *rowstream.FileOpener {
	return rowstream.NewFileOpener(rowstream.Options{
		Delimiter:  cfg.Import.Delimiter(),
		Encoding:   cfg.Import.CSVEncoding,
		XLSCharset: cfg.Import.XLSCharset,
	})
}

// Service builds the import service over reg.
func Service(cfg *config.Config, reg *core.Registry, logger *slog.Logger) *core.Service {
	return core.NewService(reg, Opener(cfg), core.ServiceConfig{
		MaxConcurrent: cfg.Import.MaxConcurrent,
		MaxWait:       cfg.Import.MaxWaitTime,
		RunTimeout:    cfg.Import.Timeout,
		SampleRows:    cfg.Import.SampleRows,
	}, logger)
}
