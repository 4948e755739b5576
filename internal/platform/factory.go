package platform

import (
	"context"
	"log/slog"

	"github.com/aretw0/notesync/pkg/core"
)

// New opens the collection and wraps it in a notes service.
//
//	svc, err := platform.New(ctx, "./notes", platform.WithVersioning(true))
func New(ctx context.Context, uri string, opts ...Option) (*core.Service, error) {
	o := applyOptions(opts)
	coll, err := open(ctx, uri, o)
	if err != nil {
		return nil, err
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	return core.NewService(coll, core.Config{
		Logger:       logger,
		ErrorHandler: o.errorHandler,
		WriteTimeout: o.writeTimeout,
	}), nil
}
