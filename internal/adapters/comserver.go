package adapters

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/mvp-joe/callmap/internal/catalog"
)

// COMServerAdapter handles in-process COM servers. The embedded type library
// is preferred; when it yields nothing the export table is used instead.
type COMServerAdapter struct {
	typelib *TypeLibAdapter
	exports *ExportsAdapter
	logger  *log.Logger
}

func NewCOMServerAdapter(typelib *TypeLibAdapter, exports *ExportsAdapter, logger *log.Logger) *COMServerAdapter {
	return &COMServerAdapter{typelib: typelib, exports: exports, logger: logger}
}

func (a *COMServerAdapter) Name() string { return "com_server" }

func (a *COMServerAdapter) Kinds() []catalog.FileKind {
	return []catalog.FileKind{catalog.KindCOMServer}
}

// Policy is first-seen-wins; Extract already applied the policy of whichever
// source produced the records.
func (a *COMServerAdapter) Policy() catalog.DedupPolicy { return catalog.FirstSeenWins }

func (a *COMServerAdapter) Extract(ctx context.Context, path string) ([]catalog.Invocable, error) {
	invs, err := a.typelib.extract(ctx, path, catalog.KindCOMServer)
	if err != nil {
		return nil, err
	}
	if len(invs) > 0 {
		return catalog.Dedup(invs, a.typelib.Policy()), nil
	}

	a.logger.Debug("no type library, falling back to exports", "path", path)
	invs, err = a.exports.extract(ctx, path, catalog.KindCOMServer)
	if err != nil {
		return nil, err
	}
	return catalog.Dedup(invs, a.exports.Policy()), nil
}
