package catalog

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"goflare.io/pos/models"
)

const lookupTimeout = 5 * time.Second

// Lookup collapses concurrent lookups of the same barcode, which happens
// when a scanner repeats a read. The shared query is detached from the
// caller that started it; each caller still stops waiting on its own ctx.
type Lookup struct {
	repo    Repository
	sfg     singleflight.Group
	timeout time.Duration
}

func NewLookup(repo Repository) *Lookup {
	return &Lookup{repo: repo, timeout: lookupTimeout}
}

func (l *Lookup) GetByBarcode(ctx context.Context, barcode string) (*models.Product, error) {
	ch := l.sfg.DoChan(barcode, func() (interface{}, error) {
		queryCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()
		return l.repo.GetByBarcode(queryCtx, barcode)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}

	// callers get their own copy
	p := *res.Val.(*models.Product)
	return &p, nil
}
