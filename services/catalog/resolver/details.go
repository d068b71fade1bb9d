// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolver

import (
	"context"
	"log/slog"

	"github.com/AleutianAI/AleutianShop/services/catalog/upstream"
	"golang.org/x/sync/errgroup"
)

// defaultDetailWorkers bounds concurrent detail fetches so one batch
// cannot monopolize the upstream quota.
const defaultDetailWorkers = 5

// FetchDetails enriches a batch of candidate ids with full product
// detail.
//
// # Description
//
// Fetches run concurrently under a fixed worker bound. One slow or
// failing item never stalls the batch: its failure is swallowed and
// reported as a nil in that item's slot, so the result always has
// exactly len(ids) entries in input order.
//
// # Inputs
//
//   - ctx: Caller context; cancellation abandons outstanding fetches.
//   - ids: Product ids in the order slots should be filled.
//   - workers: Concurrency bound; <= 0 uses the default of 5.
func (r *Resolver) FetchDetails(ctx context.Context, ids []string, workers int) []*upstream.ProductDetail {
	if workers <= 0 {
		workers = defaultDetailWorkers
	}

	details := make([]*upstream.ProductDetail, len(ids))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, id := range ids {
		g.Go(func() error {
			detail, err := r.client.GetProductDetail(ctx, id)
			if err != nil {
				slog.Warn("Detail fetch failed for batch item", "id", id, "error", err)
				return nil // swallowed: the slot stays nil
			}
			details[i] = detail
			return nil
		})
	}
	_ = g.Wait()

	return details
}
