// Package pagination provides cursor helpers for the list operations.
//
// Providers slice their registration tables with Paginate, which hands out
// opaque cursors and rejects ones it did not issue:
//
//	page, next, err := pagination.Paginate(tools, params.Cursor, s.pageSize)
//	if err != nil {
//	    return nil, err
//	}
//	return protocol.ListToolsResult{Tools: page, PaginatedResult: protocol.PaginatedResult{NextCursor: next}}, nil
//
// Agents follow nextCursor until it is empty with CollectAll:
//
//	tools, err := pagination.CollectAll(ctx, func(ctx context.Context, cursor string) ([]protocol.Tool, string, error) {
//	    res, err := c.listToolsPage(ctx, cursor)
//	    if err != nil {
//	        return nil, "", err
//	    }
//	    return res.Tools, res.NextCursor, nil
//	})
package pagination
