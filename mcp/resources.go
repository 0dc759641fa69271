package mcp

import (
	"context"
	"encoding/json"

	"github.com/UOR-Foundation/uordb/api"
	"github.com/UOR-Foundation/uordb/internal/storage"
	"github.com/UOR-Foundation/uordb/uor"
)

const resourcePageSize = 100

// handleResourcesList exposes the session namespace's objects as MCP
// resources addressed by their uor:// references. The cursor is the
// backend's collection/id resume key.
func (g *Gateway) handleResourcesList(ctx context.Context, sess *Session, params json.RawMessage) (any, *api.ErrorObject) {
	var p api.ListResourcesParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, rpcError(api.CodeInvalidParams, "invalid resources/list params: %v", err)
		}
	}
	listing, err := g.store.List(ctx, sess.Namespace, storage.ListOptions{
		StartAfter: p.Cursor,
		Limit:      resourcePageSize,
	})
	if err != nil {
		return nil, domainError(err)
	}
	result := &api.ListResourcesResult{Resources: make([]api.ResourceInfo, 0, len(listing.Objects))}
	for _, info := range listing.Objects {
		ref := uor.Reference{Namespace: info.Namespace, Type: uor.Type(info.Collection), ID: info.ID}
		result.Resources = append(result.Resources, api.ResourceInfo{
			URI:      ref.String(),
			Name:     info.Collection + "/" + info.ID,
			MimeType: storage.ContentTypeJSON,
		})
	}
	if listing.Truncated {
		cursor := listing.NextStartAfter
		result.NextCursor = &cursor
	}
	return result, nil
}
