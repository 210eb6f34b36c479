package model

import (
	"fmt"
	"path"
	"strings"
)

// AssetKey addresses a converted asset in object storage as
// {tenant}/documents/{document}/videos/{name}.
type AssetKey struct {
	TenantID   string
	DocumentID string
	Name       string
}

// NewAssetKey validates each segment. Segments must be non-empty and must
// not contain a slash or be a dot segment.
func NewAssetKey(tenantID, documentID, name string) (AssetKey, error) {
	for _, seg := range []string{tenantID, documentID, name} {
		if seg == "" || seg == "." || seg == ".." || strings.ContainsAny(seg, `/\`) {
			return AssetKey{}, fmt.Errorf("%w: asset key segment %q", ErrInvalidArgument, seg)
		}
	}
	return AssetKey{TenantID: tenantID, DocumentID: documentID, Name: name}, nil
}

// ParseAssetKey is the inverse of AssetKey.String.
func ParseAssetKey(s string) (AssetKey, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 5 || parts[1] != "documents" || parts[3] != "videos" {
		return AssetKey{}, fmt.Errorf("%w: %q is not a video asset key", ErrInvalidArgument, s)
	}
	return NewAssetKey(parts[0], parts[2], parts[4])
}

func (k AssetKey) String() string {
	return path.Join(k.TenantID, "documents", k.DocumentID, "videos", k.Name)
}

// Extension returns the name's extension without the dot, lower-cased.
func (k AssetKey) Extension() string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(k.Name), "."))
}
