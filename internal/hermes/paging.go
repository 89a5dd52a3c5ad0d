package hermes

import (
	"context"
	"fmt"

	"github.com/dreamware/hermes/internal/ids"
)

// PutWithPaging chunks data into tagID's configured PageSize and Puts each
// chunk as its own blob named "name#pageN", the feature the distilled spec
// dropped but the original source's paged-write path provides: a write
// larger than a tag's PageSize never lands in a single oversized blob.
// PageSize <= 0 means the tag carries no paging configuration, in which
// case this is a single ordinary Put.
func (s *Service) PutWithPaging(ctx context.Context, tagID ids.TagID, name string, data []byte) ([]ids.BlobID, error) {
	tag, err := s.MDM.GetTag(tagID)
	if err != nil {
		return nil, err
	}
	if tag.PageSize <= 0 {
		id, err := s.Put(ctx, tagID, name, data, nil)
		if err != nil {
			return nil, err
		}
		return []ids.BlobID{id}, nil
	}

	var blobIDs []ids.BlobID
	pageSize := tag.PageSize
	for start, page := int64(0), 0; start < int64(len(data)); start, page = start+pageSize, page+1 {
		end := start + pageSize
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		pageName := fmt.Sprintf("%s#page%d", name, page)
		id, err := s.Put(ctx, tagID, pageName, data[start:end], nil)
		if err != nil {
			return blobIDs, err
		}
		blobIDs = append(blobIDs, id)
	}
	if len(blobIDs) == 0 {
		// Zero-length data still produces one empty page, matching Put's
		// own handling of an empty write.
		id, err := s.Put(ctx, tagID, name+"#page0", data, nil)
		if err != nil {
			return nil, err
		}
		blobIDs = append(blobIDs, id)
	}
	return blobIDs, nil
}
