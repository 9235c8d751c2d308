package blockmanager

import (
	"fmt"

	pagemanager "github.com/kitsune-db/kitsunedb/core/write_engine/page_manager"
)

// verifyImage runs the write-time structural self-check over a page image
// whose header sizes have already been set to the current logical length.
// It must never fail for correctly constructed pages; a failure indicates a
// bug in the caller's page construction, not a runtime condition.
func verifyImage(image []byte) error {
	if len(image) < pagemanager.PageHeaderSize {
		return fmt.Errorf("page image of %d bytes is smaller than the page header", len(image))
	}
	hdr, err := pagemanager.DecodePageHeader(image)
	if err != nil {
		return err
	}
	if !hdr.Type.Valid() {
		return fmt.Errorf("unknown page type %d", uint8(hdr.Type))
	}
	if hdr.Size != uint32(len(image)) || hdr.MemSize != uint32(len(image)) {
		return fmt.Errorf("header sizes %d/%d do not match page image length %d",
			hdr.Size, hdr.MemSize, len(image))
	}
	return nil
}
