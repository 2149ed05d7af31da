package store

import "time"

// BasePath is a configured root directory under management.
type BasePath struct {
	ID   int64
	Path string
}

// Directory is the catalog record for one filesystem directory.
// ParentID is zero for a base path root. The parent is a weak reference
// resolved by path during reconciliation, never an ownership link.
type Directory struct {
	ID         int64
	Path       string
	Name       string
	ParentID   int64
	BasePathID int64
}

// MediaFile is the catalog entry for one indexed file. ID == 0 means the
// record has not been persisted yet.
type MediaFile struct {
	ID          int64
	DirectoryID int64
	Name        string
	Path        string
	Mimetype    string
	Width       int
	Height      int
	Size        int64
	Resolution  float64
	Created     time.Time
	Modified    time.Time
	SHA1Hash    string
	Title       string
	Description string
	Copyright   string
	Keywords    string
	Exif        string

	// Previews are written on insert/update and replaced wholesale;
	// lookups do not populate them.
	Previews []Preview
}

// Preview is one derived rendition of a MediaFile.
type Preview struct {
	ID       int64
	FileID   int64
	Name     string
	Width    int
	Height   int
	Size     int64
	Mimetype string
	Data     []byte
}
