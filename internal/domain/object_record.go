// Package domain holds the records the gateway reads from the metadata store
// and the request-scoped values derived from them.
package domain

// Channel identifies the storage backend an object lives on.
type Channel string

const (
	ChannelBucketStore Channel = "BucketStore"
	ChannelS3          Channel = "S3"
	ChannelChunked     Channel = "Chunked"
	ChannelExternal    Channel = "External"
)

// PolicyLabel is the per-object classification consulted by the access gate.
type PolicyLabel int

const (
	LabelNone PolicyLabel = iota
	LabelWhite
	LabelBlock
	LabelAdult
)

func (l PolicyLabel) String() string {
	switch l {
	case LabelWhite:
		return "white"
	case LabelBlock:
		return "block"
	case LabelAdult:
		return "adult"
	default:
		return "none"
	}
}

// ObjectRecord is a read-only, request-scoped copy of what the ingest
// pipeline stored for one object key.
type ObjectRecord struct {
	Key       string
	FileName  string
	FileType  string
	Label     PolicyLabel
	TimeStamp int64
	Location  Location
}

// Channel returns the channel of the record's location.
func (r *ObjectRecord) Channel() Channel {
	if r.Location == nil {
		return ""
	}
	return r.Location.Channel()
}

// DisplayName is the file name used in Content-Disposition, falling back to the key.
func (r *ObjectRecord) DisplayName() string {
	if r.FileName != "" {
		return r.FileName
	}
	return r.Key
}

// Location is the channel-specific payload of a record. The set of
// implementations is closed: only this package can add one.
type Location interface {
	Channel() Channel
	location()
}

// BucketLocation is an object in the gateway's own bucket, stored under Key.
type BucketLocation struct {
	Key string
}

// S3Location is an object on an S3-compatible endpoint with its own credentials.
type S3Location struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Key             string
	PathStyle       bool
}

// ChunkedLocation is a file on the message store. A single message file has
// FileID set and no chunks; a split file carries its ChunkSet.
type ChunkedLocation struct {
	BotToken    string
	FileID      string
	IsChunked   bool
	TotalChunks int
	Chunks      ChunkSet
}

// ExternalLocation is a file that lives elsewhere and is served by redirect.
type ExternalLocation struct {
	URL string
}

func (BucketLocation) Channel() Channel   { return ChannelBucketStore }
func (S3Location) Channel() Channel       { return ChannelS3 }
func (ChunkedLocation) Channel() Channel  { return ChannelChunked }
func (ExternalLocation) Channel() Channel { return ChannelExternal }

func (BucketLocation) location()   {}
func (S3Location) location()       {}
func (ChunkedLocation) location()  {}
func (ExternalLocation) location() {}
