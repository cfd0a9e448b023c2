package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	zerrors "github.com/zzenonn/zgate/internal/errors"
)

// RawRecord is what the metadata store returns for a key: the value blob and
// the metadata record written by the ingest pipeline.
type RawRecord struct {
	Value    []byte
	Metadata *StoredMetadata
}

// StoredMetadata - flat metadata record as persisted by the upload pipeline
type StoredMetadata struct {
	Channel   string `json:"Channel" dynamodbav:"Channel"`
	FileName  string `json:"FileName,omitempty" dynamodbav:"FileName,omitempty"`
	FileType  string `json:"FileType,omitempty" dynamodbav:"FileType,omitempty"`
	ListType  string `json:"ListType,omitempty" dynamodbav:"ListType,omitempty"`
	Label     string `json:"Label,omitempty" dynamodbav:"Label,omitempty"`
	TimeStamp int64  `json:"TimeStamp,omitempty" dynamodbav:"TimeStamp,omitempty"`

	S3Region          string `json:"S3Region,omitempty" dynamodbav:"S3Region,omitempty"`
	S3Endpoint        string `json:"S3Endpoint,omitempty" dynamodbav:"S3Endpoint,omitempty"`
	S3AccessKeyID     string `json:"S3AccessKeyId,omitempty" dynamodbav:"S3AccessKeyId,omitempty"`
	S3SecretAccessKey string `json:"S3SecretAccessKey,omitempty" dynamodbav:"S3SecretAccessKey,omitempty"`
	S3PathStyle       bool   `json:"S3PathStyle,omitempty" dynamodbav:"S3PathStyle,omitempty"`
	S3BucketName      string `json:"S3BucketName,omitempty" dynamodbav:"S3BucketName,omitempty"`
	S3FileKey         string `json:"S3FileKey,omitempty" dynamodbav:"S3FileKey,omitempty"`

	ExternalLink string `json:"ExternalLink,omitempty" dynamodbav:"ExternalLink,omitempty"`

	TgFileID    string `json:"TgFileId,omitempty" dynamodbav:"TgFileId,omitempty"`
	TgBotToken  string `json:"TgBotToken,omitempty" dynamodbav:"TgBotToken,omitempty"`
	IsChunked   bool   `json:"IsChunked,omitempty" dynamodbav:"IsChunked,omitempty"`
	TotalChunks int    `json:"TotalChunks,omitempty" dynamodbav:"TotalChunks,omitempty"`
}

// ParseChannel maps stored channel names, including the legacy ones, to a Channel.
func ParseChannel(name string) (Channel, error) {
	switch strings.TrimSpace(name) {
	case "BucketStore", "CloudflareR2":
		return ChannelBucketStore, nil
	case "S3":
		return ChannelS3, nil
	case "Chunked", "TelegramNew":
		return ChannelChunked, nil
	case "External":
		return ChannelExternal, nil
	default:
		return "", fmt.Errorf("%w: %q", zerrors.ErrInvalidChannel, name)
	}
}

// PolicyLabel derives the policy label. ListType wins over the content label.
func (m *StoredMetadata) PolicyLabel() PolicyLabel {
	switch {
	case m.ListType == "White":
		return LabelWhite
	case m.ListType == "Block":
		return LabelBlock
	case strings.EqualFold(m.Label, "adult"):
		return LabelAdult
	default:
		return LabelNone
	}
}

// ToObjectRecord converts the stored form into an ObjectRecord. For chunked
// files value holds the JSON encoded ChunkSet.
func (m *StoredMetadata) ToObjectRecord(key string, value []byte) (*ObjectRecord, error) {
	channel, err := ParseChannel(m.Channel)
	if err != nil {
		return nil, err
	}

	record := &ObjectRecord{
		Key:       key,
		FileName:  m.FileName,
		FileType:  m.FileType,
		Label:     m.PolicyLabel(),
		TimeStamp: m.TimeStamp,
	}

	switch channel {
	case ChannelBucketStore:
		record.Location = BucketLocation{Key: key}
	case ChannelS3:
		record.Location = S3Location{
			Region:          m.S3Region,
			Endpoint:        m.S3Endpoint,
			AccessKeyID:     m.S3AccessKeyID,
			SecretAccessKey: m.S3SecretAccessKey,
			Bucket:          m.S3BucketName,
			Key:             m.S3FileKey,
			PathStyle:       m.S3PathStyle,
		}
	case ChannelExternal:
		record.Location = ExternalLocation{URL: m.ExternalLink}
	case ChannelChunked:
		loc := ChunkedLocation{
			BotToken:    m.TgBotToken,
			FileID:      m.TgFileID,
			IsChunked:   m.IsChunked,
			TotalChunks: m.TotalChunks,
		}
		if m.IsChunked {
			chunks, err := DecodeChunkSet(value)
			if err != nil {
				return nil, err
			}
			loc.Chunks = chunks
		}
		record.Location = loc
	}

	return record, nil
}

// DecodeChunkSet parses the JSON chunk list stored as a record value and
// orders it by index.
func DecodeChunkSet(value []byte) (ChunkSet, error) {
	if len(value) == 0 {
		return nil, nil
	}
	var chunks ChunkSet
	if err := json.Unmarshal(value, &chunks); err != nil {
		return nil, fmt.Errorf("%w: %v", zerrors.ErrInvalidChunks, err)
	}
	return chunks.Sorted(), nil
}
