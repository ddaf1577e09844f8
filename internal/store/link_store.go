package store

import (
	"context"
	"time"
)

// Link is the persisted form of an artifact usage fact. The names are
// snapshots taken when the fact was recorded.
type Link struct {
	LinkID         int64
	ProducerJob    string
	ProducerNumber int64
	ConsumerJob    string
	ConsumerNumber int64
	ProducerName   string
	ConsumerName   string
	Artifact       string
	CreatedOn      time.Time
}

type LinkStore interface {
	CreateLink(context.Context, *Link) error
	ListLinks(context.Context) ([]Link, error)
	DeleteRecordLinks(context.Context, string, int64) error
}
