package s3

import "time"

type S3Object struct {
	Key          string
	Size         int64
	LastModified time.Time
	StorageClass string
	IsPrefix     bool
}

type ListObjectsResult struct {
	Objects   []S3Object
	NextToken string
}

// ObjectQuery selects the objects under Prefix in Bucket. Region overrides
// the client's region, since public buckets live in a fixed region.
type ObjectQuery struct {
	Bucket            string
	Prefix            string
	Region            string
	ContinuationToken string
}
