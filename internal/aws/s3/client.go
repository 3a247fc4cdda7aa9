package s3

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3API interface {
	ListObjectsV2(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
}

type Client struct {
	api S3API
}

func NewClient(api S3API) *Client {
	return &Client{api: api}
}

// ListObjects returns one page of the objects and common prefixes matching q.
func (c *Client) ListObjects(ctx context.Context, q ObjectQuery) (ListObjectsResult, error) {
	input := &awss3.ListObjectsV2Input{
		Bucket:    aws.String(q.Bucket),
		Delimiter: aws.String("/"),
		MaxKeys:   aws.Int32(1000),
	}
	if q.Prefix != "" {
		input.Prefix = aws.String(q.Prefix)
	}
	if q.ContinuationToken != "" {
		input.ContinuationToken = aws.String(q.ContinuationToken)
	}

	var opts []func(*awss3.Options)
	if q.Region != "" {
		opts = append(opts, func(o *awss3.Options) {
			o.Region = q.Region
		})
	}

	out, err := c.api.ListObjectsV2(ctx, input, opts...)
	if err != nil {
		return ListObjectsResult{}, fmt.Errorf("ListObjectsV2(%s/%s): %w", q.Bucket, q.Prefix, err)
	}

	var objects []S3Object

	// Common prefixes first
	for _, cp := range out.CommonPrefixes {
		objects = append(objects, S3Object{
			Key:      aws.ToString(cp.Prefix),
			IsPrefix: true,
		})
	}

	for _, obj := range out.Contents {
		var lastModified time.Time
		if obj.LastModified != nil {
			lastModified = *obj.LastModified
		}
		objects = append(objects, S3Object{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			LastModified: lastModified,
			StorageClass: string(obj.StorageClass),
		})
	}

	result := ListObjectsResult{Objects: objects}
	if aws.ToBool(out.IsTruncated) {
		result.NextToken = aws.ToString(out.NextContinuationToken)
	}

	return result, nil
}

// Objects lists every object (not prefix) matching q, following
// continuation tokens.
func (c *Client) Objects(ctx context.Context, q ObjectQuery) ([]S3Object, error) {
	var objects []S3Object
	for {
		page, err := c.ListObjects(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Objects {
			if !obj.IsPrefix {
				objects = append(objects, obj)
			}
		}
		if page.NextToken == "" {
			return objects, nil
		}
		q.ContinuationToken = page.NextToken
	}
}
