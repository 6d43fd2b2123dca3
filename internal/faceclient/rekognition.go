package faceclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
)

// RekognitionAPI is the subset of the Rekognition client used here.
type RekognitionAPI interface {
	CompareFaces(ctx context.Context, in *rekognition.CompareFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.CompareFacesOutput, error)
	ListCollections(ctx context.Context, in *rekognition.ListCollectionsInput, optFns ...func(*rekognition.Options)) (*rekognition.ListCollectionsOutput, error)
}

// Rekognition compares a probe against reference images stored in an S3 bucket.
type Rekognition struct {
	client RekognitionAPI
	bucket string
}

// NewRekognition creates an oracle reading references from bucket.
func NewRekognition(client RekognitionAPI, bucket string) *Rekognition {
	return &Rekognition{client: client, bucket: bucket}
}

// Health makes the cheapest authenticated Rekognition call to confirm the
// service is reachable with the current credentials and region.
func (r *Rekognition) Health(ctx context.Context) error {
	if _, err := r.client.ListCollections(ctx, &rekognition.ListCollectionsInput{MaxResults: aws.Int32(1)}); err != nil {
		return fmt.Errorf("rekognition health: %w", err)
	}
	return nil
}

// Compare matches when Rekognition reports at least one face above threshold.
func (r *Rekognition) Compare(ctx context.Context, probe []byte, referenceKey string, threshold float64) (bool, error) {
	out, err := r.client.CompareFaces(ctx, &rekognition.CompareFacesInput{
		SourceImage: &types.Image{Bytes: probe},
		TargetImage: &types.Image{S3Object: &types.S3Object{
			Bucket: aws.String(r.bucket),
			Name:   aws.String(referenceKey),
		}},
		SimilarityThreshold: aws.Float32(float32(threshold)),
	})
	if err != nil {
		return false, fmt.Errorf("rekognition compare %s: %w", referenceKey, err)
	}
	return len(out.FaceMatches) > 0, nil
}
