// Package awss3 implements the object-store collaborator: session
// establishment against AWS (static keys or assume-role) plus listing
// and whole-object reads from the billing bucket.
package awss3

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/pkg/api"
	perrors "github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/pkg/errors"
)

// Connector holds one established S3 session scoped to the billing bucket.
type Connector struct {
	client *s3.Client
	bucket string
	log    zerolog.Logger
}

// Object is one listed entry.
type Object struct {
	Key  string
	Size int64
}

// Listing is the result of a prefix listing.
type Listing struct {
	Objects        []Object
	CommonPrefixes []string
}

// NewConnector validates the credentials and establishes a session. A
// role_arn in the secret switches to an assume-role session; either way
// the caller identity is checked before any bucket access.
func NewConnector(ctx context.Context, secret *api.SecretData, log zerolog.Logger) (*Connector, error) {
	if err := checkSecretData(secret); err != nil {
		return nil, err
	}

	cfg, err := loadConfig(ctx, secret)
	if err != nil {
		return nil, err
	}

	stsClient := sts.NewFromConfig(cfg)
	if _, err := stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{}); err != nil {
		return nil, fmt.Errorf("verify AWS caller identity: %w", err)
	}

	if secret.RoleARN != "" {
		cfg, err = assumeRole(ctx, stsClient, cfg, secret)
		if err != nil {
			return nil, err
		}
	}

	return &Connector{
		client: s3.NewFromConfig(cfg),
		bucket: secret.AWSS3Bucket,
		log:    log,
	}, nil
}

func checkSecretData(secret *api.SecretData) error {
	if secret == nil {
		return perrors.NewMissingParameter("secret_data")
	}
	if secret.AWSAccessKeyID == "" {
		return perrors.NewMissingParameter("secret_data.aws_access_key_id")
	}
	if secret.AWSSecretAccessKey == "" {
		return perrors.NewMissingParameter("secret_data.aws_secret_access_key")
	}
	if secret.AWSS3Bucket == "" {
		return perrors.NewMissingParameter("secret_data.aws_s3_bucket")
	}
	return nil
}

func loadConfig(ctx context.Context, secret *api.SecretData) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			secret.AWSAccessKeyID,
			secret.AWSSecretAccessKey,
			"",
		)),
	}
	if secret.RegionName != "" {
		opts = append(opts, config.WithRegion(secret.RegionName))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	return cfg, nil
}

func assumeRole(ctx context.Context, stsClient *sts.Client, cfg aws.Config, secret *api.SecretData) (aws.Config, error) {
	input := &sts.AssumeRoleInput{
		RoleArn:         aws.String(secret.RoleARN),
		RoleSessionName: aws.String("AssumeRoleSession-" + uuid.NewString()),
	}
	if secret.ExternalID != "" {
		input.ExternalId = aws.String(secret.ExternalID)
	}

	out, err := stsClient.AssumeRole(ctx, input)
	if err != nil {
		return aws.Config{}, fmt.Errorf("assume role %s: %w", secret.RoleARN, err)
	}
	if out.Credentials == nil {
		return aws.Config{}, fmt.Errorf("assume role %s: empty credentials in response", secret.RoleARN)
	}

	cfg.Credentials = credentials.NewStaticCredentialsProvider(
		aws.ToString(out.Credentials.AccessKeyId),
		aws.ToString(out.Credentials.SecretAccessKey),
		aws.ToString(out.Credentials.SessionToken),
	)
	return cfg, nil
}

// ListObjects lists entries under a path prefix, optionally grouped by a
// delimiter.
func (c *Connector) ListObjects(ctx context.Context, prefix, delimiter string) (*Listing, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	}
	if delimiter != "" {
		input.Delimiter = aws.String(delimiter)
	}

	listing := &Listing{}
	paginator := s3.NewListObjectsV2Paginator(c.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects under %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			listing.Objects = append(listing.Objects, Object{
				Key:  aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
			})
		}
		for _, cp := range page.CommonPrefixes {
			listing.CommonPrefixes = append(listing.CommonPrefixes, aws.ToString(cp.Prefix))
		}
	}

	c.log.Debug().Str("prefix", prefix).Int("objects", len(listing.Objects)).Msg("listed billing objects")

	return listing, nil
}

// ReadObject reads one object in full.
func (c *Connector) ReadObject(ctx context.Context, key string) ([]byte, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}
