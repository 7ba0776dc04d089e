// Package awsclient builds the AWS service clients shared by the API and digestctl.
package awsclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/DeafMist/diet-digest/backend/internal/config"
)

// Clients holds the DynamoDB and S3 clients for one configuration.
type Clients struct {
	DynamoDB *dynamodb.Client
	S3       *s3.Client
}

// Load resolves the AWS configuration from cfg and the default chain.
// Static credentials are used only when both keys are set.
func Load(ctx context.Context, cfg config.Common) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// New builds both clients. An endpoint in cfg redirects them to a local
// emulator, with path-style addressing for S3.
func New(ctx context.Context, cfg config.Common) (*Clients, error) {
	awsCfg, err := Load(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return FromConfig(awsCfg, cfg.AWSEndpoint), nil
}

// FromConfig builds both clients from a resolved configuration.
func FromConfig(awsCfg aws.Config, endpoint string) *Clients {
	ddb := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	objects := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &Clients{DynamoDB: ddb, S3: objects}
}
