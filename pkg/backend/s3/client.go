package s3

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig describes how to reach the bucket.
type ClientConfig struct {
	Region string

	// Endpoint overrides the AWS endpoint, for S3-compatible services.
	// Path-style addressing is used when it is set.
	Endpoint string

	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// NewClient builds an S3 client from cfg. Without an access key the client
// sends anonymous requests.
func NewClient(cfg ClientConfig) *awss3.Client {
	opts := awss3.Options{
		Region:      cfg.Region,
		Credentials: credentials(cfg),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	return awss3.New(opts)
}

func credentials(cfg ClientConfig) aws.CredentialsProvider {
	if cfg.AccessKeyID == "" {
		return aws.AnonymousCredentials{}
	}
	static := aws.Credentials{
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		SessionToken:    cfg.SessionToken,
		Source:          "rxstore",
	}
	return aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return static, nil
	}))
}
