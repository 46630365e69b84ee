package commands

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/haivivi/melograph/pkg/checkpoint"
	"github.com/haivivi/melograph/pkg/storage"
)

// defaultCheckpointDir is where snapshots land when no --checkpoint-dir
// is given.
const defaultCheckpointDir = "./checkpoints"

// openStore opens the checkpoint store at root, which is either a local
// directory or an s3://bucket/prefix URI.
func openStore(root string) (*checkpoint.Store, error) {
	var client storage.S3Client
	if _, _, ok := storage.ParseS3Root(root); ok {
		client = s3ClientFromEnv()
	}
	fs, err := storage.Open(root, client)
	if err != nil {
		return nil, err
	}
	return checkpoint.NewStore(fs), nil
}

// s3ClientFromEnv builds an S3 client from the standard AWS environment
// variables. AWS_ENDPOINT_URL_S3 (or AWS_ENDPOINT_URL) points the client
// at an S3-compatible store; such endpoints get path-style addressing.
func s3ClientFromEnv() *s3.Client {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = os.Getenv("AWS_DEFAULT_REGION")
	}
	opts := s3.Options{Region: region}

	if id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY"); id != "" && secret != "" {
		token := os.Getenv("AWS_SESSION_TOKEN")
		opts.Credentials = aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: id, SecretAccessKey: secret, SessionToken: token}, nil
		})
	}

	endpoint := os.Getenv("AWS_ENDPOINT_URL_S3")
	if endpoint == "" {
		endpoint = os.Getenv("AWS_ENDPOINT_URL")
	}
	if endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}
