package state

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/groundwork-io/groundwork/internal/ir"
)

// s3Backend implements Backend for AWS S3 with optional DynamoDB locking.
type s3Backend struct {
	bucket    string
	key       string
	region    string
	profile   string
	lockTable string

	s3Client *s3.Client
	dbClient *dynamodb.Client
	lockID   string
}

func newS3Backend(cfg *Config) (Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 backend requires a bucket")
	}

	key := cfg.Key
	if key == "" {
		key = "groundwork/state.json"
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	b := &s3Backend{
		bucket:    cfg.Bucket,
		key:       key,
		region:    region,
		profile:   cfg.Profile,
		lockTable: cfg.LockTable,
	}

	if err := b.initClients(); err != nil {
		return nil, fmt.Errorf("initializing s3 backend: %w", err)
	}
	return b, nil
}

func (b *s3Backend) initClients() error {
	ctx := context.Background()

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(b.region))
	if b.profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(b.profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}

	b.s3Client = s3.NewFromConfig(cfg)
	if b.lockTable != "" {
		b.dbClient = dynamodb.NewFromConfig(cfg)
	}
	return nil
}

func (b *s3Backend) Read(ctx context.Context) (*ir.State, error) {
	result, err := b.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
	})
	if err != nil {
		// a missing object is simply an empty state
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return NewState(), nil
		}
		return nil, fmt.Errorf("reading state from s3://%s/%s: %w", b.bucket, b.key, err)
	}
	defer result.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(result.Body); err != nil {
		return nil, fmt.Errorf("reading S3 object body: %w", err)
	}
	return ParseState(buf.Bytes())
}

func (b *s3Backend) Write(ctx context.Context, state *ir.State) error {
	state.Serial++
	content, err := MarshalState(state)
	if err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket:               aws.String(b.bucket),
		Key:                  aws.String(b.key),
		Body:                 bytes.NewReader(content),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	}
	if _, err := b.s3Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("writing state to s3://%s/%s: %w", b.bucket, b.key, err)
	}
	return nil
}

// Lock takes the DynamoDB lock via a conditional put: the item may only be
// created when no item with the same LockID exists.
func (b *s3Backend) Lock() error {
	if b.lockTable == "" {
		return nil // no locking without a table
	}

	b.lockID = fmt.Sprintf("groundwork-%d-%d", os.Getpid(), time.Now().UnixNano())

	_, err := b.dbClient.PutItem(context.Background(), &dynamodb.PutItemInput{
		TableName: aws.String(b.lockTable),
		Item: map[string]dbtypes.AttributeValue{
			"LockID":  &dbtypes.AttributeValueMemberS{Value: b.key},
			"Info":    &dbtypes.AttributeValueMemberS{Value: b.lockID},
			"Created": &dbtypes.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
		ConditionExpression: aws.String("attribute_not_exists(LockID)"),
	})
	if err != nil {
		var conditionFailed *dbtypes.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return fmt.Errorf("state is locked by another process; "+
				"manually delete the item with LockID=%q from DynamoDB table %q if no other run is active",
				b.key, b.lockTable)
		}
		return fmt.Errorf("acquiring lock: %w", err)
	}
	return nil
}

func (b *s3Backend) Unlock() error {
	if b.lockTable == "" {
		return nil
	}

	_, err := b.dbClient.DeleteItem(context.Background(), &dynamodb.DeleteItemInput{
		TableName: aws.String(b.lockTable),
		Key: map[string]dbtypes.AttributeValue{
			"LockID": &dbtypes.AttributeValueMemberS{Value: b.key},
		},
	})
	if err != nil {
		return fmt.Errorf("releasing lock: %w", err)
	}
	return nil
}
