package mcpserver

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/oklog/ulid/v2"
)

// JobStatus represents the state of an audiobook job.
type JobStatus string

const (
	JobStatusSubmitted JobStatus = "submitted"
	JobStatusIngesting JobStatus = "ingesting"
	JobStatusAnalyzing JobStatus = "analyzing"
	JobStatusScripting JobStatus = "scripting"
	JobStatusNarrating JobStatus = "narrating"
	JobStatusUploading JobStatus = "uploading"
	JobStatusComplete  JobStatus = "complete"
	JobStatusFailed    JobStatus = "failed"
)

const (
	jobPrefix    = "JOB#"
	jobSK        = "METADATA"
	jobsGSI1PK   = "AUDIOBOOKS"
	defaultLimit = 20
)

// ErrInvalidCursor is returned by ListJobs for a malformed cursor.
var ErrInvalidCursor = errors.New("invalid cursor format")

// ClipRef locates one published clip.
type ClipRef struct {
	Name string `dynamodbav:"name" json:"name"`
	Key  string `dynamodbav:"key" json:"key"`
	URL  string `dynamodbav:"url" json:"url"`
}

// JobItem is the DynamoDB record for an audiobook job.
type JobItem struct {
	PK              string    `dynamodbav:"PK"`
	SK              string    `dynamodbav:"SK"`
	GSI1PK          string    `dynamodbav:"GSI1PK"`
	GSI1SK          string    `dynamodbav:"GSI1SK"`
	JobID           string    `dynamodbav:"jobId"`
	Title           string    `dynamodbav:"title,omitempty"`
	Mode            string    `dynamodbav:"mode"`
	AgeGroup        string    `dynamodbav:"ageGroup,omitempty"`
	Source          string    `dynamodbav:"source,omitempty"`
	Status          string    `dynamodbav:"status"`
	ProgressPercent float64   `dynamodbav:"progressPercent,omitempty"`
	StageMessage    string    `dynamodbav:"stageMessage,omitempty"`
	ErrorMessage    string    `dynamodbav:"errorMessage,omitempty"`
	LLMProvider     string    `dynamodbav:"llmProvider,omitempty"`
	TTSProvider     string    `dynamodbav:"ttsProvider,omitempty"`
	Characters      []string  `dynamodbav:"characters,omitempty"`
	Clips           []ClipRef `dynamodbav:"clips,omitempty"`
	ScriptKey       string    `dynamodbav:"scriptKey,omitempty"`
	ScriptURL       string    `dynamodbav:"scriptUrl,omitempty"`
	CreatedAt       string    `dynamodbav:"createdAt"`
	CompletedAt     string    `dynamodbav:"completedAt,omitempty"`
}

// NewJob describes a job at submission time.
type NewJob struct {
	ID          string
	Mode        string
	AgeGroup    string
	Source      string
	LLMProvider string
	TTSProvider string
}

// Completion is what a finished job records.
type Completion struct {
	Title      string
	Characters []string
	Clips      []ClipRef
	ScriptKey  string
	ScriptURL  string
}

// JobStore persists job records.
type JobStore interface {
	CreateJob(ctx context.Context, job NewJob) error
	UpdateProgress(ctx context.Context, id string, status JobStatus, percent float64, message string) error
	CompleteJob(ctx context.Context, id string, c Completion) error
	FailJob(ctx context.Context, id, errMsg string) error
	GetJob(ctx context.Context, id string) (*JobItem, error)
	ListJobs(ctx context.Context, limit int, cursor string) ([]JobItem, string, error)
}

// DynamoAPI is the subset of the DynamoDB client used by Store.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Store handles DynamoDB operations for audiobook jobs.
type Store struct {
	client    DynamoAPI
	tableName string
}

func NewStore(client DynamoAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// NewJobID generates a ULID for a new job.
func NewJobID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate ulid: %w", err)
	}
	return id.String(), nil
}

func jobKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: jobPrefix + id},
		"SK": &types.AttributeValueMemberS{Value: jobSK},
	}
}

// CreateJob inserts a new job with status=submitted.
func (s *Store) CreateJob(ctx context.Context, job NewJob) error {
	now := time.Now().UTC().Format(time.RFC3339)
	item := JobItem{
		PK:          jobPrefix + job.ID,
		SK:          jobSK,
		GSI1PK:      jobsGSI1PK,
		GSI1SK:      now + "#" + job.ID,
		JobID:       job.ID,
		Mode:        job.Mode,
		AgeGroup:    job.AgeGroup,
		Source:      job.Source,
		Status:      string(JobStatusSubmitted),
		LLMProvider: job.LLMProvider,
		TTSProvider: job.TTSProvider,
		CreatedAt:   now,
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal job item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &s.tableName,
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return fmt.Errorf("put job item: %w", err)
	}
	return nil
}

// UpdateProgress updates the job's status, progress percent, and stage message.
func (s *Store) UpdateProgress(ctx context.Context, id string, status JobStatus, percent float64, message string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              jobKey(id),
		UpdateExpression: aws.String("SET #status = :status, progressPercent = :pct, stageMessage = :msg"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
			":pct":    &types.AttributeValueMemberN{Value: fmt.Sprintf("%.2f", percent)},
			":msg":    &types.AttributeValueMemberS{Value: message},
		},
	})
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// CompleteJob marks the job as complete and records its artifacts.
func (s *Store) CompleteJob(ctx context.Context, id string, c Completion) error {
	clips, err := attributevalue.Marshal(c.Clips)
	if err != nil {
		return fmt.Errorf("marshal clips: %w", err)
	}

	updateExpr := "SET #status = :status, progressPercent = :pct, stageMessage = :msg, title = :title, clips = :clips, completedAt = :done"
	exprValues := map[string]types.AttributeValue{
		":status": &types.AttributeValueMemberS{Value: string(JobStatusComplete)},
		":pct":    &types.AttributeValueMemberN{Value: "1.00"},
		":msg":    &types.AttributeValueMemberS{Value: "Complete"},
		":title":  &types.AttributeValueMemberS{Value: c.Title},
		":clips":  clips,
		":done":   &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
	}

	if len(c.Characters) > 0 {
		updateExpr += ", characters = :chars"
		exprValues[":chars"] = &types.AttributeValueMemberL{Value: stringList(c.Characters)}
	}
	if c.ScriptKey != "" {
		updateExpr += ", scriptKey = :skey"
		exprValues[":skey"] = &types.AttributeValueMemberS{Value: c.ScriptKey}
	}
	if c.ScriptURL != "" {
		updateExpr += ", scriptUrl = :surl"
		exprValues[":surl"] = &types.AttributeValueMemberS{Value: c.ScriptURL}
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              jobKey(id),
		UpdateExpression: aws.String(updateExpr),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: exprValues,
	})
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

func stringList(ss []string) []types.AttributeValue {
	out := make([]types.AttributeValue, len(ss))
	for i, s := range ss {
		out[i] = &types.AttributeValueMemberS{Value: s}
	}
	return out
}

// FailJob marks the job as failed with an error message.
func (s *Store) FailJob(ctx context.Context, id, errMsg string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              jobKey(id),
		UpdateExpression: aws.String("SET #status = :status, errorMessage = :err, stageMessage = :msg"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(JobStatusFailed)},
			":err":    &types.AttributeValueMemberS{Value: errMsg},
			":msg":    &types.AttributeValueMemberS{Value: "Failed: " + errMsg},
		},
	})
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// GetJob retrieves a single job by ID. A missing job is (nil, nil).
func (s *Store) GetJob(ctx context.Context, id string) (*JobItem, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key:       jobKey(id),
	})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var item JobItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &item, nil
}

// ListJobs returns jobs ordered by creation time (newest first) via GSI1.
// The cursor is the GSI1SK of the last item of the previous page.
func (s *Store) ListJobs(ctx context.Context, limit int, cursor string) ([]JobItem, string, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: jobsGSI1PK},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	}

	if cursor != "" {
		_, jobID, ok := strings.Cut(cursor, "#")
		if !ok || jobID == "" {
			return nil, "", ErrInvalidCursor
		}
		input.ExclusiveStartKey = map[string]types.AttributeValue{
			"PK":     &types.AttributeValueMemberS{Value: jobPrefix + jobID},
			"SK":     &types.AttributeValueMemberS{Value: jobSK},
			"GSI1PK": &types.AttributeValueMemberS{Value: jobsGSI1PK},
			"GSI1SK": &types.AttributeValueMemberS{Value: cursor},
		}
	}

	result, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, "", fmt.Errorf("list jobs: %w", err)
	}

	var items []JobItem
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &items); err != nil {
		return nil, "", fmt.Errorf("unmarshal job list: %w", err)
	}

	var nextCursor string
	if result.LastEvaluatedKey != nil {
		if gsi1sk, ok := result.LastEvaluatedKey["GSI1SK"].(*types.AttributeValueMemberS); ok {
			nextCursor = gsi1sk.Value
		}
	}

	return items, nextCursor, nil
}
