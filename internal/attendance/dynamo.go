package attendance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"faceattend/internal/recognition"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoStore keeps records in a DynamoDB table whose partition key is recordKey.
type DynamoStore struct {
	client DynamoAPI
	table  string
}

// NewDynamoStore creates a store over table.
func NewDynamoStore(client DynamoAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

// Ping fails unless the table exists and is ACTIVE or UPDATING.
func (d *DynamoStore) Ping(ctx context.Context) error {
	out, err := d.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(d.table)})
	if err != nil {
		return fmt.Errorf("describe table %s: %w", d.table, err)
	}
	if out.Table == nil {
		return fmt.Errorf("describe table %s: empty description", d.table)
	}
	switch out.Table.TableStatus {
	case types.TableStatusActive, types.TableStatusUpdating:
		return nil
	default:
		return fmt.Errorf("table %s is %s", d.table, out.Table.TableStatus)
	}
}

// status, date and timestamp are DynamoDB reserved words.
var dynamoNames = map[string]string{
	"#status": "status",
	"#date":   "date",
	"#ts":     "timestamp",
}

func (d *DynamoStore) Get(ctx context.Context, id recognition.Identity) (*Record, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.table),
		Key:            map[string]types.AttributeValue{"recordKey": &types.AttributeValueMemberS{Value: id.Key()}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	rec, err := decodeItem(out.Item)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (d *DynamoStore) Upsert(ctx context.Context, rec Record) error {
	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(d.table),
		Key:                      map[string]types.AttributeValue{"recordKey": &types.AttributeValueMemberS{Value: rec.Identity().Key()}},
		UpdateExpression:         aws.String("SET className = :c, studentName = :n, #status = :s, #date = :d, #ts = :t ADD version :one"),
		ExpressionAttributeNames: dynamoNames,
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c":   &types.AttributeValueMemberS{Value: rec.Class},
			":n":   &types.AttributeValueMemberS{Value: rec.Student},
			":s":   &types.AttributeValueMemberS{Value: string(rec.Status)},
			":d":   &types.AttributeValueMemberS{Value: rec.Date},
			":t":   &types.AttributeValueMemberS{Value: rec.UpdatedAt.UTC().Format(time.RFC3339Nano)},
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
	})
	return err
}

func (d *DynamoStore) PutIfMatch(ctx context.Context, expected int64, rec Record) error {
	rec.Version = expected + 1
	in := &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      encodeItem(rec),
	}
	if expected == 0 {
		in.ConditionExpression = aws.String("attribute_not_exists(recordKey)")
	} else {
		in.ConditionExpression = aws.String("version = :expected")
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(expected, 10)},
		}
	}

	_, err := d.client.PutItem(ctx, in)
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return ErrConflict
	}
	return err
}

// ListByClass scans the table; the table is small (one row per student).
func (d *DynamoStore) ListByClass(ctx context.Context, class string) ([]Record, error) {
	p := dynamodb.NewScanPaginator(d.client, &dynamodb.ScanInput{
		TableName:        aws.String(d.table),
		FilterExpression: aws.String("className = :c"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c": &types.AttributeValueMemberS{Value: class},
		},
		ConsistentRead: aws.Bool(true),
	})

	var res []Record
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			rec, err := decodeItem(item)
			if err != nil {
				return nil, err
			}
			res = append(res, rec)
		}
	}
	return res, nil
}

func encodeItem(rec Record) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"recordKey":   &types.AttributeValueMemberS{Value: rec.Identity().Key()},
		"className":   &types.AttributeValueMemberS{Value: rec.Class},
		"studentName": &types.AttributeValueMemberS{Value: rec.Student},
		"status":      &types.AttributeValueMemberS{Value: string(rec.Status)},
		"date":        &types.AttributeValueMemberS{Value: rec.Date},
		"timestamp":   &types.AttributeValueMemberS{Value: rec.UpdatedAt.UTC().Format(time.RFC3339Nano)},
		"version":     &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.Version, 10)},
	}
}

func decodeItem(item map[string]types.AttributeValue) (Record, error) {
	str := func(name string) string {
		if v, ok := item[name].(*types.AttributeValueMemberS); ok {
			return v.Value
		}
		return ""
	}

	rec := Record{
		Class:   str("className"),
		Student: str("studentName"),
		Status:  Status(str("status")),
		Date:    str("date"),
	}
	if ts := str("timestamp"); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return Record{}, fmt.Errorf("decode timestamp of %s: %w", str("recordKey"), err)
		}
		rec.UpdatedAt = t
	}
	if v, ok := item["version"].(*types.AttributeValueMemberN); ok {
		n, err := strconv.ParseInt(v.Value, 10, 64)
		if err != nil {
			return Record{}, fmt.Errorf("decode version of %s: %w", str("recordKey"), err)
		}
		rec.Version = n
	}
	return rec, nil
}
