// Repair audiobook job records in DynamoDB: backfill the GSI1 list index on
// JOB# items that lack it, and fail jobs left mid-flight by a crashed server.
//
// Usage:
//
//	go run ./scripts/job-maintenance --dry-run                  # preview changes
//	go run ./scripts/job-maintenance                             # apply changes
//	go run ./scripts/job-maintenance --stale-after 2h            # fail jobs stuck for 2h
//	go run ./scripts/job-maintenance --table storytime-prod      # custom table name
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/apresai/storytime/internal/mcpserver"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var terminal = map[string]bool{
	string(mcpserver.JobStatusComplete): true,
	string(mcpserver.JobStatusFailed):   true,
}

func main() {
	tableName := flag.String("table", "storytime-jobs", "DynamoDB table name")
	region := flag.String("region", "us-east-1", "AWS region")
	staleAfter := flag.Duration("stale-after", 0, "Fail unfinished jobs created longer ago than this (0 = skip)")
	dryRun := flag.Bool("dry-run", false, "Preview changes without writing")
	flag.Parse()

	ctx := context.Background()
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(*region))
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	client := dynamodb.NewFromConfig(cfg)
	store := mcpserver.NewStore(client, *tableName)

	fmt.Printf("Table: %s | Stale after: %v | Dry run: %v\n", *tableName, *staleAfter, *dryRun)

	action := "UPDATE"
	if *dryRun {
		action = "DRY-RUN"
	}
	cutoff := time.Now().Add(-*staleAfter)

	var lastKey map[string]types.AttributeValue
	var scanned, indexed, failed int

	for {
		input := &dynamodb.ScanInput{
			TableName:        tableName,
			FilterExpression: aws.String("begins_with(PK, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":prefix": &types.AttributeValueMemberS{Value: "JOB#"},
			},
		}
		if lastKey != nil {
			input.ExclusiveStartKey = lastKey
		}

		result, err := client.Scan(ctx, input)
		if err != nil {
			log.Fatalf("scan: %v", err)
		}

		for _, item := range result.Items {
			scanned++
			pk := attrStr(item, "PK")
			jobID := strings.TrimPrefix(pk, "JOB#")
			createdAt := attrStr(item, "createdAt")

			if attrStr(item, "GSI1PK") == "" && createdAt != "" {
				gsi1sk := createdAt + "#" + jobID
				fmt.Printf("[%s] %s: GSI1PK=AUDIOBOOKS GSI1SK=%s\n", action, jobID, gsi1sk)
				if !*dryRun {
					_, err := client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
						TableName: tableName,
						Key: map[string]types.AttributeValue{
							"PK": &types.AttributeValueMemberS{Value: pk},
							"SK": &types.AttributeValueMemberS{Value: "METADATA"},
						},
						UpdateExpression: aws.String("SET GSI1PK = :g1pk, GSI1SK = :g1sk"),
						ExpressionAttributeValues: map[string]types.AttributeValue{
							":g1pk": &types.AttributeValueMemberS{Value: "AUDIOBOOKS"},
							":g1sk": &types.AttributeValueMemberS{Value: gsi1sk},
						},
					})
					if err != nil {
						log.Printf("ERROR indexing %s: %v", jobID, err)
						continue
					}
				}
				indexed++
			}

			if *staleAfter <= 0 || terminal[attrStr(item, "status")] {
				continue
			}
			created, err := time.Parse(time.RFC3339, createdAt)
			if err != nil || created.After(cutoff) {
				continue
			}
			fmt.Printf("[%s] %s: status=%s created=%s -> failed\n", action, jobID, attrStr(item, "status"), createdAt)
			if !*dryRun {
				msg := fmt.Sprintf("abandoned after %v without finishing", *staleAfter)
				if err := store.FailJob(ctx, jobID, msg); err != nil {
					log.Printf("ERROR failing %s: %v", jobID, err)
					continue
				}
			}
			failed++
		}

		lastKey = result.LastEvaluatedKey
		if lastKey == nil {
			break
		}
	}

	fmt.Printf("\nDone. Scanned: %d, Indexed: %d, Failed stale: %d\n", scanned, indexed, failed)
	if *dryRun {
		fmt.Println("(dry run, no changes written)")
	}
}

func attrStr(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}
