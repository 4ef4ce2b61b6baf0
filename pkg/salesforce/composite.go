package salesforce

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
)

// maxBatchSize is the Salesforce Collections API limit per request.
const maxBatchSize = 200

// BulkInsert splits records into batches of 200 (SF Collections API limit)
// and sends them via InsertCollection. Results follow record order.
func BulkInsert(ctx context.Context, c Client, sObjectName string, records []map[string]any) ([]CollectionResult, error) {
	var all []CollectionResult
	for start := 0; start < len(records); start += maxBatchSize {
		end := min(start+maxBatchSize, len(records))
		results, err := c.InsertCollection(ctx, sObjectName, records[start:end])
		if err != nil {
			return all, eris.Wrap(err, fmt.Sprintf("sf: bulk insert %s batch %d-%d", sObjectName, start, end))
		}
		all = append(all, results...)
	}
	return all, nil
}

// BulkUpdate is BulkInsert for updates of existing records.
func BulkUpdate(ctx context.Context, c Client, sObjectName string, records []CollectionRecord) ([]CollectionResult, error) {
	var all []CollectionResult
	for start := 0; start < len(records); start += maxBatchSize {
		end := min(start+maxBatchSize, len(records))
		results, err := c.UpdateCollection(ctx, sObjectName, records[start:end])
		if err != nil {
			return all, eris.Wrap(err, fmt.Sprintf("sf: bulk update %s batch %d-%d", sObjectName, start, end))
		}
		all = append(all, results...)
	}
	return all, nil
}
