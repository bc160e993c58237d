// internal/approval/search.go
package approval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"property-approvals/internal/common/logger"
)

// AuditIndexer mirrors every request write into Elasticsearch so support
// staff can search the approval history with free text. The relational
// store stays the source of truth; the index is rebuildable.
type AuditIndexer struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewAuditIndexer(client *elasticsearch.Client, index string, log logger.Logger) *AuditIndexer {
	return &AuditIndexer{
		client: client,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "audit-indexer"}),
	}
}

// Index upserts the request document under its id. One document per
// request, overwritten on every status change.
func (a *AuditIndexer) Index(ctx context.Context, req *Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}

	indexReq := esapi.IndexRequest{
		Index:      a.index,
		DocumentID: req.ID.String(),
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}

	res, err := indexReq.Do(ctx, a.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index request for %s returned %s", req.ID, res.Status())
	}

	a.logger.Debug("request indexed", map[string]interface{}{
		"requestId": req.ID.String(),
		"status":    req.Status.String(),
	})
	return nil
}
