// Package graphlink adapts a Neo4j/Memgraph graph handle into an
// optional RelationshipHint capability the matching engine can consult
// for an extra blocking signal when a MatchingSpec declares
// relationship-based blocking (e.g. "people at the same merged
// organization"). Blocking works fully without it; this is additive.
package graphlink

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/reconcile/internal/tracing"
)

// Config holds the Bolt connection settings for the graph handle.
type Config struct {
	URI      string
	Username string
	Password string
}

// Client wraps a neo4j driver for relationship-hint lookups.
type Client struct {
	driver neo4j.DriverWithContext
	logger ectologger.Logger
}

// NewClient dials the graph database. No query runs until first use.
func NewClient(cfg Config, logger ectologger.Logger) (*Client, error) {
	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("graphlink: create driver: %w", err)
	}

	return &Client{driver: driver, logger: logger}, nil
}

// Close releases the driver's connection pool.
func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// VerifyConnectivity checks that the graph database is reachable.
func (c *Client) VerifyConnectivity(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

func (c *Client) executeRead(ctx context.Context, work func(tx neo4j.ManagedTransaction) (any, error)) (any, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)
	return session.ExecuteRead(ctx, work)
}

// sanitizeLabel defends against cypher injection through a
// caller-supplied relationship-type string, since Cypher does not
// support parameterized relationship types.
func sanitizeLabel(label string) string {
	var b strings.Builder
	for _, r := range label {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "RELATED_TO"
	}
	return b.String()
}

// RelatedIDs returns the IDs of entities connected to recordID by a
// relationship of type relType, in either direction. The tracing span
// and read-only transaction mirror the teacher's RelationshipService
// query shape.
func (c *Client) RelatedIDs(ctx context.Context, projectID, recordID, relType string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "graphlink.Client.RelatedIDs")
	defer span.End()

	cypher := fmt.Sprintf(`
		MATCH (a:Entity {id: $id, project_id: $project_id})-[:%s]-(b:Entity)
		RETURN DISTINCT b.id AS id
	`, sanitizeLabel(relType))

	res, err := c.executeRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"id":         recordID,
			"project_id": projectID,
		})
		if err != nil {
			return nil, err
		}
		var ids []string
		for result.Next(ctx) {
			id, _ := result.Record().Get("id")
			if s, ok := id.(string); ok {
				ids = append(ids, s)
			}
		}
		return ids, result.Err()
	})
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Warnf("graphlink: related-ids lookup failed for %s", recordID)
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return res.([]string), nil
}
