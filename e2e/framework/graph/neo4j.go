package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

const neo4jBatchSize = 200

// Neo4jConfig addresses the database a graph is exported to.
type Neo4jConfig struct {
	URI      string
	User     string
	Password string
	Database string
}

// ExportToNeo4j merges g into Neo4j. Nodes carry the E2E label and are keyed by id,
// so exporting the same run twice is idempotent.
func ExportToNeo4j(ctx context.Context, cfg Neo4jConfig, g *Graph, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URI == "" {
		return fmt.Errorf("neo4j uri is required")
	}
	if g == nil {
		logger.Warn("neo4j export skipped: graph is nil")
		return nil
	}
	logger.Info("neo4j export starting", zap.String("uri", cfg.URI), zap.Int("nodes", len(g.Nodes)), zap.Int("edges", len(g.Edges)))

	auth := neo4j.NoAuth()
	if cfg.User != "" || cfg.Password != "" {
		auth = neo4j.BasicAuth(cfg.User, cfg.Password, "")
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth)
	if err != nil {
		return err
	}
	defer func() {
		if err := driver.Close(ctx); err != nil {
			logger.Warn("neo4j close failed", zap.Error(err))
		}
	}()

	if err := driver.VerifyConnectivity(ctx); err != nil {
		return err
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: cfg.Database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	if err := ensureNeo4jSchema(ctx, session); err != nil {
		return err
	}
	if err := writeNeo4jNodes(ctx, session, g.Nodes); err != nil {
		return err
	}
	if err := writeNeo4jEdges(ctx, session, g.Edges); err != nil {
		return err
	}

	logger.Info("neo4j export complete", zap.Int("nodes", len(g.Nodes)), zap.Int("edges", len(g.Edges)))
	return nil
}

func ensureNeo4jSchema(ctx context.Context, session neo4j.SessionWithContext) error {
	statements := []string{
		"CREATE CONSTRAINT e2e_node_id IF NOT EXISTS FOR (n:E2E) REQUIRE n.id IS UNIQUE",
		"CREATE INDEX e2e_node_type IF NOT EXISTS FOR (n:E2E) ON (n.type)",
	}
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, statement := range statements {
			if _, err := tx.Run(ctx, statement, nil); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// nodeRows flattens nodes into the parameter rows of the MERGE statement.
func nodeRows(nodes []Node) []map[string]any {
	rows := make([]map[string]any, 0, len(nodes))
	for _, node := range nodes {
		rows = append(rows, map[string]any{
			"id":          node.ID,
			"type":        node.Type,
			"label":       node.Label,
			"status":      attributeValue(node.Attributes, "status"),
			"action":      attributeValue(node.Attributes, "action"),
			"viewport":    attributeValue(node.Attributes, "viewport"),
			"kind":        attributeValue(node.Attributes, "kind"),
			"duration_ms": attributeInt(node.Attributes, "duration_ms"),
			"attrs":       encodeAttributes(node.Attributes),
		})
	}
	return rows
}

func writeNeo4jNodes(ctx context.Context, session neo4j.SessionWithContext, nodes []Node) error {
	rows := nodeRows(nodes)
	for i := 0; i < len(rows); i += neo4jBatchSize {
		chunk := rows[i:min(i+neo4jBatchSize, len(rows))]
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			_, err := tx.Run(ctx, `
UNWIND $rows AS row
MERGE (n:E2E {id: row.id})
SET n.type = row.type,
    n.label = row.label,
    n.status = row.status,
    n.action = row.action,
    n.viewport = row.viewport,
    n.kind = row.kind,
    n.duration_ms = row.duration_ms,
    n.attrs = row.attrs`, map[string]any{"rows": chunk})
			return nil, err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func writeNeo4jEdges(ctx context.Context, session neo4j.SessionWithContext, edges []Edge) error {
	edgesByType := make(map[string][]map[string]any)
	for _, edge := range edges {
		relType := sanitizeRelType(edge.Type)
		edgesByType[relType] = append(edgesByType[relType], map[string]any{
			"from":  edge.From,
			"to":    edge.To,
			"type":  edge.Type,
			"attrs": encodeAttributes(edge.Attributes),
		})
	}

	for relType, rows := range edgesByType {
		query := fmt.Sprintf(`
UNWIND $rows AS row
MATCH (from:E2E {id: row.from})
MATCH (to:E2E {id: row.to})
MERGE (from)-[r:%s]->(to)
SET r.type = row.type,
    r.attrs = row.attrs`, relType)
		for i := 0; i < len(rows); i += neo4jBatchSize {
			chunk := rows[i:min(i+neo4jBatchSize, len(rows))]
			_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
				_, err := tx.Run(ctx, query, map[string]any{"rows": chunk})
				return nil, err
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// sanitizeRelType keeps relationship types safe to splice into Cypher.
func sanitizeRelType(value string) string {
	clean := strings.TrimSpace(strings.ToUpper(value))
	if clean == "" {
		return "RELATED_TO"
	}
	for _, r := range clean {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			continue
		}
		return "RELATED_TO"
	}
	return clean
}

func encodeAttributes(attrs map[string]interface{}) string {
	if len(attrs) == 0 {
		return ""
	}
	payload, err := json.Marshal(attrs)
	if err != nil {
		return ""
	}
	return string(payload)
}

// decodeAttributes reverses encodeAttributes, rendering every value as a string.
func decodeAttributes(payload string) map[string]string {
	out := map[string]string{}
	if payload == "" {
		return out
	}
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return out
	}
	for key, value := range raw {
		if value == nil {
			continue
		}
		out[key] = fmt.Sprint(value)
	}
	return out
}

func attributeValue(attrs map[string]interface{}, key string) string {
	value, ok := attrs[key]
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return typed
	case fmt.Stringer:
		return typed.String()
	default:
		return fmt.Sprint(value)
	}
}

func attributeInt(attrs map[string]interface{}, key string) int64 {
	switch typed := attrs[key].(type) {
	case int64:
		return typed
	case int:
		return int64(typed)
	case float64:
		return int64(typed)
	default:
		return 0
	}
}
