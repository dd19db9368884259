package mapping

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jRepository implements Repository on Neo4j. Mapping edges are stored
// as (:Component {name, library})-[:MIGRATES_TO {props}]->(:Component), and
// guidance blocks hang off a single (:MigrationAssets) node.
type Neo4jRepository struct {
	driver neo4j.DriverWithContext
}

// NewNeo4j creates a Neo4j-backed repository.
func NewNeo4j(ctx context.Context, uri, username, password string) (*Neo4jRepository, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Neo4jRepository{driver: driver}, nil
}

func (r *Neo4jRepository) StoreAssets(ctx context.Context, a *Assets) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx,
			"MERGE (m:MigrationAssets {id: 'default'}) "+
				"SET m.source_prefix = $sp, m.target_prefix = $tp, m.plan = $plan, m.rules = $rules, m.constraints = $constraints",
			map[string]any{
				"sp":          a.SourcePrefix,
				"tp":          a.TargetPrefix,
				"plan":        a.Plan,
				"rules":       a.Rules,
				"constraints": a.Constraints,
			}); err != nil {
			return nil, err
		}

		for source, m := range a.Components {
			if m.Target == "" {
				continue
			}
			if _, err := tx.Run(ctx,
				"MERGE (s:Component {name: $source, library: 'source'}) "+
					"MERGE (t:Component {name: $target, library: 'target'}) "+
					"MERGE (s)-[rel:MIGRATES_TO]->(t) SET rel.props = $props",
				map[string]any{"source": source, "target": m.Target, "props": strings.Join(m.Props, ",")}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("store mapping assets: %w", err)
	}
	return nil
}

func (r *Neo4jRepository) LoadAssets(ctx context.Context) (*Assets, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		a := &Assets{Components: map[string]ComponentMapping{}}

		records, err := tx.Run(ctx,
			"MATCH (m:MigrationAssets {id: 'default'}) RETURN m.source_prefix, m.target_prefix, m.plan, m.rules, m.constraints",
			nil)
		if err != nil {
			return nil, err
		}
		if records.Next(ctx) {
			vals := records.Record().Values
			a.SourcePrefix, _ = vals[0].(string)
			a.TargetPrefix, _ = vals[1].(string)
			a.Plan = toStrings(vals[2])
			a.Rules = toStrings(vals[3])
			a.Constraints = toStrings(vals[4])
		} else {
			return nil, nil
		}

		edges, err := tx.Run(ctx,
			"MATCH (s:Component {library: 'source'})-[rel:MIGRATES_TO]->(t:Component) "+
				"RETURN s.name, t.name, rel.props",
			nil)
		if err != nil {
			return nil, err
		}
		for edges.Next(ctx) {
			vals := edges.Record().Values
			source, _ := vals[0].(string)
			target, _ := vals[1].(string)
			props, _ := vals[2].(string)
			m := ComponentMapping{Target: target}
			if props != "" {
				m.Props = strings.Split(props, ",")
			}
			a.Components[source] = m
		}
		return a, nil
	})
	if err != nil {
		return nil, fmt.Errorf("load mapping assets: %w", err)
	}
	if result == nil {
		return nil, nil
	}
	return result.(*Assets), nil
}

func toStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Close releases the driver.
func (r *Neo4jRepository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

var _ Repository = (*Neo4jRepository)(nil)
