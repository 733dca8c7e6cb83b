package weaviate

import (
	"context"
	"fmt"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// SDK encapsulates all Weaviate operations
type SDK struct {
	client *weaviate.Client
}

// NewSDK creates a new instance of SDK
func NewSDK(client *weaviate.Client) *SDK {
	return &SDK{
		client: client,
	}
}

// EnsureSchema creates the class if it does not exist yet
func (w *SDK) EnsureSchema(ctx context.Context, className string, properties []*models.Property) error {
	exists, err := w.classExists(ctx, className)
	if err != nil {
		return fmt.Errorf("failed to check if class exists: %v", err)
	}
	if exists {
		return nil
	}

	class := &models.Class{
		Class:      className,
		Properties: properties,
		Vectorizer: "none",
	}

	err = w.client.Schema().ClassCreator().WithClass(class).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to create Weaviate class: %v", err)
	}

	return nil
}

// classExists checks if a class exists in the schema
func (w *SDK) classExists(ctx context.Context, className string) (bool, error) {
	schema, err := w.client.Schema().Getter().Do(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get schema: %v", err)
	}

	for _, class := range schema.Classes {
		if class.Class == className {
			return true, nil
		}
	}

	return false, nil
}

// Ready reports whether the Weaviate node answers
func (w *SDK) Ready(ctx context.Context) (bool, error) {
	return w.client.Misc().ReadyChecker().Do(ctx)
}

// VectorObject represents a single object with its vector and properties.
// ID makes batch writes idempotent: writing the same ID replaces the object.
type VectorObject struct {
	ID         string
	Vector     []float32
	Properties map[string]interface{}
}

// BatchUpsertVectors writes multiple vector objects to a class in a single operation
func (w *SDK) BatchUpsertVectors(ctx context.Context, className string, objects []VectorObject) error {
	if len(objects) == 0 {
		return nil
	}

	objs := make([]*models.Object, len(objects))
	for i, obj := range objects {
		objs[i] = &models.Object{
			Class:      className,
			ID:         strfmt.UUID(obj.ID),
			Properties: obj.Properties,
			Vector:     obj.Vector,
		}
	}

	resp, err := w.client.Batch().ObjectsBatcher().WithObjects(objs...).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to batch add vectors: %v", err)
	}
	if len(resp) == 0 {
		return fmt.Errorf("batch operation returned no results")
	}

	for _, r := range resp {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return fmt.Errorf("failed to write object %s: %s", r.ID, r.Result.Errors.Error[0].Message)
		}
	}

	return nil
}

const DefaultQueryLimit = 20

// QueryResult represents a single result from a search
type QueryResult struct {
	ID         string
	Score      float64
	Properties map[string]interface{}
}

// parseResults extracts the objects of className from a GraphQL Get
// response. scoreField is the _additional field holding the score.
func parseResults(data map[string]models.JSONObject, className, scoreField string) []QueryResult {
	var queryResults []QueryResult

	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return queryResults
	}
	objects, ok := get[className].([]interface{})
	if !ok {
		return queryResults
	}

	for _, obj := range objects {
		objMap, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}

		// Create properties map excluding _additional
		properties := make(map[string]interface{})
		for k, v := range objMap {
			if k != "_additional" {
				properties[k] = v
			}
		}

		result := QueryResult{Properties: properties}
		if additional, ok := objMap["_additional"].(map[string]interface{}); ok {
			result.ID, _ = additional["id"].(string)
			result.Score = toFloat(additional[scoreField])
		}
		queryResults = append(queryResults, result)
	}

	return queryResults
}

// toFloat reads a score that Weaviate may send as a number or a string
func toFloat(v interface{}) float64 {
	switch s := v.(type) {
	case float64:
		return s
	case string:
		var f float64
		if _, err := fmt.Sscanf(s, "%g", &f); err == nil {
			return f
		}
	}
	return 0
}
