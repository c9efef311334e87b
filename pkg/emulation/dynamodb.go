package emulation

import (
	"context"
	"fmt"
	"strconv"

	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/afterdarksys/mockfactory/internal/apperr"
)

// conditionOp is the small subset of DynamoDB condition-expression semantics
// spec §4.6 asks for: attribute existence, equality, and comparisons on
// top-level attributes. Rather than parsing the real expression grammar,
// callers build a Condition directly against a decoded attribute name.
type conditionOp string

const (
	condExists    conditionOp = "exists"
	condNotExists conditionOp = "not_exists"
	condEq        conditionOp = "eq"
	condNe        conditionOp = "ne"
	condGt        conditionOp = "gt"
	condLt        conditionOp = "lt"
	condGte       conditionOp = "gte"
	condLte       conditionOp = "lte"
)

// Condition is one top-level-attribute condition for a conditional PutItem.
type Condition struct {
	Attr  string
	Op    conditionOp
	Value any
}

func (c Condition) evaluate(item map[string]any) bool {
	v, exists := item[c.Attr]
	switch c.Op {
	case condExists:
		return exists
	case condNotExists:
		return !exists
	}
	if !exists {
		return false
	}
	switch c.Op {
	case condEq:
		return fmt.Sprint(v) == fmt.Sprint(c.Value)
	case condNe:
		return fmt.Sprint(v) != fmt.Sprint(c.Value)
	case condGt, condLt, condGte, condLte:
		a, aok := toFloat(v)
		b, bok := toFloat(c.Value)
		if !aok || !bok {
			return false
		}
		switch c.Op {
		case condGt:
			return a > b
		case condLt:
			return a < b
		case condGte:
			return a >= b
		case condLte:
			return a <= b
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// dynamoTranslator implements the DynamoDB family (spec §4.6): tables and
// items are stored directly in the relational store, items keyed by
// (hash, range), consistency is strong since there is a single backing
// table per environment+table name.
type dynamoTranslator struct {
	store *dynamoStore
}

func (t *dynamoTranslator) CreateTable(ctx context.Context, environmentID, name, hashKey, rangeKey string) (dynamoTableRow, error) {
	row, err := t.store.createTable(ctx, dynamoTableRow{Name: name, EnvironmentID: environmentID, HashKey: hashKey, RangeKey: rangeKey})
	if err != nil {
		return dynamoTableRow{}, apperr.Wrap(apperr.InternalError, "creating table", err)
	}
	return row, nil
}

func (t *dynamoTranslator) DescribeTable(ctx context.Context, environmentID, name string) (dynamoTableRow, error) {
	row, err := t.store.getTable(ctx, environmentID, name)
	if err != nil {
		return dynamoTableRow{}, apperr.New(apperr.NotFound, "table not found")
	}
	return row, nil
}

func (t *dynamoTranslator) DeleteTable(ctx context.Context, environmentID, name string) error {
	if _, err := t.store.getTable(ctx, environmentID, name); err != nil {
		return apperr.New(apperr.NotFound, "table not found")
	}
	if err := t.store.deleteTable(ctx, environmentID, name); err != nil {
		return apperr.Wrap(apperr.InternalError, "deleting table", err)
	}
	return nil
}

// PutItem writes an item, evaluating cond (if non-nil) against any existing
// item first; a failing condition returns Conflict, matching
// ConditionalCheckFailedException's intent without replicating its wire
// shape.
func (t *dynamoTranslator) PutItem(ctx context.Context, environmentID string, table dynamoTableRow, hashValue, rangeValue string, attrs map[string]any, cond *Condition) error {
	if cond != nil {
		existing, found, err := t.store.getItem(ctx, environmentID, table.Name, hashValue, rangeValue)
		if err != nil {
			return apperr.Wrap(apperr.InternalError, "checking condition", err)
		}
		item := map[string]any{}
		if found {
			item = existing.Attributes
		}
		if !cond.evaluate(item) {
			return apperr.New(apperr.Conflict, "conditional check failed")
		}
	}
	err := t.store.putItem(ctx, dynamoItemRow{
		EnvironmentID: environmentID, TableName: table.Name,
		HashValue: hashValue, RangeValue: rangeValue, Attributes: attrs,
	})
	if err != nil {
		return apperr.Wrap(apperr.InternalError, "putting item", err)
	}
	return nil
}

func (t *dynamoTranslator) GetItem(ctx context.Context, environmentID, tableName, hashValue, rangeValue string) (map[string]dynamodbtypes.AttributeValue, error) {
	item, found, err := t.store.getItem(ctx, environmentID, tableName, hashValue, rangeValue)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, "getting item", err)
	}
	if !found {
		return nil, nil
	}
	return toAttributeValueMap(item.Attributes), nil
}

func (t *dynamoTranslator) DeleteItem(ctx context.Context, environmentID, tableName, hashValue, rangeValue string) error {
	if err := t.store.deleteItem(ctx, environmentID, tableName, hashValue, rangeValue); err != nil {
		return apperr.Wrap(apperr.InternalError, "deleting item", err)
	}
	return nil
}

func (t *dynamoTranslator) Query(ctx context.Context, environmentID, tableName, hashValue string) ([]map[string]dynamodbtypes.AttributeValue, error) {
	rows, err := t.store.queryByHash(ctx, environmentID, tableName, hashValue)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, "querying items", err)
	}
	items := make([]map[string]dynamodbtypes.AttributeValue, 0, len(rows))
	for _, row := range rows {
		items = append(items, toAttributeValueMap(row.Attributes))
	}
	return items, nil
}

func toAttributeValueMap(attrs map[string]any) map[string]dynamodbtypes.AttributeValue {
	out := make(map[string]dynamodbtypes.AttributeValue, len(attrs))
	for k, v := range attrs {
		out[k] = toAttributeValue(v)
	}
	return out
}

func toAttributeValue(v any) dynamodbtypes.AttributeValue {
	switch val := v.(type) {
	case string:
		return &dynamodbtypes.AttributeValueMemberS{Value: val}
	case float64:
		return &dynamodbtypes.AttributeValueMemberN{Value: strconv.FormatFloat(val, 'f', -1, 64)}
	case bool:
		return &dynamodbtypes.AttributeValueMemberBOOL{Value: val}
	case nil:
		return &dynamodbtypes.AttributeValueMemberNULL{Value: true}
	default:
		return &dynamodbtypes.AttributeValueMemberS{Value: fmt.Sprint(val)}
	}
}
