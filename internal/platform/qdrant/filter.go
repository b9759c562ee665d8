package qdrant

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Supported operator objects on a field. Plain scalars mean equality and
// plain slices mean "any of".
const (
	filterOpIn = "$in"
	filterOpEq = "$eq"
	filterOpNe = "$ne"
)

type translatedFilter struct {
	Must    []any
	MustNot []any
}

func (f translatedFilter) asMap() map[string]any {
	out := map[string]any{}
	if len(f.Must) > 0 {
		out["must"] = f.Must
	}
	if len(f.MustNot) > 0 {
		out["must_not"] = f.MustNot
	}
	return out
}

func translateFilterMap(filter map[string]any) (translatedFilter, error) {
	out := translatedFilter{}
	keys := make([]string, 0, len(filter))
	for key := range filter {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		field := strings.TrimSpace(key)
		if field == "" {
			continue
		}
		if strings.HasPrefix(field, "$") {
			return translatedFilter{}, opErr(
				"filter_translate",
				OperationErrorUnsupportedFilter,
				fmt.Sprintf("unsupported top-level filter operator %q", field),
				nil,
			)
		}
		if err := translateField(&out, field, filter[key]); err != nil {
			return translatedFilter{}, err
		}
	}
	return out, nil
}

func translateField(out *translatedFilter, field string, value any) error {
	if ops, ok := value.(map[string]any); ok {
		if len(ops) == 0 {
			return opErr("filter_translate", OperationErrorValidation, fmt.Sprintf("field %q has empty operator map", field), nil)
		}
		names := make([]string, 0, len(ops))
		for op := range ops {
			names = append(names, op)
		}
		sort.Strings(names)
		for _, op := range names {
			switch strings.ToLower(strings.TrimSpace(op)) {
			case filterOpEq, filterOpNe:
				scalar, ok := toScalarValue(ops[op])
				if !ok {
					return opErr("filter_translate", OperationErrorValidation, fmt.Sprintf("operator %s for field %q expects scalar value", op, field), nil)
				}
				if strings.EqualFold(op, filterOpNe) {
					out.MustNot = append(out.MustNot, matchValue(field, scalar))
				} else {
					out.Must = append(out.Must, matchValue(field, scalar))
				}
			case filterOpIn:
				values, err := toScalarSlice(ops[op])
				if err != nil || len(values) == 0 {
					return opErr("filter_translate", OperationErrorValidation, fmt.Sprintf("operator %s for field %q expects a non-empty scalar array", op, field), err)
				}
				out.Must = append(out.Must, matchAny(field, values))
			default:
				return opErr("filter_translate", OperationErrorUnsupportedFilter, fmt.Sprintf("unsupported filter operator %q for field %q", op, field), nil)
			}
		}
		return nil
	}

	if values, err := toScalarSlice(value); err == nil {
		if len(values) == 0 {
			return opErr("filter_translate", OperationErrorValidation, fmt.Sprintf("field %q has an empty value list", field), nil)
		}
		out.Must = append(out.Must, matchAny(field, values))
		return nil
	}
	scalar, ok := toScalarValue(value)
	if !ok {
		return opErr("filter_translate", OperationErrorValidation, fmt.Sprintf("field %q expects scalar, array or operator object", field), nil)
	}
	out.Must = append(out.Must, matchValue(field, scalar))
	return nil
}

func matchValue(key string, value any) map[string]any {
	return map[string]any{"key": key, "match": map[string]any{"value": value}}
}

func matchAny(key string, values []any) map[string]any {
	return map[string]any{"key": key, "match": map[string]any{"any": values}}
}

func toScalarSlice(value any) ([]any, error) {
	switch typed := value.(type) {
	case []any:
		out := make([]any, 0, len(typed))
		for _, v := range typed {
			scalar, ok := toScalarValue(v)
			if !ok {
				return nil, fmt.Errorf("expected scalar, got %T", v)
			}
			out = append(out, scalar)
		}
		return out, nil
	case []string:
		out := make([]any, 0, len(typed))
		for _, v := range typed {
			out = append(out, v)
		}
		return out, nil
	case []int:
		out := make([]any, 0, len(typed))
		for _, v := range typed {
			out = append(out, v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected scalar array, got %T", value)
	}
}

func toScalarValue(value any) (any, bool) {
	switch typed := value.(type) {
	case string, bool, int, int64, uint64, float64:
		return typed, true
	case int32:
		return int(typed), true
	case float32:
		return float64(typed), true
	case json.Number:
		if i, err := typed.Int64(); err == nil {
			return i, true
		}
		if f, err := typed.Float64(); err == nil {
			return f, true
		}
		return nil, false
	case fmt.Stringer:
		return typed.String(), true
	default:
		return nil, false
	}
}
