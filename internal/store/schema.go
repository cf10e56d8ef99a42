package store

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
)

var ErrSchema = errors.New("document does not match schema")

// ignorable lists stored keys that are accepted without a matching entity field.
var ignorable = map[string]bool{
	"_id": true,
}

var fieldCache sync.Map

func knownFields(t reflect.Type) map[string]bool {
	if v, ok := fieldCache.Load(t); ok {
		return v.(map[string]bool)
	}

	fields := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := strings.ToLower(f.Name)
		if tag, ok := f.Tag.Lookup("bson"); ok {
			key, _, _ := strings.Cut(tag, ",")
			if key == "-" {
				continue
			}
			if key != "" {
				name = key
			}
		}
		fields[name] = true
	}

	fieldCache.Store(t, fields)
	return fields
}

// decodeStrict unmarshals raw into out, rejecting top-level keys that are
// neither fields of the target struct nor ignorable.
func decodeStrict(raw bson.Raw, out any) error {
	t := reflect.TypeOf(out)
	if t == nil || t.Kind() != reflect.Pointer {
		return fmt.Errorf("decode target must be a pointer, got %T", out)
	}

	if t.Elem().Kind() == reflect.Struct {
		fields := knownFields(t.Elem())
		elems, err := raw.Elements()
		if err != nil {
			return fmt.Errorf("read document: %w", err)
		}
		for _, e := range elems {
			if key := e.Key(); !fields[key] && !ignorable[key] {
				return fmt.Errorf("%w: unexpected field %q for %s", ErrSchema, key, t.Elem().Name())
			}
		}
	}

	return bson.Unmarshal(raw, out)
}

func decodeAll(raws []bson.Raw, out any) error {
	v := reflect.ValueOf(out)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("decode target must be a pointer to a slice, got %T", out)
	}

	slice := v.Elem()
	result := reflect.MakeSlice(slice.Type(), 0, len(raws))
	for _, raw := range raws {
		elem := reflect.New(slice.Type().Elem())
		if err := decodeStrict(raw, elem.Interface()); err != nil {
			return err
		}
		result = reflect.Append(result, elem.Elem())
	}

	slice.Set(result)
	return nil
}
