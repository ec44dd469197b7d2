package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// bindMethod looks up method on object and adapts it to an Action. The
// method may take a leading context.Context; remaining parameters are filled
// from the call arguments, converting or JSON re-decoding values that arrived
// over the wire. A trailing error result is returned as the call error.
func bindMethod(object any, method string) (Action, error) {
	if object == nil {
		return nil, fmt.Errorf("%w: %s on nil instance", ErrNoAction, method)
	}
	fn := reflect.ValueOf(object).MethodByName(method)
	if !fn.IsValid() {
		return nil, fmt.Errorf("%w: method %s not found on %T", ErrNoAction, method, object)
	}
	return func(ctx context.Context, args ...any) (any, error) {
		return invoke(ctx, fn, args)
	}, nil
}

func invoke(ctx context.Context, fn reflect.Value, args []any) (any, error) {
	fnType := fn.Type()
	in := make([]reflect.Value, 0, fnType.NumIn())

	first := 0
	if fnType.NumIn() > 0 && fnType.In(0) == contextType {
		in = append(in, reflect.ValueOf(ctx))
		first = 1
	}

	fixed := fnType.NumIn() - first
	if fnType.IsVariadic() {
		fixed--
		if len(args) < fixed {
			return nil, fmt.Errorf("expected at least %d arguments, got %d", fixed, len(args))
		}
	} else if len(args) != fixed {
		return nil, fmt.Errorf("expected %d arguments, got %d", fixed, len(args))
	}

	for i, arg := range args {
		var paramType reflect.Type
		if i < fixed {
			paramType = fnType.In(first + i)
		} else {
			paramType = fnType.In(fnType.NumIn() - 1).Elem()
		}
		v, err := argValue(arg, paramType)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		in = append(in, v)
	}

	out := fn.Call(in)
	return splitResults(out)
}

func argValue(arg any, paramType reflect.Type) (reflect.Value, error) {
	if arg == nil {
		return reflect.Zero(paramType), nil
	}
	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(paramType) {
		return v, nil
	}
	if numeric(v.Kind()) && numeric(paramType.Kind()) {
		return v.Convert(paramType), nil
	}
	raw, err := json.Marshal(arg)
	if err != nil {
		return reflect.Value{}, err
	}
	target := reflect.New(paramType)
	if err := json.Unmarshal(raw, target.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("cannot use %T as %s: %w", arg, paramType, err)
	}
	return target.Elem(), nil
}

func numeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func splitResults(out []reflect.Value) (any, error) {
	if len(out) == 0 {
		return nil, nil
	}
	last := out[len(out)-1]
	var err error
	if last.Type().Implements(errorType) {
		if !last.IsNil() {
			err = last.Interface().(error)
		}
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		return nil, err
	}
	return out[0].Interface(), err
}
