package record

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// ErrNilKey is returned when a row has no primary key value
var ErrNilKey = errors.New("primary key cannot be nil")

// KeyString normalizes a primary key value so that the same identity read
// through different drivers (int vs int64, uuid.UUID vs its text form, raw
// 16-byte uuids) maps onto one index entry.
func KeyString(id any) (string, error) {
	if id == nil {
		return "", ErrNilKey
	}

	switch v := id.(type) {
	case string:
		return v, nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uuid.UUID:
		return v.String(), nil
	case [16]byte:
		return uuid.UUID(v).String(), nil
	case []byte:
		if len(v) == 16 {
			if u, err := uuid.FromBytes(v); err == nil {
				return u.String(), nil
			}
		}
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}
