package query

import (
	"encoding/json"
	"fmt"

	"github.com/rangeos/engine/internal/querykey"
	"github.com/rangeos/engine/pkg/utils"
)

// Key identifies one cached query: a resource namespace followed by the
// options or id that select the data, e.g. [range-ips, {"limit":10}].
type Key struct {
	resource querykey.Key
	parts    []any
}

// NewKey builds a key under resource.
func NewKey(resource querykey.Key, parts ...any) Key {
	return Key{resource: resource, parts: parts}
}

// Resource is the namespace used by invalidation.
func (k Key) Resource() querykey.Key { return k.resource }

// Hash is the stable identity of the key: "<resource>:<sha256 of parts>".
// Parts are hashed through their JSON form, so maps and structs with the same
// content collide on purpose.
func (k Key) Hash() string {
	b, err := json.Marshal(k.parts)
	if err != nil {
		b = []byte(fmt.Sprintf("%#v", k.parts))
	}
	return string(k.resource) + ":" + utils.HexSHA256(b)
}

// String implements fmt.Stringer.
func (k Key) String() string {
	b, _ := json.Marshal(k.parts)
	return fmt.Sprintf("[%s %s]", k.resource, b)
}
