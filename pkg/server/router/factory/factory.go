// Package factory picks the HTTP router adapter named by router_type.
package factory

import (
	"fmt"
	"strings"

	"github.com/nimburion/crudkit/pkg/server/router"
	ginadapter "github.com/nimburion/crudkit/pkg/server/router/gin"
	gorillaadapter "github.com/nimburion/crudkit/pkg/server/router/gorilla"
)

// Kind names a router adapter.
type Kind string

// Router adapters. Gin is used when router_type is empty.
const (
	Gin     Kind = "gin"
	Gorilla Kind = "gorilla"
)

// Kinds lists the adapters in preference order.
var Kinds = []Kind{Gin, Gorilla}

// ParseKind resolves a router_type value. Matching ignores case and
// surrounding blanks.
func ParseKind(routerType string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(routerType)))
	if k == "" {
		return Gin, nil
	}
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	names := make([]string, len(Kinds))
	for i, known := range Kinds {
		names[i] = string(known)
	}
	return "", fmt.Errorf("unsupported router type %q (supported: %s)", routerType, strings.Join(names, ", "))
}

// NewRouter creates the adapter for routerType.
func NewRouter(routerType string) (router.Router, error) {
	kind, err := ParseKind(routerType)
	if err != nil {
		return nil, err
	}
	switch kind {
	case Gorilla:
		return gorillaadapter.NewRouter(), nil
	default:
		return ginadapter.NewRouter(), nil
	}
}
