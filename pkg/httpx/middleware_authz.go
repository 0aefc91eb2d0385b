package httpx

import (
	"sort"
	"strings"

	"github.com/aussiebroadwan/tokengate/pkg/jwtx"
)

// KindSet is the set of token kinds a gate admits.
type KindSet map[jwtx.Kind]struct{}

func NewKindSet(kinds ...jwtx.Kind) KindSet {
	s := make(KindSet, len(kinds))
	for _, k := range kinds {
		s[k] = struct{}{}
	}
	return s
}

func (s KindSet) Has(k jwtx.Kind) bool {
	_, ok := s[k]
	return ok
}

func (s KindSet) Empty() bool { return len(s) == 0 }

// refreshOnly reports whether the set admits refresh tokens and nothing else.
func (s KindSet) refreshOnly() bool {
	return len(s) == 1 && s.Has(jwtx.KindRefresh)
}

// Name is a stable label for logs and metrics, e.g. "auth_token+refresh_token".
func (s KindSet) Name() string {
	if s.Empty() {
		return "open"
	}
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k.String())
	}
	sort.Strings(names)
	return strings.Join(names, "+")
}
