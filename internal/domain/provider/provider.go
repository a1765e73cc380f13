// Package provider is the static registry of external banks the aggregator talks to.
package provider

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ID identifies an external bank. The numbering matches the client_id values
// callers already send.
type ID int

const (
	VBank ID = 1
	SBank ID = 2
	ABank ID = 3
)

// ErrUnknownProvider is returned for ids or names outside the registry.
var ErrUnknownProvider = errors.New("unknown provider")

var names = map[ID]string{
	VBank: "vbank",
	SBank: "sbank",
	ABank: "abank",
}

// AllIDs lists every known provider in id order.
func AllIDs() []ID {
	return []ID{VBank, SBank, ABank}
}

// Name returns the short lowercase name ("vbank").
func (id ID) Name() string {
	if n, ok := names[id]; ok {
		return n
	}
	return "bank" + strconv.Itoa(int(id))
}

func (id ID) String() string {
	return id.Name()
}

// Valid reports whether id is one of the known providers.
func (id ID) Valid() bool {
	_, ok := names[id]
	return ok
}

// ParseID accepts either the numeric id ("2") or the short name ("sbank").
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if n, err := strconv.Atoi(s); err == nil {
		id := ID(n)
		if !id.Valid() {
			return 0, fmt.Errorf("%w: %d", ErrUnknownProvider, n)
		}
		return id, nil
	}
	for id, name := range names {
		if name == s {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownProvider, s)
}

// ParseIDList parses a comma-separated provider list ("1,3" or "vbank,abank").
// An empty string yields a nil slice meaning "no filter". Duplicates are dropped.
func ParseIDList(s string) ([]ID, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	seen := make(map[ID]struct{})
	var ids []ID
	for _, part := range strings.Split(s, ",") {
		id, err := ParseID(part)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Provider is the static configuration of one bank.
type Provider struct {
	ID          ID
	DisplayName string
	BaseURL     string
}

// Name returns the short provider name.
func (p Provider) Name() string {
	return p.ID.Name()
}

// TeamCredentials authenticate the aggregator itself (not the end user)
// against every provider.
type TeamCredentials struct {
	ClientID     string
	ClientSecret string
	TeamName     string
}

// ClientIDFor returns the per-user client identifier providers expect ("team222-7").
func (c TeamCredentials) ClientIDFor(userID int64) string {
	return fmt.Sprintf("%s-%d", c.ClientID, userID)
}
