package ir

import "strings"

// Attribute references are whole-value URI strings of the form
//
//	ref://<type>.<name>/<attribute>
//
// pointing at another resource's output attribute. They double as implicit
// dependency edges and are resolved against applied state during apply.

const refScheme = "ref://"

// Unknown is the placeholder for an attribute value that only exists once the
// referenced resource has been applied.
const Unknown = "(known after apply)"

// Address joins a type and name into the canonical "type.name" address.
func Address(typ, name string) string {
	if typ == "" {
		return name
	}
	return typ + "." + name
}

// SplitAddress splits a canonical address back into type and name.
func SplitAddress(addr string) (typ, name string, ok bool) {
	typ, name, ok = strings.Cut(addr, ".")
	if !ok || typ == "" || name == "" {
		return "", "", false
	}
	return typ, name, true
}

// MakeRef builds the reference URI for addr's attribute.
func MakeRef(addr, attribute string) string {
	return refScheme + addr + "/" + attribute
}

// IsRef reports whether v is a reference URI.
func IsRef(v any) bool {
	s, ok := v.(string)
	return ok && strings.HasPrefix(s, refScheme)
}

// ParseRef splits a reference URI into the referenced address and attribute.
// ok is false when v is not a well-formed reference.
func ParseRef(v any) (addr, attribute string, ok bool) {
	s, isStr := v.(string)
	if !isStr || !strings.HasPrefix(s, refScheme) {
		return "", "", false
	}
	rest := strings.TrimPrefix(s, refScheme)
	addr, attribute, ok = strings.Cut(rest, "/")
	if !ok || addr == "" || attribute == "" {
		return "", "", false
	}
	if _, _, addrOK := SplitAddress(addr); !addrOK {
		return "", "", false
	}
	return addr, attribute, true
}
