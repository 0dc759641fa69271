package uor

import (
	"fmt"
	"strings"

	"github.com/UOR-Foundation/uordb/namespaces"
)

// Scheme is the URI scheme for UOR references.
const Scheme = "uor"

// Reference addresses one object as uor://<namespace>/<type>/<id>.
// References are immutable once issued.
type Reference struct {
	Namespace string
	Type      Type
	ID        string
}

// ParseReference parses and validates a uor:// reference string.
func ParseReference(raw string) (Reference, error) {
	raw = strings.TrimSpace(raw)
	prefix := Scheme + "://"
	if !strings.HasPrefix(raw, prefix) {
		return Reference{}, fmt.Errorf("uor: reference %q must start with %s", raw, prefix)
	}
	rest := strings.TrimPrefix(raw, prefix)
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) != 3 {
		return Reference{}, fmt.Errorf("uor: reference %q must have the form %snamespace/type/id", raw, prefix)
	}
	ns, err := namespaces.NormalizeComponent(parts[0])
	if err != nil {
		return Reference{}, fmt.Errorf("uor: reference namespace: %w", err)
	}
	typ, err := namespaces.NormalizeComponent(parts[1])
	if err != nil {
		return Reference{}, fmt.Errorf("uor: reference type: %w", err)
	}
	id, err := namespaces.NormalizeID(parts[2])
	if err != nil {
		return Reference{}, fmt.Errorf("uor: reference id: %w", err)
	}
	return Reference{Namespace: ns, Type: Type(typ), ID: id}, nil
}

// String renders the reference in its canonical uor:// form.
func (r Reference) String() string {
	return Scheme + "://" + r.Namespace + "/" + string(r.Type) + "/" + r.ID
}

// Validate reports whether every component of the reference is well formed.
func (r Reference) Validate() error {
	if _, err := namespaces.NormalizeComponent(r.Namespace); err != nil {
		return fmt.Errorf("uor: reference namespace: %w", err)
	}
	if err := r.Type.Validate(); err != nil {
		return err
	}
	if _, err := namespaces.NormalizeID(r.ID); err != nil {
		return fmt.Errorf("uor: reference id: %w", err)
	}
	return nil
}

// In reports whether the reference belongs to the supplied namespace.
func (r Reference) In(namespace string) bool {
	return r.Namespace == namespace
}
