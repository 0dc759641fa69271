package uor

import (
	"encoding/json"
	"fmt"

	"github.com/UOR-Foundation/uordb/namespaces"
)

// Type names an object kind within a namespace. The core set below is closed;
// content layers may introduce further types as long as they satisfy
// component naming rules.
type Type string

// Core object types.
const (
	TypeConcept   Type = "concept"
	TypeResource  Type = "resource"
	TypeTopic     Type = "topic"
	TypePredicate Type = "predicate"
	TypeResolver  Type = "resolver"
	TypeMessage   Type = "message"
	TypeThread    Type = "thread"
	TypeIdentity  Type = "identity"
)

// CoreTypes lists the object types every namespace carries.
func CoreTypes() []Type {
	return []Type{
		TypeConcept,
		TypeResource,
		TypeTopic,
		TypePredicate,
		TypeResolver,
		TypeMessage,
		TypeThread,
		TypeIdentity,
	}
}

// Validate reports whether the type is a well-formed component name.
func (t Type) Validate() error {
	if _, err := namespaces.NormalizeComponent(string(t)); err != nil {
		return fmt.Errorf("uor: object type: %w", err)
	}
	return nil
}

// Object is the unit of content in a namespace. Data holds the logical
// content; CanonicalRepresentation holds its deterministic encoding.
// ObserverFrame names an optional projection context and never participates
// in identity or canonicalization.
type Object struct {
	ID                      string          `json:"id"`
	Type                    Type            `json:"type"`
	Namespace               string          `json:"namespace"`
	Data                    json.RawMessage `json:"data"`
	CanonicalRepresentation string          `json:"canonicalRepresentation,omitempty"`
	ObserverFrame           string          `json:"observerFrame,omitempty"`
}

// Reference returns the reference addressing this object.
func (o *Object) Reference() Reference {
	return Reference{Namespace: o.Namespace, Type: o.Type, ID: o.ID}
}

// Validate checks the identity fields and data payload.
func (o *Object) Validate() error {
	if err := o.Reference().Validate(); err != nil {
		return err
	}
	if len(o.Data) == 0 {
		return fmt.Errorf("uor: object %s has no data", o.Reference())
	}
	if !json.Valid(o.Data) {
		return fmt.Errorf("uor: object %s data is not valid JSON", o.Reference())
	}
	return nil
}
