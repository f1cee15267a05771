package domain

import (
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ValueType is the declared type of a property definition.
type ValueType string

const (
	ValueString   ValueType = "string"
	ValueNumber   ValueType = "number"
	ValueBoolean  ValueType = "boolean"
	ValueDatetime ValueType = "datetime"
	ValueURL      ValueType = "url"
	ValueNodeRef  ValueType = "node_ref"
)

func ValidValueType(t string) bool {
	switch ValueType(t) {
	case ValueString, ValueNumber, ValueBoolean, ValueDatetime, ValueURL, ValueNodeRef:
		return true
	}
	return false
}

// Check reports whether v is an acceptable literal for the type.
func (t ValueType) Check(v any) bool {
	if v == nil {
		return false
	}
	switch t {
	case ValueString:
		_, ok := v.(string)
		return ok
	case ValueNumber:
		_, ok := ToFloat(v)
		return ok
	case ValueBoolean:
		_, ok := v.(bool)
		return ok
	case ValueDatetime:
		switch x := v.(type) {
		case time.Time:
			return true
		case string:
			_, err := time.Parse(time.RFC3339, x)
			return err == nil
		}
		return false
	case ValueURL:
		s, ok := v.(string)
		if !ok {
			return false
		}
		u, err := url.Parse(s)
		return err == nil && u.Scheme != "" && u.Host != ""
	case ValueNodeRef:
		switch x := v.(type) {
		case uuid.UUID:
			return x != uuid.Nil
		case string:
			_, err := uuid.Parse(x)
			return err == nil
		}
		return false
	}
	return false
}

// ToFloat converts any Go numeric value to float64.
func ToFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		if math.IsNaN(x) {
			return 0, false
		}
		return x, true
	}
	return 0, false
}

// ValuesEqual compares literals, treating all numeric types as equal by value.
// Backends that round-trip through JSON return float64 for every number.
func ValuesEqual(a, b any) bool {
	fa, aNum := ToFloat(a)
	fb, bNum := ToFloat(b)
	if aNum && bNum {
		return fa == fb
	}
	if aNum != bNum {
		return false
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

var reservedConceptKeys = map[string]bool{
	PropIsPrototype: true,
	PropPrototypeID: true,
	PropIsProperty:  true,
	PropIsValue:     true,
	PropIsDocument:  true,
}

type PrototypePayload struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type ConceptPayload struct {
	PrototypeID uuid.UUID      `json:"prototype_id"`
	Data        map[string]any `json:"data"`
}

type PropertyPayload struct {
	Name      string    `json:"name"`
	ValueType ValueType `json:"value_type"`
	Required  bool      `json:"required,omitempty"`
}

type ValuePayload struct {
	PropertyName string `json:"property_name"`
	Literal      any    `json:"literal"`
}

type TagPayload struct {
	Text string `json:"text"`
}

type DocumentPayload struct {
	Version int            `json:"version"`
	Content map[string]any `json:"content"`
}

func NewPrototypeNode(name, description string) (*Node, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, MissingField("name")
	}
	return newNode(uuid.Nil, KindPrototype, []string{name}, map[string]any{
		PropName:        name,
		PropDescription: description,
		PropIsPrototype: true,
	}), nil
}

// NewConceptNode flattens data into the node props. The prototype name is
// the first label so searches can be scoped to it.
func NewConceptNode(prototypeID uuid.UUID, prototypeName, label string, data map[string]any) (*Node, error) {
	if prototypeID == uuid.Nil {
		return nil, MissingField("prototype_id")
	}
	props := make(map[string]any, len(data)+2)
	for k, v := range data {
		if reservedConceptKeys[k] {
			return nil, InvalidValue(k, "reserved property name: "+k)
		}
		props[k] = v
	}
	props[PropIsPrototype] = false
	props[PropPrototypeID] = prototypeID.String()
	return newNode(uuid.Nil, KindConcept, []string{prototypeName, label}, props), nil
}

func NewPropertyNode(prototypeID uuid.UUID, name string, vt ValueType, required bool) (*Node, error) {
	if name == "" {
		return nil, MissingField("name")
	}
	if !ValidValueType(string(vt)) {
		return nil, InvalidValue("value_type", "unknown value type: "+string(vt))
	}
	return newNode(PropertyNodeID(prototypeID, name), KindProperty, []string{name}, map[string]any{
		PropName:        name,
		PropValueType:   string(vt),
		PropRequired:    required,
		PropIsProperty:  true,
		PropPrototypeID: prototypeID.String(),
	}), nil
}

func NewValueNode(conceptID uuid.UUID, propertyName string, literal any) (*Node, error) {
	if propertyName == "" {
		return nil, MissingField("property_name")
	}
	if literal == nil {
		return nil, MissingField(propertyName)
	}
	return newNode(ValueNodeID(conceptID, propertyName), KindValue, nil, map[string]any{
		PropIsValue:      true,
		PropPropertyName: propertyName,
		PropLiteralValue: literal,
	}), nil
}

func NewTagNode(text string) (*Node, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, MissingField("tag")
	}
	return newNode(TagNodeID(text), KindTag, []string{text}, map[string]any{
		PropTag: text,
	}), nil
}

func NewDocumentNode(conceptID uuid.UUID, version int, content map[string]any) (*Node, error) {
	if version < 1 {
		return nil, OutOfRange("version", version, 1, math.MaxInt32)
	}
	if content == nil {
		content = map[string]any{}
	}
	return newNode(DocumentNodeID(conceptID), KindDocument, nil, map[string]any{
		PropIsDocument: true,
		PropVersion:    version,
		PropContent:    content,
	}), nil
}

func (n *Node) Prototype() (PrototypePayload, bool) {
	if n == nil || n.Kind != KindPrototype {
		return PrototypePayload{}, false
	}
	name, _ := n.Props[PropName].(string)
	desc, _ := n.Props[PropDescription].(string)
	return PrototypePayload{Name: name, Description: desc}, true
}

func (n *Node) Concept() (ConceptPayload, bool) {
	if n == nil || n.Kind != KindConcept {
		return ConceptPayload{}, false
	}
	var p ConceptPayload
	if s, ok := n.Props[PropPrototypeID].(string); ok {
		p.PrototypeID, _ = uuid.Parse(s)
	}
	p.Data = make(map[string]any, len(n.Props))
	for k, v := range n.Props {
		if reservedConceptKeys[k] {
			continue
		}
		p.Data[k] = v
	}
	return p, true
}

func (n *Node) Property() (PropertyPayload, bool) {
	if n == nil || n.Kind != KindProperty {
		return PropertyPayload{}, false
	}
	name, _ := n.Props[PropName].(string)
	vt, _ := n.Props[PropValueType].(string)
	required, _ := n.Props[PropRequired].(bool)
	return PropertyPayload{Name: name, ValueType: ValueType(vt), Required: required}, true
}

func (n *Node) Value() (ValuePayload, bool) {
	if n == nil || n.Kind != KindValue {
		return ValuePayload{}, false
	}
	name, _ := n.Props[PropPropertyName].(string)
	return ValuePayload{PropertyName: name, Literal: n.Props[PropLiteralValue]}, true
}

func (n *Node) Tag() (TagPayload, bool) {
	if n == nil || n.Kind != KindTag {
		return TagPayload{}, false
	}
	text, _ := n.Props[PropTag].(string)
	return TagPayload{Text: text}, true
}

func (n *Node) Document() (DocumentPayload, bool) {
	if n == nil || n.Kind != KindDocument {
		return DocumentPayload{}, false
	}
	var p DocumentPayload
	if v, ok := ToFloat(n.Props[PropVersion]); ok {
		p.Version = int(v)
	}
	p.Content, _ = n.Props[PropContent].(map[string]any)
	if p.Content == nil {
		p.Content = map[string]any{}
	}
	return p, true
}
