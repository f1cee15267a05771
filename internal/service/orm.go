package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/Harshitk-cp/protomind/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ORM presents concepts as typed records. Field values live in value nodes
// reached through has_value edges; a per-concept document node caches the
// whole record and is rewritten once per Save.
type ORM struct {
	graph    domain.GraphStore
	protos   *PrototypeService
	registry *SchemaRegistry
	logger   *zap.Logger

	mu    sync.Mutex
	locks map[uuid.UUID]*recordLock
}

type recordLock struct {
	mu   sync.Mutex
	refs int
}

func NewORM(graph domain.GraphStore, protos *PrototypeService, registry *SchemaRegistry, logger *zap.Logger) *ORM {
	return &ORM{
		graph:    graph,
		protos:   protos,
		registry: registry,
		logger:   logger,
		locks:    make(map[uuid.UUID]*recordLock),
	}
}

// lockRecord serializes saves of one concept. The lock entry is dropped once
// no save holds or waits on it.
func (o *ORM) lockRecord(id uuid.UUID) func() {
	o.mu.Lock()
	l, ok := o.locks[id]
	if !ok {
		l = &recordLock{}
		o.locks[id] = l
	}
	l.refs++
	o.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		o.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(o.locks, id)
		}
		o.mu.Unlock()
	}
}

func (o *ORM) Registry() *SchemaRegistry {
	return o.registry
}

// RegisterPrototype creates or reuses the prototype node named in schema and
// one property-definition node per field.
func (o *ORM) RegisterPrototype(ctx context.Context, schema PrototypeSchema) (*PrototypeSchema, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	proto, err := o.protos.FindPrototypeByName(ctx, schema.Name)
	if err != nil {
		return nil, err
	}
	if proto == nil {
		proto, err = o.protos.CreatePrototype(ctx, CreatePrototypeInput{
			Name:        schema.Name,
			Description: schema.Description,
			Source:      "orm",
		})
		if err != nil {
			return nil, err
		}
	}

	prov := domain.NewProvenance("orm")
	for _, f := range schema.Fields {
		prop, err := domain.NewPropertyNode(proto.ID, f.Name, f.Type, f.Required)
		if err != nil {
			return nil, err
		}
		if err := o.graph.UpsertNode(ctx, prop, prov); err != nil {
			return nil, err
		}
		if err := o.graph.UpsertEdge(ctx, domain.NewEdge(proto.ID, prop.ID, domain.RelHasProp, 1), prov); err != nil {
			return nil, err
		}
	}

	registered := schema
	registered.PrototypeID = proto.ID
	registered.Fields = append([]FieldSchema(nil), schema.Fields...)
	o.registry.put(&registered)

	o.logger.Info("orm prototype registered",
		zap.String("name", schema.Name),
		zap.String("prototype_id", proto.ID.String()),
		zap.Int("fields", len(schema.Fields)))
	return &registered, nil
}

// RebuildRegistry restores the schema of every prototype that owns property
// nodes, so records stay readable across restarts of a persistent backend.
// When several prototypes share a name the first one wins, matching
// FindPrototypeByName. Prototypes registered without fields have nothing to
// restore and must be registered again.
func (o *ORM) RebuildRegistry(ctx context.Context) (int, error) {
	protos, err := o.graph.ListNodes(ctx, domain.NodeFilter{Kind: domain.KindPrototype})
	if err != nil {
		return 0, err
	}

	restored := 0
	for i := range protos {
		p, _ := protos[i].Prototype()
		if _, ok := o.registry.Get(p.Name); ok {
			continue
		}
		edges, err := o.graph.ListEdges(ctx, domain.OutgoingFilter(protos[i].ID, domain.RelHasProp))
		if err != nil {
			return restored, err
		}
		schema := &PrototypeSchema{
			PrototypeID: protos[i].ID,
			Name:        p.Name,
			Description: p.Description,
		}
		for _, e := range edges {
			n, err := o.graph.GetNode(ctx, e.To)
			if err != nil {
				return restored, err
			}
			prop, ok := n.Property()
			if !ok {
				continue
			}
			schema.Fields = append(schema.Fields, FieldSchema{Name: prop.Name, Type: prop.ValueType, Required: prop.Required})
		}
		if len(schema.Fields) == 0 {
			continue
		}
		if err := schema.Validate(); err != nil {
			o.logger.Warn("skipping stored orm prototype",
				zap.String("name", p.Name),
				zap.Error(err))
			continue
		}
		o.registry.put(schema)
		restored++
	}
	return restored, nil
}

// LoadSchemas registers every prototype in a YAML schema file.
func (o *ORM) LoadSchemas(ctx context.Context, r io.Reader) ([]*PrototypeSchema, error) {
	schemas, err := ParseSchemas(r)
	if err != nil {
		return nil, err
	}
	out := make([]*PrototypeSchema, 0, len(schemas))
	for _, s := range schemas {
		reg, err := o.RegisterPrototype(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", s.Name, err)
		}
		out = append(out, reg)
	}
	return out, nil
}

func (o *ORM) schema(name string) (*PrototypeSchema, error) {
	s, ok := o.registry.Get(name)
	if !ok {
		return nil, domain.NotFound("orm prototype", name)
	}
	return s, nil
}

// Create validates data against the schema, stores a new concept and saves
// its fields. The document starts at version 1.
func (o *ORM) Create(ctx context.Context, prototypeName string, data map[string]any) (*Handle, error) {
	schema, err := o.schema(prototypeName)
	if err != nil {
		return nil, err
	}
	for _, f := range schema.Fields {
		if v, ok := data[f.Name]; f.Required && (!ok || v == nil) {
			return nil, domain.MissingField(f.Name)
		}
	}
	for _, k := range sortedKeys(data) {
		if err := schema.CheckValue(k, data[k]); err != nil {
			return nil, err
		}
	}

	label, _ := data[domain.PropName].(string)
	concept, err := o.protos.CreateConcept(ctx, CreateConceptInput{
		PrototypeID: schema.PrototypeID,
		Label:       label,
		Source:      "orm",
	})
	if err != nil {
		return nil, err
	}

	h := newHandle(o, concept.ID, schema)
	h.docLoaded = true
	for k, v := range data {
		h.cache[k] = v
		h.loaded[k] = true
		h.dirty[k] = true
	}
	if err := h.Save(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

// Get returns a lazy handle, or nil when id is not a concept of a registered
// prototype. No field is read until requested.
func (o *ORM) Get(ctx context.Context, id uuid.UUID) (*Handle, error) {
	n, err := o.graph.GetNode(ctx, id)
	if err != nil || n == nil {
		return nil, err
	}
	c, ok := n.Concept()
	if !ok {
		return nil, nil
	}
	schema, ok := o.registry.GetByID(c.PrototypeID)
	if !ok {
		return nil, nil
	}
	return newHandle(o, id, schema), nil
}

// Find returns handles for the current concepts of a prototype in creation
// order. An unknown prototype yields an empty list.
func (o *ORM) Find(ctx context.Context, prototypeName string) ([]*Handle, error) {
	schema, ok := o.registry.Get(prototypeName)
	if !ok {
		return []*Handle{}, nil
	}

	nodes, err := o.graph.ListNodes(ctx, domain.NodeFilter{Kind: domain.KindConcept, Label: prototypeName})
	if err != nil {
		return nil, err
	}
	superseded, err := o.supersededSet(ctx)
	if err != nil {
		return nil, err
	}

	handles := make([]*Handle, 0, len(nodes))
	for i := range nodes {
		c, _ := nodes[i].Concept()
		if c.PrototypeID != schema.PrototypeID || superseded[nodes[i].ID] {
			continue
		}
		handles = append(handles, newHandle(o, nodes[i].ID, schema))
	}
	return handles, nil
}

// FindOne returns the first concept whose fields equal every entry of query,
// or nil when none does.
func (o *ORM) FindOne(ctx context.Context, prototypeName string, query map[string]any) (*Handle, error) {
	handles, err := o.Find(ctx, prototypeName)
	if err != nil {
		return nil, err
	}
	keys := sortedKeys(query)
	for _, h := range handles {
		match := true
		for _, k := range keys {
			v, ok, err := h.Get(ctx, k)
			if err != nil {
				return nil, err
			}
			if !ok || !domain.ValuesEqual(v, query[k]) {
				match = false
				break
			}
		}
		if match {
			return h, nil
		}
	}
	return nil, nil
}

func (o *ORM) supersededSet(ctx context.Context) (map[uuid.UUID]bool, error) {
	edges, err := o.graph.ListEdges(ctx, domain.EdgeFilter{Rel: domain.RelNextVersion})
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]bool, len(edges))
	for _, e := range edges {
		out[e.From] = true
	}
	return out, nil
}

// Handle is a lazily hydrated record. Reads are cached on first access and
// writes stay local until Save.
type Handle struct {
	orm    *ORM
	id     uuid.UUID
	schema *PrototypeSchema

	mu        sync.Mutex
	cache     map[string]any
	loaded    map[string]bool
	dirty     map[string]bool
	doc       map[string]any
	docLoaded bool
	version   int
}

func newHandle(o *ORM, id uuid.UUID, schema *PrototypeSchema) *Handle {
	return &Handle{
		orm:    o,
		id:     id,
		schema: schema,
		cache:  make(map[string]any),
		loaded: make(map[string]bool),
		dirty:  make(map[string]bool),
	}
}

func (h *Handle) ID() uuid.UUID {
	return h.id
}

func (h *Handle) Prototype() string {
	return h.schema.Name
}

// Get returns the value of a field. ok is false when the field is unset.
func (h *Handle) Get(ctx context.Context, name string) (any, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.getLocked(ctx, name)
}

func (h *Handle) getLocked(ctx context.Context, name string) (any, bool, error) {
	if h.loaded[name] {
		v, ok := h.cache[name]
		return v, ok, nil
	}

	if err := h.loadDocumentLocked(ctx); err != nil {
		return nil, false, err
	}
	if v, ok := h.doc[name]; ok {
		h.cache[name] = v
		h.loaded[name] = true
		return v, true, nil
	}

	v, ok, err := h.walkValue(ctx, name)
	if err != nil {
		return nil, false, err
	}
	h.loaded[name] = true
	if ok {
		h.cache[name] = v
	}
	return v, ok, nil
}

func (h *Handle) loadDocumentLocked(ctx context.Context) error {
	if h.docLoaded {
		return nil
	}
	edge, err := h.orm.graph.GetEdge(ctx, h.id, domain.DocumentNodeID(h.id), domain.RelHasDocument)
	if err != nil {
		return err
	}
	h.docLoaded = true
	if edge == nil {
		return nil
	}
	n, err := h.orm.graph.GetNode(ctx, edge.To)
	if err != nil {
		return err
	}
	if d, ok := n.Document(); ok {
		h.doc = d.Content
		h.version = d.Version
	}
	return nil
}

// walkValue reads a field from the has_value edges, bypassing the document.
func (h *Handle) walkValue(ctx context.Context, name string) (any, bool, error) {
	edges, err := h.orm.graph.ListEdges(ctx, domain.OutgoingFilter(h.id, domain.RelHasValue))
	if err != nil {
		return nil, false, err
	}
	for _, e := range edges {
		if e.PropertyName() != name {
			continue
		}
		n, err := h.orm.graph.GetNode(ctx, e.To)
		if err != nil {
			return nil, false, err
		}
		if v, ok := n.Value(); ok {
			return v.Literal, true, nil
		}
	}
	return nil, false, nil
}

// Set type-checks and caches a value. Nothing is written until Save.
func (h *Handle) Set(name string, value any) error {
	if err := h.schema.CheckValue(name, value); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cache[name] = value
	h.loaded[name] = true
	h.dirty[name] = true
	return nil
}

// Save upserts the property and value nodes of every dirty field, then
// rewrites the document once: the stored content with the dirty fields merged
// in, at the stored version plus one. A save with nothing dirty writes
// nothing. Saves of the same concept are serialized, so concurrent handles
// never lose each other's fields or reuse a version.
//
// Saves are not transactional across nodes: a failure part way leaves the
// value nodes ahead of the document, and Reload recovers from the edges.
func (h *Handle) Save(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.dirty) == 0 {
		return nil
	}

	unlock := h.orm.lockRecord(h.id)
	defer unlock()

	stored, version, err := h.storedContent(ctx)
	if err != nil {
		return err
	}

	graph := h.orm.graph
	prov := domain.NewProvenance("orm")
	names := make([]string, 0, len(h.dirty))
	for name := range h.dirty {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		f, _ := h.schema.Field(name)
		prop, err := domain.NewPropertyNode(h.schema.PrototypeID, name, f.Type, f.Required)
		if err != nil {
			return err
		}
		if err := graph.UpsertNode(ctx, prop, prov); err != nil {
			return err
		}
		if err := graph.UpsertEdge(ctx, domain.NewEdge(h.id, prop.ID, domain.RelHasProp, 1), prov); err != nil {
			return err
		}

		// Value nodes have a deterministic id per (concept, property), so
		// this overwrites the existing literal in place.
		val, err := domain.NewValueNode(h.id, name, h.cache[name])
		if err != nil {
			return err
		}
		if err := graph.UpsertNode(ctx, val, prov); err != nil {
			return err
		}
		edge := domain.NewEdge(h.id, val.ID, domain.RelHasValue, 1)
		edge.Props = map[string]any{domain.PropPropertyName: name}
		if err := graph.UpsertEdge(ctx, edge, prov); err != nil {
			return err
		}
		stored[name] = h.cache[name]
	}

	doc, err := domain.NewDocumentNode(h.id, version+1, stored)
	if err != nil {
		return err
	}
	if err := graph.UpsertNode(ctx, doc, prov); err != nil {
		return err
	}
	if err := graph.UpsertEdge(ctx, domain.NewEdge(h.id, doc.ID, domain.RelHasDocument, 1), prov); err != nil {
		return err
	}

	// The handle now mirrors what was written, including fields other
	// handles saved in the meantime.
	h.version = version + 1
	h.doc = stored
	h.docLoaded = true
	h.cache = domain.CloneProps(stored)
	h.loaded = make(map[string]bool, len(h.schema.Fields))
	for _, f := range h.schema.Fields {
		h.loaded[f.Name] = true
	}
	h.dirty = make(map[string]bool)

	h.orm.logger.Debug("orm record saved",
		zap.String("concept_id", h.id.String()),
		zap.Int("fields", len(names)),
		zap.Int("version", h.version))
	return nil
}

// storedContent reads the persisted document of the record. Without one the
// content is rebuilt from the has_value edges at version 0.
func (h *Handle) storedContent(ctx context.Context) (map[string]any, int, error) {
	n, err := h.orm.graph.GetNode(ctx, domain.DocumentNodeID(h.id))
	if err != nil {
		return nil, 0, err
	}
	if d, ok := n.Document(); ok {
		content := domain.CloneProps(d.Content)
		if content == nil {
			content = make(map[string]any)
		}
		return content, d.Version, nil
	}

	content := make(map[string]any)
	for _, f := range h.schema.Fields {
		v, ok, err := h.walkValue(ctx, f.Name)
		if err != nil {
			return nil, 0, err
		}
		if ok {
			content[f.Name] = v
		}
	}
	return content, 0, nil
}

// Version returns the document version, 0 before the first save.
func (h *Handle) Version(ctx context.Context) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.loadDocumentLocked(ctx); err != nil {
		return 0, err
	}
	return h.version, nil
}

// Dirty reports whether the handle has unsaved changes.
func (h *Handle) Dirty() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.dirty) > 0
}

// ToJSON hydrates every field and returns {uuid, field: value...}. Unset
// fields are omitted.
func (h *Handle) ToJSON(ctx context.Context) (map[string]any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, f := range h.schema.Fields {
		if _, _, err := h.getLocked(ctx, f.Name); err != nil {
			return nil, err
		}
	}
	out := h.snapshotLocked()
	out["uuid"] = h.id.String()
	return out, nil
}

// Reload drops local state and rebuilds every field from the has_value
// edges. Unsaved changes are discarded.
func (h *Handle) Reload(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.cache = make(map[string]any)
	h.loaded = make(map[string]bool)
	h.dirty = make(map[string]bool)
	h.docLoaded = false
	if err := h.loadDocumentLocked(ctx); err != nil {
		return err
	}
	for _, f := range h.schema.Fields {
		v, ok, err := h.walkValue(ctx, f.Name)
		if err != nil {
			return err
		}
		h.loaded[f.Name] = true
		if ok {
			h.cache[f.Name] = v
		}
	}
	return nil
}

func (h *Handle) snapshotLocked() map[string]any {
	out := make(map[string]any, len(h.cache)+1)
	for k, v := range h.cache {
		out[k] = v
	}
	return out
}
