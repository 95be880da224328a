package workflow

// DefinitionBuilder composes a Definition fluently, the way workflows are
// assembled programmatically rather than deserialized from JSON/YAML.
type DefinitionBuilder struct {
	d Definition
}

// NewDefinitionBuilder starts a new, empty Definition.
func NewDefinitionBuilder() *DefinitionBuilder {
	return &DefinitionBuilder{d: Definition{Nodes: map[string]NodeDef{}}}
}

func (b *DefinitionBuilder) Name(name string) *DefinitionBuilder { b.d.Name = name; return b }
func (b *DefinitionBuilder) Version(v string) *DefinitionBuilder { b.d.Version = v; return b }
func (b *DefinitionBuilder) EntryPoint(id string) *DefinitionBuilder {
	b.d.EntryPoint = id
	return b
}

func (b *DefinitionBuilder) AddNode(id string, n NodeDef) *DefinitionBuilder {
	if b.d.Nodes == nil {
		b.d.Nodes = map[string]NodeDef{}
	}
	b.d.Nodes[id] = n
	return b
}

func (b *DefinitionBuilder) AddEdge(e EdgeDef) *DefinitionBuilder {
	b.d.Edges = append(b.d.Edges, e)
	return b
}

func (b *DefinitionBuilder) Build() Definition { return b.d }

// NodeDefBuilder composes a single NodeDef.
type NodeDefBuilder struct{ n NodeDef }

func NewNodeDefBuilder(nodeType, name string) *NodeDefBuilder {
	return &NodeDefBuilder{n: NodeDef{Type: nodeType, Name: name, Config: map[string]any{}}}
}

func (b *NodeDefBuilder) Position(x, y float64) *NodeDefBuilder {
	b.n.Position = Position{X: x, Y: y}
	return b
}

func (b *NodeDefBuilder) ConfigKV(k string, v any) *NodeDefBuilder {
	if b.n.Config == nil {
		b.n.Config = map[string]any{}
	}
	b.n.Config[k] = v
	return b
}

func (b *NodeDefBuilder) Build() NodeDef { return b.n }

// EdgeDefBuilder composes a single EdgeDef.
type EdgeDefBuilder struct{ e EdgeDef }

func NewEdgeDefBuilder(id, source, target string) *EdgeDefBuilder {
	return &EdgeDefBuilder{e: EdgeDef{ID: id, Source: source, Target: target}}
}

func (b *EdgeDefBuilder) SourceHandle(h string) *EdgeDefBuilder {
	b.e.SourceHandle = h
	return b
}

func (b *EdgeDefBuilder) Build() EdgeDef { return b.e }
