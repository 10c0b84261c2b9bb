package domain

// ValueKind classifies the observed value shape of an attribute name
// across every match seen so far, widening monotonically as
// contradicting values arrive: Integer -> Float -> String. Grounded on
// original_source's AttributeIndex/AttributeKind. Nothing outside this
// file constructs or feeds an AttributeIndex yet, so no API response
// reports these kinds.
type ValueKind int

const (
	IndexedInteger ValueKind = iota
	IndexedFloat
	IndexedString
)

func (k ValueKind) adjust(v MatchAttributeValue) ValueKind {
	cur := k
	if cur == IndexedInteger && !v.IsInteger() {
		cur = IndexedFloat
	}
	if cur == IndexedFloat && !v.IsFloat() {
		cur = IndexedString
	}
	return cur
}

// AttributeIndex tracks, per attribute scope, the widened kind of
// every attribute name observed across committed matches.
type AttributeIndex struct {
	CommonGlobal map[string]ValueKind
	CommonTurn   map[string]ValueKind
	PlayerGlobal map[string]ValueKind
	PlayerTurn   map[string]ValueKind
}

func NewAttributeIndex() *AttributeIndex {
	return &AttributeIndex{
		CommonGlobal: make(map[string]ValueKind),
		CommonTurn:   make(map[string]ValueKind),
		PlayerGlobal: make(map[string]ValueKind),
		PlayerTurn:   make(map[string]ValueKind),
	}
}

// Process folds one match's attributes into the index.
func (idx *AttributeIndex) Process(m Match) {
	for _, attr := range m.Attributes {
		var scope map[string]ValueKind
		switch attr.Kind() {
		case PlayerTurn:
			scope = idx.PlayerTurn
		case PlayerGlobal:
			scope = idx.PlayerGlobal
		case CommonTurn:
			scope = idx.CommonTurn
		default:
			scope = idx.CommonGlobal
		}
		scope[attr.Name] = scope[attr.Name].adjust(attr.Value)
	}
}

// Reset clears every tracked attribute name.
func (idx *AttributeIndex) Reset() {
	idx.CommonGlobal = make(map[string]ValueKind)
	idx.CommonTurn = make(map[string]ValueKind)
	idx.PlayerGlobal = make(map[string]ValueKind)
	idx.PlayerTurn = make(map[string]ValueKind)
}
