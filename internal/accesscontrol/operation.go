package accesscontrol

// Operation identifies what a caller is about to do with a target object.
type Operation string

const (
	OpCreateDatabase Operation = "database.create"
	OpDeleteDatabase Operation = "database.delete"

	OpCreateTable Operation = "table.create"
	OpDeleteTable Operation = "table.delete"
	OpReadTable   Operation = "table.read"
	OpUpdateTable Operation = "table.update"

	OpCreateRow Operation = "row.create"
	OpReadRow   Operation = "row.read"
	OpUpdateRow Operation = "row.update"
	OpDeleteRow Operation = "row.delete"

	OpCreateField Operation = "field.create"
	OpDeleteField Operation = "field.delete"
	OpReadField   Operation = "field.read"
	OpWriteField  Operation = "field.write"
)

// Action classifies an operation's verb.
type Action int

const (
	ActionRead Action = iota
	ActionWrite
	ActionCreate
	ActionDelete
)

// Scope classifies the level of the hierarchy an operation acts on.
type Scope int

const (
	ScopeWorkspace Scope = iota
	ScopeDatabase
	ScopeTable
	ScopeField
	ScopeRow
)

// OperationKind pairs the verb and scope of an operation.
type OperationKind struct {
	Action Action
	Scope  Scope
}

// operationKinds is the single dispatch table the evaluator consults; layer
// applicability is derived from it instead of per-layer membership sets.
var operationKinds = map[Operation]OperationKind{
	OpCreateDatabase: {ActionCreate, ScopeWorkspace},
	OpDeleteDatabase: {ActionDelete, ScopeWorkspace},

	OpCreateTable: {ActionCreate, ScopeDatabase},
	OpDeleteTable: {ActionDelete, ScopeDatabase},
	OpReadTable:   {ActionRead, ScopeTable},
	OpUpdateTable: {ActionWrite, ScopeTable},

	OpCreateRow: {ActionCreate, ScopeTable},
	OpReadRow:   {ActionRead, ScopeRow},
	OpUpdateRow: {ActionWrite, ScopeRow},
	OpDeleteRow: {ActionDelete, ScopeRow},

	OpCreateField: {ActionCreate, ScopeField},
	OpDeleteField: {ActionDelete, ScopeField},
	OpReadField:   {ActionRead, ScopeField},
	OpWriteField:  {ActionWrite, ScopeField},
}

// Kind resolves the operation's verb and scope. Unknown operations report ok
// false and the evaluator fails that check.
func (o Operation) Kind() (OperationKind, bool) {
	kind, ok := operationKinds[o]
	return kind, ok
}

// IsRead reports whether the operation only reads data.
func (o Operation) IsRead() bool {
	kind, ok := operationKinds[o]
	return ok && kind.Action == ActionRead
}

// mutatesTableData reports whether the operation changes data under a table
// and therefore requires an editable table level.
func (o Operation) mutatesTableData() bool {
	kind, ok := operationKinds[o]
	if !ok || kind.Action == ActionRead {
		return false
	}
	return kind.Scope == ScopeTable || kind.Scope == ScopeField || kind.Scope == ScopeRow
}
