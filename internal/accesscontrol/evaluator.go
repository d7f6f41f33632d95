package accesscontrol

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gridbasehq/gridbase/internal/models"
	apperrors "github.com/gridbasehq/gridbase/pkg/errors"
	"github.com/gridbasehq/gridbase/pkg/logger"
	"github.com/gridbasehq/gridbase/pkg/metrics"
)

// Target names the object a check applies to. The caller already knows the
// concrete type it holds, so it fills in the ids it has; the evaluator never
// probes object shapes. FieldID alone is enough for field checks; the owning
// table is resolved from it.
type Target struct {
	DatabaseID int64
	TableID    int64
	FieldID    int64
	RowID      int64
}

// Check is one (actor, operation, target) question.
type Check struct {
	ActorID   int64
	Operation Operation
	Target    Target

	// IsRowCreation marks checks issued while a brand-new row is being
	// populated. Field-level restrictions never block initial values.
	IsRowCreation bool
}

// Evaluator answers permission checks by walking the scope hierarchy from
// workspace down to row, keeping the first denial. It holds no mutable state
// and is safe for concurrent use.
type Evaluator struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewEvaluator constructs an Evaluator backed by the permission record store.
func NewEvaluator(db *gorm.DB) (*Evaluator, error) {
	if db == nil {
		return nil, errors.New("access control: db is required")
	}
	return &Evaluator{db: db, log: logger.WithModule("accesscontrol")}, nil
}

// CheckAll evaluates a batch of checks against one workspace. Results are
// positional. A fault evaluating one check never affects its siblings; the
// failed check carries EffectError and the others their real outcome.
func (e *Evaluator) CheckAll(ctx context.Context, workspaceID int64, checks []Check) []Result {
	ctx = ensureContext(ctx)

	// One create-row operation exempts every field-level check in the same
	// batch, so initial values may populate fields that later become
	// read-only or hidden.
	rowCreationBatch := false
	for _, c := range checks {
		if c.Operation == OpCreateRow || c.IsRowCreation {
			rowCreationBatch = true
			break
		}
	}

	adminByActor := make(map[int64]adminLookup)

	results := make([]Result, len(checks))
	for i, c := range checks {
		admin, ok := adminByActor[c.ActorID]
		if !ok {
			isAdmin, err := e.isWorkspaceAdmin(ctx, c.ActorID, workspaceID)
			admin = adminLookup{admin: isAdmin, err: err}
			adminByActor[c.ActorID] = admin
		}

		results[i] = e.evaluate(ctx, workspaceID, c, admin, rowCreationBatch)
		e.observe(c, results[i])
	}

	return results
}

// Check evaluates a single check. Convenience wrapper over CheckAll.
func (e *Evaluator) Check(ctx context.Context, workspaceID int64, check Check) Result {
	return e.CheckAll(ctx, workspaceID, []Check{check})[0]
}

type adminLookup struct {
	admin bool
	err   error
}

func (e *Evaluator) evaluate(ctx context.Context, workspaceID int64, c Check, admin adminLookup, rowCreationBatch bool) Result {
	kind, ok := c.Operation.Kind()
	if !ok {
		return failed(fmt.Errorf("access control: unknown operation %q", c.Operation))
	}

	if admin.err != nil {
		return failed(fmt.Errorf("access control: workspace role lookup: %w", admin.err))
	}
	if admin.admin {
		return allowed()
	}

	// Database and table lifecycle stay admin-only.
	if kind.Scope == ScopeWorkspace {
		if kind.Action == ActionDelete {
			return denied(apperrors.ErrCannotDeleteDatabase)
		}
		return denied(apperrors.ErrCannotCreateDatabase)
	}
	if kind.Scope == ScopeDatabase {
		if kind.Action == ActionDelete {
			return denied(apperrors.ErrCannotDeleteTable)
		}
		return denied(apperrors.ErrCannotCreateTable)
	}

	table, err := e.resolveTable(ctx, c)
	if err != nil {
		return failed(err)
	}

	sawAllow := false

	// Database collaboration. Any record on the database flips it into
	// collaboration-gated mode.
	collab, res := e.collaborationLayer(ctx, c.ActorID, table)
	if res.Effect == EffectDeny || res.Effect == EffectError {
		return res
	}

	// Table data level: collaboration per-table override first, then the
	// independent TablePermission record.
	res = e.tableDataLayer(ctx, c, collab, table)
	switch res.Effect {
	case EffectDeny, EffectError:
		return res
	case EffectAllow:
		sawAllow = true
	}

	// Table structural: field lifecycle needs an explicit boolean grant.
	if kind.Scope == ScopeField && (kind.Action == ActionCreate || kind.Action == ActionDelete) {
		return e.tableStructureLayer(ctx, c, table)
	}

	// Field level, skipped while a new row is being populated.
	if kind.Scope == ScopeField {
		if rowCreationBatch || c.IsRowCreation {
			return allowed()
		}
		res = e.fieldLayer(ctx, c, kind)
		switch res.Effect {
		case EffectDeny, EffectError:
			return res
		case EffectAllow:
			sawAllow = true
		}
	}

	// Row level.
	if kind.Scope == ScopeRow {
		res = e.rowLayer(ctx, c, kind, table.ID)
		switch res.Effect {
		case EffectDeny, EffectError:
			return res
		case EffectAllow:
			sawAllow = true
		}
	}

	if sawAllow {
		return allowed()
	}
	return deferred()
}

// resolveTable loads the table a check acts on, following FieldID to its
// owning table when that is all the caller knows.
func (e *Evaluator) resolveTable(ctx context.Context, c Check) (*models.Table, error) {
	tableID := c.Target.TableID
	if tableID == 0 && c.Target.FieldID != 0 {
		var field models.Field
		err := e.db.WithContext(ctx).First(&field, c.Target.FieldID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithInternal(fmt.Errorf("field %d: %w", c.Target.FieldID, err))
		}
		if err != nil {
			return nil, fmt.Errorf("access control: load field %d: %w", c.Target.FieldID, err)
		}
		tableID = field.TableID
	}
	if tableID == 0 {
		return nil, fmt.Errorf("access control: check for %s carries no table context", c.Operation)
	}

	var table models.Table
	err := e.db.WithContext(ctx).First(&table, tableID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithInternal(fmt.Errorf("table %d: %w", tableID, err))
	}
	if err != nil {
		return nil, fmt.Errorf("access control: load table %d: %w", tableID, err)
	}
	return &table, nil
}

// collaborationLayer applies the collaboration-gated mode check and returns
// the actor's collaboration record for the table-level layer to consult.
func (e *Evaluator) collaborationLayer(ctx context.Context, actorID int64, table *models.Table) (*models.DatabaseCollaboration, Result) {
	var count int64
	if err := e.db.WithContext(ctx).Model(&models.DatabaseCollaboration{}).
		Where("database_id = ?", table.DatabaseID).Count(&count).Error; err != nil {
		return nil, failed(fmt.Errorf("access control: count collaborations: %w", err))
	}
	if count == 0 {
		return nil, deferred()
	}

	var collab models.DatabaseCollaboration
	err := e.db.WithContext(ctx).
		Where("database_id = ? AND user_id = ?", table.DatabaseID, actorID).
		First(&collab).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, denied(apperrors.ErrNoTableAccess)
	}
	if err != nil {
		return nil, failed(fmt.Errorf("access control: load collaboration: %w", err))
	}

	if !collab.TableAccessible(table.ID) {
		return nil, denied(apperrors.ErrNoTableAccess)
	}
	return &collab, deferred()
}

func (e *Evaluator) tableDataLayer(ctx context.Context, c Check, collab *models.DatabaseCollaboration, table *models.Table) Result {
	var level Level
	haveLevel := false

	if collab != nil {
		if override, ok := collab.TableLevel(table.ID); ok {
			level = Level(override)
			haveLevel = true
		}
	}

	if !haveLevel {
		var perm models.TablePermission
		err := e.db.WithContext(ctx).
			Where("table_id = ? AND user_id = ?", table.ID, c.ActorID).
			First(&perm).Error
		switch {
		case err == nil:
			level = Level(perm.Level)
			haveLevel = true
		case errors.Is(err, gorm.ErrRecordNotFound):
			var count int64
			if err := e.db.WithContext(ctx).Model(&models.TablePermission{}).
				Where("table_id = ?", table.ID).Count(&count).Error; err != nil {
				return failed(fmt.Errorf("access control: count table permissions: %w", err))
			}
			if count > 0 {
				// Records exist for this table but none for the actor.
				return denied(apperrors.ErrNoTableAccess)
			}
		default:
			return failed(fmt.Errorf("access control: load table permission: %w", err))
		}
	}

	if !haveLevel {
		return deferred()
	}

	if c.Operation.IsRead() {
		return allowed()
	}
	if c.Operation.mutatesTableData() && level != LevelEditable {
		return denied(apperrors.ErrTableReadOnly)
	}
	return deferred()
}

// tableStructureLayer gates field creation and deletion. Unlike data access,
// the absence of a grant denies.
func (e *Evaluator) tableStructureLayer(ctx context.Context, c Check, table *models.Table) Result {
	deniedErr := apperrors.ErrCannotCreateField
	if c.Operation == OpDeleteField {
		deniedErr = apperrors.ErrCannotDeleteField
	}

	var perm models.TablePermission
	err := e.db.WithContext(ctx).
		Where("table_id = ? AND user_id = ?", table.ID, c.ActorID).
		First(&perm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return denied(deniedErr)
	}
	if err != nil {
		return failed(fmt.Errorf("access control: load table permission: %w", err))
	}

	if c.Operation == OpCreateField && perm.CanCreateField {
		return allowed()
	}
	if c.Operation == OpDeleteField && perm.CanDeleteField {
		return allowed()
	}
	return denied(deniedErr)
}

func (e *Evaluator) fieldLayer(ctx context.Context, c Check, kind OperationKind) Result {
	levels := make([]Level, 0, 2)

	var fieldPerm models.FieldPermission
	err := e.db.WithContext(ctx).
		Where("field_id = ? AND user_id = ?", c.Target.FieldID, c.ActorID).
		First(&fieldPerm).Error
	switch {
	case err == nil:
		levels = append(levels, Level(fieldPerm.Level))
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return failed(fmt.Errorf("access control: load field permission: %w", err))
	}

	if c.Target.RowID != 0 {
		var rowPerm models.RowPermission
		err := e.db.WithContext(ctx).
			Where("row_id = ? AND user_id = ?", c.Target.RowID, c.ActorID).
			First(&rowPerm).Error
		switch {
		case err == nil:
			levels = append(levels, Level(rowPerm.Level))
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return failed(fmt.Errorf("access control: load row permission: %w", err))
		}
	}

	if len(levels) == 0 {
		return deferred()
	}

	switch Strictest(levels...).Rank() {
	case 0:
		if kind.Action == ActionRead {
			return allowed()
		}
		return denied(apperrors.ErrFieldHidden)
	case 1:
		if kind.Action == ActionRead {
			return allowed()
		}
		return denied(apperrors.ErrFieldReadOnly)
	default:
		return allowed()
	}
}

func (e *Evaluator) rowLayer(ctx context.Context, c Check, kind OperationKind, tableID int64) Result {
	level, haveLevel, err := e.rowLevelFor(ctx, c.ActorID, tableID, c.Target.RowID)
	if err != nil {
		return failed(err)
	}
	if !haveLevel {
		return deferred()
	}

	switch level.Rank() {
	case 0:
		// Invisible rows stay readable; the masking pipeline blanks them.
		if kind.Action == ActionRead {
			return allowed()
		}
		return denied(apperrors.ErrRowReadOnly)
	case 1:
		switch kind.Action {
		case ActionRead:
			return allowed()
		case ActionDelete:
			return denied(apperrors.ErrRowNotDeletable)
		default:
			return denied(apperrors.ErrRowReadOnly)
		}
	default:
		return allowed()
	}
}

// rowLevelFor resolves the effective row level: an explicit RowPermission
// record wins, otherwise active condition rules decide.
func (e *Evaluator) rowLevelFor(ctx context.Context, actorID, tableID, rowID int64) (Level, bool, error) {
	var perm models.RowPermission
	err := e.db.WithContext(ctx).
		Where("row_id = ? AND user_id = ?", rowID, actorID).
		First(&perm).Error
	if err == nil {
		return Level(perm.Level), true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, fmt.Errorf("access control: load row permission: %w", err)
	}

	rules, err := e.ActiveRules(ctx, tableID)
	if err != nil {
		return "", false, err
	}
	if len(rules) == 0 {
		return "", false, nil
	}

	var row models.Row
	err = e.db.WithContext(ctx).First(&row, rowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, apperrors.ErrNotFound.WithInternal(fmt.Errorf("row %d: %w", rowID, err))
	}
	if err != nil {
		return "", false, fmt.Errorf("access control: load row %d: %w", rowID, err)
	}

	level, matched := EvaluateRules(actorID, rules, row.Payload(), nil)
	return level, matched, nil
}

// ActiveRules lists a table's active condition rules in evaluation order.
func (e *Evaluator) ActiveRules(ctx context.Context, tableID int64) ([]models.ConditionRule, error) {
	var rules []models.ConditionRule
	if err := e.db.WithContext(ctx).
		Where("table_id = ? AND is_active = ?", tableID, true).
		Order("priority DESC, id ASC").
		Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("access control: list condition rules: %w", err)
	}
	return rules, nil
}

func (e *Evaluator) isWorkspaceAdmin(ctx context.Context, userID, workspaceID int64) (bool, error) {
	var member models.WorkspaceMember
	err := e.db.WithContext(ctx).
		Where("workspace_id = ? AND user_id = ?", workspaceID, userID).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return member.IsAdmin(), nil
}

func (e *Evaluator) observe(c Check, res Result) {
	metrics.PermissionChecks.WithLabelValues(string(c.Operation), res.Effect.String()).Inc()

	switch res.Effect {
	case EffectDeny:
		e.log.Debug("permission denied",
			zap.Int64("actor_id", c.ActorID),
			zap.String("operation", string(c.Operation)),
			zap.String("code", res.Denied.Code),
		)
	case EffectError:
		e.log.Error("permission check failed",
			zap.Int64("actor_id", c.ActorID),
			zap.String("operation", string(c.Operation)),
			zap.Error(res.Err),
		)
	}
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
