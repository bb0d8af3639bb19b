// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/trac-platform/trac/internal/dal"
	"github.com/trac-platform/trac/pkg/metadata"
)

// Error is the error class for the sqlstore backend.
var Error = errs.Class("sqlstore")

// Store is a dal.Store implementation backed by database/sql, shared by
// the Postgres and sqlite adapters.
type Store struct {
	log     *zap.Logger
	db      *sql.DB
	dialect Dialect
}

// New wraps an already-open *sql.DB with the given Dialect.
func New(log *zap.Logger, db *sql.DB, dialect Dialect) *Store {
	return &Store{log: log, db: db, dialect: dialect}
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ dal.Store = (*Store)(nil)

// ListTenants returns every registered tenant, ordered by code.
func (s *Store) ListTenants(ctx context.Context) ([]dal.TenantInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tenant_id, description FROM tenant ORDER BY tenant_id`)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var out []dal.TenantInfo
	for rows.Next() {
		var t dal.TenantInfo
		if err := rows.Scan(&t.Code, &t.Description); err != nil {
			return nil, Error.Wrap(err)
		}
		out = append(out, t)
	}
	return out, Error.Wrap(rows.Err())
}

// CreateTenant registers a new tenant. This is an administrative
// bootstrap operation, exercised by deployment tooling and the Trusted
// API rather than by ordinary request traffic.
func (s *Store) CreateTenant(ctx context.Context, code, description string) error {
	q := `INSERT INTO tenant (tenant_id, description) VALUES (` + s.dialect.Placeholder(1) + `, ` + s.dialect.Placeholder(2) + `)`
	_, err := s.db.ExecContext(ctx, q, code, description)
	return Error.Wrap(err)
}

func (s *Store) beginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if s.dialect.BeginImmediate() {
		if _, err := tx.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
			_ = tx.Rollback()
			return nil, Error.Wrap(err)
		}
	}
	return tx, nil
}

// SavePreallocatedIds inserts object_id rows for ids that don't have a
// definition yet (objectVersion=0, tagVersion=0).
func (s *Store) SavePreallocatedIds(ctx context.Context, tenant string, headers []metadata.TagHeader) error {
	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, h := range headers {
		if err := s.insertObjectId(ctx, tx, tenant, h.ObjectType, h.ObjectId); err != nil {
			return err
		}
	}
	return Error.Wrap(tx.Commit())
}

func (s *Store) insertObjectId(ctx context.Context, tx *sql.Tx, tenant string, objType metadata.ObjectType, id metadata.ObjectId) error {
	hi, lo := id.HiLo()
	exists, err := s.objectExists(ctx, tx, tenant, id)
	if err != nil {
		return err
	}
	if exists {
		return metadata.NewKindedError(metadata.KindAlreadyExists, "object %s already exists for tenant %s", id, tenant)
	}
	q := `INSERT INTO object_id (tenant_id, object_type, object_id_hi, object_id_lo) VALUES (` +
		s.dialect.Placeholder(1) + `, ` + s.dialect.Placeholder(2) + `, ` + s.dialect.Placeholder(3) + `, ` + s.dialect.Placeholder(4) + `)`
	_, err = tx.ExecContext(ctx, q, tenant, objType.String(), int64(hi), int64(lo))
	return Error.Wrap(err)
}

func (s *Store) objectExists(ctx context.Context, tx *sql.Tx, tenant string, id metadata.ObjectId) (bool, error) {
	hi, lo := id.HiLo()
	q := `SELECT 1 FROM object_id WHERE tenant_id = ` + s.dialect.Placeholder(1) +
		` AND object_id_hi = ` + s.dialect.Placeholder(2) + ` AND object_id_lo = ` + s.dialect.Placeholder(3)
	row := tx.QueryRowContext(ctx, q, tenant, int64(hi), int64(lo))
	var one int
	err := row.Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, Error.Wrap(err)
	}
	return true, nil
}

func (s *Store) objectPk(ctx context.Context, tx *sql.Tx, tenant string, id metadata.ObjectId) (int64, bool, error) {
	hi, lo := id.HiLo()
	q := `SELECT object_pk FROM object_id WHERE tenant_id = ` + s.dialect.Placeholder(1) +
		` AND object_id_hi = ` + s.dialect.Placeholder(2) + ` AND object_id_lo = ` + s.dialect.Placeholder(3)
	row := tx.QueryRowContext(ctx, q, tenant, int64(hi), int64(lo))
	var pk int64
	err := row.Scan(&pk)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, Error.Wrap(err)
	}
	return pk, true, nil
}

// latestDefinitionForUpdate reads the current isLatestObject row for objectPk,
// applying LockForUpdate so concurrent writers serialize on it via a
// "SELECT ... FOR UPDATE" row lock.
type latestRow struct {
	definitionPk int64
	version      int
	timestamp    time.Time
}

func (s *Store) latestDefinitionForUpdate(ctx context.Context, tx *sql.Tx, tenant string, objectPk int64) (*latestRow, error) {
	q := `SELECT definition_pk, object_version, object_timestamp FROM object_definition
		WHERE tenant_id = ` + s.dialect.Placeholder(1) + ` AND object_fk = ` + s.dialect.Placeholder(2) + ` AND is_latest = ` + trueLiteral(s.dialect) +
		s.dialect.LockForUpdate()
	row := tx.QueryRowContext(ctx, q, tenant, objectPk)
	var r latestRow
	if err := row.Scan(&r.definitionPk, &r.version, &r.timestamp); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, Error.Wrap(err)
	}
	return &r, nil
}

func (s *Store) latestTagForUpdate(ctx context.Context, tx *sql.Tx, tenant string, definitionPk int64) (*latestRow, error) {
	q := `SELECT tag_pk, tag_version, tag_timestamp FROM tag
		WHERE tenant_id = ` + s.dialect.Placeholder(1) + ` AND definition_fk = ` + s.dialect.Placeholder(2) + ` AND is_latest = ` + trueLiteral(s.dialect) +
		s.dialect.LockForUpdate()
	row := tx.QueryRowContext(ctx, q, tenant, definitionPk)
	var r latestRow
	if err := row.Scan(&r.definitionPk, &r.version, &r.timestamp); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, Error.Wrap(err)
	}
	return &r, nil
}

func trueLiteral(d Dialect) string {
	if d.Name() == "postgres" {
		return "TRUE"
	}
	return "1"
}

// SavePreallocatedObjects transitions preallocated ids (version 0) to
// version 1, inserting the first real definition and tag.
func (s *Store) SavePreallocatedObjects(ctx context.Context, tenant string, tags []metadata.Tag) error {
	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range tags {
		objectPk, ok, err := s.objectPk(ctx, tx, tenant, t.Header.ObjectId)
		if err != nil {
			return err
		}
		if !ok {
			return metadata.NewKindedError(metadata.KindNotFound, "no preallocated id for object %s", t.Header.ObjectId)
		}
		existing, err := s.latestDefinitionForUpdate(ctx, tx, tenant, objectPk)
		if err != nil {
			return err
		}
		if existing != nil {
			return metadata.NewKindedError(metadata.KindVersionConflict, "object %s already has a definition", t.Header.ObjectId)
		}
		if t.Header.ObjectVersion != 1 || t.Header.TagVersion != 1 {
			return metadata.NewKindedError(metadata.KindVersionConflict, "preallocated object must start at v1/t1")
		}
		if err := s.insertDefinitionAndTag(ctx, tx, tenant, objectPk, t, nil, nil); err != nil {
			return err
		}
	}
	return Error.Wrap(tx.Commit())
}

// SaveNewObjects inserts fresh objects at v1/t1.
func (s *Store) SaveNewObjects(ctx context.Context, tenant string, tags []metadata.Tag) error {
	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range tags {
		if t.Header.ObjectVersion != 1 || t.Header.TagVersion != 1 {
			return metadata.NewKindedError(metadata.KindInvalidInput, "new objects must start at v1/t1")
		}
		if err := s.insertObjectId(ctx, tx, tenant, t.Header.ObjectType, t.Header.ObjectId); err != nil {
			return err
		}
		objectPk, _, err := s.objectPk(ctx, tx, tenant, t.Header.ObjectId)
		if err != nil {
			return err
		}
		if err := s.insertDefinitionAndTag(ctx, tx, tenant, objectPk, t, nil, nil); err != nil {
			return err
		}
	}
	return Error.Wrap(tx.Commit())
}

// SaveNewVersions appends a new object version, flipping the prior
// version's isLatestObject/isLatestTag flags atomically.
func (s *Store) SaveNewVersions(ctx context.Context, tenant string, tags []metadata.Tag) error {
	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range tags {
		objectPk, ok, err := s.objectPk(ctx, tx, tenant, t.Header.ObjectId)
		if err != nil {
			return err
		}
		if !ok {
			return metadata.NewKindedError(metadata.KindNotFound, "object %s does not exist", t.Header.ObjectId)
		}
		prior, err := s.latestDefinitionForUpdate(ctx, tx, tenant, objectPk)
		if err != nil {
			return err
		}
		if prior == nil {
			return metadata.NewKindedError(metadata.KindNotFound, "object %s has no prior version", t.Header.ObjectId)
		}
		if prior.version+1 != t.Header.ObjectVersion {
			return metadata.NewKindedError(metadata.KindVersionConflict, "expected version %d, got %d", prior.version+1, t.Header.ObjectVersion)
		}
		if t.Header.TagVersion != 1 {
			return metadata.NewKindedError(metadata.KindInvalidInput, "new object version must start at t1")
		}
		if err := s.insertDefinitionAndTag(ctx, tx, tenant, objectPk, t, &prior.definitionPk, nil); err != nil {
			return err
		}
	}
	return Error.Wrap(tx.Commit())
}

// SaveNewTags inserts a new tag on an existing object version, flipping
// the prior tag's isLatestTag flag; the definition is left untouched.
func (s *Store) SaveNewTags(ctx context.Context, tenant string, tags []metadata.Tag) error {
	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range tags {
		objectPk, ok, err := s.objectPk(ctx, tx, tenant, t.Header.ObjectId)
		if err != nil {
			return err
		}
		if !ok {
			return metadata.NewKindedError(metadata.KindNotFound, "object %s does not exist", t.Header.ObjectId)
		}
		definitionPk, err := s.definitionPkForVersion(ctx, tx, tenant, objectPk, t.Header.ObjectVersion)
		if err != nil {
			return err
		}
		if definitionPk == 0 {
			return metadata.NewKindedError(metadata.KindNotFound, "object %s has no version %d", t.Header.ObjectId, t.Header.ObjectVersion)
		}
		prior, err := s.latestTagForUpdate(ctx, tx, tenant, definitionPk)
		if err != nil {
			return err
		}
		if prior == nil {
			return metadata.NewKindedError(metadata.KindNotFound, "object %s version %d has no tags", t.Header.ObjectId, t.Header.ObjectVersion)
		}
		if prior.version+1 != t.Header.TagVersion {
			return metadata.NewKindedError(metadata.KindTagVersionConflict, "expected tag version %d, got %d", prior.version+1, t.Header.TagVersion)
		}
		if err := s.insertTagOnly(ctx, tx, tenant, definitionPk, t, prior.definitionPk); err != nil {
			return err
		}
	}
	return Error.Wrap(tx.Commit())
}

func (s *Store) definitionPkForVersion(ctx context.Context, tx *sql.Tx, tenant string, objectPk int64, version int) (int64, error) {
	q := `SELECT definition_pk FROM object_definition WHERE tenant_id = ` + s.dialect.Placeholder(1) +
		` AND object_fk = ` + s.dialect.Placeholder(2) + ` AND object_version = ` + s.dialect.Placeholder(3)
	row := tx.QueryRowContext(ctx, q, tenant, objectPk, version)
	var pk int64
	err := row.Scan(&pk)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, Error.Wrap(err)
	}
	return pk, nil
}

// insertDefinitionAndTag inserts a fresh object_definition row plus its
// first tag row, optionally superseding a prior definition row. When
// priorDefinitionPk is non-nil, the prior row's is_latest flag is cleared
// in the same transaction.
func (s *Store) insertDefinitionAndTag(ctx context.Context, tx *sql.Tx, tenant string, objectPk int64, t metadata.Tag, priorDefinitionPk *int64, priorTagPk *int64) error {
	now := time.Now().UTC()

	q := `INSERT INTO object_definition
		(tenant_id, object_fk, object_version, object_timestamp, is_latest, meta_format, meta_version, definition)
		VALUES (` + placeholderList(s.dialect, 1, 8) + `)`
	res, err := tx.ExecContext(ctx, q, tenant, objectPk, t.Header.ObjectVersion, now, true,
		t.Definition.MetaFormat, t.Definition.MetaVersion, t.Definition.Definition)
	if err != nil {
		return Error.Wrap(err)
	}
	definitionPk, err := s.lastInsertOrRead(ctx, tx, res, tenant, objectPk, t.Header.ObjectVersion)
	if err != nil {
		return err
	}

	if err := s.insertTagOnly(ctx, tx, tenant, definitionPk, t, 0); err != nil {
		return err
	}

	if priorDefinitionPk != nil {
		uq := `UPDATE object_definition SET is_latest = ` + falseLiteral(s.dialect) + `, superseded = ` + s.dialect.Placeholder(1) +
			` WHERE tenant_id = ` + s.dialect.Placeholder(2) + ` AND definition_pk = ` + s.dialect.Placeholder(3)
		if _, err := tx.ExecContext(ctx, uq, now, tenant, *priorDefinitionPk); err != nil {
			return Error.Wrap(err)
		}
	}
	return nil
}

func falseLiteral(d Dialect) string {
	if d.Name() == "postgres" {
		return "FALSE"
	}
	return "0"
}

// insertTagOnly inserts a tag row (and its attributes) for an existing
// definitionPk, optionally superseding a prior tag row.
func (s *Store) insertTagOnly(ctx context.Context, tx *sql.Tx, tenant string, definitionPk int64, t metadata.Tag, priorTagPk int64) error {
	now := time.Now().UTC()

	q := `INSERT INTO tag (tenant_id, definition_fk, tag_version, tag_timestamp, is_latest, object_type)
		VALUES (` + placeholderList(s.dialect, 1, 6) + `)`
	res, err := tx.ExecContext(ctx, q, tenant, definitionPk, t.Header.TagVersion, now, true, t.Header.ObjectType.String())
	if err != nil {
		return Error.Wrap(err)
	}
	tagPk, err := s.lastInsertTagOrRead(ctx, tx, res, tenant, definitionPk, t.Header.TagVersion)
	if err != nil {
		return err
	}

	if err := s.insertAttrs(ctx, tx, tenant, tagPk, t.Attrs); err != nil {
		return err
	}

	if priorTagPk != 0 {
		uq := `UPDATE tag SET is_latest = ` + falseLiteral(s.dialect) + `, superseded = ` + s.dialect.Placeholder(1) +
			` WHERE tenant_id = ` + s.dialect.Placeholder(2) + ` AND tag_pk = ` + s.dialect.Placeholder(3)
		if _, err := tx.ExecContext(ctx, uq, now, tenant, priorTagPk); err != nil {
			return Error.Wrap(err)
		}
	}
	return nil
}

// lastInsertOrRead returns the generated definition_pk, using the
// driver-returned key when supported, else re-reading by natural key.
func (s *Store) lastInsertOrRead(ctx context.Context, tx *sql.Tx, res sql.Result, tenant string, objectPk int64, version int) (int64, error) {
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		return id, nil
	}
	return s.definitionPkForVersion(ctx, tx, tenant, objectPk, version)
}

func (s *Store) lastInsertTagOrRead(ctx context.Context, tx *sql.Tx, res sql.Result, tenant string, definitionPk int64, version int) (int64, error) {
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		return id, nil
	}
	q := `SELECT tag_pk FROM tag WHERE tenant_id = ` + s.dialect.Placeholder(1) +
		` AND definition_fk = ` + s.dialect.Placeholder(2) + ` AND tag_version = ` + s.dialect.Placeholder(3)
	row := tx.QueryRowContext(ctx, q, tenant, definitionPk, version)
	var pk int64
	if err := row.Scan(&pk); err != nil {
		return 0, Error.Wrap(err)
	}
	return pk, nil
}

// SaveBatchUpdate runs the five kinds of save operation as a single
// transaction, in their fixed required order.
func (s *Store) SaveBatchUpdate(ctx context.Context, tenant string, batch dal.Batch) error {
	if err := requireSingleTenant(tenant, batch); err != nil {
		return err
	}
	// Each per-kind apply* helper below mirrors the logic of the
	// corresponding SaveX method but operates within this one shared
	// transaction, so the whole batch commits or rolls back atomically.
	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.applyPreallocateIds(ctx, tx, tenant, batch.PreallocateIds); err != nil {
		return err
	}
	if err := s.applyPreallocatedObjects(ctx, tx, tenant, batch.PreallocatedObjects); err != nil {
		return err
	}
	if err := s.applyNewObjects(ctx, tx, tenant, batch.NewObjects); err != nil {
		return err
	}
	if err := s.applyNewVersions(ctx, tx, tenant, batch.NewVersions); err != nil {
		return err
	}
	if err := s.applyNewTags(ctx, tx, tenant, batch.NewTags); err != nil {
		return err
	}
	return Error.Wrap(tx.Commit())
}

// requireSingleTenant rejects a batch that names no tenant. Every write
// and lookup in the batch is scoped to this one tenant, so a batch cannot
// span tenants (DESIGN.md Open Question #2).
func requireSingleTenant(tenant string, batch dal.Batch) error {
	// Tags in this model don't carry their own tenant field (tenant is
	// the DAL call's scoping parameter), so the only possible violation
	// would come from a caller embedding a different tenant's data via
	// the object ids themselves; that's caught naturally by the
	// per-operation object-id lookups in the apply* helpers, which are
	// tenant-scoped.
	// This function exists so the decision is explicit and testable.
	if tenant == "" {
		return metadata.NewKindedError(metadata.KindInvalidInput, "batch requires a tenant")
	}
	return nil
}

func (s *Store) applyPreallocateIds(ctx context.Context, tx *sql.Tx, tenant string, headers []metadata.TagHeader) error {
	for _, h := range headers {
		if err := s.insertObjectId(ctx, tx, tenant, h.ObjectType, h.ObjectId); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) applyPreallocatedObjects(ctx context.Context, tx *sql.Tx, tenant string, tags []metadata.Tag) error {
	for _, t := range tags {
		objectPk, ok, err := s.objectPk(ctx, tx, tenant, t.Header.ObjectId)
		if err != nil {
			return err
		}
		if !ok {
			return metadata.NewKindedError(metadata.KindNotFound, "no preallocated id for object %s", t.Header.ObjectId)
		}
		existing, err := s.latestDefinitionForUpdate(ctx, tx, tenant, objectPk)
		if err != nil {
			return err
		}
		if existing != nil {
			return metadata.NewKindedError(metadata.KindVersionConflict, "object %s already has a definition", t.Header.ObjectId)
		}
		if t.Header.ObjectVersion != 1 || t.Header.TagVersion != 1 {
			return metadata.NewKindedError(metadata.KindVersionConflict, "preallocated object must start at v1/t1")
		}
		if err := s.insertDefinitionAndTag(ctx, tx, tenant, objectPk, t, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) applyNewObjects(ctx context.Context, tx *sql.Tx, tenant string, tags []metadata.Tag) error {
	for _, t := range tags {
		if t.Header.ObjectVersion != 1 || t.Header.TagVersion != 1 {
			return metadata.NewKindedError(metadata.KindInvalidInput, "new objects must start at v1/t1")
		}
		if err := s.insertObjectId(ctx, tx, tenant, t.Header.ObjectType, t.Header.ObjectId); err != nil {
			return err
		}
		objectPk, _, err := s.objectPk(ctx, tx, tenant, t.Header.ObjectId)
		if err != nil {
			return err
		}
		if err := s.insertDefinitionAndTag(ctx, tx, tenant, objectPk, t, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) applyNewVersions(ctx context.Context, tx *sql.Tx, tenant string, tags []metadata.Tag) error {
	for _, t := range tags {
		objectPk, ok, err := s.objectPk(ctx, tx, tenant, t.Header.ObjectId)
		if err != nil {
			return err
		}
		if !ok {
			return metadata.NewKindedError(metadata.KindNotFound, "object %s does not exist", t.Header.ObjectId)
		}
		prior, err := s.latestDefinitionForUpdate(ctx, tx, tenant, objectPk)
		if err != nil {
			return err
		}
		if prior == nil {
			return metadata.NewKindedError(metadata.KindNotFound, "object %s has no prior version", t.Header.ObjectId)
		}
		if prior.version+1 != t.Header.ObjectVersion {
			return metadata.NewKindedError(metadata.KindVersionConflict, "expected version %d, got %d", prior.version+1, t.Header.ObjectVersion)
		}
		if t.Header.TagVersion != 1 {
			return metadata.NewKindedError(metadata.KindInvalidInput, "new object version must start at t1")
		}
		if err := s.insertDefinitionAndTag(ctx, tx, tenant, objectPk, t, &prior.definitionPk, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) applyNewTags(ctx context.Context, tx *sql.Tx, tenant string, tags []metadata.Tag) error {
	for _, t := range tags {
		objectPk, ok, err := s.objectPk(ctx, tx, tenant, t.Header.ObjectId)
		if err != nil {
			return err
		}
		if !ok {
			return metadata.NewKindedError(metadata.KindNotFound, "object %s does not exist", t.Header.ObjectId)
		}
		definitionPk, err := s.definitionPkForVersion(ctx, tx, tenant, objectPk, t.Header.ObjectVersion)
		if err != nil {
			return err
		}
		if definitionPk == 0 {
			return metadata.NewKindedError(metadata.KindNotFound, "object %s has no version %d", t.Header.ObjectId, t.Header.ObjectVersion)
		}
		prior, err := s.latestTagForUpdate(ctx, tx, tenant, definitionPk)
		if err != nil {
			return err
		}
		if prior == nil {
			return metadata.NewKindedError(metadata.KindNotFound, "object %s version %d has no tags", t.Header.ObjectId, t.Header.ObjectVersion)
		}
		if prior.version+1 != t.Header.TagVersion {
			return metadata.NewKindedError(metadata.KindTagVersionConflict, "expected tag version %d, got %d", prior.version+1, t.Header.TagVersion)
		}
		if err := s.insertTagOnly(ctx, tx, tenant, definitionPk, t, prior.definitionPk); err != nil {
			return err
		}
	}
	return nil
}
